package accounts

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range strings.Fields(`
		password password1 password12 password123 passw0rd 12345678 123456789 1234567890
		qwerty123 qwertyuiop 11111111 00000000 iloveyou sunshine princess football
		baseball welcome welcome1 letmein1 admin123 administrator abc12345 superman
		trustno1 whatever dragon12 monkey123 starwars computer internet michelle
		jennifer 1q2w3e4r qazwsxedc zaq12wsx changeme secret123 master123 shadow12
		security sentinel`) {
		commonPasswords[p] = struct{}{}
	}
}

// ValidatePassword returns the reasons password is rejected for the account
// identified by email.
func ValidatePassword(password, email string) []string {
	var errs []string
	if len(password) < minPasswordLength {
		errs = append(errs, "This password is too short. It must contain at least 8 characters.")
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		errs = append(errs, "This password is entirely numeric.")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		errs = append(errs, "This password is too common.")
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" && strings.EqualFold(local, password) {
		errs = append(errs, "The password is too similar to the email address.")
	}
	return errs
}

// HashPassword hashes with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
