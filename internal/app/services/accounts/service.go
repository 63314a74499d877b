package accounts

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Service manages sign-up, sign-in and profile changes.
type Service struct {
	store  storage.UserStore
	tokens *TokenManager
	log    *logging.Logger
	now    func() time.Time
}

// New constructs an accounts service.
func New(store storage.UserStore, tokens *TokenManager, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("accounts")
	}
	return &Service{store: store, tokens: tokens, log: log, now: time.Now}
}

// Tokens exposes the token manager used by the service.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   account.User `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// Register creates a regular user and its default notification settings.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := account.NormalizeEmail(in.Email)
	var errs []string
	switch {
	case email == "":
		errs = append(errs, apperrors.Field("email", "This field is required."))
	case !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		errs = append(errs, apperrors.Field("email", "Enter a valid email address."))
	}
	if strings.TrimSpace(in.FullName) == "" {
		errs = append(errs, apperrors.Field("full_name", "This field is required."))
	}
	if in.Password == "" {
		errs = append(errs, apperrors.Field("password", "This field is required."))
	} else {
		for _, msg := range ValidatePassword(in.Password, email) {
			errs = append(errs, apperrors.Field("password", msg))
		}
	}
	if len(errs) > 0 {
		return AuthResult{}, apperrors.Validation(errs...)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, apperrors.Internal("", err)
	}
	user := account.User{
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Role:         account.RoleUser,
		IsActive:     true,
		DateJoined:   s.now().UTC(),
		PasswordHash: hash,
	}
	user, err = s.store.CreateUser(ctx, user, notification.DefaultSetting(0))
	if errors.Is(err, storage.ErrDuplicate) {
		return AuthResult{}, apperrors.Validation(apperrors.Field("email", "user with this email already exists."))
	}
	if err != nil {
		return AuthResult{}, apperrors.Internal("", err)
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, apperrors.Internal("", err)
	}
	s.log.WithField("user_id", user.ID).Info("user registered")
	return AuthResult{User: user, Tokens: pair}, nil
}

func invalidCredentials() *apperrors.ServiceError {
	return apperrors.New(http.StatusUnauthorized, apperrors.CodeAuthFailed, "Invalid credentials.", "Invalid email or password.")
}

// Login verifies credentials and records the login time.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResult{}, invalidCredentials()
		}
		return AuthResult{}, apperrors.Internal("", err)
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		s.log.WithField("user_id", user.ID).Warn("login rejected")
		return AuthResult{}, invalidCredentials()
	}

	now := s.now().UTC()
	user.LastLogin = &now
	if user, err = s.store.UpdateUser(ctx, user); err != nil {
		return AuthResult{}, apperrors.Internal("", err)
	}
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, apperrors.Internal("", err)
	}
	return AuthResult{User: user, Tokens: pair}, nil
}

// Logout blacklists the refresh token.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	if strings.TrimSpace(refresh) == "" {
		return apperrors.BadRequest("Logout failed.", "Refresh token is required.")
	}
	if err := s.tokens.Revoke(ctx, refresh); err != nil {
		return apperrors.BadRequest("Logout failed.", "Token is invalid or expired.")
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := s.tokens.ParseRefresh(ctx, refresh)
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return "", apperrors.InvalidToken(err)
	}
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	return pair.Access, nil
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, access string) (account.User, error) {
	claims, err := s.tokens.Parse(access, TokenAccess)
	if err != nil {
		return account.User{}, apperrors.InvalidToken(err)
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.User{}, apperrors.InvalidToken(err)
		}
		return account.User{}, apperrors.Internal("", err)
	}
	if !user.IsActive {
		return account.User{}, apperrors.AuthenticationFailed(errors.New("user is inactive"))
	}
	return user, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id int64) (account.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return account.User{}, apperrors.NotFound("user")
	}
	if err != nil {
		return account.User{}, apperrors.Internal("", err)
	}
	return user, nil
}

// ProfilePatch carries the self-editable profile fields.
type ProfilePatch struct {
	FullName       *string `json:"full_name"`
	PhoneNumber    *string `json:"phone_number"`
	ProfilePicture *string `json:"profile_picture"`
}

// UpdateProfile applies the set fields of p.
func (s *Service) UpdateProfile(ctx context.Context, id int64, p ProfilePatch) (account.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return account.User{}, err
	}
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if name == "" {
			return account.User{}, apperrors.Validation(apperrors.Field("full_name", "This field may not be blank."))
		}
		user.FullName = name
	}
	if p.PhoneNumber != nil {
		if len(*p.PhoneNumber) > 20 {
			return account.User{}, apperrors.Validation(apperrors.Field("phone_number", "Ensure this field has no more than 20 characters."))
		}
		user.PhoneNumber = strings.TrimSpace(*p.PhoneNumber)
	}
	if p.ProfilePicture != nil {
		user.ProfilePicture = *p.ProfilePicture
	}
	user, err = s.store.UpdateUser(ctx, user)
	if err != nil {
		return account.User{}, apperrors.Internal("", err)
	}
	return user, nil
}

// ChangePasswordInput is the change-password payload.
type ChangePasswordInput struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword verifies the old password and stores the new one.
func (s *Service) ChangePassword(ctx context.Context, id int64, in ChangePasswordInput) error {
	var errs []string
	for field, v := range map[string]string{"old_password": in.OldPassword, "new_password": in.NewPassword, "confirm_password": in.ConfirmPassword} {
		if v == "" {
			errs = append(errs, apperrors.Field(field, "This field is required."))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return apperrors.Validation(errs...)
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperrors.Validation(apperrors.Field("confirm_password", "Password fields didn't match."))
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, msg := range ValidatePassword(in.NewPassword, user.Email) {
		errs = append(errs, apperrors.Field("new_password", msg))
	}
	if len(errs) > 0 {
		return apperrors.Validation(errs...)
	}
	if !CheckPassword(user.PasswordHash, in.OldPassword) {
		return apperrors.BadRequest("Password change failed.", "Old password is incorrect.")
	}

	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return apperrors.Internal("", err)
	}
	user.PasswordHash = hash
	if _, err := s.store.UpdateUser(ctx, user); err != nil {
		return apperrors.Internal("", err)
	}
	s.log.WithField("user_id", id).Info("password changed")
	return nil
}

// CreateSuperuser creates an administrator account. Password rules are not
// applied so operators can bootstrap with any secret.
func (s *Service) CreateSuperuser(ctx context.Context, email, password, fullName string) (account.User, error) {
	email = account.NormalizeEmail(email)
	if email == "" || password == "" {
		return account.User{}, apperrors.Validation("email and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return account.User{}, err
	}
	user := account.User{
		Email:        email,
		FullName:     fullName,
		Role:         account.RoleAdmin,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		DateJoined:   s.now().UTC(),
		PasswordHash: hash,
	}
	user, err = s.store.CreateUser(ctx, user, notification.DefaultSetting(0))
	if errors.Is(err, storage.ErrDuplicate) {
		return account.User{}, apperrors.Conflict("User already exists.", apperrors.Field("email", "user with this email already exists."))
	}
	return user, err
}
