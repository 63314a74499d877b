package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims are carried by both access and refresh tokens.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is returned on register and login.
type TokenPair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  Blacklist
	now        func() time.Time
}

// NewTokenManager builds a manager. A nil blacklist keeps revocations in memory.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, blacklist Blacklist) *TokenManager {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blacklist:  blacklist,
		now:        time.Now,
	}
}

// Issue creates a fresh access/refresh pair for u.
func (m *TokenManager) Issue(u account.User) (TokenPair, error) {
	refresh, err := m.sign(u, TokenRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := m.sign(u, TokenAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Refresh: refresh, Access: access}, nil
}

func (m *TokenManager) sign(u account.User, typ string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies signature, expiry and token type.
func (m *TokenManager) Parse(token, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("token has wrong type")
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and checks it has not been revoked.
func (m *TokenManager) ParseRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.Parse(token, TokenRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := m.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("token is blacklisted")
	}
	return claims, nil
}

// Revoke blacklists a refresh token until it would have expired anyway.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	claims, err := m.ParseRefresh(ctx, token)
	if err != nil {
		return err
	}
	until := m.now().Add(m.refreshTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return m.blacklist.Revoke(ctx, claims.ID, until)
}
