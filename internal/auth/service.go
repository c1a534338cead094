package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service issues tokens for stored users.
type Service struct {
	users UserStore
	ttl   time.Duration
}

func NewService(users UserStore, ttl time.Duration) *Service {
	return &Service{users: users, ttl: ttl}
}

// LoginResult carries the signed token and the identity it encodes.
type LoginResult struct {
	Token          string
	ExpiresAt      time.Time
	SubjectID      string
	OrganizationID string
	Role           string
}

// Login verifies credentials and returns a signed token. Every failure
// mode collapses to ErrUnauthorized so responses never reveal whether
// the account exists.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrUnauthorized
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	if user.Status != "" && user.Status != "active" {
		return LoginResult{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrUnauthorized
	}

	token, err := GenerateToken(user.ID, user.OrganizationID, []string{user.Role}, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:          token,
		ExpiresAt:      time.Now().UTC().Add(s.ttl),
		SubjectID:      user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}, nil
}
