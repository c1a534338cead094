package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// UserStore describes the persistence the auth subsystem needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// MemoryUsers is the in-process UserStore used by tests and DSN-less
// deployments.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]*User
}

var _ UserStore = (*MemoryUsers)(nil)

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func (s *MemoryUsers) CreateUser(ctx context.Context, u *User) error {
	if u == nil || strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return ErrInvalidInput
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	stored := *u
	stored.Email = email
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.byID[stored.ID] = &stored
	s.byEmail[email] = &stored
	return nil
}

func (s *MemoryUsers) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryUsers) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// Seed registers a user with a freshly hashed password. Used by the
// memory-backed deployment to install the predefined accounts.
func (s *MemoryUsers) Seed(ctx context.Context, u User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if u.Status == "" {
		u.Status = "active"
	}
	return s.CreateUser(ctx, &u)
}
