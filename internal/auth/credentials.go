package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"marketplace-gateway/internal/common/errors"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.AuthError("invalid email or password")

// User is an account that can log in.
type User struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
}

// CredentialChecker verifies a login attempt.
type CredentialChecker interface {
	Check(ctx context.Context, email, password string) (*User, error)
}

// StaticCredentials checks logins against a fixed set of bcrypt-hashed
// accounts configured at startup.
type StaticCredentials struct {
	users map[string]User
}

// NewStaticCredentials indexes users by normalized email.
func NewStaticCredentials(users ...User) *StaticCredentials {
	s := &StaticCredentials{users: make(map[string]User, len(users))}
	for _, u := range users {
		u.Role = normalizeRole(u.Role)
		s.users[NormalizeEmail(u.Email)] = u
	}
	return s
}

func (s *StaticCredentials) Check(ctx context.Context, email, password string) (*User, error) {
	u, ok := s.users[NormalizeEmail(email)]
	if !ok {
		// Unknown emails still pay for one comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.InternalError("failed to hash password", err)
	}
	return string(hash), nil
}

// NormalizeEmail lower-cases and trims an email for use as an identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)
