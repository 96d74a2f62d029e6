package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when no realm accepts the
// credentials.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// UserStore authenticates a user against one realm and returns its
// user id.
type UserStore interface {
	// Realm names the store in the authenticated subject.
	Realm() string
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// StaticStore authenticates against a fixed user table from the
// configuration. Values are bcrypt hashes.
type StaticStore struct {
	realm string
	users map[string]string
}

func NewStaticStore(realm string, users map[string]string) *StaticStore {
	return &StaticStore{realm: realm, users: users}
}

func (s *StaticStore) Realm() string { return s.realm }

func (s *StaticStore) Authenticate(ctx context.Context, username, password string) (string, error) {
	hash, ok := s.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// HashPassword produces a bcrypt hash suitable for a user store.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate tries each store in order and returns the first
// realm-qualified subject. A failing realm never blocks the next one.
func Authenticate(ctx context.Context, stores []UserStore, username, password string) (string, error) {
	for _, store := range stores {
		uid, err := store.Authenticate(ctx, username, password)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%s:%s", store.Realm(), uid), nil
	}
	return "", ErrInvalidCredentials
}
