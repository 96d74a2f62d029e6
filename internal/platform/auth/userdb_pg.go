package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// PGStore authenticates against a users table in Postgres.
type PGStore struct {
	realm string
	pool  *pgxpool.Pool
}

func NewPGStore(realm string, pool *pgxpool.Pool) *PGStore {
	return &PGStore{realm: realm, pool: pool}
}

func (s *PGStore) Realm() string { return s.realm }

func (s *PGStore) Authenticate(ctx context.Context, username, password string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1 AND active`,
		username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth: query user %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return username, nil
}
