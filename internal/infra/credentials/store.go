package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"mediagen/internal/infra"
)

const (
	ProviderKie = "kie"
)

// Store keeps third-party API credentials in the database so keys can be
// rotated without redeploying. Environment variables take precedence; the
// store is the fallback the binaries consult on boot.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) ProviderAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderKie)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, `SELECT token FROM provider_credentials WHERE provider = $1`, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetProviderAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderKie, key)
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	_, err := s.sql.Exec(ctx, `
		INSERT INTO provider_credentials (provider, token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (provider) DO UPDATE SET token = EXCLUDED.token, updated_at = now()
	`, provider, token)
	return err
}
