// Package sqlite is the on-disk fallback credential backend for
// platforms without a usable OS keystore. Values are sealed before they
// touch the database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketclub/authcore/pkg/credstore"
	"github.com/pocketclub/authcore/pkg/cryptox"

	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

// NewStore opens (or creates) the credential database at dsn. The sealer
// is mandatory: this backend never writes plaintext tokens to disk.
func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, fmt.Errorf("sqlite: sealer is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// A credential store sees one writer; a single connection avoids
	// SQLITE_BUSY churn entirely.
	db.SetMaxOpenConns(1)

	return &Store{db: db, sealer: sealer}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, key,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get %q: %w", key, err)
	}

	plaintext, err := s.sealer.Open(sealed)
	if err != nil {
		// A value we cannot unseal is as good as absent; the caller
		// treats it as a missing credential rather than failing.
		return "", credstore.ErrNotFound
	}

	return string(plaintext), nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("sqlite: seal %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, sealed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE key = ?`, key,
	); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}
