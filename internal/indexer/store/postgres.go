package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/postgres"
)

const dbTimeout = 10 * time.Second

const postgresSchema = `CREATE TABLE IF NOT EXISTS bm25_snapshots (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	size       BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresStore struct {
	client *postgres.Client
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating bm25_snapshots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bm25_snapshots (key, data, size, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (key) DO UPDATE
			 SET data = EXCLUDED.data, size = EXCLUDED.size, updated_at = now()`,
			key, data, len(data),
		)
		if err != nil {
			return fmt.Errorf("storing snapshot %s in postgres: %w", key, err)
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT data FROM bm25_snapshots WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("postgres", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s from postgres: %w", key, err)
	}
	return data, nil
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
