// Package store keeps encoded index snapshots in durable storage. Every
// backend stores opaque bytes under a key; encoding is the snapshot
// package's concern.
package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/redis"
)

// Store is implemented by every snapshot backend. Get returns
// ErrSnapshotNotFound when nothing is stored under key.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open connects the backend selected in cfg.Snapshot.Backend.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Snapshot.Backend {
	case "file":
		return NewFileStore(cfg.Snapshot.Dir)
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting snapshot redis: %w", err)
		}
		return NewRedisStore(client, "bm25:snapshot:"), nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting snapshot postgres: %w", err)
		}
		s := NewPostgresStore(client)
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := s.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return OpenSQLite(cfg.Snapshot.SQLitePath)
	default:
		return nil, apperrors.Invalid("snapshot.backend", "unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return apperrors.Invalid("key", "snapshot key must not be empty")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return apperrors.Invalid("key", "snapshot key %q must not contain path separators", key)
	}
	return nil
}

func notFound(backend, key string) error {
	return apperrors.Newf(apperrors.ErrSnapshotNotFound, http.StatusNotFound, "%s: no snapshot stored under %q", backend, key)
}
