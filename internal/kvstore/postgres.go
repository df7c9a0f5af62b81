package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps items in the kv_items table, scoped by namespace so
// several device profiles can share one database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPostgresStore(pool *pgxpool.Pool, namespace string) *PostgresStore {
	return &PostgresStore{pool: pool, namespace: namespace}
}

func (s *PostgresStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_items WHERE namespace = $1 AND key = $2`,
		s.namespace, key).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, persistenceErr("get", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) SetItem(ctx context.Context, key string, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_items (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.namespace, key, value, time.Now().UTC())
	if err != nil {
		return persistenceErr("set", key, err)
	}
	return nil
}

func (s *PostgresStore) RemoveItem(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kv_items WHERE namespace = $1 AND key = $2`, s.namespace, key)
	if err != nil {
		return persistenceErr("remove", key, err)
	}
	return nil
}
