//go:build integration

package kvstore

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"family-session/internal/database"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.SetItem(ctx, "token", "t1"))
	require.NoError(t, store.SetItem(ctx, "token", "t2"))

	v, ok, err := store.GetItem(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t2", v)

	require.NoError(t, store.RemoveItem(ctx, "token"))
	_, ok, err = store.GetItem(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseStore(t, NewRedisStore(client, "kvstore-test:"))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{URL: url, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))

	exerciseStore(t, NewPostgresStore(db.Pool, "kvstore-test"))
}
