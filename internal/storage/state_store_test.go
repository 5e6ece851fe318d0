package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-anticipation/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStateStore_SaveLoad(t *testing.T) {
	client := redis.NewMockClient()
	store := NewStateStore(client, "alice", 3, testLogger())
	ctx := context.Background()

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, []byte(`{"version":1}`)))

	data, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"version":1}`, string(data))
	assert.Equal(t, checkpointTTL, client.TTL(redis.CheckpointsKey("alice")))
}

func TestStateStore_CheckpointsBounded(t *testing.T) {
	client := redis.NewMockClient()
	store := NewStateStore(client, "alice", 3, testLogger())
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, store.Save(ctx, []byte(v)))
	}

	checkpoints, err := store.Checkpoints(ctx, 10)
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	assert.Equal(t, "5", string(checkpoints[0]))
	assert.Equal(t, "3", string(checkpoints[2]))

	none, err := store.Checkpoints(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStateStore_ErrorsWrapPersistence(t *testing.T) {
	client := redis.NewMockClient()
	client.Err = errors.New("connection refused")
	store := NewStateStore(client, "alice", 3, testLogger())
	ctx := context.Background()

	err := store.Save(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrPersistence)

	_, _, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = store.Checkpoints(ctx, 1)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestStateStore_UsersIsolated(t *testing.T) {
	client := redis.NewMockClient()
	ctx := context.Background()

	require.NoError(t, NewStateStore(client, "alice", 3, testLogger()).Save(ctx, []byte("a")))

	_, found, err := NewStateStore(client, "bob", 3, testLogger()).Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}
