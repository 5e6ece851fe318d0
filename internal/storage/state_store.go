// Package storage persists anticipation state to Redis and journals feedback
// and adaptations to Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-anticipation/pkg/redis"
)

// ErrPersistence marks every failure of a persistence collaborator
var ErrPersistence = errors.New("persistence failure")

// DefaultCheckpoints is the number of previous states kept
const DefaultCheckpoints = 5

// checkpointTTL expires the checkpoint list of users that stop saving
const checkpointTTL = 7 * 24 * time.Hour

// StateStore keeps the serialized agent state of one user in Redis
type StateStore struct {
	client      redis.Client
	userID      string
	checkpoints int
	logger      *slog.Logger
}

// NewStateStore creates a Redis-backed state store
func NewStateStore(client redis.Client, userID string, checkpoints int, logger *slog.Logger) *StateStore {
	if checkpoints <= 0 {
		checkpoints = DefaultCheckpoints
	}
	return &StateStore{
		client:      client,
		userID:      userID,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Save stores data as the current state and pushes it onto the checkpoint list
func (s *StateStore) Save(ctx context.Context, data []byte) error {
	key := redis.StateKey(s.userID)
	if err := s.client.Set(ctx, key, data, 0); err != nil {
		return fmt.Errorf("%w: save state: %w", ErrPersistence, err)
	}

	listKey := redis.CheckpointsKey(s.userID)
	if err := s.client.LPush(ctx, listKey, data); err != nil {
		// the current state is already written, a missing checkpoint is not fatal
		s.logger.Warn("Failed to push state checkpoint", "key", listKey, "error", err)
		return nil
	}
	if err := s.client.LTrim(ctx, listKey, 0, int64(s.checkpoints-1)); err != nil {
		s.logger.Warn("Failed to trim state checkpoints", "key", listKey, "error", err)
	}
	if err := s.client.Expire(ctx, listKey, checkpointTTL); err != nil {
		s.logger.Warn("Failed to set checkpoint expiry", "key", listKey, "error", err)
	}

	s.logger.Debug("State saved", "key", key, "bytes", len(data))
	return nil
}

// Load returns the current state. found is false when nothing was saved yet.
func (s *StateStore) Load(ctx context.Context) (data []byte, found bool, err error) {
	value, err := s.client.Get(ctx, redis.StateKey(s.userID))
	if errors.Is(err, redis.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: load state: %w", ErrPersistence, err)
	}
	return []byte(value), true, nil
}

// Checkpoints returns up to n previous states, newest first
func (s *StateStore) Checkpoints(ctx context.Context, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, redis.CheckpointsKey(s.userID), 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("%w: load checkpoints: %w", ErrPersistence, err)
	}

	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}
