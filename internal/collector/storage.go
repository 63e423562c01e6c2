package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// Storage writes entity states to Redis
type Storage struct {
	redis  redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStorage creates a storage handler; states expire after ttl
func NewStorage(redisClient redis.Client, ttl time.Duration, logger *slog.Logger) *Storage {
	return &Storage{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// StoreState replaces the state hash of the entity and refreshes its TTL
func (s *Storage) StoreState(ctx context.Context, st *sensors.EntityState) error {
	key := redis.EntityStateKey(st.EntityID)

	fields, err := sensors.EncodeFields(st)
	if err != nil {
		return err
	}

	// attributes from an older state must not survive
	if err := s.redis.ReplaceHash(ctx, key, fields, s.ttl); err != nil {
		return fmt.Errorf("failed to store state of %s: %w", st.EntityID, err)
	}

	s.logger.Debug("Stored entity state", "key", key, "state", st.State)
	return nil
}
