package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// RedisReader reads entity states the collector keeps in Redis
type RedisReader struct {
	redis  redis.Client
	logger *slog.Logger
}

// NewRedisReader creates a reader over the collector's entity state hashes
func NewRedisReader(redisClient redis.Client, logger *slog.Logger) *RedisReader {
	return &RedisReader{
		redis:  redisClient,
		logger: logger,
	}
}

// State returns the latest state of an entity
func (r *RedisReader) State(ctx context.Context, entityID string) (*EntityState, error) {
	fields, err := r.redis.HGetAll(ctx, redis.EntityStateKey(entityID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", entityID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read state of %s: %w", entityID, err)
	}

	return DecodeFields(entityID, fields, r.logger), nil
}

// EncodeFields flattens a state into the hash fields the collector writes
func EncodeFields(st *EntityState) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"state":      st.State,
		"name":       st.Name,
		"updated_at": st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(st.Attributes) > 0 {
		attrs, err := json.Marshal(st.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attributes of %s: %w", st.EntityID, err)
		}
		fields["attributes"] = string(attrs)
	}
	return fields, nil
}

// DecodeFields rebuilds a state from its hash fields. Malformed attributes
// or timestamps are logged and skipped; the state itself is still usable.
func DecodeFields(entityID string, fields map[string]string, logger *slog.Logger) *EntityState {
	st := &EntityState{
		EntityID: entityID,
		State:    fields["state"],
		Name:     fields["name"],
	}

	if raw := fields["attributes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.Attributes); err != nil {
			logger.Warn("Failed to parse entity attributes", "entity_id", entityID, "error", err)
		}
	}

	if raw := fields["updated_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.UpdatedAt = ts
		}
	}

	return st
}
