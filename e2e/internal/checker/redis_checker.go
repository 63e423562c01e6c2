package checker

import (
	"context"
	"errors"
	"fmt"

	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// CheckRedis matches one field of a Redis hash
func CheckRedis(ctx context.Context, client redis.Client, exp scenario.Expectation) (bool, string, interface{}) {
	fields, err := client.HGetAll(ctx, exp.RedisKey)
	if errors.Is(err, redis.ErrNotFound) {
		return false, fmt.Sprintf("key %q not found in Redis", exp.RedisKey), nil
	}
	if err != nil {
		return false, fmt.Sprintf("Redis error: %v", err), nil
	}

	value, ok := fields[exp.RedisField]
	if !ok {
		return false, fmt.Sprintf("field %q missing from %q", exp.RedisField, exp.RedisKey), nil
	}

	if reason := Match(value, exp.Expected); reason != "" {
		return false, reason, value
	}
	return true, "", value
}
