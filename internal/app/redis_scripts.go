package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// keyPrefix normalizes a configured key prefix, falling back when it is blank.
func keyPrefix(prefix, fallback string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func redisKey(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}

// runIntScript runs script and decodes an integer or array-of-integers reply.
// want is the number of integers the caller expects.
func runIntScript(ctx context.Context, client redis.Scripter, script *redis.Script, keys []string, want int, args ...interface{}) ([]int64, error) {
	reply, err := script.Run(ctx, client, keys, args...).Result()
	if err != nil {
		return nil, err
	}
	return scriptInts(reply, want)
}

func scriptInts(reply interface{}, want int) ([]int64, error) {
	var values []int64
	switch v := reply.(type) {
	case int64:
		values = []int64{v}
	case []interface{}:
		values = make([]int64, 0, len(v))
		for i, item := range v {
			n, ok := item.(int64)
			if !ok {
				return nil, fmt.Errorf("redis script reply item %d: unexpected type %T", i, item)
			}
			values = append(values, n)
		}
	default:
		return nil, fmt.Errorf("redis script reply: unexpected type %T", reply)
	}
	if len(values) != want {
		return nil, fmt.Errorf("redis script reply: expected %d values, got %d", want, len(values))
	}
	return values, nil
}
