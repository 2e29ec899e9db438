package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/e-m-dev/remedy/internal/confidence"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps remediation outcome history in Redis so success rates
// survive restarts and are shared when multiple instances run.
//
// Keys:
//
//	outcomes:<pattern_id>           hash {successes, failures}
//	recent_failure:<pattern>:<host> marker with TTL = recency window
type RedisStore struct {
	rdb           *redis.Client
	failureWindow time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, failureWindow time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Connected to Redis: %s", addr)

	if failureWindow <= 0 {
		failureWindow = DefaultRecentFailureWindow
	}

	return &RedisStore{rdb: rdb, failureWindow: failureWindow}, nil
}

func (s *RedisStore) RecordOutcome(ctx context.Context, patternID, host string, success bool) error {
	outcomeKey := fmt.Sprintf("outcomes:%s", patternID)

	field := "failures"
	if success {
		field = "successes"
	}

	if err := s.rdb.HIncrBy(ctx, outcomeKey, field, 1).Err(); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	failureKey := fmt.Sprintf("recent_failure:%s:%s", patternID, host)
	if success {
		// A success clears the recency penalty for this pattern+host
		if err := s.rdb.Del(ctx, failureKey).Err(); err != nil {
			return fmt.Errorf("failed to clear failure marker: %w", err)
		}
		return nil
	}

	if err := s.rdb.Set(ctx, failureKey, time.Now().Unix(), s.failureWindow).Err(); err != nil {
		return fmt.Errorf("failed to set failure marker: %w", err)
	}

	return nil
}

func (s *RedisStore) Stats(ctx context.Context, patternID, host string) (confidence.Stats, error) {
	outcomeKey := fmt.Sprintf("outcomes:%s", patternID)

	counts, err := s.rdb.HGetAll(ctx, outcomeKey).Result()
	if err != nil {
		return confidence.Stats{}, fmt.Errorf("failed to read outcomes: %w", err)
	}

	stats := confidence.Stats{}
	fmt.Sscanf(counts["successes"], "%d", &stats.Successes)
	fmt.Sscanf(counts["failures"], "%d", &stats.Failures)

	failureKey := fmt.Sprintf("recent_failure:%s:%s", patternID, host)
	exists, err := s.rdb.Exists(ctx, failureKey).Result()
	if err != nil {
		return confidence.Stats{}, fmt.Errorf("failed to check failure marker: %w", err)
	}
	stats.RecentFailure = exists > 0

	return stats, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
