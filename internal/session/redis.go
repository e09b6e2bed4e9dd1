package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Store = (*RedisStore)(nil)

// KeyPrefix namespaces session keys.
const KeyPrefix = "ordercopilot:session:"

// RedisStore keeps each session as a Redis list of JSON turns.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
	logger   *zap.Logger
}

// NewRedisStore connects to the Redis server at url
// (redis://[:password@]host:port/db) and checks it with PING.
func NewRedisStore(ctx context.Context, url string, maxTurns int, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: connect to redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "session"))
	logger.Info("session store connected", zap.String("addr", opts.Addr), zap.Int("max_turns", maxTurns))
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl, logger: logger}, nil
}

func key(sessionID string) string { return KeyPrefix + sessionID }

// Append pushes turn, trims the list and refreshes its expiry in one
// transaction.
func (r *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrNoSession
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session: marshal turn: %w", err)
	}
	k := key(sessionID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, data)
		if r.maxTurns > 0 {
			p.LTrim(ctx, k, int64(-r.maxTurns), -1)
		}
		if r.ttl > 0 {
			p.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: append: %w", err)
	}
	return nil
}

// History reads the most recent turns.
func (r *RedisStore) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := r.client.LRange(ctx, key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, s := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			r.logger.Warn("skipping malformed turn", zap.String("session", sessionID), zap.Error(err))
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear deletes the session key.
func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
