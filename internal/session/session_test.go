package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/ordercopilot/internal/config"
)

func turn(role, text string) Turn {
	return Turn{Role: role, Text: text, At: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newRedis(t *testing.T, maxTurns int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", maxTurns, ttl, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// --------------------------------------------------------------------------
// Shared behaviour
// --------------------------------------------------------------------------

func TestStores_AppendAndHistory(t *testing.T) {
	rs, _ := newRedis(t, 3, time.Hour)
	stores := map[string]Store{
		"memory": NewMemoryStore(3, time.Hour),
		"redis":  rs,
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 4; i++ {
				require.NoError(t, s.Append(ctx, "alice", turn(RoleUser, fmt.Sprintf("m%d", i))))
			}
			require.NoError(t, s.Append(ctx, "bob", turn(RoleUser, "hi")))

			got, err := s.History(ctx, "alice", 0)
			require.NoError(t, err)
			require.Len(t, got, 3, "only the most recent turns are kept")
			assert.Equal(t, "m2", got[0].Text)
			assert.Equal(t, "m4", got[2].Text)

			got, err = s.History(ctx, "alice", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "m3", got[0].Text)

			require.NoError(t, s.Clear(ctx, "alice"))
			got, err = s.History(ctx, "alice", 0)
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.History(ctx, "bob", 0)
			require.NoError(t, err)
			assert.Len(t, got, 1, "sessions are independent")
		})
	}
}

func TestStores_RejectEmptySession(t *testing.T) {
	rs, _ := newRedis(t, 0, 0)
	for _, s := range []Store{NewMemoryStore(0, 0), rs} {
		assert.ErrorIs(t, s.Append(context.Background(), "", turn(RoleUser, "x")), ErrNoSession)
		_, err := s.History(context.Background(), "", 1)
		assert.ErrorIs(t, err, ErrNoSession)
	}
}

// --------------------------------------------------------------------------
// MemoryStore
// --------------------------------------------------------------------------

func TestMemoryStore_Expires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10, time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(context.Background(), "a", turn(RoleUser, "x")))
	now = now.Add(59 * time.Second)
	got, _ := s.History(context.Background(), "a", 0)
	assert.Len(t, got, 1)

	now = now.Add(time.Minute)
	got, _ = s.History(context.Background(), "a", 0)
	assert.Empty(t, got)
}

func TestMemoryStore_CleanupDropsIdleSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10, time.Minute)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "idle", turn(RoleUser, "x")))
	now = now.Add(45 * time.Second)
	require.NoError(t, s.Append(ctx, "active", turn(RoleUser, "y")))
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())

	got, err := s.History(ctx, "active", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore_CleanupWithoutTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(context.Background(), "a", turn(RoleUser, "x")))
	now = now.Add(24 * time.Hour)
	assert.Equal(t, 0, s.Cleanup())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_RunCleanupStopsOnCancel(t *testing.T) {
	s := NewMemoryStore(10, time.Nanosecond)
	require.NoError(t, s.Append(context.Background(), "a", turn(RoleUser, "x")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

// --------------------------------------------------------------------------
// RedisStore
// --------------------------------------------------------------------------

func TestRedisStore_KeyAndTTL(t *testing.T) {
	s, mr := newRedis(t, 5, time.Minute)
	require.NoError(t, s.Append(context.Background(), "alice", turn(RoleAgent, "hello")))

	assert.True(t, mr.Exists(KeyPrefix+"alice"))
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"alice"))

	mr.FastForward(2 * time.Minute)
	got, err := s.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_SkipsMalformedTurns(t *testing.T) {
	s, mr := newRedis(t, 0, 0)
	_, err := mr.Push(KeyPrefix+"alice", "not json")
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), "alice", turn(RoleUser, "ok")))

	got, err := s.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Text)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(context.Background(), "redis://"+addr, 1, time.Minute, nil)
	assert.ErrorContains(t, err, "connect to redis")

	_, err = NewRedisStore(context.Background(), "::bad", 1, time.Minute, nil)
	assert.ErrorContains(t, err, "parse redis url")
}

// --------------------------------------------------------------------------
// Open and Prompt
// --------------------------------------------------------------------------

func TestOpen(t *testing.T) {
	cfg := config.Default().Session
	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cfg.Backend = config.BackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()
	s, err = Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	cfg.Backend = "etcd"
	_, err = Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPrompt(t *testing.T) {
	assert.Equal(t, "hi", Prompt(nil, "hi"))

	got := Prompt([]Turn{turn(RoleUser, "scan order 42"), turn(RoleAgent, "started")}, "resume last")
	assert.Equal(t, "Conversation so far:\nuser: scan order 42\nagent: started\n\nCurrent request:\nresume last", got)
}

func TestCurrent(t *testing.T) {
	assert.Equal(t, "resume last", Current("resume last"))

	prompt := Prompt([]Turn{turn(RoleUser, "scan order 42")}, "resume last")
	assert.Equal(t, "resume last", Current(prompt))
}
