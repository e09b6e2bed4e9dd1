// Package session keeps per-session chat history so that follow-up turns
// can refer to earlier ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/config"
)

// Speakers of a Turn.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one message of a conversation.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Store persists conversation turns by session ID. Stores keep at most a
// configured number of recent turns per session and forget idle sessions
// after a TTL.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error

	// History returns up to limit of the most recent turns, oldest first.
	// A limit <= 0 returns everything kept.
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// CleanupInterval is how often an in-memory store opened by Open drops idle
// sessions.
const CleanupInterval = time.Minute

// ErrNoSession is returned for an empty session ID.
var ErrNoSession = errors.New("session: empty session id")

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.MaxTurns, cfg.TTL, logger)
	case config.BackendMemory, "":
		s := NewMemoryStore(cfg.MaxTurns, cfg.TTL)
		go s.RunCleanup(ctx, CleanupInterval)
		return s, nil
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Backend)
	}
}

const (
	historyHeader = "Conversation so far:\n"
	requestHeader = "\nCurrent request:\n"
)

// Prompt prefixes text with the conversation so far. Without history the
// text is returned unchanged.
func Prompt(history []Turn, text string) string {
	if len(history) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(historyHeader)
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	sb.WriteString(requestHeader)
	sb.WriteString(text)
	return sb.String()
}

// Current returns the request of a prompt built by Prompt, dropping the
// history. Other text is returned unchanged.
func Current(prompt string) string {
	if !strings.HasPrefix(prompt, historyHeader) {
		return prompt
	}
	if i := strings.LastIndex(prompt, requestHeader); i >= 0 {
		return prompt[i+len(requestHeader):]
	}
	return prompt
}
