package session

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memorySession struct {
	turns   []Turn
	touched time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store. maxTurns <= 0 keeps every turn
// and ttl <= 0 never expires sessions.
func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Append records turn.
func (m *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID)
	if s == nil {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	s.turns = append(s.turns, turn)
	if m.maxTurns > 0 && len(s.turns) > m.maxTurns {
		s.turns = append([]Turn(nil), s.turns[len(s.turns)-m.maxTurns:]...)
	}
	s.touched = m.now()
	return nil
}

// History returns the most recent turns.
func (m *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID)
	if s == nil {
		return nil, nil
	}
	turns := s.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]Turn(nil), turns...), nil
}

// Clear forgets the session.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Cleanup drops sessions idle for ttl or longer and returns how many were
// dropped.
func (m *MemoryStore) Cleanup() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.sessions {
		if m.live(id) == nil {
			n++
		}
	}
	return n
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (m *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Len returns the number of sessions held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// live returns the session, dropping it first if it has expired. Callers
// hold m.mu.
func (m *MemoryStore) live(id string) *memorySession {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if m.ttl > 0 && m.now().Sub(s.touched) >= m.ttl {
		delete(m.sessions, id)
		return nil
	}
	return s
}
