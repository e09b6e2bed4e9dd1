package longrun

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep drops operations whose ready time plus TTL has passed without a
// Resume. A last-handle slot is kept after its operation is gone, so "last"
// still reports the handle as unknown, and is forgotten only once its scope
// has started nothing for slotTTLFactor times the TTL. It returns the number
// of operations dropped.
func (t *Tracker) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}
	now := t.now()

	t.mu.Lock()
	n := 0
	for h, op := range t.ops {
		if now.After(op.readyAt.Add(t.ttl)) {
			delete(t.ops, h)
			n++
		}
	}
	idle := t.delay + slotTTLFactor*t.ttl
	for scope, slot := range t.last {
		if _, live := t.ops[slot.handle]; live {
			continue
		}
		if now.After(slot.startedAt.Add(idle)) {
			delete(t.last, scope)
		}
	}
	t.mu.Unlock()

	if n > 0 {
		t.observer.Expired(n)
		t.logger.Info("expired abandoned operations", zap.Int("count", n))
	}
	return n
}

// RunJanitor calls Sweep every interval until ctx is done.
func (t *Tracker) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || t.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
