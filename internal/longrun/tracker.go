// Package longrun tracks long-running operations behind opaque handles.
//
// A caller starts an operation and gets a handle back immediately. The
// operation becomes ready once its readiness delay has elapsed and its work
// has finished; the first Resume that observes it ready consumes it.
package longrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LastHandle is the sentinel that resolves to the most recently started
// handle in the caller's scope. It is matched case-insensitively.
const LastHandle = "last"

const (
	// DefaultDelay is the readiness delay applied when none is configured.
	DefaultDelay = 3 * time.Second

	// DefaultTTL is how long a ready operation may sit unresumed before the
	// janitor drops it.
	DefaultTTL = 10 * time.Minute

	// slotTTLFactor scales the TTL into how long an idle scope keeps its
	// last-handle slot.
	slotTTLFactor = 6

	// maxHandleAttempts bounds retries of a custom handle generator before
	// Start falls back to a UUID.
	maxHandleAttempts = 8
)

var (
	// ErrMissingHandle is returned when no handle was supplied and the scope
	// has no previous operation to default to.
	ErrMissingHandle = errors.New("longrun: missing handle")

	// ErrUnknownHandle is returned for handles that are not live, including
	// handles that were already consumed or expired.
	ErrUnknownHandle = errors.New("longrun: unknown handle")
)

// State is the observable state of an operation on Resume.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// Work produces the result of an operation. It runs in its own goroutine;
// ctx is canceled when the tracker is closed.
type Work func(ctx context.Context, payload string) (any, error)

// Outcome is what Resume reports for a live handle.
type Outcome struct {
	State   State
	Handle  string
	Payload string
	ReadyAt time.Time

	// Result and Err are only set when State is StateCompleted.
	Result any
	Err    error
}

// Observer receives lifecycle notifications. Implementations must be safe
// for concurrent use.
type Observer interface {
	Started()
	Resumed(outcome string)
	Expired(n int)
}

type operation struct {
	handle    string
	scope     string
	payload   string
	createdAt time.Time
	readyAt   time.Time
	fut       *future
}

// lastSlot remembers the most recent handle started in a scope. It outlives
// the operation so that "last" keeps naming the consumed handle.
type lastSlot struct {
	handle    string
	startedAt time.Time
}

// Tracker owns the handle table. The zero value is not usable; construct
// one with New and share it by pointer.
type Tracker struct {
	mu   sync.Mutex
	ops  map[string]*operation
	last map[string]lastSlot

	delay     time.Duration
	ttl       time.Duration
	now       func() time.Time
	work      Work
	newHandle func() string
	observer  Observer
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDelay sets the readiness delay D.
func WithDelay(d time.Duration) Option {
	return func(t *Tracker) { t.delay = d }
}

// WithTTL sets how long a ready operation is kept before Sweep drops it.
// A non-positive TTL disables expiry.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithWork sets the function that computes each operation's result.
func WithWork(w Work) Option {
	return func(t *Tracker) { t.work = w }
}

// WithHandleFunc replaces the UUID handle generator.
func WithHandleFunc(fn func() string) Option {
	return func(t *Tracker) { t.newHandle = fn }
}

// WithObserver registers lifecycle callbacks, typically a metrics collector.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New returns a Tracker ready for use.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		ops:       make(map[string]*operation),
		last:      make(map[string]lastSlot),
		delay:     DefaultDelay,
		ttl:       DefaultTTL,
		now:       time.Now,
		work:      func(context.Context, string) (any, error) { return nil, nil },
		newHandle: uuid.NewString,
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.delay < 0 {
		t.delay = 0
	}
	t.logger = t.logger.With(zap.String("component", "longrun"))
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Start registers a new operation for payload and returns its handle. It
// never blocks on the work itself.
func (t *Tracker) Start(scope, payload string) string {
	now := t.now()
	op := &operation{
		scope:     scope,
		payload:   payload,
		createdAt: now,
		readyAt:   now.Add(t.delay),
		fut:       newFuture(),
	}

	t.mu.Lock()
	op.handle = t.freeHandle()
	t.ops[op.handle] = op
	t.last[scope] = lastSlot{handle: op.handle, startedAt: now}
	t.observer.Started()
	t.mu.Unlock()

	go t.run(op)

	t.logger.Debug("operation started",
		zap.String("handle", op.handle),
		zap.String("scope", scope),
		zap.Time("ready_at", op.readyAt),
	)
	return op.handle
}

// freeHandle returns an unused, non-empty handle. Callers hold t.mu.
func (t *Tracker) freeHandle() string {
	for i := 0; i < maxHandleAttempts; i++ {
		h := t.newHandle()
		if _, taken := t.ops[h]; !taken && h != "" {
			return h
		}
	}
	t.logger.Warn("handle generator keeps colliding, using a uuid",
		zap.Int("attempts", maxHandleAttempts))
	for {
		h := uuid.NewString()
		if _, taken := t.ops[h]; !taken {
			return h
		}
	}
}

// Resume reports the state of the operation named by ref, which is either a
// handle or LastHandle. A ready operation is removed and returned as
// StateCompleted exactly once; later calls get ErrUnknownHandle.
func (t *Tracker) Resume(scope, ref string) (Outcome, error) {
	handle := strings.TrimSpace(ref)

	t.mu.Lock()
	defer t.mu.Unlock()

	if strings.EqualFold(handle, LastHandle) {
		handle = t.last[scope].handle
	}
	if handle == "" {
		t.observer.Resumed("missing")
		return Outcome{}, ErrMissingHandle
	}

	op, ok := t.ops[handle]
	if !ok {
		t.observer.Resumed("unknown")
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}

	out := Outcome{
		State:   StatePending,
		Handle:  op.handle,
		Payload: op.payload,
		ReadyAt: op.readyAt,
	}
	if t.now().Before(op.readyAt) || !op.fut.done() {
		t.observer.Resumed(string(StatePending))
		return out, nil
	}

	delete(t.ops, handle)
	out.State = StateCompleted
	out.Result, out.Err = op.fut.result, op.fut.err

	t.observer.Resumed(string(StateCompleted))
	t.logger.Debug("operation completed",
		zap.String("handle", handle),
		zap.Bool("failed", out.Err != nil),
	)
	return out, nil
}

// Len returns the number of live operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Close cancels the context passed to running work. Started operations
// stay resumable; work observing ctx finishes with its own error.
func (t *Tracker) Close() {
	t.cancel()
}

func (t *Tracker) run(op *operation) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("operation work panicked", zap.String("handle", op.handle), zap.Any("panic", r))
			op.fut.complete(nil, fmt.Errorf("longrun: work panicked: %v", r))
		}
	}()
	v, err := t.work(t.ctx, op.payload)
	op.fut.complete(v, err)
}

// future is a one-shot result slot. result and err are written before done
// is closed and only read after it is observed closed.
type future struct {
	ch     chan struct{}
	result any
	err    error
}

func newFuture() *future {
	return &future{ch: make(chan struct{})}
}

func (f *future) complete(v any, err error) {
	f.result, f.err = v, err
	close(f.ch)
}

func (f *future) done() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

type nopObserver struct{}

func (nopObserver) Started()       {}
func (nopObserver) Resumed(string) {}
func (nopObserver) Expired(int)    {}
