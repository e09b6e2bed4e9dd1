package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
)

// Compile-time interface checks.
var (
	_ Agent       = (*BaseAgent)(nil)
	_ a2a.Handler = (*BaseAgent)(nil)
)

// Task retention defaults for the background pruner.
const (
	DefaultTaskRetention = time.Hour
	DefaultPruneInterval = time.Minute
)

// ResponseArtifact is the name of the artifact holding a runner's answer.
const ResponseArtifact = "response"

// BaseAgent serves a Runner over A2A. Every message becomes a task that
// moves SUBMITTED → WORKING → COMPLETED or FAILED; the runner's answer is
// attached as a single text artifact.
type BaseAgent struct {
	server *a2a.Server
	store  *a2a.TaskStore
	card   a2a.AgentCard
	runner Runner
	logger *zap.Logger

	retention     time.Duration
	pruneInterval time.Duration
	stopPruner    context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// BaseOption configures a BaseAgent.
type BaseOption func(*BaseAgent)

// WithLogger sets the logger of the agent and its server.
func WithLogger(l *zap.Logger) BaseOption {
	return func(b *BaseAgent) { b.logger = l }
}

// WithTaskRetention keeps finished tasks for d, pruning every interval.
func WithTaskRetention(d, interval time.Duration) BaseOption {
	return func(b *BaseAgent) {
		b.retention = d
		b.pruneInterval = interval
	}
}

// NewBaseAgent creates a BaseAgent answering with runner.
func NewBaseAgent(card a2a.AgentCard, runner Runner, opts ...BaseOption) *BaseAgent {
	b := &BaseAgent{
		store:         a2a.NewTaskStore(),
		card:          card,
		runner:        runner,
		logger:        zap.NewNop(),
		retention:     DefaultTaskRetention,
		pruneInterval: DefaultPruneInterval,
		running:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.server = a2a.NewServer(card, b, a2a.WithServerLogger(b.logger))
	b.logger = b.logger.With(zap.String("agent", card.Name))
	return b
}

// Card returns the agent's A2A Agent Card.
func (b *BaseAgent) Card() a2a.AgentCard {
	return b.card
}

// Store exposes the task store, for inspection.
func (b *BaseAgent) Store() *a2a.TaskStore {
	return b.store
}

// Start launches the HTTP server on addr and the task pruner.
func (b *BaseAgent) Start(ctx context.Context, addr string) error {
	if err := b.server.Start(ctx, addr); err != nil {
		return err
	}
	pctx, cancel := context.WithCancel(context.Background())
	b.stopPruner = cancel
	go b.prune(pctx)
	return nil
}

// Addr returns the bound address after Start.
func (b *BaseAgent) Addr() string {
	return b.server.Addr()
}

// Stop shuts the server down and stops the pruner.
func (b *BaseAgent) Stop(ctx context.Context) error {
	if b.stopPruner != nil {
		b.stopPruner()
	}
	return b.server.Stop(ctx)
}

func (b *BaseAgent) prune(ctx context.Context) {
	if b.pruneInterval <= 0 || b.retention <= 0 {
		return
	}
	t := time.NewTicker(b.pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := b.store.Prune(b.retention); n > 0 {
				b.logger.Debug("pruned tasks", zap.Int("count", n))
			}
		}
	}
}

// HandleTask processes msg as task and returns the finished task. A runner
// failure is recorded on the task, not returned.
func (b *BaseAgent) HandleTask(ctx context.Context, task a2a.Task, msg a2a.Message) (*a2a.Task, error) {
	return b.execute(ctx, task, msg, nil)
}

// execute drives one task through its states, reporting each step to emit
// when it is non-nil.
func (b *BaseAgent) execute(ctx context.Context, task a2a.Task, msg a2a.Message, emit func(a2a.StreamEvent) error) (*a2a.Task, error) {
	if emit == nil {
		emit = func(a2a.StreamEvent) error { return nil }
	}
	msg.TaskID = task.ID
	msg.ContextID = task.ContextID
	task.History = append(task.History, msg)
	task.Status = a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now()}
	if err := b.store.Create(task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := emit(a2a.StreamEvent{Task: &task}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.track(task.ID, cancel)
	defer b.untrack(task.ID)

	working := a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now()}
	if err := b.store.Update(task.ID, func(t *a2a.Task) { t.Status = working }); err != nil {
		return nil, fmt.Errorf("update task to working: %w", err)
	}
	if err := emit(statusEvent(task, working, false)); err != nil {
		return nil, err
	}

	log := b.logger.With(zap.String("task", task.ID), zap.String("session", task.ContextID))
	log.Debug("task working")

	answer, runErr := b.runner.Run(ctx, task.ContextID, a2a.MessageText(msg))

	var (
		final    a2a.TaskStatus
		artifact *a2a.Artifact
	)
	switch {
	case runErr != nil && errors.Is(ctx.Err(), context.Canceled) && b.canceled(task.ID):
		final = a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: time.Now()}
	case runErr != nil:
		log.Warn("task failed", zap.Error(runErr))
		reply := a2a.NewMessage(a2a.RoleAgent, task.ContextID, runErr.Error())
		final = a2a.TaskStatus{State: a2a.TaskStateFailed, Message: &reply, Timestamp: time.Now()}
	default:
		art := a2a.TextArtifact(ResponseArtifact, answer)
		artifact = &art
		reply := a2a.NewMessage(a2a.RoleAgent, task.ContextID, answer)
		reply.TaskID = task.ID
		final = a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now()}
		if err := b.store.Update(task.ID, func(t *a2a.Task) {
			t.History = append(t.History, reply)
		}); err != nil {
			return nil, fmt.Errorf("record reply: %w", err)
		}
	}

	if err := b.store.Update(task.ID, func(t *a2a.Task) {
		// A concurrent tasks/cancel wins over a late result.
		if t.Status.State == a2a.TaskStateCanceled {
			final = t.Status
			artifact = nil
			return
		}
		t.Status = final
		if artifact != nil {
			t.Artifacts = append(t.Artifacts, *artifact)
		}
	}); err != nil {
		return nil, fmt.Errorf("update task to %s: %w", final.State, err)
	}
	log.Debug("task finished", zap.String("state", string(final.State)))

	if artifact != nil {
		if err := emit(a2a.StreamEvent{ArtifactUpdate: &a2a.TaskArtifactUpdateEvent{
			TaskID:    task.ID,
			ContextID: task.ContextID,
			Artifact:  *artifact,
			LastChunk: true,
		}}); err != nil {
			return nil, err
		}
	}
	if err := emit(statusEvent(task, final, true)); err != nil {
		return nil, err
	}
	return b.store.Get(task.ID)
}

func statusEvent(task a2a.Task, status a2a.TaskStatus, final bool) a2a.StreamEvent {
	return a2a.StreamEvent{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    status,
		Final:     final,
	}}
}

func (b *BaseAgent) track(id string, cancel context.CancelFunc) {
	b.mu.Lock()
	b.running[id] = cancel
	b.mu.Unlock()
}

func (b *BaseAgent) untrack(id string) {
	b.mu.Lock()
	delete(b.running, id)
	b.mu.Unlock()
}

func (b *BaseAgent) canceled(id string) bool {
	t, err := b.store.Get(id)
	return err == nil && t.Status.State == a2a.TaskStateCanceled
}

// --- a2a.Handler implementation ---

func newTask(msg a2a.Message) a2a.Task {
	contextID := msg.ContextID
	if contextID == "" {
		contextID = a2a.NewTaskID()
	}
	return a2a.Task{ID: a2a.NewTaskID(), ContextID: contextID}
}

// HandleSendMessage creates a task from the incoming message and processes
// it. Non-blocking requests return the submitted task and finish in the
// background.
func (b *BaseAgent) HandleSendMessage(ctx context.Context, req a2a.SendMessageRequest) (*a2a.Task, error) {
	task := newTask(req.Message)
	if req.Configuration != nil && !req.Configuration.Blocking {
		submitted := make(chan *a2a.Task, 1)
		go func() {
			_, err := b.execute(context.WithoutCancel(ctx), task, req.Message, func(ev a2a.StreamEvent) error {
				if ev.Task != nil {
					submitted <- ev.Task
				}
				return nil
			})
			if err != nil {
				b.logger.Warn("background task failed", zap.String("task", task.ID), zap.Error(err))
				close(submitted)
			}
		}()
		if t, ok := <-submitted; ok {
			return t, nil
		}
		return nil, fmt.Errorf("create task %s", task.ID)
	}
	return b.execute(ctx, task, req.Message, nil)
}

// HandleStreamMessage processes the message, emitting the submitted task,
// the working status, the response artifact and the final status.
func (b *BaseAgent) HandleStreamMessage(ctx context.Context, req a2a.SendMessageRequest, emit func(a2a.StreamEvent) error) error {
	_, err := b.execute(ctx, newTask(req.Message), req.Message, emit)
	return err
}

// HandleGetTask retrieves a task by ID from the store.
func (b *BaseAgent) HandleGetTask(_ context.Context, req a2a.GetTaskRequest) (*a2a.Task, error) {
	t, err := b.store.Get(req.ID)
	if err != nil {
		return nil, err
	}
	if req.HistoryLength != nil && *req.HistoryLength >= 0 && len(t.History) > *req.HistoryLength {
		t.History = t.History[len(t.History)-*req.HistoryLength:]
	}
	return t, nil
}

// HandleListTasks returns tasks matching the filter.
func (b *BaseAgent) HandleListTasks(_ context.Context, req a2a.ListTasksRequest) (*a2a.ListTasksResponse, error) {
	return b.store.List(req)
}

// HandleCancelTask cancels a task that has not finished and stops its runner.
func (b *BaseAgent) HandleCancelTask(_ context.Context, req a2a.CancelTaskRequest) (*a2a.Task, error) {
	var terminal bool
	err := b.store.Update(req.ID, func(t *a2a.Task) {
		if t.Status.State.IsTerminal() {
			terminal = true
			return
		}
		t.Status = a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: time.Now()}
	})
	if err != nil {
		return nil, err
	}
	if terminal {
		return nil, fmt.Errorf("%w: %s", a2a.ErrTaskNotCancelable, req.ID)
	}

	b.mu.Lock()
	cancel := b.running[req.ID]
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return b.store.Get(req.ID)
}
