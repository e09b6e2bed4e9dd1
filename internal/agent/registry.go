package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Factory builds the agent for a role.
type Factory func() (Agent, error)

// Registry maps agent roles to their factories and manages the lifecycle of
// spawned agents.
type Registry struct {
	mu        sync.Mutex
	factories map[Role]Factory
	spawned   []Agent
	logger    *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[Role]Factory),
		logger:    logger,
	}
}

// Register sets the factory for role, replacing any previous one.
func (r *Registry) Register(role Role, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[role] = f
}

// Roles returns the registered roles in start order.
func (r *Registry) Roles() []Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Role
	for _, role := range Roles {
		if _, ok := r.factories[role]; ok {
			out = append(out, role)
		}
	}
	var extra []Role
	for role := range r.factories {
		if !slices.Contains(Roles, role) {
			extra = append(extra, role)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// Spawn builds the agent for role without starting it.
func (r *Registry) Spawn(role Role) (Agent, error) {
	r.mu.Lock()
	factory, ok := r.factories[role]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no factory registered for role %q", role)
	}
	ag, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build agent %q: %w", role, err)
	}
	return ag, nil
}

// Start spawns the agent for role, starts it on addr and tracks it for
// StopAll.
func (r *Registry) Start(ctx context.Context, role Role, addr string) (Agent, error) {
	ag, err := r.Spawn(role)
	if err != nil {
		return nil, err
	}
	if err := ag.Start(ctx, addr); err != nil {
		return nil, fmt.Errorf("start agent %q on %s: %w", role, addr, err)
	}
	r.mu.Lock()
	r.spawned = append(r.spawned, ag)
	r.mu.Unlock()
	r.logger.Info("agent started",
		zap.String("role", string(role)),
		zap.String("name", ag.Card().Name),
		zap.String("addr", ag.Addr()))
	return ag, nil
}

// StartAll starts the given roles in order, each on addrs[role]. On failure
// the agents already started by this call are stopped.
func (r *Registry) StartAll(ctx context.Context, roles []Role, addrs map[Role]string) ([]Agent, error) {
	var agents []Agent
	for _, role := range roles {
		addr, ok := addrs[role]
		if !ok {
			r.stop(ctx, agents)
			return nil, fmt.Errorf("no address configured for role %q", role)
		}
		ag, err := r.Start(ctx, role, addr)
		if err != nil {
			r.stop(ctx, agents)
			return nil, err
		}
		agents = append(agents, ag)
	}
	return agents, nil
}

func (r *Registry) stop(ctx context.Context, agents []Agent) {
	for i := len(agents) - 1; i >= 0; i-- {
		_ = agents[i].Stop(ctx)
	}
	r.mu.Lock()
	r.spawned = slices.DeleteFunc(r.spawned, func(a Agent) bool { return slices.Contains(agents, a) })
	r.mu.Unlock()
}

// StopAll gracefully stops all started agents in reverse order.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	spawned := r.spawned
	r.spawned = nil
	r.mu.Unlock()

	var firstErr error
	for i := len(spawned) - 1; i >= 0; i-- {
		if err := spawned[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
