// Package agent provides the conversational agents of the support system:
// LLM-driven agents with tools and sub-agents, remote agents reached over
// A2A, and the A2A server wrapper that exposes any of them on the network.
package agent

import (
	"context"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
)

// Runner answers one user turn within a session.
type Runner interface {
	Run(ctx context.Context, session, text string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, session, text string) (string, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, session, text string) (string, error) {
	return f(ctx, session, text)
}

// SubAgent is an agent another agent can delegate a request to. The model
// of the delegating agent sees it as a function named Name().
type SubAgent interface {
	Name() string
	Description() string
	Ask(ctx context.Context, session, text string) (string, error)
}

// Agent is a network-served agent with an A2A card.
type Agent interface {
	Card() a2a.AgentCard
	Start(ctx context.Context, addr string) error
	Addr() string
	Stop(ctx context.Context) error
}

// Role identifies a deployable agent.
type Role string

const (
	RoleCatalog      Role = "catalog"
	RoleCompliance   Role = "compliance"
	RoleOrchestrator Role = "orchestrator"
	RoleSupervisor   Role = "supervisor"
)

// Roles lists every role in start order: the specialists come before the
// agents that call them.
var Roles = []Role{RoleCatalog, RoleCompliance, RoleOrchestrator, RoleSupervisor}
