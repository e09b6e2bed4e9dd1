package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/llm"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// DefaultMaxSteps bounds the model round-trips of a single Run.
const DefaultMaxSteps = 8

// ErrMaxSteps is returned when the model keeps calling functions past the
// step limit.
var ErrMaxSteps = errors.New("agent: step limit reached")

// requestParam is the single argument of a sub-agent declaration.
const requestParam = "request"

// LLMConfig describes an LLMAgent.
type LLMConfig struct {
	Name        string
	Description string
	Instruction string
	Model       llm.Model
	Tools       *tools.Registry
	SubAgents   []SubAgent
	MaxSteps    int
	Logger      *zap.Logger
}

// LLMAgent answers a turn by letting its model call tools and sub-agents
// until it produces text.
type LLMAgent struct {
	name        string
	description string
	instruction string
	model       llm.Model
	tools       *tools.Registry
	subs        map[string]SubAgent
	decls       []llm.Declaration
	maxSteps    int
	logger      *zap.Logger
}

var (
	_ Runner   = (*LLMAgent)(nil)
	_ SubAgent = (*LLMAgent)(nil)
)

// NewLLMAgent validates cfg and builds the agent. Sub-agent names must not
// collide with tool names.
func NewLLMAgent(cfg LLMConfig) (*LLMAgent, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("agent: name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %s: model is required", cfg.Name)
	}
	a := &LLMAgent{
		name:        cfg.Name,
		description: cfg.Description,
		instruction: cfg.Instruction,
		model:       cfg.Model,
		tools:       cfg.Tools,
		subs:        make(map[string]SubAgent, len(cfg.SubAgents)),
		maxSteps:    cfg.MaxSteps,
		logger:      cfg.Logger,
	}
	if a.maxSteps <= 0 {
		a.maxSteps = DefaultMaxSteps
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("agent", a.name))

	if a.tools != nil {
		a.decls = a.tools.Declarations()
	}
	for _, sub := range cfg.SubAgents {
		name := sub.Name()
		if _, dup := a.subs[name]; dup || (a.tools != nil && a.tools.Has(name)) {
			return nil, fmt.Errorf("agent %s: duplicate function name %q", a.name, name)
		}
		a.subs[name] = sub
		a.decls = append(a.decls, llm.Declaration{
			Name:        name,
			Description: sub.Description(),
			Params: []llm.Param{{
				Name:        requestParam,
				Description: "The request to forward, in natural language.",
				Required:    true,
			}},
		})
	}
	return a, nil
}

// Name returns the agent name.
func (a *LLMAgent) Name() string { return a.name }

// Description returns the agent description.
func (a *LLMAgent) Description() string { return a.description }

// Ask is Run, so a local agent can be used as a sub-agent.
func (a *LLMAgent) Ask(ctx context.Context, session, text string) (string, error) {
	return a.Run(ctx, session, text)
}

// Run executes the model loop for one user turn.
func (a *LLMAgent) Run(ctx context.Context, session, text string) (string, error) {
	ctx = tools.WithSession(ctx, session)
	history := []llm.Turn{llm.UserText(text)}

	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.model.Generate(ctx, llm.Request{
			System:  a.instruction,
			History: history,
			Tools:   a.decls,
		})
		if err != nil {
			return "", fmt.Errorf("agent %s: %w", a.name, err)
		}
		if len(resp.Calls) == 0 {
			return resp.Text, nil
		}

		history = append(history, resp.ModelTurn())
		results := llm.Turn{Role: llm.RoleUser}
		for _, call := range resp.Calls {
			results.Responses = append(results.Responses, llm.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: a.dispatch(ctx, session, call),
			})
		}
		history = append(history, results)
	}
	return "", fmt.Errorf("agent %s: %w (%d)", a.name, ErrMaxSteps, a.maxSteps)
}

// dispatch runs one function call against a sub-agent or a tool.
func (a *LLMAgent) dispatch(ctx context.Context, session string, call llm.FunctionCall) map[string]any {
	if sub, ok := a.subs[call.Name]; ok {
		request := tools.Args(call.Args).String(requestParam)
		a.logger.Debug("delegating", zap.String("to", call.Name))
		answer, err := sub.Ask(ctx, session, request)
		if err != nil {
			a.logger.Warn("sub-agent failed", zap.String("to", call.Name), zap.Error(err))
			return map[string]any{"status": "ERROR", "message": err.Error()}
		}
		return map[string]any{"result": answer}
	}
	if a.tools == nil {
		return map[string]any{"status": "ERROR", "message": fmt.Sprintf("%v: %s", tools.ErrUnknownTool, call.Name)}
	}
	a.logger.Debug("calling tool", zap.String("tool", call.Name))
	return a.tools.Call(ctx, call.Name, tools.Args(call.Args))
}
