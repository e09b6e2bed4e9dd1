// Package tools holds the function tools the support agents can call and
// the registry that exposes them to a model.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/llm"
)

// Args are the decoded arguments of a function call.
type Args map[string]any

// String returns the argument as a string. Missing arguments are "";
// non-string values are formatted with fmt.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Func implements a tool. A map result is sent to the model as is; any
// other value is wrapped as {"result": v}.
type Func func(ctx context.Context, args Args) (any, error)

// Tool is a named function a model may call.
type Tool struct {
	Name        string
	Description string
	Params      []llm.Param
	Call        Func
}

// Declaration returns the model-facing description of t.
func (t Tool) Declaration() llm.Declaration {
	return llm.Declaration{Name: t.Name, Description: t.Description, Params: t.Params}
}

// Observer is notified of every call; status is "ok" or "error".
type Observer interface {
	ToolCall(tool, status string)
}

// ErrUnknownTool is reported for calls to names that were never registered.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Registry is a set of tools keyed by name.
type Registry struct {
	tools    map[string]Tool
	observer Observer
	logger   *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver reports calls to o.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns a registry holding tools. It panics on duplicate names,
// which are programming errors.
func NewRegistry(tools []Tool, opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools)), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "tools"))
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds t.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" || t.Call == nil {
		return errors.New("tools: tool needs a name and a func")
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("tools: duplicate tool %q", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the declarations of every tool, sorted by name.
func (r *Registry) Declarations() []llm.Declaration {
	names := r.Names()
	out := make([]llm.Declaration, len(names))
	for i, n := range names {
		out[i] = r.tools[n].Declaration()
	}
	return out
}

// Call runs the named tool and returns its result as a response map. Errors,
// unknown names and panics are reported in the map as
// {"status": "ERROR", "message": ...} so the model can see them.
func (r *Registry) Call(ctx context.Context, name string, args Args) (resp map[string]any) {
	t, ok := r.tools[name]
	if !ok {
		r.observe(name, "error")
		return errorResponse(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", p))
			r.observe(name, "error")
			resp = errorResponse(fmt.Errorf("tools: %s panicked: %v", name, p))
		}
	}()

	v, err := t.Call(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		r.observe(name, "error")
		return errorResponse(err)
	}
	r.observe(name, "ok")
	return toResponse(v)
}

func (r *Registry) observe(name, status string) {
	if r.observer != nil {
		r.observer.ToolCall(name, status)
	}
}

func toResponse(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case interface{ Map() map[string]any }:
		return m.Map()
	default:
		return map[string]any{"result": v}
	}
}

func errorResponse(err error) map[string]any {
	return map[string]any{"status": "ERROR", "message": err.Error()}
}

type sessionKey struct{}

// WithSession attaches the caller's session ID to ctx. Tools that keep
// per-caller state, such as the risk scan's "last" handle, scope by it.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session ID attached by WithSession, or "".
func SessionFrom(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}
