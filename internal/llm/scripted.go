package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned once a Scripted model runs out of steps.
var ErrScriptExhausted = errors.New("llm: scripted model has no more responses")

// Step is one canned reply. If Err is set it is returned instead of Response.
type Step struct {
	Response *Response
	Err      error
}

// Scripted replays canned steps in order and records every request. It is
// used in tests and by the offline demo.
type Scripted struct {
	name string

	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScripted returns a Scripted model named name.
func NewScripted(name string, steps ...Step) *Scripted {
	return &Scripted{name: name, steps: steps}
}

// Reply is shorthand for a text-only step.
func Reply(text string) Step {
	return Step{Response: &Response{Text: text}}
}

// Call is shorthand for a step requesting one function call.
func Call(name string, args map[string]any) Step {
	return Step{Response: &Response{Calls: []FunctionCall{{ID: name, Name: name, Args: args}}}}
}

// Name returns the configured name.
func (s *Scripted) Name() string { return s.name }

// Generate returns the next step.
func (s *Scripted) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, cloneRequest(req))
	if len(s.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Requests returns copies of the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func cloneRequest(r Request) Request {
	r.History = append([]Turn(nil), r.History...)
	r.Tools = append([]Declaration(nil), r.Tools...)
	return r
}
