// Package llm defines the model interface the support agents talk to and
// its Gemini implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Turn is one entry of the conversation history. A model turn carries text
// and/or calls; a user turn carries text and/or responses.
type Turn struct {
	Role      Role
	Text      string
	Calls     []FunctionCall
	Responses []FunctionResponse
}

// UserText is a user turn containing only text.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// Param describes one string-typed argument of a declared function.
type Param struct {
	Name        string
	Type        string // "string" unless set
	Description string
	Required    bool
}

// Declaration describes a function the model may call.
type Declaration struct {
	Name        string
	Description string
	Params      []Param
}

// Request is a single generation call.
type Request struct {
	System  string
	History []Turn
	Tools   []Declaration
}

// Response is the model's reply. When Calls is non-empty the caller is
// expected to run them and send the results back as a user turn.
type Response struct {
	Text  string
	Calls []FunctionCall
}

// Model generates content.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrNoAPIKey is returned when a hosted model is requested without a key.
var ErrNoAPIKey = errors.New("llm: no API key configured")

// StatusError is a model call failure with an HTTP status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.Code, e.Message)
}

// Observer is notified after every model call; status is "ok" or "error".
type Observer interface {
	LLMRequest(model, status string, d time.Duration)
}

// ModelTurn converts a response into the history entry for it.
func (r *Response) ModelTurn() Turn {
	return Turn{Role: RoleModel, Text: r.Text, Calls: r.Calls}
}

// Validate reports obviously malformed requests before they hit the network.
func (r Request) Validate() error {
	if len(r.History) == 0 {
		return errors.New("llm: request has no history")
	}
	seen := make(map[string]bool, len(r.Tools))
	for _, d := range r.Tools {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return errors.New("llm: tool declaration without a name")
		}
		if seen[name] {
			return fmt.Errorf("llm: duplicate tool declaration %q", name)
		}
		seen[name] = true
	}
	return nil
}
