package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiOption configures NewGemini.
type GeminiOption func(*genai.ClientConfig)

// WithBaseURL points the client at a different endpoint, e.g. a test server.
func WithBaseURL(url string) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPOptions.BaseURL = url }
}

// NewGemini returns a Gemini model using apiKey.
func NewGemini(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Name returns the model identifier.
func (g *Gemini) Name() string { return g.model }

// Generate sends req to the model with automatic function calling mode.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(req.History), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("llm: gemini generate: %w", err)
	}
	if result == nil {
		return nil, errors.New("llm: empty response from gemini")
	}

	resp := &Response{Text: result.Text()}
	for _, fc := range result.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = fc.Name
		}
		resp.Calls = append(resp.Calls, FunctionCall{ID: id, Name: fc.Name, Args: fc.Args})
	}
	return resp, nil
}

func toGeminiContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var parts []*genai.Part
		if turn.Text != "" {
			parts = append(parts, &genai.Part{Text: turn.Text})
		}
		for _, c := range turn.Calls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
		}
		for _, r := range turn.Responses {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response}})
		}
		if len(parts) == 0 {
			continue
		}
		role := genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func toGeminiDeclarations(decls []Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, len(decls))
	for i, d := range decls {
		props := make(map[string]*genai.Schema, len(d.Params))
		var required []string
		for _, p := range d.Params {
			props[p.Name] = &genai.Schema{Type: schemaType(p.Type), Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out[i] = &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		}
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
