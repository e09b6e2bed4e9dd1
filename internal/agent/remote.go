package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
)

var _ SubAgent = (*RemoteAgent)(nil)

// ErrRemoteTask is returned when a remote agent reports a failed task.
var ErrRemoteTask = errors.New("agent: remote task failed")

// RemoteAgent is a SubAgent served by another process over A2A. Its card is
// fetched on first use.
type RemoteAgent struct {
	name        string
	description string
	baseURL     string
	client      a2a.Client

	mu       sync.Mutex
	endpoint string
}

// NewRemoteAgent returns a remote agent at baseURL. name and description are
// what the delegating model sees; they do not have to match the card.
func NewRemoteAgent(name, description, baseURL string, client a2a.Client) *RemoteAgent {
	return &RemoteAgent{
		name:        name,
		description: description,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
	}
}

func (r *RemoteAgent) Name() string        { return r.name }
func (r *RemoteAgent) Description() string { return r.description }

// BaseURL returns the agent's base URL.
func (r *RemoteAgent) BaseURL() string { return r.baseURL }

// Ask sends text as a blocking message/send in context session and returns
// the text of the resulting artifacts.
func (r *RemoteAgent) Ask(ctx context.Context, session, text string) (string, error) {
	endpoint, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	task, err := r.client.SendMessage(ctx, endpoint, a2a.SendMessageRequest{
		Message:       a2a.NewMessage(a2a.RoleUser, session, text),
		Configuration: &a2a.SendMessageConfig{Blocking: true},
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", r.name, err)
	}
	switch task.Status.State {
	case a2a.TaskStateFailed, a2a.TaskStateCanceled, a2a.TaskStateRejected:
		return "", fmt.Errorf("agent %s: %w: %s", r.name, ErrRemoteTask, a2a.ArtifactText(task))
	}
	return a2a.ArtifactText(task), nil
}

// resolve discovers the JSON-RPC endpoint from the card once. Failed
// discoveries are retried on the next call.
func (r *RemoteAgent) resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoint != "" {
		return r.endpoint, nil
	}
	card, err := r.client.DiscoverAgent(ctx, r.baseURL)
	if err != nil {
		return "", fmt.Errorf("agent %s: discover: %w", r.name, err)
	}
	r.endpoint = cardEndpoint(card, r.baseURL)
	return r.endpoint, nil
}

func cardEndpoint(card *a2a.AgentCard, fallback string) string {
	if card.URL != "" {
		return card.URL
	}
	for _, iface := range card.Interfaces {
		if iface.URL != "" {
			return iface.URL
		}
	}
	return fallback + "/"
}
