package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
	"github.com/dusk-indust/ordercopilot/internal/agent"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		baseURL   string
		sessionID string
		stream    bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask [flags] <text>...",
		Short: "Send one message to an A2A agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = a.cfg.Agents.Orchestrator.BaseURL
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			text := strings.Join(args, " ")
			client := a2a.NewHTTPClient(a2a.WithTimeout(timeout))
			if stream {
				return streamAsk(ctx, cmd.OutOrStdout(), client, baseURL, sessionID, text)
			}
			answer, err := agent.NewRemoteAgent("cli", "", baseURL, client).Ask(ctx, sessionID, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "agent", "", "agent base URL (default: the orchestrator)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "session ID, sent as the A2A context ID")
	cmd.Flags().BoolVar(&stream, "stream", false, "print task events as they arrive")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	return cmd
}

// streamAsk prints one line per streamed event.
func streamAsk(ctx context.Context, w io.Writer, client a2a.Client, baseURL, sessionID, text string) error {
	events, err := client.StreamMessage(ctx, strings.TrimRight(baseURL, "/")+"/", a2a.SendMessageRequest{
		Message: a2a.NewMessage(a2a.RoleUser, sessionID, text),
	})
	if err != nil {
		return err
	}
	for ev := range events {
		switch {
		case ev.Err != nil:
			return ev.Err
		case ev.Task != nil:
			fmt.Fprintf(w, "[task %s] %s\n", ev.Task.ID, ev.Task.Status.State)
		case ev.StatusUpdate != nil:
			fmt.Fprintf(w, "[task %s] %s\n", ev.StatusUpdate.TaskID, ev.StatusUpdate.Status.State)
		case ev.ArtifactUpdate != nil:
			fmt.Fprintln(w, a2a.ArtifactText(&a2a.Task{Artifacts: []a2a.Artifact{ev.ArtifactUpdate.Artifact}}))
		}
	}
	return nil
}

func newAgentCardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "agent-card [baseURL]",
		Short: "Fetch and print an agent's A2A card",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := a.cfg.Agents.Orchestrator.BaseURL
			if len(args) == 1 {
				baseURL = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			card, err := a2a.NewHTTPClient().DiscoverAgent(ctx, strings.TrimRight(baseURL, "/"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(card)
		},
	}
}
