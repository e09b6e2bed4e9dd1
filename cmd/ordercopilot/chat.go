package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ordercopilot/internal/chat"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		server    string
		sessionID string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat [flags] <text>...",
		Short: "Send one turn to a running chat front end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = "http://" + localAddr(a.cfg.Chat.Addr)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			answer, err := postChat(ctx, server, chat.ChatRequest{SessionID: sessionID, Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "chat front end URL (default from chat.addr)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "session ID")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	return cmd
}

// postChat calls POST /chat and returns the response text.
func postChat(ctx context.Context, server string, in chat.ChatRequest) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("chat: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("chat: %s: %s", resp.Status, e.Error)
		}
		return "", fmt.Errorf("chat: %s", resp.Status)
	}

	var out chat.ChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("chat: decode response: %w", err)
	}
	return out.Response, nil
}

// localAddr turns a listen address such as ":8080" into one a client can dial.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}
