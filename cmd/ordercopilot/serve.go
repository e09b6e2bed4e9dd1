package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/chat"
	"github.com/dusk-indust/ordercopilot/internal/orchestrator"
	"github.com/dusk-indust/ordercopilot/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var chatAddr string
	cmd := &cobra.Command{
		Use:       "serve {orchestrator|catalog|compliance|supervisor|all}",
		Short:     "Serve one agent, or every agent, over A2A",
		Long:      "Serve agents over A2A. When the orchestrator or supervisor runs, the HTTP chat front end is served too.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"orchestrator", "catalog", "compliance", "supervisor", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := parseRoles(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("chat-addr") {
				chatAddr = a.cfg.Chat.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, roles, chatAddr)
		},
	}
	cmd.Flags().StringVar(&chatAddr, "chat-addr", "", "chat front end address; empty disables it (default from config)")
	return cmd
}

func parseRoles(arg string) ([]agent.Role, error) {
	if arg == "all" {
		return agent.Roles, nil
	}
	role := agent.Role(arg)
	if !slices.Contains(agent.Roles, role) {
		return nil, fmt.Errorf("unknown agent %q", arg)
	}
	return []agent.Role{role}, nil
}

// serve starts roles and, when chatAddr is set and a routing agent is among
// them, the chat front end. It blocks until ctx is done.
func (a *app) serve(ctx context.Context, roles []agent.Role, chatAddr string) error {
	rt, err := a.newServices(ctx)
	if err != nil {
		return err
	}

	reg := agent.NewRegistry(a.logger)
	orchestrator.Register(ctx, reg, rt.deps)
	if _, err := reg.StartAll(ctx, roles, orchestrator.Addrs(a.cfg)); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reg.StopAll(stopCtx); err != nil {
			a.logger.Warn("stopping agents", zap.Error(err))
		}
	}()

	routing := slices.Contains(roles, agent.RoleOrchestrator) || slices.Contains(roles, agent.RoleSupervisor)
	if routing && chatAddr != "" {
		srv, err := a.chatServer(ctx, rt, slices.Contains(roles, agent.RoleSupervisor))
		if err != nil {
			return err
		}
		if err := srv.Start(ctx, chatAddr); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// chatServer builds the chat front end around the routing runner.
func (a *app) chatServer(ctx context.Context, rt *services, supervised bool) (*chat.Server, error) {
	runner, caps, err := orchestrator.NewRunner(ctx, rt.deps, orchestrator.NewDetector(rt.deps), supervised)
	if err != nil {
		return nil, err
	}
	a.logger.Info("chat runner ready",
		zap.Stringer("level", caps.Level),
		zap.Strings("remotes", caps.Reachable),
		zap.Bool("supervised", supervised),
	)

	store, err := session.Open(ctx, a.cfg.Session, a.logger)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = store.Close()
	}()

	return chat.NewServer(runner,
		chat.WithTracker(rt.deps.Tracker),
		chat.WithSessions(store, a.cfg.Session.MaxTurns),
		chat.WithRateLimit(a.cfg.Chat.RateLimit, a.cfg.Chat.Burst),
		chat.WithMetrics(rt.metrics, rt.registry),
		chat.WithLogger(a.logger),
	), nil
}
