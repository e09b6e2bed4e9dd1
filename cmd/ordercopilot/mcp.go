package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ordercopilot/internal/mcptools"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// configAddr is the --http value meaning "use mcp.addr from the config".
const configAddr = "config"

func newMCPCmd(a *app) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the support tools over MCP (stdio unless --http is set)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := a.newServices(ctx)
			if err != nil {
				return err
			}
			svc := mcptools.NewSupportService(rt.deps.Tracker, tools.Notes{Dir: a.cfg.MCP.NotesDir}, a.logger)
			server := mcptools.NewSupportMCPServer(svc)

			if cmd.Flags().Changed("http") {
				if httpAddr == configAddr {
					httpAddr = a.cfg.MCP.Addr
				}
				return mcptools.RunHTTP(ctx, server, httpAddr, a.logger)
			}
			return mcptools.RunStdio(ctx, server)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio; --http alone uses mcp.addr")
	cmd.Flags().Lookup("http").NoOptDefVal = configAddr
	return cmd
}
