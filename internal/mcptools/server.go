// Package mcptools exposes the support tools over the Model Context
// Protocol, on stdio or streamable HTTP.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Version is reported to MCP clients.
var Version = "dev"

// NewSupportMCPServer creates an MCP server with the support tools registered.
func NewSupportMCPServer(svc *SupportService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ordercopilot-support",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shipping_eta",
		Description: "Return the shipping ETA for a US zipcode.",
	}, svc.ShippingETA)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_risk_scan",
		Description: "Start a long-running risk scan for an order. Returns {status: STARTED, handle}.",
	}, svc.StartRiskScan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_risk_scan",
		Description: "Check a risk scan by handle, or 'last' for the session's most recent scan. Returns PENDING with NOT_READY until it finishes, then OK with the result exactly once.",
	}, svc.ResumeRiskScan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_file_note",
		Description: "Fetch a local support note by file name.",
	}, svc.FetchNote)

	return server
}

// RunStdio serves server on stdin/stdout until the client disconnects or ctx
// is canceled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves server over streamable HTTP on addr until ctx is canceled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("mcp server listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
