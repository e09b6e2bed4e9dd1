package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// SupportService holds what the MCP tool handlers need.
type SupportService struct {
	tracker *longrun.Tracker
	notes   tools.Notes
	logger  *zap.Logger
}

// NewSupportService returns a service starting risk scans on tracker and
// reading notes from notes.
func NewSupportService(tracker *longrun.Tracker, notes tools.Notes, logger *zap.Logger) *SupportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupportService{tracker: tracker, notes: notes, logger: logger.With(zap.String("component", "mcp"))}
}

// ShippingETA estimates delivery for a zipcode.
func (s *SupportService) ShippingETA(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ShippingETAInput,
) (*mcp.CallToolResult, ShippingETAOutput, error) {
	ok, msg := tools.ShippingETA(input.Zipcode)
	return nil, ShippingETAOutput{OK: ok, Message: msg}, nil
}

// StartRiskScan starts a scan and returns its handle.
func (s *SupportService) StartRiskScan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartRiskScanInput,
) (*mcp.CallToolResult, longrun.Reply, error) {
	if input.OrderID == "" {
		return nil, longrun.Reply{}, fmt.Errorf("order_id is required")
	}
	reply := tools.StartRiskScan(tools.WithSession(ctx, input.SessionID), s.tracker, input.OrderID)
	s.logger.Debug("risk scan started", zap.String("handle", reply.Handle), zap.String("session", input.SessionID))
	return nil, reply, nil
}

// ResumeRiskScan reports a scan's progress. Tracker errors are part of the
// reply, not tool errors.
func (s *SupportService) ResumeRiskScan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResumeRiskScanInput,
) (*mcp.CallToolResult, longrun.Reply, error) {
	return nil, tools.ResumeRiskScan(tools.WithSession(ctx, input.SessionID), s.tracker, input.Handle), nil
}

// FetchNote reads a support note.
func (s *SupportService) FetchNote(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input FetchNoteInput,
) (*mcp.CallToolResult, FetchNoteOutput, error) {
	content, err := s.notes.Fetch(input.Filename)
	if err != nil {
		return nil, FetchNoteOutput{}, err
	}
	return nil, FetchNoteOutput{Content: content}, nil
}
