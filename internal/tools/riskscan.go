package tools

import (
	"context"

	"github.com/dusk-indust/ordercopilot/internal/llm"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
)

// RiskLow is the verdict AssessRisk gives every order.
const RiskLow = "LOW"

// AssessRisk is the risk scan work run by the tracker. Every order scores LOW.
func AssessRisk(ctx context.Context, _ string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return RiskLow, nil
}

// StartRiskScan starts a scan for orderID in the caller's session scope.
func StartRiskScan(ctx context.Context, tr *longrun.Tracker, orderID string) longrun.Reply {
	return longrun.StartedReply(tr.Start(SessionFrom(ctx), orderID))
}

// ResumeRiskScan resumes a scan by handle or "last" in the caller's session
// scope.
func ResumeRiskScan(ctx context.Context, tr *longrun.Tracker, handle string) longrun.Reply {
	return longrun.ResumeReply(tr.Resume(SessionFrom(ctx), handle))
}

// NewRiskScanTools returns the start_risk_scan and resume_risk_scan tools
// backed by tr.
func NewRiskScanTools(tr *longrun.Tracker) []Tool {
	return []Tool{
		{
			Name:        "start_risk_scan",
			Description: "Start a long-running risk scan for an order. Output: {status, handle}.",
			Params:      []llm.Param{{Name: "order_id", Description: "Order identifier.", Required: true}},
			Call: func(ctx context.Context, args Args) (any, error) {
				return StartRiskScan(ctx, tr, args.String("order_id")), nil
			},
		},
		{
			Name:        "resume_risk_scan",
			Description: "Resume a risk scan with its handle, or 'last' for the most recent scan. Output: {status, payload?, result?, message?}.",
			Params:      []llm.Param{{Name: "handle", Description: "Handle returned by start_risk_scan, or 'last'.", Required: true}},
			Call: func(ctx context.Context, args Args) (any, error) {
				return ResumeRiskScan(ctx, tr, args.String("handle")), nil
			},
		},
	}
}
