package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/llm"
)

// Notifier escalates a problem to human support.
type Notifier interface {
	Notify(ctx context.Context, reason string) error
}

// LogNotifier raises support alerts as error-level log entries.
type LogNotifier struct {
	Logger  *zap.Logger
	Counter interface{ Notified() }
}

// Notify logs reason.
func (n LogNotifier) Notify(ctx context.Context, reason string) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("notifying customer support",
		zap.String("reason", reason),
		zap.String("session", SessionFrom(ctx)),
	)
	if n.Counter != nil {
		n.Counter.Notified()
	}
	return nil
}

// NewNotifySupportTool returns notify_customer_support backed by n.
func NewNotifySupportTool(n Notifier) Tool {
	return Tool{
		Name:        "notify_customer_support",
		Description: "Notify human support when the inner agent fails or acts incorrectly.",
		Params: []llm.Param{{
			Name:        "reason",
			Description: `The reason for notification, e.g. "Agent hallucinated" or "Incorrect shipping info".`,
			Required:    true,
		}},
		Call: func(ctx context.Context, args Args) (any, error) {
			reason := args.String("reason")
			if err := n.Notify(ctx, reason); err != nil {
				return nil, err
			}
			return map[string]any{
				"status":  "NOTIFIED",
				"message": "Support notified for reason: " + reason,
			}, nil
		},
	}
}
