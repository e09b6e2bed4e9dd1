package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
)

// Detector probes the environment to determine available capabilities.
type Detector interface {
	Detect(ctx context.Context) (Capabilities, error)
}

// Capabilities is the result of a probe.
type Capabilities struct {
	Level CapabilityLevel

	// Reachable lists the remote agents whose card could be fetched, in
	// the order they were configured.
	Reachable []string
}

// Has reports whether the named remote agent was reachable.
func (c Capabilities) Has(name string) bool {
	for _, n := range c.Reachable {
		if n == name {
			return true
		}
	}
	return false
}

// Remote names a remote agent to probe.
type Remote struct {
	Name    string
	BaseURL string
}

// Compile-time check.
var _ Detector = (*DefaultDetector)(nil)

// DefaultDetector checks for model credentials and probes remote agent
// cards concurrently.
type DefaultDetector struct {
	client       a2a.Client
	hasModel     bool
	remotes      []Remote
	probeTimeout time.Duration
	logger       *zap.Logger
}

// NewDefaultDetector creates a DefaultDetector. Without a model, Detect
// returns CapOffline without probing.
func NewDefaultDetector(client a2a.Client, hasModel bool, remotes []Remote, probeTimeout time.Duration, logger *zap.Logger) *DefaultDetector {
	if probeTimeout <= 0 {
		probeTimeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultDetector{
		client:       client,
		hasModel:     hasModel,
		remotes:      remotes,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Detect returns the capability level and the reachable remote agents.
func (d *DefaultDetector) Detect(ctx context.Context) (Capabilities, error) {
	if !d.hasModel {
		d.logger.Info("detector: no model credentials", zap.Stringer("level", CapOffline))
		return Capabilities{Level: CapOffline}, nil
	}

	up := make([]bool, len(d.remotes))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range d.remotes {
		g.Go(func() error {
			up[i] = d.probe(gctx, r.BaseURL)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{Level: CapLocal}
	for i, r := range d.remotes {
		if up[i] {
			caps.Reachable = append(caps.Reachable, r.Name)
		}
	}
	if len(caps.Reachable) > 0 {
		caps.Level = CapFull
	}

	d.logger.Info("detector: probed remote agents",
		zap.Stringer("level", caps.Level),
		zap.Int("configured", len(d.remotes)),
		zap.Strings("reachable", caps.Reachable),
	)
	return caps, nil
}

// probe reports whether an agent card is served at baseURL within the
// probe timeout.
func (d *DefaultDetector) probe(ctx context.Context, baseURL string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("detector: probe panicked", zap.String("url", baseURL), zap.Any("panic", r))
			ok = false
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	card, err := d.client.DiscoverAgent(probeCtx, baseURL)
	if err != nil {
		d.logger.Debug("detector: agent unreachable", zap.String("url", baseURL), zap.Error(err))
		return false
	}
	return card != nil
}
