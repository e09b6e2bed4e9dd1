package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/config"
)

// NewDetector returns the detector for d's configuration.
func NewDetector(d Deps) *DefaultDetector {
	return NewDefaultDetector(d.Client, d.Models != nil, d.Remotes(), d.Config.Agents.ProbeTimeout, d.logger())
}

// NewRunner returns the runner that answers chat turns at the detected
// capability level. With supervised set, the orchestrator is wrapped by the
// supervisor whenever a model is available.
func NewRunner(ctx context.Context, d Deps, det Detector, supervised bool) (agent.Runner, Capabilities, error) {
	caps, err := det.Detect(ctx)
	if err != nil {
		return nil, caps, fmt.Errorf("detect capabilities: %w", err)
	}
	if caps.Level == CapOffline {
		d.logger().Info("using keyword fallback", zap.Stringer("level", caps.Level))
		return NewFallbackFor(OrchestratorName, d).withRemotes(d), caps, nil
	}

	orch, err := NewSupportOrchestrator(ctx, d, d.RemoteAgents(caps.Reachable...)...)
	if err != nil {
		return nil, caps, err
	}
	if !supervised {
		return orch, caps, nil
	}
	sup, err := NewSupervisor(ctx, d, orch)
	if err != nil {
		return nil, caps, err
	}
	return sup, caps, nil
}

// withRemotes lets the fallback use the specialist agents when they run.
func (f *Fallback) withRemotes(d Deps) *Fallback {
	for _, sub := range d.RemoteAgents(CatalogAgentName, ComplianceAgentName) {
		switch sub.Name() {
		case CatalogAgentName:
			f.catalog = sub
		case ComplianceAgentName:
			f.compliance = sub
		}
	}
	return f
}

// Card returns the A2A card of the agent serving role.
func Card(role agent.Role, cfg *config.Config) a2a.AgentCard {
	var (
		name, description, baseURL string
		skill                      a2a.AgentSkill
	)
	switch role {
	case agent.RoleCatalog:
		name, description, baseURL = CatalogAgentName, catalogDescription, cfg.Agents.Catalog.BaseURL
		skill = a2a.AgentSkill{
			ID: "product_info", Name: "Product info",
			Description: "Price, stock and specs of catalog products.",
			Tags:        []string{"catalog"},
			Examples:    []string{"How much is the Dell XPS 15?"},
		}
	case agent.RoleCompliance:
		name, description, baseURL = ComplianceAgentName, complianceDescription, cfg.Agents.Compliance.BaseURL
		skill = a2a.AgentSkill{
			ID: "vat_check", Name: "VAT check",
			Description: "Checks a vendor VAT ID against its country.",
			Tags:        []string{"compliance"},
			Examples:    []string{"Is VAT BE0123456789 for Belgium compliant?"},
		}
	case agent.RoleSupervisor:
		name, description, baseURL = SupervisorName, supervisorDescription, cfg.Agents.Supervisor.BaseURL
		skill = a2a.AgentSkill{
			ID: "validated_support", Name: "Validated support",
			Description: "Support answers checked by a supervisor, escalated when wrong.",
			Tags:        []string{"support", "validation"},
		}
	default:
		name, description, baseURL = OrchestratorName, orchestratorDescription, cfg.Agents.Orchestrator.BaseURL
		skill = a2a.AgentSkill{
			ID: "support", Name: "Customer support",
			Description: "Shipping estimates, order risk scans, notes, product and compliance questions.",
			Tags:        []string{"support"},
			Examples:    []string{"scan order 42", "resume last", "When will my order reach 94107?"},
		}
	}
	url := strings.TrimRight(baseURL, "/") + "/"
	return a2a.AgentCard{
		Name:        name,
		Description: description,
		Version:     Version,
		URL:         url,
		Interfaces: []a2a.AgentInterface{{
			URL:             url,
			ProtocolBinding: "JSONRPC",
			ProtocolVersion: "0.3",
		}},
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             []a2a.AgentSkill{skill},
	}
}

// RoleRunner builds the runner served for role.
func RoleRunner(ctx context.Context, role agent.Role, d Deps) (agent.Runner, error) {
	switch role {
	case agent.RoleCatalog:
		if d.Models == nil {
			return NewFallbackFor(CatalogAgentName, d), nil
		}
		return NewCatalogAgent(ctx, d)
	case agent.RoleCompliance:
		if d.Models == nil {
			return NewFallbackFor(ComplianceAgentName, d), nil
		}
		return NewComplianceAgent(ctx, d)
	case agent.RoleOrchestrator:
		r, _, err := NewRunner(ctx, d, NewDetector(d), false)
		return r, err
	case agent.RoleSupervisor:
		r, _, err := NewRunner(ctx, d, NewDetector(d), true)
		return r, err
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

// Register adds a factory for every role to reg. Each factory serves the
// role's runner behind an A2A BaseAgent.
func Register(ctx context.Context, reg *agent.Registry, d Deps) {
	for _, role := range agent.Roles {
		reg.Register(role, func() (agent.Agent, error) {
			runner, err := RoleRunner(ctx, role, d)
			if err != nil {
				return nil, err
			}
			return agent.NewBaseAgent(Card(role, d.Config), runner, agent.WithLogger(d.logger())), nil
		})
	}
}

// Addrs returns the configured listen address of every role.
func Addrs(cfg *config.Config) map[agent.Role]string {
	return map[agent.Role]string{
		agent.RoleCatalog:      cfg.Agents.Catalog.Addr,
		agent.RoleCompliance:   cfg.Agents.Compliance.Addr,
		agent.RoleOrchestrator: cfg.Agents.Orchestrator.Addr,
		agent.RoleSupervisor:   cfg.Agents.Supervisor.Addr,
	}
}
