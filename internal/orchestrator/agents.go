package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/config"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// Agent names as seen by models and on agent cards.
const (
	OrchestratorName    = "support_orchestrator"
	SupervisorName      = "advanced_support_validator"
	CatalogAgentName    = "product_catalog_agent"
	ComplianceAgentName = "compliance_agent"
)

// Version is reported on agent cards.
var Version = "dev"

// OrchestratorInstruction routes support requests to tools and remote agents.
const OrchestratorInstruction = `
You are a helpful support agent.

ROUTING:
- For product questions, delegate to product_catalog_agent.
- For compliance questions, delegate to compliance_agent.
- Use shipping_eta for delivery estimates.
- If user says "scan order <id>", call start_risk_scan and return the handle.
- If user says "resume <handle>" (or 'last'), call resume_risk_scan.
- If user asks to fetch a local note, use mcp_fetch_file_note.

VERY IMPORTANT (POST-TOOL BEHAVIOR):
After you call any tool or sub-agent and receive its result, WRITE A FINAL, NATURAL-LANGUAGE
ANSWER to the user that mentions which tool/agent you used. Do NOT call another tool in the
same turn unless the user provides new information. If a tool returns JSON, read it and explain
the important fields clearly.

Keep answers concise and helpful.
`

// SupervisorInstruction makes the supervisor validate the orchestrator.
const SupervisorInstruction = `
You are an Advanced Support Supervisor. Your goal is to ensure the support_orchestrator agent is performing correctly.

PROTOCOL:
1. You will receive a user query.
2. You MUST delegate this query to the support_orchestrator sub-agent.
3. Analyze the response from support_orchestrator.
4. VALIDATION:
    - Did the agent answer the user's question?
    - Did the agent use the correct tools (e.g., shipping_eta for shipping)?
    - Is the answer reasonable and polite?
5. ACTION:
    - IF the response is CORRECT: Return the response to the user exactly as is (or slightly improved).
    - IF the response is INCORRECT, HALLUCINATED, or HARMFUL:
        a. Call notify_customer_support with the specific reason.
        b. Apologize to the user and provide the correct information if you know it, or say you have escalated the issue.

You have access to the support_orchestrator as a sub-agent. Use it to get the initial answer.
`

const (
	catalogInstruction    = "Use get_product_info to answer product questions. Be concise."
	complianceInstruction = "Call check_country_vat when asked about compliance."
)

const (
	orchestratorDescription = "Customer Support Copilot that orchestrates remote agents and tools."
	supervisorDescription   = "A supervisor agent that validates the output of the support_orchestrator."
	catalogDescription      = "Vendor product catalog (price/stock/specs)."
	complianceDescription   = "Vendor compliance checks (toy VAT check)."

	remoteCatalogDescription    = "Remote vendor catalog via A2A."
	remoteComplianceDescription = "Remote vendor compliance via A2A."
)

// Deps carries everything the agent builders need.
type Deps struct {
	Config *config.Config

	// Models is nil when no model is available; builders then fall back to
	// keyword routing.
	Models *Models

	Tracker      *longrun.Tracker
	Client       a2a.Client
	Notifier     tools.Notifier
	ToolObserver tools.Observer
	Logger       *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) registry(ts ...tools.Tool) *tools.Registry {
	opts := []tools.RegistryOption{tools.WithLogger(d.logger())}
	if d.ToolObserver != nil {
		opts = append(opts, tools.WithObserver(d.ToolObserver))
	}
	return tools.NewRegistry(ts, opts...)
}

// OrchestratorTools are the local tools of the support orchestrator.
func (d Deps) OrchestratorTools() []tools.Tool {
	ts := []tools.Tool{tools.NewShippingETATool()}
	ts = append(ts, tools.NewRiskScanTools(d.Tracker)...)
	return append(ts, tools.NewFetchNoteTool(tools.Notes{Dir: d.Config.MCP.NotesDir}))
}

// Remotes returns the remote sub-agents of the orchestrator.
func (d Deps) Remotes() []Remote {
	return []Remote{
		{Name: CatalogAgentName, BaseURL: d.Config.Agents.Catalog.BaseURL},
		{Name: ComplianceAgentName, BaseURL: d.Config.Agents.Compliance.BaseURL},
	}
}

// RemoteAgents returns A2A clients for the named remotes.
func (d Deps) RemoteAgents(names ...string) []agent.SubAgent {
	descriptions := map[string]string{
		CatalogAgentName:    remoteCatalogDescription,
		ComplianceAgentName: remoteComplianceDescription,
	}
	var subs []agent.SubAgent
	for _, r := range d.Remotes() {
		for _, n := range names {
			if n == r.Name {
				subs = append(subs, agent.NewRemoteAgent(r.Name, descriptions[r.Name], r.BaseURL, d.Client))
			}
		}
	}
	return subs
}

func (d Deps) notifier() tools.Notifier {
	if d.Notifier == nil {
		return tools.LogNotifier{Logger: d.logger()}
	}
	return d.Notifier
}

func (d Deps) llmAgent(ctx context.Context, model string, cfg agent.LLMConfig) (*agent.LLMAgent, error) {
	if d.Models == nil {
		return nil, fmt.Errorf("agent %s: no model available", cfg.Name)
	}
	m, err := d.Models.Get(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	cfg.Model = m
	cfg.MaxSteps = d.Config.LLM.MaxSteps
	cfg.Logger = d.logger()
	return agent.NewLLMAgent(cfg)
}

// NewSupportOrchestrator builds the routing agent with its local tools and
// the given sub-agents.
func NewSupportOrchestrator(ctx context.Context, d Deps, subs ...agent.SubAgent) (*agent.LLMAgent, error) {
	return d.llmAgent(ctx, d.Config.LLM.Model, agent.LLMConfig{
		Name:        OrchestratorName,
		Description: orchestratorDescription,
		Instruction: OrchestratorInstruction,
		Tools:       d.registry(d.OrchestratorTools()...),
		SubAgents:   subs,
	})
}

// NewSupervisor builds the validator that delegates to inner and escalates
// bad answers through notify_customer_support.
func NewSupervisor(ctx context.Context, d Deps, inner agent.SubAgent) (*agent.LLMAgent, error) {
	return d.llmAgent(ctx, d.Config.LLM.SupervisorModel, agent.LLMConfig{
		Name:        SupervisorName,
		Description: supervisorDescription,
		Instruction: SupervisorInstruction,
		Tools:       d.registry(tools.NewNotifySupportTool(d.notifier())),
		SubAgents:   []agent.SubAgent{inner},
	})
}

// NewCatalogAgent builds the product catalog specialist.
func NewCatalogAgent(ctx context.Context, d Deps) (*agent.LLMAgent, error) {
	return d.llmAgent(ctx, d.Config.LLM.Model, agent.LLMConfig{
		Name:        CatalogAgentName,
		Description: catalogDescription,
		Instruction: catalogInstruction,
		Tools:       d.registry(tools.NewProductInfoTool()),
	})
}

// NewComplianceAgent builds the VAT compliance specialist.
func NewComplianceAgent(ctx context.Context, d Deps) (*agent.LLMAgent, error) {
	return d.llmAgent(ctx, d.Config.LLM.Model, agent.LLMConfig{
		Name:        ComplianceAgentName,
		Description: complianceDescription,
		Instruction: complianceInstruction,
		Tools:       d.registry(tools.NewCheckCountryVATTool()),
	})
}
