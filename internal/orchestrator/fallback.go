package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/session"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// Compile-time check.
var _ agent.Runner = (*Fallback)(nil)

var (
	scanRe   = regexp.MustCompile(`(?i)\bscan\s+order\s+#?(\S+)`)
	resumeRe = regexp.MustCompile(`(?i)^\s*resume\b(?:\s+scan)?\s*(\S*)`)
	noteRe   = regexp.MustCompile(`(?i)\bnote\s+(\S+)`)
	vatRe    = regexp.MustCompile(`(?i)\bvat(?:\s+id)?\s+(\S+)\s+(?:for|in|from)\s+([a-z]+)`)
	zipRe    = regexp.MustCompile(`\b(\d{5})\b`)
	shipRe   = regexp.MustCompile(`(?i)\b(ship|shipping|deliver|delivery|eta|arrive)`)
)

// FallbackHelp is the answer to turns no rule matches.
const FallbackHelp = `I'm running without a language model and understand these requests:
- "scan order <id>" starts a risk scan
- "resume <handle>" or "resume last" checks a risk scan
- shipping questions with a 5-digit zipcode
- "note <file>" fetches a support note
- product questions naming a catalog product
- "VAT <id> for <country>" checks VAT compliance`

// Fallback answers turns by deterministic keyword routing when no model is
// available. Product and VAT questions go to the remote agents when they
// are given, and to the local tools otherwise.
type Fallback struct {
	tools      *tools.Registry
	catalog    agent.SubAgent
	compliance agent.SubAgent
	logger     *zap.Logger
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithRemoteCatalog routes product questions to sub.
func WithRemoteCatalog(sub agent.SubAgent) FallbackOption {
	return func(f *Fallback) { f.catalog = sub }
}

// WithRemoteCompliance routes VAT questions to sub.
func WithRemoteCompliance(sub agent.SubAgent) FallbackOption {
	return func(f *Fallback) { f.compliance = sub }
}

// NewFallback returns a Fallback calling registry. The registry should
// contain the tools of every rule the caller wants to answer.
func NewFallback(registry *tools.Registry, logger *zap.Logger, opts ...FallbackOption) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fallback{tools: registry, logger: logger.With(zap.String("agent", "fallback"))}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFallbackFor returns the keyword runner standing in for an agent name
// when no model is available.
func NewFallbackFor(name string, d Deps) *Fallback {
	switch name {
	case CatalogAgentName:
		return NewFallback(d.registry(tools.NewProductInfoTool()), d.logger())
	case ComplianceAgentName:
		return NewFallback(d.registry(tools.NewCheckCountryVATTool()), d.logger())
	default:
		ts := append(d.OrchestratorTools(), tools.NewProductInfoTool(), tools.NewCheckCountryVATTool())
		return NewFallback(d.registry(ts...), d.logger())
	}
}

// Run routes one turn. Conversation history prepended to text is ignored.
func (f *Fallback) Run(ctx context.Context, sessionID, text string) (string, error) {
	ctx = tools.WithSession(ctx, sessionID)
	text = session.Current(text)

	if m := scanRe.FindStringSubmatch(text); m != nil && f.tools.Has("start_risk_scan") {
		resp := f.call(ctx, "start_risk_scan", tools.Args{"order_id": m[1]})
		return fmt.Sprintf("Started a risk scan for order %s with start_risk_scan. Handle: %v. Say \"resume last\" in a few seconds.",
			m[1], resp["handle"]), nil
	}
	if m := resumeRe.FindStringSubmatch(text); m != nil && f.tools.Has("resume_risk_scan") {
		return describeResume(f.call(ctx, "resume_risk_scan", tools.Args{"handle": m[1]})), nil
	}
	if m := noteRe.FindStringSubmatch(text); m != nil && f.tools.Has("mcp_fetch_file_note") {
		resp := f.call(ctx, "mcp_fetch_file_note", tools.Args{"filename": m[1]})
		return fmt.Sprintf("mcp_fetch_file_note: %v", resp["content"]), nil
	}
	if m := vatRe.FindStringSubmatch(text); m != nil {
		if answer, ok := f.ask(ctx, f.compliance, sessionID, text); ok {
			return answer, nil
		}
		if f.tools.Has("check_country_vat") {
			resp := f.call(ctx, "check_country_vat", tools.Args{"country": m[2], "vat_id": m[1]})
			return fmt.Sprintf("check_country_vat: %v", resp["result"]), nil
		}
	}
	if product := findProduct(text); product != "" {
		if answer, ok := f.ask(ctx, f.catalog, sessionID, text); ok {
			return answer, nil
		}
		if f.tools.Has("get_product_info") {
			resp := f.call(ctx, "get_product_info", tools.Args{"product_name": product})
			return fmt.Sprintf("get_product_info: %v", resp["result"]), nil
		}
	}
	if m := zipRe.FindStringSubmatch(text); m != nil && shipRe.MatchString(text) && f.tools.Has("shipping_eta") {
		resp := f.call(ctx, "shipping_eta", tools.Args{"zipcode": m[1]})
		return fmt.Sprintf("shipping_eta for %s: %v", m[1], resp["message"]), nil
	}
	return FallbackHelp, nil
}

func (f *Fallback) call(ctx context.Context, name string, args tools.Args) map[string]any {
	f.logger.Debug("routing to tool", zap.String("tool", name))
	return f.tools.Call(ctx, name, args)
}

// ask forwards text to sub. It reports false when there is no sub-agent or
// it failed, so the caller can use a local tool instead.
func (f *Fallback) ask(ctx context.Context, sub agent.SubAgent, sessionID, text string) (string, bool) {
	if sub == nil {
		return "", false
	}
	answer, err := sub.Ask(ctx, sessionID, text)
	if err != nil {
		f.logger.Warn("remote agent failed, using local tool", zap.String("agent", sub.Name()), zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("%s: %s", sub.Name(), answer), true
}

func describeResume(resp map[string]any) string {
	switch resp["status"] {
	case longrun.StatusOK:
		return fmt.Sprintf("resume_risk_scan: the risk scan for order %v finished with risk %v.", resp["payload"], resp["result"])
	case longrun.StatusPending:
		return "resume_risk_scan: the risk scan is still running (NOT_READY). Try again in a few seconds."
	default:
		return fmt.Sprintf("resume_risk_scan failed: %v.", resp["message"])
	}
}

// findProduct returns the catalog key mentioned in text, preferring the
// longest match.
func findProduct(text string) string {
	lower := strings.ToLower(text)
	keys := make([]string, 0, len(tools.Catalog))
	for k := range tools.Catalog {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })
	for _, k := range keys {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}
