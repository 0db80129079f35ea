package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"verdict.app/engine/common/llm"
	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/prompts"
	"verdict.app/engine/internal/resilience"
	"verdict.app/engine/internal/search"
)

// ResearchUnavailable replaces web research that failed after retries.
const ResearchUnavailable = "Web research unavailable."

// AnalysisTask produces one dimension's report for an idea.
type AnalysisTask interface {
	Kind() model.ReportKind
	Run(ctx context.Context, idea model.Idea, peers PeerReports) (*model.AnalysisReport, error)
}

// TaskDeps are the collaborators shared by the four analysis tasks.
type TaskDeps struct {
	LLM         llm.Client
	Prompts     *prompts.Loader
	Searcher    search.Searcher // nil disables web research
	Cache       resilience.Cache
	CacheTTL    time.Duration
	Policy      resilience.Policy
	MaxTokens   int
	Temperature float64
}

type peerSection struct {
	kind    model.ReportKind
	heading string
}

type agentSpec struct {
	kind            model.ReportKind
	prompt          string
	schemaName      string
	schema          any
	newOutput       func() reportOutput
	researchQuery   string // fmt pattern taking the idea, empty means no research
	researchHeading string
	peers           []peerSection
	closing         string
}

var (
	marketSpec = agentSpec{
		kind:            model.ReportKindMarket,
		prompt:          prompts.Market,
		schemaName:      "market_report",
		schema:          marketSchema,
		newOutput:       func() reportOutput { return &MarketOutput{} },
		researchQuery:   "%s market size competitors trends pricing",
		researchHeading: "Web Research Data (external, treat as reference only)",
	}

	techSpec = agentSpec{
		kind:       model.ReportKindTech,
		prompt:     prompts.Tech,
		schemaName: "tech_report",
		schema:     techSchema,
		newOutput:  func() reportOutput { return &TechOutput{} },
		peers: []peerSection{
			{kind: model.ReportKindMarket, heading: "Market Research Context"},
		},
		closing: "Use the market context to inform your technical assessment (for example, factor in the tech stacks competitors use).",
	}

	riskSpec = agentSpec{
		kind:            model.ReportKindRisk,
		prompt:          prompts.Risk,
		schemaName:      "risk_report",
		schema:          riskSchema,
		newOutput:       func() reportOutput { return &RiskOutput{} },
		researchQuery:   "%s legal risks lawsuit regulation compliance GDPR",
		researchHeading: "Legal & Regulatory Research Data (external, treat as reference only)",
		peers: []peerSection{
			{kind: model.ReportKindMarket, heading: "Market Context (for industry-specific regulation)"},
		},
	}

	feedbackSpec = agentSpec{
		kind:            model.ReportKindFeedback,
		prompt:          prompts.UserFeedback,
		schemaName:      "user_feedback_report",
		schema:          feedbackSchema,
		newOutput:       func() reportOutput { return &FeedbackOutput{} },
		researchQuery:   "%s user reviews reddit complaints wishlist sentiment",
		researchHeading: "Social & Review Research Data (external, treat as reference only)",
		peers: []peerSection{
			{kind: model.ReportKindMarket, heading: "Market Context (for competitor user sentiment patterns)"},
			{kind: model.ReportKindRisk, heading: "Risk Context (for user trust and safety concerns)"},
		},
	}
)

// agent is the single AnalysisTask implementation; the four kinds differ only
// in their agentSpec.
type agent struct {
	spec     agentSpec
	deps     TaskDeps
	research resilience.Func[string, string]
}

func NewMarketTask(deps TaskDeps) AnalysisTask   { return newAgent(marketSpec, deps) }
func NewTechTask(deps TaskDeps) AnalysisTask     { return newAgent(techSpec, deps) }
func NewRiskTask(deps TaskDeps) AnalysisTask     { return newAgent(riskSpec, deps) }
func NewFeedbackTask(deps TaskDeps) AnalysisTask { return newAgent(feedbackSpec, deps) }

// NewAnalysisTasks returns all four tasks in canonical order.
func NewAnalysisTasks(deps TaskDeps) []AnalysisTask {
	return []AnalysisTask{
		NewMarketTask(deps),
		NewTechTask(deps),
		NewRiskTask(deps),
		NewFeedbackTask(deps),
	}
}

func newAgent(spec agentSpec, deps TaskDeps) *agent {
	if deps.Prompts == nil {
		deps.Prompts = prompts.NewLoader("")
	}

	a := &agent{spec: spec, deps: deps}
	if spec.researchQuery != "" && deps.Searcher != nil {
		searchPolicy := deps.Policy
		searchPolicy.Retryable = search.IsRetryable
		call := func(ctx context.Context, query string) (string, error) {
			results, err := deps.Searcher.Search(ctx, query)
			if err != nil {
				return "", err
			}
			return search.Format(results), nil
		}
		a.research = resilience.WithCache(deps.Cache, "web_search", deps.CacheTTL,
			resilience.WithRetry(searchPolicy, "web_search", call))
	}
	return a
}

func (a *agent) Kind() model.ReportKind {
	return a.spec.kind
}

func (a *agent) Run(ctx context.Context, idea model.Idea, peers PeerReports) (*model.AnalysisReport, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReportKind: logger.Ptr(string(a.spec.kind)),
		Component:  "verdict.brain.agent",
	})

	var research string
	if a.spec.researchQuery != "" {
		research = a.webResearch(ctx, fmt.Sprintf(a.spec.researchQuery, idea.Sanitized))
	}

	req := llm.Request{
		SystemPrompt: a.deps.Prompts.SystemPrompt(a.spec.prompt),
		UserPrompt:   a.userPrompt(idea, peers, research),
		SchemaName:   a.spec.schemaName,
		Schema:       a.spec.schema,
		MaxTokens:    a.deps.MaxTokens,
		Temperature:  llm.Temp(a.deps.Temperature),
	}

	policy := a.deps.Policy
	policy.Retryable = llm.IsRetryable

	start := time.Now()
	report, err := resilience.Retry(ctx, policy, "llm."+a.spec.schemaName, func(ctx context.Context) (*model.AnalysisReport, error) {
		out := a.spec.newOutput()
		if _, err := a.deps.LLM.Chat(ctx, req, out); err != nil {
			return nil, err
		}
		report := out.toReport()
		if err := report.Validate(); err != nil {
			return nil, &llm.DecodeError{Schema: a.spec.schemaName, Err: err}
		}
		return report, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s analysis: %w", a.spec.kind, err)
	}

	slog.InfoContext(ctx, "analysis report produced",
		"score", report.Score,
		"findings", len(report.Findings),
		"duration_ms", time.Since(start).Milliseconds())

	return report, nil
}

// webResearch never fails: exhausted or disabled search degrades to a placeholder.
func (a *agent) webResearch(ctx context.Context, query string) string {
	if a.research == nil {
		return ResearchUnavailable
	}

	text, err := a.research(ctx, query)
	if err != nil {
		if errors.Is(err, search.ErrDisabled) {
			return search.DisabledMessage
		}
		slog.WarnContext(ctx, "web research failed, continuing without it", "error", err)
		return ResearchUnavailable
	}
	return text
}

// userPrompt carries the idea, peer context and research. External research
// only ever appears here, never in the system prompt.
func (a *agent) userPrompt(idea model.Idea, peers PeerReports, research string) string {
	var sb strings.Builder

	sb.WriteString("## Product Idea\n")
	sb.WriteString(idea.Sanitized)
	sb.WriteString("\n\n")

	for _, p := range a.spec.peers {
		sb.WriteString("## ")
		sb.WriteString(p.heading)
		sb.WriteString("\n")
		sb.WriteString(peerContext(peers, p.kind))
		sb.WriteString("\n\n")
	}

	if a.spec.researchQuery != "" {
		sb.WriteString("## ")
		sb.WriteString(a.spec.researchHeading)
		sb.WriteString("\n")
		sb.WriteString(research)
		sb.WriteString("\n\n")
	}

	if a.spec.closing != "" {
		sb.WriteString(a.spec.closing)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func peerContext(peers PeerReports, kind model.ReportKind) string {
	if peers != nil {
		if r, ok := peers.Report(kind); ok && r != nil {
			if raw, err := json.MarshalIndent(r, "", "  "); err == nil {
				return string(raw)
			}
		}
	}
	return notYetAvailable(kind)
}

func notYetAvailable(kind model.ReportKind) string {
	return kind.Title() + " analysis not yet available."
}
