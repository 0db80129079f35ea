package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"verdict.app/engine/common/llm"
	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/prompts"
	"verdict.app/engine/internal/resilience"
)

// PolicyUnavailable replaces company policy context that could not be retrieved.
const PolicyUnavailable = "Company policy context unavailable."

// Retriever answers a topic with formatted company policy context.
type Retriever interface {
	Query(ctx context.Context, topic string, k int) (string, error)
}

type SynthesizerConfig struct {
	Policy      resilience.Policy
	MaxTokens   int
	Temperature float64
	TopK        int // 0 uses the retriever's default
}

// Synthesizer turns four reports plus company policy into a Verdict.
type Synthesizer struct {
	llm       llm.Client
	retriever Retriever
	prompts   *prompts.Loader
	cfg       SynthesizerConfig
}

func NewSynthesizer(client llm.Client, retriever Retriever, loader *prompts.Loader, cfg SynthesizerConfig) *Synthesizer {
	if loader == nil {
		loader = prompts.NewLoader("")
	}
	cfg.Policy.Retryable = llm.IsRetryable
	return &Synthesizer{llm: client, retriever: retriever, prompts: loader, cfg: cfg}
}

var reportHeadings = map[model.ReportKind]string{
	model.ReportKindMarket:   "Market Research Report",
	model.ReportKindTech:     "Technical Feasibility Report",
	model.ReportKindRisk:     "Risk Assessment Report",
	model.ReportKindFeedback: "User Feedback Report",
}

func (s *Synthesizer) Run(ctx context.Context, idea model.Idea, reports map[model.ReportKind]*model.AnalysisReport) (model.Verdict, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "verdict.brain.synthesizer"})

	policyContext := s.policyContext(ctx, idea)
	input, err := buildDecisionInput(idea, policyContext, reports)
	if err != nil {
		return model.Verdict{}, err
	}

	req := llm.Request{
		SystemPrompt: s.prompts.SystemPrompt(prompts.Decision),
		UserPrompt:   input,
		SchemaName:   "final_decision",
		Schema:       decisionSchema,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  llm.Temp(s.cfg.Temperature),
	}

	verdict, err := resilience.Retry(ctx, s.cfg.Policy, "llm.final_decision", func(ctx context.Context) (model.Verdict, error) {
		var out DecisionOutput
		if _, err := s.llm.Chat(ctx, req, &out); err != nil {
			return model.Verdict{}, err
		}
		v, err := out.toVerdict()
		if err != nil {
			return model.Verdict{}, &llm.DecodeError{Schema: "final_decision", Err: err}
		}
		return v, nil
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("decision synthesis: %w", err)
	}

	slog.InfoContext(ctx, "verdict synthesized",
		"decision", verdict.Decision,
		"confidence", verdict.Confidence,
		"policy_violations", len(verdict.PolicyViolations))

	return verdict, nil
}

func (s *Synthesizer) policyContext(ctx context.Context, idea model.Idea) string {
	if s.retriever == nil {
		return PolicyUnavailable
	}
	text, err := s.retriever.Query(ctx, idea.Sanitized, s.cfg.TopK)
	if err != nil {
		slog.WarnContext(ctx, "policy retrieval failed, continuing without it", "error", err)
		return PolicyUnavailable
	}
	return text
}

func buildDecisionInput(idea model.Idea, policyContext string, reports map[model.ReportKind]*model.AnalysisReport) (string, error) {
	var sb strings.Builder

	sb.WriteString("## Product Idea\n")
	sb.WriteString(idea.Sanitized)
	sb.WriteString("\n\n## COMPANY POLICY (HIGHEST PRIORITY, NON-NEGOTIABLE)\n")
	sb.WriteString(policyContext)
	sb.WriteString("\n\n")

	for _, kind := range model.AllReportKinds {
		raw, err := json.MarshalIndent(reports[kind], "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding %s report: %w", kind, err)
		}
		sb.WriteString("## ")
		sb.WriteString(reportHeadings[kind])
		sb.WriteString("\n")
		sb.Write(raw)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Compare the product idea against the company policy FIRST. ")
	sb.WriteString("List every violated policy rule in `policy_violations`. ")
	sb.WriteString("Only weigh the market, technical, risk and user data once the policy check is clear.\n")

	return sb.String(), nil
}

func (o *DecisionOutput) toVerdict() (model.Verdict, error) {
	decision, err := model.ParseDecision(o.Decision)
	if err != nil {
		return model.Verdict{}, err
	}
	if o.ConfidenceScore < 0 || o.ConfidenceScore > 1 {
		return model.Verdict{}, fmt.Errorf("confidence %v outside [0,1]", o.ConfidenceScore)
	}
	if strings.TrimSpace(o.Reasoning) == "" {
		return model.Verdict{}, fmt.Errorf("empty reasoning")
	}

	actions := o.ActionItems
	if actions == nil {
		actions = []string{}
	}
	violations := o.PolicyViolations
	if violations == nil {
		violations = []string{}
	}

	return model.Verdict{
		Decision:         decision,
		Reasoning:        o.Reasoning,
		Confidence:       o.ConfidenceScore,
		ActionItems:      actions,
		PolicyViolations: violations,
	}, nil
}
