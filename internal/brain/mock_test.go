package brain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"verdict.app/engine/common/llm"
	"verdict.app/engine/internal/brain"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/resilience"
	"verdict.app/engine/internal/search"
)

const (
	marketJSON   = `{"summary":"Specialty coffee subscriptions are a growing niche.","key_findings":["Subscription boxes grow 15% yearly"],"competitors":["Atlas Coffee Club","Trade Coffee"],"market_size_estimate":"$1.2B","score":7}`
	techJSON     = `{"summary":"Buildable with a recommendation model and standard e-commerce.","required_stack":["Go","Postgres","Stripe"],"challenges":["Cold-start flavor profiles"],"feasibility":"HIGH","score":8}`
	riskJSON     = `{"summary":"Low regulatory exposure.","legal_concerns":["Food labeling rules"],"ethical_risks":["Taste profile data retention"],"mitigation_strategies":["Publish a data retention policy"],"score":3}`
	feedbackJSON = `{"summary":"Coffee enthusiasts want discovery without waste.","pain_points":["Stale beans","Too many bad matches"],"positive_signals":["Curiosity about new origins"],"sentiment":"POSITIVE","score":7}`
	decisionJSON = `{"decision":"go","reasoning":"No policy rule is violated and market and user signals are positive.","confidence_score":0.78,"action_items":["Run a 200-customer pilot"],"policy_violations":[]}`
)

var cannedOutputs = map[string]string{
	"market_report":        marketJSON,
	"tech_report":          techJSON,
	"risk_report":          riskJSON,
	"user_feedback_report": feedbackJSON,
	"final_decision":       decisionJSON,
}

// mockLLMClient answers by schema name. Safe for the concurrent calls the
// orchestrator makes.
type mockLLMClient struct {
	chatFn func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)

	mu       sync.Mutex
	calls    map[string]int
	requests []llm.Request
}

func newMockLLM(chatFn func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)) *mockLLMClient {
	return &mockLLMClient{chatFn: chatFn, calls: make(map[string]int)}
}

func (m *mockLLMClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.mu.Lock()
	m.calls[req.SchemaName]++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.chatFn != nil {
		return m.chatFn(ctx, req, result)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockLLMClient) Model() string {
	return "test-model"
}

func (m *mockLLMClient) Calls(schema string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[schema]
}

func (m *mockLLMClient) Request(schema string) (llm.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.SchemaName == schema {
			return r, true
		}
	}
	return llm.Request{}, false
}

// cannedChat decodes the canned output for the request's schema, with
// per-schema overrides. An override of "" fails that schema.
func cannedChat(overrides map[string]string) func(context.Context, llm.Request, any) (*llm.Response, error) {
	return func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
		raw, ok := overrides[req.SchemaName]
		if !ok {
			raw, ok = cannedOutputs[req.SchemaName]
		}
		if !ok || raw == "" {
			return nil, &llm.DecodeError{Schema: req.SchemaName, Err: errors.New("no output")}
		}
		if err := json.Unmarshal([]byte(raw), result); err != nil {
			return nil, &llm.DecodeError{Schema: req.SchemaName, Err: err}
		}
		return &llm.Response{PromptTokens: 10, CompletionTokens: 20}, nil
	}
}

type mockSearcher struct {
	searchFn func(ctx context.Context, query string) ([]search.Result, error)

	mu      sync.Mutex
	queries []string
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]search.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return []search.Result{{Title: "Result", URL: "https://example.com", Snippet: "snippet", Relevance: 0.9}}, nil
}

func (m *mockSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

type mockRetriever struct {
	queryFn func(ctx context.Context, topic string, k int) (string, error)
	calls   int
}

func (m *mockRetriever) Query(ctx context.Context, topic string, k int) (string, error) {
	m.calls++
	if m.queryFn != nil {
		return m.queryFn(ctx, topic, k)
	}
	return "[1] Relevance: 0.90 | Source: strategy.md\nWe build software only.", nil
}

// stubTask is an AnalysisTask with a scripted outcome.
type stubTask struct {
	kind  model.ReportKind
	runFn func(ctx context.Context, idea model.Idea, peers brain.PeerReports) (*model.AnalysisReport, error)
}

func (s *stubTask) Kind() model.ReportKind { return s.kind }

func (s *stubTask) Run(ctx context.Context, idea model.Idea, peers brain.PeerReports) (*model.AnalysisReport, error) {
	if s.runFn != nil {
		return s.runFn(ctx, idea, peers)
	}
	return validReport(s.kind), nil
}

func failingTask(kind model.ReportKind) *stubTask {
	return &stubTask{kind: kind, runFn: func(context.Context, model.Idea, brain.PeerReports) (*model.AnalysisReport, error) {
		return nil, fmt.Errorf("%s provider down", kind)
	}}
}

func stubTasks() []brain.AnalysisTask {
	tasks := make([]brain.AnalysisTask, 0, len(model.AllReportKinds))
	for _, k := range model.AllReportKinds {
		tasks = append(tasks, &stubTask{kind: k})
	}
	return tasks
}

func validReport(kind model.ReportKind) *model.AnalysisReport {
	r := &model.AnalysisReport{Kind: kind, Summary: string(kind) + " summary", Findings: []string{"finding"}, Score: 6}
	switch kind {
	case model.ReportKindMarket:
		r.Market = &model.MarketDetails{Competitors: []string{"A"}, MarketSizeEstimate: "$1B"}
	case model.ReportKindTech:
		r.Tech = &model.TechDetails{Feasibility: model.FeasibilityMedium}
	case model.ReportKindRisk:
		r.Risk = &model.RiskDetails{}
	case model.ReportKindFeedback:
		r.Feedback = &model.FeedbackDetails{Sentiment: model.SentimentMixed}
	}
	return r
}

type stubSynth struct {
	runFn func(ctx context.Context, idea model.Idea, reports map[model.ReportKind]*model.AnalysisReport) (model.Verdict, error)

	mu    sync.Mutex
	calls int
}

func (s *stubSynth) Run(ctx context.Context, idea model.Idea, reports map[model.ReportKind]*model.AnalysisReport) (model.Verdict, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.runFn != nil {
		return s.runFn(ctx, idea, reports)
	}
	return model.Verdict{Decision: model.DecisionGo, Reasoning: "ok", Confidence: 0.9, ActionItems: []string{}, PolicyViolations: []string{}}, nil
}

func (s *stubSynth) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}
}

func testIdea(text string) model.Idea {
	return model.Idea{SubmissionID: 42, Text: text, Sanitized: text, SubmittedAt: time.Now()}
}
