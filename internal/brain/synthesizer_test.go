package brain_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/common/llm"
	"verdict.app/engine/internal/brain"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/resilience"
)

var _ = Describe("Synthesizer", func() {
	var (
		ctx       context.Context
		client    *mockLLMClient
		retriever *mockRetriever
		reports   map[model.ReportKind]*model.AnalysisReport
		idea      model.Idea
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newMockLLM(cannedChat(nil))
		retriever = &mockRetriever{}
		reports = make(map[model.ReportKind]*model.AnalysisReport)
		for _, k := range model.AllReportKinds {
			reports[k] = validReport(k)
		}
		idea = testIdea("Smart ring that tracks caffeine intake")
	})

	newSynth := func(r brain.Retriever) *brain.Synthesizer {
		return brain.NewSynthesizer(client, r, nil, brain.SynthesizerConfig{Policy: fastPolicy(), TopK: 3})
	}

	It("normalises the decision and keeps the structured fields", func() {
		v, err := newSynth(retriever).Run(ctx, idea, reports)

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Decision).To(Equal(model.DecisionGo))
		Expect(v.Confidence).To(BeNumerically("~", 0.78))
		Expect(v.ActionItems).To(ConsistOf("Run a 200-customer pilot"))
		Expect(v.PolicyViolations).To(BeEmpty())
	})

	It("puts policy first and every report in the decision input", func() {
		_, err := newSynth(retriever).Run(ctx, idea, reports)
		Expect(err).NotTo(HaveOccurred())

		req, ok := client.Request("final_decision")
		Expect(ok).To(BeTrue())
		input := req.UserPrompt

		policyAt := strings.Index(input, "COMPANY POLICY (HIGHEST PRIORITY, NON-NEGOTIABLE)")
		marketAt := strings.Index(input, "## Market Research Report")
		Expect(policyAt).To(BeNumerically(">", 0))
		Expect(marketAt).To(BeNumerically(">", policyAt))
		Expect(input).To(ContainSubstring("We build software only."))
		Expect(input).To(ContainSubstring("## Technical Feasibility Report"))
		Expect(input).To(ContainSubstring("## Risk Assessment Report"))
		Expect(input).To(ContainSubstring("## User Feedback Report"))
		Expect(input).To(ContainSubstring("policy_violations"))
	})

	It("passes the sanitized idea and top k to the retriever", func() {
		var gotTopic string
		var gotK int
		retriever.queryFn = func(_ context.Context, topic string, k int) (string, error) {
			gotTopic, gotK = topic, k
			return "policy", nil
		}

		_, err := newSynth(retriever).Run(ctx, idea, reports)

		Expect(err).NotTo(HaveOccurred())
		Expect(gotTopic).To(Equal(idea.Sanitized))
		Expect(gotK).To(Equal(3))
	})

	DescribeTable("substitutes a placeholder when policy context is unavailable",
		func(r brain.Retriever) {
			_, err := newSynth(r).Run(ctx, idea, reports)
			Expect(err).NotTo(HaveOccurred())

			req, _ := client.Request("final_decision")
			Expect(req.UserPrompt).To(ContainSubstring(brain.PolicyUnavailable))
		},
		Entry("no retriever", nil),
		Entry("retriever error", &mockRetriever{queryFn: func(context.Context, string, int) (string, error) {
			return "", errors.New("typesense unreachable")
		}}),
	)

	It("retries a decision outside the allowed set", func() {
		calls := 0
		client.chatFn = func(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
			calls++
			if calls == 1 {
				return cannedChat(map[string]string{
					"final_decision": `{"decision":"MAYBE","reasoning":"r","confidence_score":0.5,"action_items":[],"policy_violations":[]}`,
				})(ctx, req, result)
			}
			return cannedChat(nil)(ctx, req, result)
		}

		v, err := newSynth(retriever).Run(ctx, idea, reports)

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Decision).To(Equal(model.DecisionGo))
		Expect(client.Calls("final_decision")).To(Equal(2))
	})

	It("returns an ExternalServiceError once retries are exhausted", func() {
		client.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
			return nil, errors.New("connection refused")
		}

		_, err := newSynth(retriever).Run(ctx, idea, reports)

		var ext *resilience.ExternalServiceError
		Expect(errors.As(err, &ext)).To(BeTrue())
		Expect(ext.Attempts).To(Equal(3))
		Expect(err.Error()).To(ContainSubstring("connection refused"))
	})

	It("reports policy violations", func() {
		client.chatFn = cannedChat(map[string]string{
			"final_decision": `{"decision":"NO-GO","reasoning":"Hardware is out of scope.","confidence_score":0.9,"action_items":["Drop the ring"],"policy_violations":["no hardware products"]}`,
		})

		v, err := newSynth(retriever).Run(ctx, idea, reports)

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Decision).To(Equal(model.DecisionNoGo))
		Expect(v.PolicyViolations).To(ConsistOf("no hardware products"))
	})
})
