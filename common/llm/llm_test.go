package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/common/llm"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("produces provider-safe schema names",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid name unchanged", "market_report", "market_report"),
		Entry("dots replaced with underscore", "report.v2", "report_v2"),
		Entry("hyphens preserved", "final-decision", "final-decision"),
		Entry("spaces replaced", "market report", "market_report"),
		Entry("long name truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("empty string gets a default", "", "structured_output"),
	)
})

type sampleReport struct {
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
	Score    int      `json:"score"`
}

var _ = Describe("GenerateSchema", func() {
	It("reflects an inline object schema with every field required", func() {
		raw, err := json.Marshal(llm.GenerateSchema[sampleReport]())
		Expect(err).NotTo(HaveOccurred())

		var schema map[string]any
		Expect(json.Unmarshal(raw, &schema)).To(Succeed())
		Expect(schema["type"]).To(Equal("object"))
		Expect(schema["additionalProperties"]).To(Equal(false))
		Expect(schema).NotTo(HaveKey("$defs"))
		Expect(schema["properties"]).To(HaveKey("findings"))
		Expect(schema["required"]).To(ConsistOf("summary", "findings", "score"))
	})
})

var _ = Describe("NewClient", func() {
	It("requires an API key", func() {
		_, err := llm.NewClient(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewClient(llm.Config{Provider: "mystery", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	DescribeTable("builds clients for known providers",
		func(provider, model, wantModel string) {
			c, err := llm.NewClient(llm.Config{Provider: provider, APIKey: "k", Model: model})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Model()).To(Equal(wantModel))
		},
		Entry("openai default model", llm.ProviderOpenAI, "", "gpt-4o-mini"),
		Entry("openai explicit model", llm.ProviderOpenAI, "gpt-4o", "gpt-4o"),
		Entry("anthropic explicit model", llm.ProviderAnthropic, "claude-haiku-4-5", "claude-haiku-4-5"),
		Entry("empty provider falls back to openai", "", "gpt-4o", "gpt-4o"),
	)
})

var _ = Describe("NewEmbedder", func() {
	It("knows the dimension of the default model", func() {
		e, err := llm.NewEmbedder(llm.EmbedderConfig{APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Dimensions()).To(Equal(1536))
	})

	It("rejects models with unknown dimensions", func() {
		_, err := llm.NewEmbedder(llm.EmbedderConfig{APIKey: "k", Model: "homegrown"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	It("is false for nil", func() {
		Expect(llm.IsRetryable(ctx, nil)).To(BeFalse())
	})

	It("is false for cancellation", func() {
		Expect(llm.IsRetryable(ctx, fmt.Errorf("openai chat: %w", context.Canceled))).To(BeFalse())
		Expect(llm.IsRetryable(ctx, context.DeadlineExceeded)).To(BeFalse())
	})

	It("is true for malformed output", func() {
		err := &llm.DecodeError{Schema: "market_report", Err: errors.New("unexpected end of JSON input")}
		Expect(llm.IsRetryable(ctx, err)).To(BeTrue())
		Expect(err.Error()).To(Equal("decode market_report: unexpected end of JSON input"))
	})

	It("is true for transport errors", func() {
		Expect(llm.IsRetryable(ctx, errors.New("dial tcp: connection refused"))).To(BeTrue())
	})
})
