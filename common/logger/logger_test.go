package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/core/config"
)

var _ = Describe("LogFields", func() {
	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})

	It("merges newer non-empty values over existing ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			SubmissionID: logger.Ptr(int64(42)),
			Component:    "verdict.service",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			ReportKind: logger.Ptr("MARKET"),
			Component:  "verdict.brain.analysis",
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.SubmissionID).To(Equal(int64(42)))
		Expect(*fields.ReportKind).To(Equal("MARKET"))
		Expect(fields.Component).To(Equal("verdict.brain.analysis"))
	})

	It("keeps cancellation of the parent context", func() {
		parent, cancel := context.WithCancel(context.Background())
		ctx := logger.WithLogFields(parent, logger.LogFields{Component: "x"})
		cancel()
		Expect(ctx.Err()).To(MatchError(context.Canceled))
	})
})

var _ = Describe("TraceHandler", func() {
	It("stamps context fields onto records", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			SubmissionID: logger.Ptr(int64(7)),
			Identifier:   logger.Ptr("10.0.0.1"),
			Component:    "verdict.guard",
		})
		log.InfoContext(ctx, "admitted")

		var rec map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &rec)).To(Succeed())
		Expect(rec["submission_id"]).To(BeNumerically("==", 7))
		Expect(rec["identifier"]).To(Equal("10.0.0.1"))
		Expect(rec["component"]).To(Equal("verdict.guard"))
		Expect(rec).NotTo(HaveKey("trace_id"))
	})
})

var _ = DescribeTable("Level",
	func(env, override string, want slog.Level) {
		Expect(logger.Level(config.Config{Env: env, LogLevel: override})).To(Equal(want))
	},
	Entry("development defaults to debug", "development", "", slog.LevelDebug),
	Entry("production defaults to info", "production", "", slog.LevelInfo),
	Entry("override wins", "development", "warn", slog.LevelWarn),
	Entry("override is case-insensitive", "production", "Error", slog.LevelError),
	Entry("unknown override ignored", "production", "loud", slog.LevelInfo),
)

var _ = Describe("NewHandler", func() {
	It("writes JSON in production without an exporter", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewHandler(config.Config{Env: "production"}, &buf))
		log.Debug("hidden")
		log.Info("shown", "k", "v")

		var rec map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &rec)).To(Succeed())
		Expect(rec["msg"]).To(Equal("shown"))
		Expect(rec["k"]).To(Equal("v"))
	})

	It("writes text with debug records in development", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewHandler(config.Config{Env: "development"}, &buf))
		log.Debug("probe")
		Expect(buf.String()).To(ContainSubstring("level=DEBUG"))
		Expect(buf.String()).To(ContainSubstring("msg=probe"))
	})
})

var _ = DescribeTable("Truncate",
	func(in string, max int, want string) {
		Expect(logger.Truncate(in, max)).To(Equal(want))
	},
	Entry("short string unchanged", "abc", 5, "abc"),
	Entry("exact length unchanged", "abcde", 5, "abcde"),
	Entry("long string cut", "abcdefgh", 3, "abc..."),
	Entry("multibyte runes kept whole", "ééééé", 2, "éé..."),
)
