package logger_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"verdict.app/engine/common/logger"
)

var _ = Describe("Spans", func() {
	var (
		recorder *tracetest.SpanRecorder
		previous trace.TracerProvider
	)

	BeforeEach(func() {
		previous = otel.GetTracerProvider()
		recorder = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	})

	AfterEach(func() {
		otel.SetTracerProvider(previous)
	})

	It("copies log fields onto the span", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			SubmissionID: logger.Ptr(int64(99)),
			ReportKind:   logger.Ptr("RISK"),
		})

		sc := logger.StartSpan(ctx, "brain.analysis_task")
		Expect(sc.TraceID()).NotTo(BeEmpty())
		sc.End()

		spans := recorder.Ended()
		Expect(spans).To(HaveLen(1))
		Expect(spans[0].Name()).To(Equal("brain.analysis_task"))
		Expect(spans[0].Attributes()).To(ContainElements(
			attribute.Int64("submission_id", 99),
			attribute.String("report_kind", "RISK"),
		))
	})

	It("continues a propagated trace id", func() {
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

		sc := logger.StartSpanFromTraceID(context.Background(), traceID, "worker.evaluate_idea")
		sc.End()

		Expect(sc.TraceID()).To(Equal(traceID))
		Expect(recorder.Ended()[0].Parent().IsRemote()).To(BeTrue())
	})

	It("starts a fresh trace for a malformed id", func() {
		sc := logger.StartSpanFromTraceID(context.Background(), "not-hex", "worker.evaluate_idea")
		sc.End()

		Expect(sc.TraceID()).NotTo(BeEmpty())
		Expect(sc.TraceID()).NotTo(Equal("not-hex"))
		Expect(recorder.Ended()[0].Parent().IsValid()).To(BeFalse())
	})

	It("records errors without panicking on a nil error", func() {
		sc := logger.StartSpan(context.Background(), "brain.synthesis")
		sc.RecordError(nil)
		sc.End()
		sc.End()

		Expect(recorder.Ended()).To(HaveLen(1))
	})
})
