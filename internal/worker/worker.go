package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/queue"
	"verdict.app/engine/internal/resilience"
)

type Config struct {
	MaxAttempts int
	// SavePolicy retries persistence. Once it is exhausted the finished
	// evaluation is parked on the DLQ; the pipeline never reruns for storage.
	SavePolicy resilience.Policy
	// ErrorBackoff is the pause after a failed read from the stream.
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer  Consumer
	evaluator IdeaEvaluator
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, evaluator IdeaEvaluator, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		evaluator: evaluator,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "verdict.worker",
	})

	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-w.stopCh:
					return nil
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.Handle(ctx, msg)
	}

	return nil
}

// Handle processes msg and routes a failure to requeue or the DLQ. The
// reclaimer uses it for stale messages so both paths share retry accounting.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: logger.Ptr(msg.SubmissionID),
		MessageID:    logger.Ptr(msg.ID),
	})

	if err := w.processMessageSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
		return err
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage evaluates the queued idea, persists the record and acks.
// The pipeline itself never fails, and a storage failure is logged and the
// verdict parked rather than returned: only a panic sends the message back.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	if msg.Identifier != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			Identifier: logger.Ptr(msg.Identifier),
		})
	}

	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.evaluate_idea")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.Int64("submission_id", msg.SubmissionID),
		attribute.Int("attempt", msg.Attempt),
	)

	slog.InfoContext(ctx, "processing message",
		"attempt", msg.Attempt,
		"idea_preview", logger.Truncate(msg.Idea, 80))

	eval := w.evaluator.Run(ctx, ideaFromMessage(msg))

	evalID, err := resilience.Retry(ctx, w.cfg.SavePolicy, "report_store", func(ctx context.Context) (int64, error) {
		return w.evaluator.Save(ctx, eval)
	})
	if err != nil {
		sc.RecordError(err)
		w.parkUnsaved(ctx, msg, eval, err)
		return nil
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer may pick it up again; a second row for the same submission is tolerated.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "submission evaluated",
		"evaluation_id", evalID,
		"decision", eval.Decision,
		"confidence", eval.Confidence)

	return nil
}

// parkUnsaved moves a message whose evaluation could not be stored to the
// DLQ with the evaluation attached, so the verdict can be replayed into the
// store without paying for another run. If even that fails the verdict is
// logged in full and the message acked.
func (w *Worker) parkUnsaved(ctx context.Context, msg queue.Message, eval *model.Evaluation, saveErr error) {
	payload, err := json.Marshal(eval)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode unsaved evaluation", "error", err)
	}

	slog.ErrorContext(ctx, "evaluation not persisted, parking verdict on DLQ",
		"error", saveErr,
		"decision", eval.Decision,
		"confidence", eval.Confidence)

	parked := msg
	parked.Evaluation = string(payload)
	reason := fmt.Sprintf("persisting evaluation: %v", saveErr)
	if dlqErr := w.consumer.SendDLQ(ctx, parked, reason); dlqErr != nil {
		slog.ErrorContext(ctx, "failed to park unsaved evaluation",
			"error", dlqErr,
			"evaluation", string(payload))
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
		}
	}
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

func ideaFromMessage(msg queue.Message) model.Idea {
	submittedAt := msg.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	return model.Idea{
		SubmissionID: msg.SubmissionID,
		Text:         msg.Idea,
		Sanitized:    msg.Idea,
		Identifier:   msg.Identifier,
		SubmittedAt:  submittedAt,
	}
}
