package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"verdict.app/engine/common/id"
	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/brain"
	"verdict.app/engine/internal/guard"
	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/queue"
	"verdict.app/engine/internal/store"
)

var ErrQueueUnavailable = errors.New("async evaluation queue not configured")

// EvaluationService is the surface the HTTP handlers and CLI drive.
type EvaluationService interface {
	Evaluate(ctx context.Context, ideaText, identifier string) (*model.Evaluation, error)
	Enqueue(ctx context.Context, ideaText, identifier string) (int64, error)
	History(ctx context.Context, limit, offset int32) ([]model.EvaluationSummary, error)
	Get(ctx context.Context, evalID int64) (*model.Evaluation, error)
}

var _ EvaluationService = (*Evaluator)(nil)

// Orchestrator runs an accepted idea to a sealed verdict.
type Orchestrator interface {
	Evaluate(ctx context.Context, idea model.Idea) *brain.RunState
}

type EvaluatorDeps struct {
	Limiter      *guard.RateLimiter
	Validator    *guard.Validator
	Orchestrator Orchestrator
	Reports      store.ReportStore
	Producer     queue.Producer // optional, enables Enqueue
	Model        string         // decision model name recorded with each evaluation
}

// Evaluator is the entry point for idea submissions.
type Evaluator struct {
	limiter   *guard.RateLimiter
	validator *guard.Validator
	orch      Orchestrator
	reports   store.ReportStore
	producer  queue.Producer
	model     string
	now       func() time.Time
}

func NewEvaluator(deps EvaluatorDeps) *Evaluator {
	if deps.Validator == nil {
		deps.Validator = guard.NewValidator()
	}
	return &Evaluator{
		limiter:   deps.Limiter,
		validator: deps.Validator,
		orch:      deps.Orchestrator,
		reports:   deps.Reports,
		producer:  deps.Producer,
		model:     deps.Model,
		now:       time.Now,
	}
}

// Submit evaluates an idea synchronously. The only errors are
// *guard.RateLimitError and *guard.ValidationError; pipeline failures come
// back as an ERROR verdict.
func (e *Evaluator) Submit(ctx context.Context, ideaText, identifier string) (model.Verdict, error) {
	eval, err := e.Evaluate(ctx, ideaText, identifier)
	if err != nil {
		return model.Verdict{}, err
	}
	return eval.Verdict, nil
}

// Evaluate is Submit returning the full persisted record.
func (e *Evaluator) Evaluate(ctx context.Context, ideaText, identifier string) (*model.Evaluation, error) {
	idea, err := e.Accept(ctx, ideaText, identifier)
	if err != nil {
		return nil, err
	}

	eval := e.Run(ctx, idea)
	if _, err := e.Save(ctx, eval); err != nil {
		slog.ErrorContext(ctx, "failed to persist evaluation", "error", err, "submission_id", idea.SubmissionID)
	}
	return eval, nil
}

// Enqueue accepts an idea and hands it to the worker. It returns the
// submission id the caller can correlate with history later.
func (e *Evaluator) Enqueue(ctx context.Context, ideaText, identifier string) (int64, error) {
	if e.producer == nil {
		return 0, ErrQueueUnavailable
	}

	idea, err := e.Accept(ctx, ideaText, identifier)
	if err != nil {
		return 0, err
	}

	task := queue.Task{
		TaskType:     queue.TaskTypeEvaluateIdea,
		SubmissionID: idea.SubmissionID,
		Idea:         idea.Sanitized,
		Identifier:   idea.Identifier,
		SubmittedAt:  idea.SubmittedAt,
	}

	sc := logger.StartSpan(ctx, "service.enqueue_evaluation")
	defer sc.End()
	ctx = sc.Context()
	if traceID := sc.TraceID(); traceID != "" {
		task.TraceID = logger.Ptr(traceID)
	}

	if err := e.producer.Enqueue(ctx, task); err != nil {
		return 0, fmt.Errorf("enqueueing submission %d: %w", idea.SubmissionID, err)
	}
	return idea.SubmissionID, nil
}

// Accept applies rate limiting then validation. Nothing downstream runs for a
// rejected submission.
func (e *Evaluator) Accept(ctx context.Context, ideaText, identifier string) (model.Idea, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Identifier: logger.Ptr(identifier),
		Component:  "verdict.service.evaluator",
	})

	if e.limiter != nil {
		if err := e.limiter.Allow(identifier); err != nil {
			slog.WarnContext(ctx, "submission rate limited")
			return model.Idea{}, err
		}
	}

	sanitized, err := e.validator.Validate(ctx, ideaText)
	if err != nil {
		return model.Idea{}, err
	}

	return model.Idea{
		SubmissionID: id.New(),
		Text:         ideaText,
		Sanitized:    sanitized,
		Identifier:   identifier,
		SubmittedAt:  e.now().UTC(),
	}, nil
}

// Run executes the pipeline for an accepted idea and builds the record to
// persist. It never fails: every outcome is a verdict.
func (e *Evaluator) Run(ctx context.Context, idea model.Idea) *model.Evaluation {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: logger.Ptr(idea.SubmissionID),
		Component:    "verdict.service.evaluator",
	})

	state := e.orch.Evaluate(ctx, idea)
	verdict, _ := state.Verdict()

	slog.InfoContext(ctx, "evaluation finished",
		"decision", verdict.Decision,
		"confidence", verdict.Confidence,
		"status", state.Status(),
		"duration_ms", state.Duration().Milliseconds())

	return &model.Evaluation{
		SubmissionID:  idea.SubmissionID,
		IdeaText:      idea.Sanitized,
		Decision:      verdict.Decision,
		Confidence:    verdict.Confidence,
		Verdict:       verdict,
		Reports:       state.Reports(),
		Executions:    state.Executions(),
		ExecutionTime: state.Duration(),
		Model:         e.model,
		CreatedAt:     e.now().UTC(),
	}
}

// Save persists an evaluation, ERROR verdicts included.
func (e *Evaluator) Save(ctx context.Context, eval *model.Evaluation) (int64, error) {
	if e.reports == nil {
		return 0, nil
	}
	evalID, err := e.reports.SaveReport(ctx, eval)
	if err != nil {
		return 0, fmt.Errorf("saving evaluation: %w", err)
	}
	slog.InfoContext(ctx, "evaluation saved", "evaluation_id", evalID, "decision", eval.Decision)
	return evalID, nil
}

func (e *Evaluator) History(ctx context.Context, limit, offset int32) ([]model.EvaluationSummary, error) {
	if e.reports == nil {
		return []model.EvaluationSummary{}, nil
	}
	return e.reports.List(ctx, limit, offset)
}

func (e *Evaluator) Get(ctx context.Context, evalID int64) (*model.Evaluation, error) {
	if e.reports == nil {
		return nil, store.ErrNotFound
	}
	return e.reports.GetByID(ctx, evalID)
}
