package worker

import (
	"context"

	"verdict.app/engine/internal/model"
	"verdict.app/engine/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// IdeaEvaluator runs the pipeline for a queued idea and persists the result.
// Mirrors the subset of service.Evaluator the worker needs.
type IdeaEvaluator interface {
	Run(ctx context.Context, idea model.Idea) *model.Evaluation
	Save(ctx context.Context, eval *model.Evaluation) (int64, error)
}
