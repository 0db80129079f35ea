package store

import (
	"context"
	"errors"

	"verdict.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ReportStore persists finished evaluations, ERROR verdicts included.
type ReportStore interface {
	// SaveReport writes the evaluation and its agent executions atomically.
	// A zero ID is assigned from the snowflake generator.
	SaveReport(ctx context.Context, eval *model.Evaluation) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Evaluation, error)
	// List returns summaries newest first.
	List(ctx context.Context, limit, offset int32) ([]model.EvaluationSummary, error)
	Ping(ctx context.Context) error
	Close() error
}
