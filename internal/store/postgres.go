package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"verdict.app/engine/common/id"
	"verdict.app/engine/core/db"
	"verdict.app/engine/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id                BIGINT PRIMARY KEY,
	submission_id     BIGINT NOT NULL,
	idea_text         TEXT NOT NULL,
	decision          TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	verdict           JSONB NOT NULL,
	reports           JSONB NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	model             TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS evaluations_decision_idx ON evaluations (decision);

CREATE TABLE IF NOT EXISTS agent_executions (
	id            BIGINT PRIMARY KEY,
	evaluation_id BIGINT NOT NULL REFERENCES evaluations (id) ON DELETE CASCADE,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS agent_executions_evaluation_idx ON agent_executions (evaluation_id);
`

type postgresReportStore struct {
	db *db.DB
}

// NewPostgresReportStore creates the tables if needed.
func NewPostgresReportStore(ctx context.Context, database *db.DB) (ReportStore, error) {
	if _, err := database.Pool().Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrating evaluations schema: %w", err)
	}
	return &postgresReportStore{db: database}, nil
}

func (s *postgresReportStore) SaveReport(ctx context.Context, eval *model.Evaluation) (int64, error) {
	r, err := prepare(eval)
	if err != nil {
		return 0, err
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO evaluations (id, submission_id, idea_text, decision, confidence, verdict, reports, execution_time_ms, model, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, r.SubmissionID, r.IdeaText, r.Decision, r.Confidence, r.Verdict, r.Reports, r.ExecutionTimeMs, r.Model, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting evaluation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range eval.Executions {
			batch.Queue(`
				INSERT INTO agent_executions (id, evaluation_id, kind, status, duration_ms, error, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id.New(), r.ID, string(e.Kind), string(e.Status), e.Duration.Milliseconds(), e.Error, r.CreatedAt)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting agent executions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (s *postgresReportStore) GetByID(ctx context.Context, evalID int64) (*model.Evaluation, error) {
	var r row
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, submission_id, idea_text, decision, confidence, verdict, reports, execution_time_ms, model, created_at
		FROM evaluations WHERE id = $1`, evalID,
	).Scan(&r.ID, &r.SubmissionID, &r.IdeaText, &r.Decision, &r.Confidence, &r.Verdict, &r.Reports, &r.ExecutionTimeMs, &r.Model, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting evaluation %d: %w", evalID, err)
	}

	eval, err := r.toModel()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool().Query(ctx, `
		SELECT kind, status, duration_ms, error
		FROM agent_executions WHERE evaluation_id = $1 ORDER BY id`, evalID)
	if err != nil {
		return nil, fmt.Errorf("listing agent executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.AgentExecution
		var durationMs int64
		if err := rows.Scan(&e.Kind, &e.Status, &durationMs, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning agent execution: %w", err)
		}
		e.Duration = msToDuration(durationMs)
		eval.Executions = append(eval.Executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent executions: %w", err)
	}
	return eval, nil
}

func (s *postgresReportStore) List(ctx context.Context, limit, offset int32) ([]model.EvaluationSummary, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, idea_text, decision, confidence, execution_time_ms, created_at
		FROM evaluations ORDER BY id DESC LIMIT $1 OFFSET $2`, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	summaries := []model.EvaluationSummary{}
	for rows.Next() {
		var sr summaryRow
		if err := rows.Scan(&sr.id, &sr.idea, &sr.decision, &sr.confidence, &sr.execMs, &sr.createdAt); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		summaries = append(summaries, sr.toModel())
	}
	return summaries, rows.Err()
}

func (s *postgresReportStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *postgresReportStore) Close() error {
	s.db.Close()
	return nil
}
