package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"verdict.app/engine/common/id"
	"verdict.app/engine/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id                INTEGER PRIMARY KEY,
	submission_id     INTEGER NOT NULL,
	idea_text         TEXT NOT NULL,
	decision          TEXT NOT NULL,
	confidence        REAL NOT NULL,
	verdict           TEXT NOT NULL,
	reports           TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL,
	model             TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_executions (
	id            INTEGER PRIMARY KEY,
	evaluation_id INTEGER NOT NULL REFERENCES evaluations (id) ON DELETE CASCADE,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_executions_evaluation_idx ON agent_executions (evaluation_id);
`

// sqliteTime keeps fixed-width timestamps so they sort and parse predictably.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteReportStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a file-backed report store.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (ReportStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer; in-memory databases are per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating evaluations schema: %w", err)
	}
	return &sqliteReportStore{db: conn}, nil
}

func (s *sqliteReportStore) SaveReport(ctx context.Context, eval *model.Evaluation) (int64, error) {
	r, err := prepare(eval)
	if err != nil {
		return 0, err
	}
	createdAt := r.CreatedAt.UTC().Format(sqliteTime)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO evaluations (id, submission_id, idea_text, decision, confidence, verdict, reports, execution_time_ms, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubmissionID, r.IdeaText, r.Decision, r.Confidence, string(r.Verdict), string(r.Reports), r.ExecutionTimeMs, r.Model, createdAt,
	); err != nil {
		return 0, fmt.Errorf("inserting evaluation: %w", err)
	}

	for _, e := range eval.Executions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_executions (id, evaluation_id, kind, status, duration_ms, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id.New(), r.ID, string(e.Kind), string(e.Status), e.Duration.Milliseconds(), e.Error, createdAt,
		); err != nil {
			return 0, fmt.Errorf("inserting agent execution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return r.ID, nil
}

func (s *sqliteReportStore) GetByID(ctx context.Context, evalID int64) (*model.Evaluation, error) {
	var r row
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, submission_id, idea_text, decision, confidence, verdict, reports, execution_time_ms, model, created_at
		FROM evaluations WHERE id = ?`, evalID,
	).Scan(&r.ID, &r.SubmissionID, &r.IdeaText, &r.Decision, &r.Confidence, &r.Verdict, &r.Reports, &r.ExecutionTimeMs, &r.Model, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting evaluation %d: %w", evalID, err)
	}
	if r.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of evaluation %d: %w", evalID, err)
	}

	eval, err := r.toModel()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, status, duration_ms, error
		FROM agent_executions WHERE evaluation_id = ? ORDER BY id`, evalID)
	if err != nil {
		return nil, fmt.Errorf("listing agent executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, status string
		var durationMs int64
		var errMsg sql.NullString
		if err := rows.Scan(&kind, &status, &durationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning agent execution: %w", err)
		}
		e := model.AgentExecution{
			Kind:     model.ReportKind(kind),
			Status:   model.ExecutionStatus(status),
			Duration: msToDuration(durationMs),
		}
		if errMsg.Valid {
			e.Error = &errMsg.String
		}
		eval.Executions = append(eval.Executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent executions: %w", err)
	}
	return eval, nil
}

func (s *sqliteReportStore) List(ctx context.Context, limit, offset int32) ([]model.EvaluationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_text, decision, confidence, execution_time_ms, created_at
		FROM evaluations ORDER BY id DESC LIMIT ? OFFSET ?`, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	summaries := []model.EvaluationSummary{}
	for rows.Next() {
		var sr summaryRow
		var createdAt string
		if err := rows.Scan(&sr.id, &sr.idea, &sr.decision, &sr.confidence, &sr.execMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		if sr.createdAt, err = time.Parse(sqliteTime, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		summaries = append(summaries, sr.toModel())
	}
	return summaries, rows.Err()
}

func (s *sqliteReportStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteReportStore) Close() error {
	return s.db.Close()
}
