package store

import (
	"encoding/json"
	"fmt"
	"time"

	"verdict.app/engine/common/id"
	"verdict.app/engine/internal/model"
)

// row is the column-level shape shared by both backends.
type row struct {
	ID              int64
	SubmissionID    int64
	IdeaText        string
	Decision        string
	Confidence      float64
	Verdict         []byte
	Reports         []byte
	ExecutionTimeMs int64
	Model           string
	CreatedAt       time.Time
}

func prepare(eval *model.Evaluation) (row, error) {
	if eval.ID == 0 {
		eval.ID = id.New()
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = time.Now().UTC()
	}

	verdict, err := json.Marshal(eval.Verdict)
	if err != nil {
		return row{}, fmt.Errorf("encoding verdict: %w", err)
	}
	reports := eval.Reports
	if reports == nil {
		reports = map[model.ReportKind]*model.AnalysisReport{}
	}
	rawReports, err := json.Marshal(reports)
	if err != nil {
		return row{}, fmt.Errorf("encoding reports: %w", err)
	}

	return row{
		ID:              eval.ID,
		SubmissionID:    eval.SubmissionID,
		IdeaText:        eval.IdeaText,
		Decision:        string(eval.Decision),
		Confidence:      eval.Confidence,
		Verdict:         verdict,
		Reports:         rawReports,
		ExecutionTimeMs: eval.ExecutionTime.Milliseconds(),
		Model:           eval.Model,
		CreatedAt:       eval.CreatedAt,
	}, nil
}

func (r row) toModel() (*model.Evaluation, error) {
	eval := &model.Evaluation{
		ID:            r.ID,
		SubmissionID:  r.SubmissionID,
		IdeaText:      r.IdeaText,
		Decision:      model.Decision(r.Decision),
		Confidence:    r.Confidence,
		ExecutionTime: msToDuration(r.ExecutionTimeMs),
		Model:         r.Model,
		CreatedAt:     r.CreatedAt,
	}
	if err := json.Unmarshal(r.Verdict, &eval.Verdict); err != nil {
		return nil, fmt.Errorf("decoding verdict of evaluation %d: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Reports, &eval.Reports); err != nil {
		return nil, fmt.Errorf("decoding reports of evaluation %d: %w", r.ID, err)
	}
	return eval, nil
}

type summaryRow struct {
	id         int64
	idea       string
	decision   string
	confidence float64
	execMs     int64
	createdAt  time.Time
}

func (r summaryRow) toModel() model.EvaluationSummary {
	return model.EvaluationSummary{
		ID:            r.id,
		IdeaText:      r.idea,
		Decision:      model.Decision(r.decision),
		Confidence:    r.confidence,
		ExecutionTime: msToDuration(r.execMs),
		CreatedAt:     r.createdAt,
	}
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func normalizeLimit(limit int32) int32 {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
