package model

import "time"

type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// AgentExecution records how one analysis task ended within a run.
type AgentExecution struct {
	Kind     ReportKind      `json:"kind"`
	Status   ExecutionStatus `json:"status"`
	Duration time.Duration   `json:"duration"`
	Error    *string         `json:"error,omitempty"`
}

// Evaluation is the persisted record of one finished run, including ERROR verdicts.
type Evaluation struct {
	ID            int64                          `json:"id"`
	SubmissionID  int64                          `json:"submission_id"`
	IdeaText      string                         `json:"idea_text"`
	Decision      Decision                       `json:"decision"`
	Confidence    float64                        `json:"confidence"`
	Verdict       Verdict                        `json:"verdict"`
	Reports       map[ReportKind]*AnalysisReport `json:"reports"`
	Executions    []AgentExecution               `json:"executions"`
	ExecutionTime time.Duration                  `json:"execution_time"`
	Model         string                         `json:"model"`
	CreatedAt     time.Time                      `json:"created_at"`
}

// EvaluationSummary is the list view of an evaluation.
type EvaluationSummary struct {
	ID            int64         `json:"id"`
	IdeaText      string        `json:"idea_text"`
	Decision      Decision      `json:"decision"`
	Confidence    float64       `json:"confidence"`
	ExecutionTime time.Duration `json:"execution_time"`
	CreatedAt     time.Time     `json:"created_at"`
}
