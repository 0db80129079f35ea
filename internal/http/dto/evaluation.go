package dto

import (
	"strconv"
	"time"

	"verdict.app/engine/internal/model"
)

// EvaluateRequest is the submission body. The rate-limit key is the
// caller's address, never a field the caller controls.
type EvaluateRequest struct {
	Idea string `json:"idea"`
}

type VerdictResponse struct {
	Decision         model.Decision `json:"decision"`
	Reasoning        string         `json:"reasoning"`
	Confidence       float64        `json:"confidence"`
	ActionItems      []string       `json:"action_items"`
	PolicyViolations []string       `json:"policy_violations"`
}

type AgentExecutionResponse struct {
	Kind       model.ReportKind      `json:"kind"`
	Status     model.ExecutionStatus `json:"status"`
	DurationMs int64                 `json:"duration_ms"`
	Error      *string               `json:"error,omitempty"`
}

// EvaluationResponse carries ids as strings so JavaScript clients keep full snowflake precision.
type EvaluationResponse struct {
	ID              string                                     `json:"id"`
	SubmissionID    string                                     `json:"submission_id"`
	Idea            string                                     `json:"idea"`
	Verdict         VerdictResponse                            `json:"verdict"`
	Reports         map[model.ReportKind]*model.AnalysisReport `json:"reports"`
	Executions      []AgentExecutionResponse                   `json:"executions"`
	ExecutionTimeMs int64                                      `json:"execution_time_ms"`
	Model           string                                     `json:"model,omitempty"`
	CreatedAt       time.Time                                  `json:"created_at"`
}

type EvaluationSummaryResponse struct {
	ID              string         `json:"id"`
	Idea            string         `json:"idea"`
	Decision        model.Decision `json:"decision"`
	Confidence      float64        `json:"confidence"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

type ListEvaluationsResponse struct {
	Evaluations []EvaluationSummaryResponse `json:"evaluations"`
	Limit       int32                       `json:"limit"`
	Offset      int32                       `json:"offset"`
}

type EnqueueResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

func ToVerdictResponse(v model.Verdict) VerdictResponse {
	resp := VerdictResponse{
		Decision:         v.Decision,
		Reasoning:        v.Reasoning,
		Confidence:       v.Confidence,
		ActionItems:      v.ActionItems,
		PolicyViolations: v.PolicyViolations,
	}
	if resp.ActionItems == nil {
		resp.ActionItems = []string{}
	}
	if resp.PolicyViolations == nil {
		resp.PolicyViolations = []string{}
	}
	return resp
}

func ToEvaluationResponse(e *model.Evaluation) EvaluationResponse {
	execs := make([]AgentExecutionResponse, len(e.Executions))
	for i, x := range e.Executions {
		execs[i] = AgentExecutionResponse{
			Kind:       x.Kind,
			Status:     x.Status,
			DurationMs: x.Duration.Milliseconds(),
			Error:      x.Error,
		}
	}

	reports := e.Reports
	if reports == nil {
		reports = map[model.ReportKind]*model.AnalysisReport{}
	}

	return EvaluationResponse{
		ID:              FormatID(e.ID),
		SubmissionID:    FormatID(e.SubmissionID),
		Idea:            e.IdeaText,
		Verdict:         ToVerdictResponse(e.Verdict),
		Reports:         reports,
		Executions:      execs,
		ExecutionTimeMs: e.ExecutionTime.Milliseconds(),
		Model:           e.Model,
		CreatedAt:       e.CreatedAt,
	}
}

func ToSummaryResponses(items []model.EvaluationSummary) []EvaluationSummaryResponse {
	out := make([]EvaluationSummaryResponse, len(items))
	for i, s := range items {
		out[i] = EvaluationSummaryResponse{
			ID:              FormatID(s.ID),
			Idea:            s.IdeaText,
			Decision:        s.Decision,
			Confidence:      s.Confidence,
			ExecutionTimeMs: s.ExecutionTime.Milliseconds(),
			CreatedAt:       s.CreatedAt,
		}
	}
	return out
}

func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
