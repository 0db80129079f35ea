package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"verdict.app/engine/internal/guard"
	"verdict.app/engine/internal/http/dto"
	"verdict.app/engine/internal/service"
	"verdict.app/engine/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type EvaluationHandler struct {
	service service.EvaluationService
}

func NewEvaluationHandler(service service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: service}
}

// Evaluate runs the full pipeline and responds with the persisted record.
// A pipeline failure is still a 200 carrying an ERROR verdict.
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid evaluate request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eval, err := h.service.Evaluate(ctx, req.Idea, c.ClientIP())
	if err != nil {
		writeSubmissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEvaluationResponse(eval))
}

func (h *EvaluationHandler) EvaluateAsync(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid evaluate request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submissionID, err := h.service.Enqueue(ctx, req.Idea, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrQueueUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async evaluation is not enabled"})
			return
		}
		writeSubmissionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{
		SubmissionID: dto.FormatID(submissionID),
		Status:       "queued",
	})
}

func (h *EvaluationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit, err := queryInt32(c, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := queryInt32(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	items, err := h.service.History(ctx, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list evaluations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list evaluations"})
		return
	}

	c.JSON(http.StatusOK, dto.ListEvaluationsResponse{
		Evaluations: dto.ToSummaryResponses(items),
		Limit:       limit,
		Offset:      offset,
	})
}

func (h *EvaluationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	evalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evaluation id"})
		return
	}

	eval, err := h.service.Get(ctx, evalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get evaluation", "error", err, "evaluation_id", evalID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get evaluation"})
		return
	}

	c.JSON(http.StatusOK, dto.ToEvaluationResponse(eval))
}

func writeSubmissionError(c *gin.Context, err error) {
	var valErr *guard.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Reason, "rule": valErr.Rule})
		return
	}

	var rateErr *guard.RateLimitError
	if errors.As(err, &rateErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rateErr.Message})
		return
	}

	slog.ErrorContext(c.Request.Context(), "failed to submit idea", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit idea"})
}

func queryInt32(c *gin.Context, key string, fallback int32) (int32, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
