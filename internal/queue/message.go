package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one submission as carried on the stream. Every field is a flat
// string on the wire; timestamps travel as unix milliseconds.
type Message struct {
	ID           string
	TaskType     TaskType
	SubmissionID int64
	Idea         string
	Identifier   string
	SubmittedAt  time.Time
	Attempt      int
	TraceID      string
	LastError    string
	// Evaluation is the JSON of a finished run that could not be stored.
	// Only dead-lettered entries carry it.
	Evaluation string
	Raw        redis.XMessage
}

// MessageProcessor handles one delivered message. The worker's Handle is
// the only production implementation; the reclaimer feeds it stale entries.
type MessageProcessor func(ctx context.Context, msg Message) error

// ParseMessage decodes a stream entry. Missing task_type and attempt default
// to evaluate_idea and 1 for entries written by older producers.
func ParseMessage(msg redis.XMessage) (Message, error) {
	taskType := TaskType(optionalString(msg.Values, "task_type"))
	if taskType == "" {
		taskType = TaskTypeEvaluateIdea
	}
	if taskType != TaskTypeEvaluateIdea {
		return Message{}, fmt.Errorf("unknown task_type %q", taskType)
	}

	submissionID, err := parseInt64(msg.Values, "submission_id")
	if err != nil {
		return Message{}, err
	}

	idea := optionalString(msg.Values, "idea")
	if idea == "" {
		return Message{}, fmt.Errorf("missing idea")
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	var submittedAt time.Time
	if ms, err := parseOptionalInt64(msg.Values, "submitted_at"); err != nil {
		return Message{}, err
	} else if ms != nil {
		submittedAt = time.UnixMilli(*ms).UTC()
	}

	return Message{
		ID:           msg.ID,
		TaskType:     taskType,
		SubmissionID: submissionID,
		Idea:         idea,
		Identifier:   optionalString(msg.Values, "identifier"),
		SubmittedAt:  submittedAt,
		Attempt:      attempt,
		TraceID:      optionalString(msg.Values, "trace_id"),
		LastError:    optionalString(msg.Values, "last_error"),
		Evaluation:   optionalString(msg.Values, "evaluation"),
		Raw:          msg,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt64(values map[string]any, key string) (*int64, error) {
	if _, ok := values[key]; !ok {
		return nil, nil
	}
	num, err := parseInt64(values, key)
	if err != nil {
		return nil, err
	}
	return &num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func optionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func messageValues(msg Message, attempt int) map[string]any {
	taskType := msg.TaskType
	if taskType == "" {
		taskType = TaskTypeEvaluateIdea
	}

	values := map[string]any{
		"task_type":     string(taskType),
		"submission_id": msg.SubmissionID,
		"idea":          msg.Idea,
		"attempt":       attempt,
	}

	if msg.Identifier != "" {
		values["identifier"] = msg.Identifier
	}
	if !msg.SubmittedAt.IsZero() {
		values["submitted_at"] = msg.SubmittedAt.UnixMilli()
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}
	if msg.Evaluation != "" {
		values["evaluation"] = msg.Evaluation
	}

	return values
}
