package queue

import "time"

type TaskType string

const (
	TaskTypeEvaluateIdea TaskType = "evaluate_idea"
)

// Task is an accepted idea waiting for a worker. The idea already passed
// rate limiting and validation when it was enqueued.
type Task struct {
	TaskType     TaskType
	SubmissionID int64
	Idea         string
	Identifier   string
	SubmittedAt  time.Time
	TraceID      *string
	Attempt      int
}

func (t Task) message() Message {
	msg := Message{
		TaskType:     t.TaskType,
		SubmissionID: t.SubmissionID,
		Idea:         t.Idea,
		Identifier:   t.Identifier,
		SubmittedAt:  t.SubmittedAt,
	}
	if msg.TaskType == "" {
		msg.TaskType = TaskTypeEvaluateIdea
	}
	if t.TraceID != nil {
		msg.TraceID = *t.TraceID
	}
	return msg
}

func (t Task) attempt() int {
	if t.Attempt <= 0 {
		return 1
	}
	return t.Attempt
}
