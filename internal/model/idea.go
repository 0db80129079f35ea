package model

import "time"

// Idea is a submission that passed rate limiting and validation.
type Idea struct {
	SubmissionID int64     `json:"submission_id"`
	Text         string    `json:"text"`
	Sanitized    string    `json:"sanitized"`
	Identifier   string    `json:"identifier"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
