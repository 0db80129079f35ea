package guard

import "fmt"

// ValidationError rejects an idea before any run starts. Reason is safe to show to callers.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// RateLimitError rejects a caller that is over its admission quota.
type RateLimitError struct {
	Identifier string
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Identifier, e.Message)
}
