package guard

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinLength = 10
	MaxLength = 5000
	MaxWords  = 1000
)

const (
	RuleEmpty      = "empty"
	RuleTooShort   = "too_short"
	RuleTooLong    = "too_long"
	RuleTooMany    = "too_many_words"
	RuleForbidden  = "forbidden_pattern"
	RuleSuspicious = "suspicious_content"
)

// Markup and script injection. An opening <script tag is enough on its own;
// the closed-element pattern alone would let an unterminated tag through.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
}

// Instruction-override phrases, matched case-insensitively as substrings.
var suspiciousPhrases = []string{
	"ignore previous instructions",
	"ignore above",
	"disregard",
	"system prompt",
	"new instructions",
	"forget everything",
	"admin mode",
	"developer mode",
}

// Validator screens idea text. It holds no state and is safe for concurrent use.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate applies the rules in order and returns the sanitized text of the
// first input that passes all of them. The first failing rule wins.
func (v *Validator) Validate(ctx context.Context, text string) (string, error) {
	if err := check(text); err != nil {
		slog.WarnContext(ctx, "idea rejected by validator",
			"rule", err.Rule,
			"length", utf8.RuneCountInString(text))
		return "", err
	}
	return Sanitize(text), nil
}

func check(text string) *ValidationError {
	if text == "" {
		return &ValidationError{Rule: RuleEmpty, Reason: "Input cannot be empty"}
	}

	n := utf8.RuneCountInString(text)
	if n < MinLength {
		return &ValidationError{Rule: RuleTooShort, Reason: "Input too short (minimum 10 characters)"}
	}
	if n > MaxLength {
		return &ValidationError{Rule: RuleTooLong, Reason: "Input too long (maximum 5000 characters)"}
	}

	if len(strings.Fields(text)) > MaxWords {
		return &ValidationError{Rule: RuleTooMany, Reason: "Too many words (maximum 1000 words)"}
	}

	for _, p := range forbiddenPatterns {
		if p.MatchString(text) {
			return &ValidationError{Rule: RuleForbidden, Reason: "Input contains forbidden patterns"}
		}
	}

	lower := strings.ToLower(text)
	for _, phrase := range suspiciousPhrases {
		if strings.Contains(lower, phrase) {
			return &ValidationError{Rule: RuleSuspicious, Reason: "Input contains suspicious content"}
		}
	}

	return nil
}

// Sanitize strips NUL bytes, collapses whitespace runs to single spaces and trims.
// It is idempotent.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.Join(strings.Fields(text), " ")
}
