package model

import (
	"fmt"
	"strings"
)

type Decision string

const (
	DecisionGo    Decision = "GO"
	DecisionNoGo  Decision = "NO-GO"
	DecisionPivot Decision = "PIVOT"
	DecisionError Decision = "ERROR"
)

// ParseDecision accepts the three model-producible decisions in any case.
// ERROR is reserved for the pipeline itself.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DecisionGo, DecisionNoGo, DecisionPivot:
		return d, nil
	}
	return "", fmt.Errorf("invalid decision %q", s)
}

type Verdict struct {
	Decision         Decision `json:"decision"`
	Reasoning        string   `json:"reasoning"`
	Confidence       float64  `json:"confidence"`
	ActionItems      []string `json:"action_items"`
	PolicyViolations []string `json:"policy_violations"`
}

func (v Verdict) IsError() bool {
	return v.Decision == DecisionError
}
