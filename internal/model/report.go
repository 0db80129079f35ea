package model

import "fmt"

type ReportKind string

const (
	ReportKindMarket   ReportKind = "MARKET"
	ReportKindTech     ReportKind = "TECH"
	ReportKindRisk     ReportKind = "RISK"
	ReportKindFeedback ReportKind = "FEEDBACK"
)

// AllReportKinds is the canonical order used for fan-out, prompts and error messages.
var AllReportKinds = []ReportKind{
	ReportKindMarket,
	ReportKindTech,
	ReportKindRisk,
	ReportKindFeedback,
}

func (k ReportKind) IsValid() bool {
	switch k {
	case ReportKindMarket, ReportKindTech, ReportKindRisk, ReportKindFeedback:
		return true
	}
	return false
}

// Title is the human label used in prompts ("Market", "Tech", ...).
func (k ReportKind) Title() string {
	switch k {
	case ReportKindMarket:
		return "Market"
	case ReportKindTech:
		return "Technical"
	case ReportKindRisk:
		return "Risk"
	case ReportKindFeedback:
		return "User feedback"
	}
	return string(k)
}

type Feasibility string

const (
	FeasibilityHigh   Feasibility = "HIGH"
	FeasibilityMedium Feasibility = "MEDIUM"
	FeasibilityLow    Feasibility = "LOW"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentMixed    Sentiment = "MIXED"
)

type MarketDetails struct {
	Competitors        []string `json:"competitors"`
	MarketSizeEstimate string   `json:"market_size_estimate"`
}

type TechDetails struct {
	RequiredStack []string    `json:"required_stack"`
	Challenges    []string    `json:"challenges"`
	Feasibility   Feasibility `json:"feasibility"`
}

// RiskDetails belongs to a report whose Score means risk: 10 is the highest risk.
type RiskDetails struct {
	LegalConcerns        []string `json:"legal_concerns"`
	EthicalRisks         []string `json:"ethical_risks"`
	MitigationStrategies []string `json:"mitigation_strategies"`
}

type FeedbackDetails struct {
	PainPoints      []string  `json:"pain_points"`
	PositiveSignals []string  `json:"positive_signals"`
	Sentiment       Sentiment `json:"sentiment"`
}

// AnalysisReport is one dimension's assessment. Exactly one detail pointer,
// matching Kind, is set.
type AnalysisReport struct {
	Kind     ReportKind       `json:"kind"`
	Summary  string           `json:"summary"`
	Findings []string         `json:"findings"`
	Score    int              `json:"score"`
	Market   *MarketDetails   `json:"market,omitempty"`
	Tech     *TechDetails     `json:"tech,omitempty"`
	Risk     *RiskDetails     `json:"risk,omitempty"`
	Feedback *FeedbackDetails `json:"feedback,omitempty"`
}

func (r *AnalysisReport) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("unknown report kind %q", r.Kind)
	}
	if r.Summary == "" {
		return fmt.Errorf("%s report: empty summary", r.Kind)
	}
	if r.Score < 1 || r.Score > 10 {
		return fmt.Errorf("%s report: score %d outside [1,10]", r.Kind, r.Score)
	}

	switch r.Kind {
	case ReportKindMarket:
		if r.Market == nil {
			return fmt.Errorf("MARKET report: missing market details")
		}
	case ReportKindTech:
		if r.Tech == nil {
			return fmt.Errorf("TECH report: missing tech details")
		}
		switch r.Tech.Feasibility {
		case FeasibilityHigh, FeasibilityMedium, FeasibilityLow:
		default:
			return fmt.Errorf("TECH report: invalid feasibility %q", r.Tech.Feasibility)
		}
	case ReportKindRisk:
		if r.Risk == nil {
			return fmt.Errorf("RISK report: missing risk details")
		}
	case ReportKindFeedback:
		if r.Feedback == nil {
			return fmt.Errorf("FEEDBACK report: missing feedback details")
		}
		switch r.Feedback.Sentiment {
		case SentimentPositive, SentimentNegative, SentimentMixed:
		default:
			return fmt.Errorf("FEEDBACK report: invalid sentiment %q", r.Feedback.Sentiment)
		}
	}
	return nil
}

// RetrievedChunk is a knowledge-base passage that survived the similarity threshold.
type RetrievedChunk struct {
	Content       string  `json:"content"`
	Source        string  `json:"source"`
	Similarity    float64 `json:"similarity"`
	CombinedScore float64 `json:"combined_score"`
}
