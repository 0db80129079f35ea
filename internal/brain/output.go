package brain

import (
	"verdict.app/engine/common/llm"
	"verdict.app/engine/internal/model"
)

// reportOutput is the structured answer of one analysis call.
type reportOutput interface {
	toReport() *model.AnalysisReport
}

type MarketOutput struct {
	Summary            string   `json:"summary" jsonschema_description:"Executive summary of the market landscape"`
	KeyFindings        []string `json:"key_findings" jsonschema_description:"Most important market insights"`
	Competitors        []string `json:"competitors" jsonschema_description:"Direct and indirect competitors"`
	MarketSizeEstimate string   `json:"market_size_estimate" jsonschema_description:"Estimated market size with its basis, e.g. $5B TAM"`
	Score              int      `json:"score" jsonschema:"minimum=1,maximum=10" jsonschema_description:"Market opportunity, 10 is best"`
}

func (o *MarketOutput) toReport() *model.AnalysisReport {
	return &model.AnalysisReport{
		Kind:     model.ReportKindMarket,
		Summary:  o.Summary,
		Findings: o.KeyFindings,
		Score:    o.Score,
		Market: &model.MarketDetails{
			Competitors:        o.Competitors,
			MarketSizeEstimate: o.MarketSizeEstimate,
		},
	}
}

type TechOutput struct {
	Summary       string   `json:"summary" jsonschema_description:"Technical feasibility summary"`
	RequiredStack []string `json:"required_stack" jsonschema_description:"Languages, infrastructure and services required"`
	Challenges    []string `json:"challenges" jsonschema_description:"Main engineering challenges"`
	Feasibility   string   `json:"feasibility" jsonschema:"enum=HIGH,enum=MEDIUM,enum=LOW"`
	Score         int      `json:"score" jsonschema:"minimum=1,maximum=10" jsonschema_description:"Ease of building it, 10 is easiest"`
}

func (o *TechOutput) toReport() *model.AnalysisReport {
	return &model.AnalysisReport{
		Kind:     model.ReportKindTech,
		Summary:  o.Summary,
		Findings: o.Challenges,
		Score:    o.Score,
		Tech: &model.TechDetails{
			RequiredStack: o.RequiredStack,
			Challenges:    o.Challenges,
			Feasibility:   model.Feasibility(o.Feasibility),
		},
	}
}

type RiskOutput struct {
	Summary              string   `json:"summary" jsonschema_description:"Risk assessment summary"`
	LegalConcerns        []string `json:"legal_concerns" jsonschema_description:"Legal and regulatory concerns"`
	EthicalRisks         []string `json:"ethical_risks" jsonschema_description:"Ethical risks and potential user harm"`
	MitigationStrategies []string `json:"mitigation_strategies" jsonschema_description:"Mitigations for the major concerns"`
	Score                int      `json:"score" jsonschema:"minimum=1,maximum=10" jsonschema_description:"Overall risk, 10 is the HIGHEST risk"`
}

func (o *RiskOutput) toReport() *model.AnalysisReport {
	findings := make([]string, 0, len(o.LegalConcerns)+len(o.EthicalRisks))
	findings = append(findings, o.LegalConcerns...)
	findings = append(findings, o.EthicalRisks...)

	return &model.AnalysisReport{
		Kind:     model.ReportKindRisk,
		Summary:  o.Summary,
		Findings: findings,
		Score:    o.Score,
		Risk: &model.RiskDetails{
			LegalConcerns:        o.LegalConcerns,
			EthicalRisks:         o.EthicalRisks,
			MitigationStrategies: o.MitigationStrategies,
		},
	}
}

type FeedbackOutput struct {
	Summary         string   `json:"summary" jsonschema_description:"Expected user reception"`
	PainPoints      []string `json:"pain_points" jsonschema_description:"Pain points users report with alternatives"`
	PositiveSignals []string `json:"positive_signals" jsonschema_description:"Signals of demand or delight"`
	Sentiment       string   `json:"sentiment" jsonschema:"enum=POSITIVE,enum=NEGATIVE,enum=MIXED"`
	Score           int      `json:"score" jsonschema:"minimum=1,maximum=10" jsonschema_description:"User demand, 10 is strongest"`
}

func (o *FeedbackOutput) toReport() *model.AnalysisReport {
	return &model.AnalysisReport{
		Kind:     model.ReportKindFeedback,
		Summary:  o.Summary,
		Findings: o.PainPoints,
		Score:    o.Score,
		Feedback: &model.FeedbackDetails{
			PainPoints:      o.PainPoints,
			PositiveSignals: o.PositiveSignals,
			Sentiment:       model.Sentiment(o.Sentiment),
		},
	}
}

type DecisionOutput struct {
	Decision         string   `json:"decision" jsonschema:"enum=GO,enum=NO-GO,enum=PIVOT"`
	Reasoning        string   `json:"reasoning" jsonschema_description:"Reasoning that cites the policy check and the reports"`
	ConfidenceScore  float64  `json:"confidence_score" jsonschema:"minimum=0,maximum=1"`
	ActionItems      []string `json:"action_items" jsonschema_description:"Concrete next steps"`
	PolicyViolations []string `json:"policy_violations" jsonschema_description:"Every company policy rule the idea violates, empty if none"`
}

var (
	marketSchema   = llm.GenerateSchema[MarketOutput]()
	techSchema     = llm.GenerateSchema[TechOutput]()
	riskSchema     = llm.GenerateSchema[RiskOutput]()
	feedbackSchema = llm.GenerateSchema[FeedbackOutput]()
	decisionSchema = llm.GenerateSchema[DecisionOutput]()
)
