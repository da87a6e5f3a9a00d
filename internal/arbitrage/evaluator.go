package arbitrage

import (
	"fmt"

	"github.com/brdgsat/satellite/internal/domain"
)

// Recommendation is OpportunityEvaluator's action output (spec §4.9).
type Recommendation string

const (
	RecommendExecuteImmediately Recommendation = "execute_immediately"
	RecommendExecuteOptimized   Recommendation = "execute_optimized"
	RecommendDefer              Recommendation = "defer"
	RecommendCancel             Recommendation = "cancel"
)

// ComprehensiveEvaluation is the evaluator's output (spec §4.9). Reasoning
// is a deterministic trail of clauses built from the sub-scores
// (SPEC_FULL.md 4.9a), not free text.
type ComprehensiveEvaluation struct {
	FinalScore     float64
	Priority       domain.Priority
	Recommendation Recommendation
	Confidence     float64
	Reasoning      []string
}

// Evaluator is OpportunityEvaluator: a pure function of its three inputs
// (spec §4.9 "equal inputs produce equal outputs" — no internal state).
type Evaluator struct{}

// NewEvaluator constructs a stateless Evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate combines a ValidationResult, a FeasibilityAnalysis, and the
// opportunity's own profitability into one ComprehensiveEvaluation.
func (e *Evaluator) Evaluate(opp domain.ArbitrageOpportunity, validation ValidationResult, feasibility Analysis) ComprehensiveEvaluation {
	profitability := profitabilityScore(opp)

	if !validation.IsValid {
		return ComprehensiveEvaluation{
			FinalScore:     0,
			Priority:       domain.PriorityIgnore,
			Recommendation: RecommendCancel,
			Confidence:     0,
			Reasoning:      append([]string{"validation failed"}, validation.Reasons...),
		}
	}

	finalScore := 0.4*profitability + 0.35*feasibility.Overall + 0.25*(validation.Confidence*100)

	priority := priorityFor(finalScore, feasibility.Level)
	recommendation := recommendationFor(finalScore, feasibility, priority)
	confidence := blendConfidence(validation.Confidence, feasibility.Overall)

	reasoning := []string{
		fmt.Sprintf("profitability: %.1f (net margin %.2f%%)", profitability, opp.ProfitMargin*100),
		fmt.Sprintf("feasibility: %s (overall %.1f)", feasibility.Level, feasibility.Overall),
		fmt.Sprintf("validation: confidence %.2f, risk score %.1f", validation.Confidence, validation.RiskScore),
	}
	if len(feasibility.Bottlenecks) > 0 {
		top := feasibility.Bottlenecks[0]
		reasoning = append(reasoning, fmt.Sprintf("feasibility: %s (%s bottleneck on %s)", feasibility.Level, top.Component, top.Description))
	}
	reasoning = append(reasoning, fmt.Sprintf("priority: %s, recommendation: %s", priority, recommendation))

	return ComprehensiveEvaluation{
		FinalScore:     finalScore,
		Priority:       priority,
		Recommendation: recommendation,
		Confidence:     confidence,
		Reasoning:      reasoning,
	}
}

// profitabilityScore maps an opportunity's risk-adjusted net profit margin
// onto a [0,100] scale.
func profitabilityScore(opp domain.ArbitrageOpportunity) float64 {
	riskAdjusted := opp.ProfitMargin * (1 - opp.RiskScore/100)
	score := riskAdjusted * 1000 // a 10% risk-adjusted margin maps to 100
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func priorityFor(finalScore float64, level FeasibilityLevel) domain.Priority {
	if level == FeasibilityVeryLow {
		return domain.PriorityIgnore
	}
	switch {
	case finalScore >= 85:
		return domain.PriorityCritical
	case finalScore >= 70:
		return domain.PriorityHigh
	case finalScore >= 50:
		return domain.PriorityMedium
	case finalScore >= 25:
		return domain.PriorityLow
	default:
		return domain.PriorityIgnore
	}
}

func recommendationFor(finalScore float64, feasibility Analysis, priority domain.Priority) Recommendation {
	if priority == domain.PriorityIgnore {
		return RecommendCancel
	}
	if finalScore >= 80 && feasibility.Urgency == UrgencyImmediate {
		return RecommendExecuteImmediately
	}
	if finalScore >= 60 {
		return RecommendExecuteOptimized
	}
	return RecommendDefer
}

func blendConfidence(validationConfidence, feasibilityOverall float64) float64 {
	c := validationConfidence*0.6 + (feasibilityOverall/100)*0.4
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
