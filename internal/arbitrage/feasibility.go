package arbitrage

import (
	"sort"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
)

// FeasibilityLevel is the four-bucket classification from spec §4.8.
type FeasibilityLevel string

const (
	FeasibilityHigh    FeasibilityLevel = "high"
	FeasibilityMedium  FeasibilityLevel = "medium"
	FeasibilityLow     FeasibilityLevel = "low"
	FeasibilityVeryLow FeasibilityLevel = "very_low"
)

// Urgency classifies the remaining execution window (spec §4.8 Timing).
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyModerate  Urgency = "moderate"
	UrgencyFlexible  Urgency = "flexible"
)

// DependencyCriticality weights the Infrastructure component (spec §4.8).
type DependencyCriticality int

const (
	CriticalityOptional  DependencyCriticality = 1
	CriticalityImportant DependencyCriticality = 2
	CriticalityCritical  DependencyCriticality = 3
)

// Bottleneck is one feasibility concern, ranked by severity.
type Bottleneck struct {
	Component   string
	Description string
	Severity    float64 // higher is worse
}

// Resources is the capital/gas/liquidity available for an opportunity,
// compared against what the chosen path requires (spec §4.8 Resource).
type Resources struct {
	AvailableCapitalUSD   float64
	AvailableGasUSD       float64
	AvailableLiquidityUSD float64
}

// ChainHealth is the per-chain health input to the Infrastructure
// component, keyed by chain with an associated criticality.
type ChainHealth struct {
	Chain        domain.ChainID
	HealthScore  float64 // [0,100]
	Criticality  DependencyCriticality
}

// Analysis is the FeasibilityAnalyzer's output (spec §4.8).
type Analysis struct {
	Technical      float64
	Resource       float64
	Timing         float64
	Infrastructure float64
	Overall        float64
	Level          FeasibilityLevel
	Urgency        Urgency
	Bottlenecks    []Bottleneck
	Alternatives   []string
}

// knownStepRisks is the per-step-kind risk penalty table (spec §4.8
// Technical: "per-step known risks").
var knownStepRisks = map[domain.StepKind]float64{
	domain.StepKindSwap:        3,
	domain.StepKindBridge:      8, // bridge_delay
	domain.StepKindDeposit:     2,
	domain.StepKindWithdraw:    2,
	domain.StepKindFlashBorrow: 6,
	domain.StepKindFlashRepay:  6,
}

// Analyzer is FeasibilityAnalyzer.
type Analyzer struct{}

// NewAnalyzer constructs a stateless Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze scores an opportunity's chosen path along the four components
// and combines them per spec §4.8: 0.3*technical + 0.25*resource +
// 0.25*timing + 0.2*infrastructure.
func (a *Analyzer) Analyze(opp domain.ArbitrageOpportunity, path domain.ExecutionPath, resources Resources, remainingWindow time.Duration, chainHealth []ChainHealth) Analysis {
	technical, techBottlenecks := a.technical(path)
	resource, resBottlenecks := a.resource(opp, resources)
	timing, urgency, timeBottlenecks := a.timing(opp, remainingWindow)
	infra, infraBottlenecks := a.infrastructure(chainHealth)

	overall := 0.3*technical + 0.25*resource + 0.25*timing + 0.2*infra

	bottlenecks := append(append(append(techBottlenecks, resBottlenecks...), timeBottlenecks...), infraBottlenecks...)
	sort.Slice(bottlenecks, func(i, j int) bool { return bottlenecks[i].Severity > bottlenecks[j].Severity })

	return Analysis{
		Technical:      technical,
		Resource:       resource,
		Timing:         timing,
		Infrastructure: infra,
		Overall:        overall,
		Level:          levelForFeasibility(overall),
		Urgency:        urgency,
		Bottlenecks:    bottlenecks,
		Alternatives:   alternativesFor(bottlenecks),
	}
}

func levelForFeasibility(overall float64) FeasibilityLevel {
	switch {
	case overall >= 80:
		return FeasibilityHigh
	case overall >= 60:
		return FeasibilityMedium
	case overall >= 40:
		return FeasibilityLow
	default:
		return FeasibilityVeryLow
	}
}

func (a *Analyzer) technical(path domain.ExecutionPath) (float64, []Bottleneck) {
	score := 100.0
	var worstStep domain.ExecutionStep
	var worstRisk float64

	hopPenalty := float64(len(path.Steps)-1) * 5
	score -= hopPenalty

	for _, step := range path.Steps {
		if risk, ok := knownStepRisks[step.Kind]; ok {
			score -= risk
			if risk > worstRisk {
				worstRisk, worstStep = risk, step
			}
		}
	}
	if score < 0 {
		score = 0
	}

	var bottlenecks []Bottleneck
	if len(path.Steps) > 3 {
		bottlenecks = append(bottlenecks, Bottleneck{Component: "technical", Description: "long execution path increases failure surface", Severity: hopPenalty})
	}
	if score < 70 {
		bottlenecks = append(bottlenecks, Bottleneck{Component: "technical", Description: string(worstStep.Kind) + " step carries elevated known risk", Severity: worstRisk})
	}
	return score, bottlenecks
}

func (a *Analyzer) resource(opp domain.ArbitrageOpportunity, r Resources) (float64, []Bottleneck) {
	requiredCapital, _ := opp.SourcePrice.Float64()
	requiredGas, _ := opp.EstGasCost.Float64()

	capitalScore := ratioScore(r.AvailableCapitalUSD, requiredCapital)
	gasScore := ratioScore(r.AvailableGasUSD, requiredGas)
	liquidityScore := ratioScore(r.AvailableLiquidityUSD, requiredCapital)

	score := (capitalScore + gasScore + liquidityScore) / 3

	var bottlenecks []Bottleneck
	if score < 60 {
		bottlenecks = append(bottlenecks, Bottleneck{Component: "resource", Description: "available capital/gas/liquidity is tight relative to requirements", Severity: 100 - score})
	}
	return score, bottlenecks
}

// ratioScore implements spec §4.8's Resource piecewise curve: ratio>=2 ->
// 100, ratio in [1,2) -> linear, ratio<1 -> severe penalty.
func ratioScore(available, required float64) float64 {
	if required <= 0 {
		return 100
	}
	ratio := available / required
	switch {
	case ratio >= 2:
		return 100
	case ratio >= 1:
		return 50 + 50*(ratio-1)
	default:
		return ratio * 40 // severe penalty below 1x
	}
}

func (a *Analyzer) timing(opp domain.ArbitrageOpportunity, remainingWindow time.Duration) (float64, Urgency, []Bottleneck) {
	expected := time.Duration(opp.ExecutionTimeS * float64(time.Second))
	if expected <= 0 {
		expected = time.Second
	}
	ratio := float64(remainingWindow) / float64(expected)

	var urgency Urgency
	var score float64
	var bottlenecks []Bottleneck
	switch {
	case ratio < 1.2:
		urgency, score = UrgencyImmediate, 30
		bottlenecks = append(bottlenecks, Bottleneck{Component: "timing", Description: "execution window barely exceeds expected execution time", Severity: 70})
	case ratio < 2:
		urgency, score = UrgencyUrgent, 60
	case ratio < 4:
		urgency, score = UrgencyModerate, 85
	default:
		urgency, score = UrgencyFlexible, 100
	}
	return score, urgency, bottlenecks
}

func (a *Analyzer) infrastructure(chainHealth []ChainHealth) (float64, []Bottleneck) {
	if len(chainHealth) == 0 {
		return 100, nil
	}
	var weightedSum, weightTotal float64
	worst := chainHealth[0]
	for _, ch := range chainHealth {
		w := float64(ch.Criticality)
		weightedSum += ch.HealthScore * w
		weightTotal += w
		if ch.HealthScore < worst.HealthScore {
			worst = ch
		}
	}
	score := weightedSum / weightTotal
	// worst-case network health dominates: blend the weighted average with
	// the single worst chain so one critical dependency can't be diluted
	// away by several healthy ones (spec §4.8 "worst-case network health").
	score = (score + worst.HealthScore) / 2

	var bottlenecks []Bottleneck
	if worst.HealthScore < 60 {
		bottlenecks = append(bottlenecks, Bottleneck{Component: "infrastructure", Description: string(worst.Chain) + " is the weakest dependency in this path", Severity: 100 - worst.HealthScore})
	}
	return score, bottlenecks
}

func alternativesFor(bottlenecks []Bottleneck) []string {
	var alts []string
	for _, b := range bottlenecks {
		switch b.Component {
		case "resource":
			alts = append(alts, "reduce position size to fit available capital/gas/liquidity")
		case "timing":
			alts = append(alts, "split execution into smaller, faster legs")
		case "infrastructure":
			alts = append(alts, "delay execution until the weakest chain recovers")
		case "technical":
			alts = append(alts, "select an alternate, shorter execution path")
		}
	}
	return dedupeStrings(alts)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
