package arbitrage

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/pricefeed"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateIsPureForEqualInputs(t *testing.T) {
	e := NewEvaluator()
	opp := domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{
		ProfitMargin: 0.08,
		RiskScore:    10,
	})
	validation := ValidationResult{IsValid: true, Confidence: 0.9, RiskScore: 10}
	feasibility := Analysis{Overall: 85, Level: FeasibilityHigh, Urgency: UrgencyImmediate}

	first := e.Evaluate(opp, validation, feasibility)
	second := e.Evaluate(opp, validation, feasibility)
	assert.Equal(t, first, second)
}

func TestEvaluateInvalidValidationCancelsRegardlessOfFeasibility(t *testing.T) {
	e := NewEvaluator()
	opp := domain.ArbitrageOpportunity{ProfitMargin: 0.5}
	validation := ValidationResult{IsValid: false, Reasons: []string{"slippage exceeded"}}
	feasibility := Analysis{Overall: 95, Level: FeasibilityHigh}

	result := e.Evaluate(opp, validation, feasibility)
	assert.Equal(t, RecommendCancel, result.Recommendation)
	assert.Equal(t, domain.PriorityIgnore, result.Priority)
	assert.Equal(t, 0.0, result.FinalScore)
}

func TestEvaluateHighScoreImmediateUrgencyExecutesImmediately(t *testing.T) {
	e := NewEvaluator()
	opp := domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{ProfitMargin: 0.1, RiskScore: 5})
	validation := ValidationResult{IsValid: true, Confidence: 0.95, RiskScore: 5}
	feasibility := Analysis{Overall: 90, Level: FeasibilityHigh, Urgency: UrgencyImmediate}

	result := e.Evaluate(opp, validation, feasibility)
	require.NotEmpty(t, result.Reasoning)
	assert.Equal(t, RecommendExecuteImmediately, result.Recommendation)
	assert.Equal(t, domain.PriorityCritical, result.Priority)
}

func TestEvaluateVeryLowFeasibilityIsIgnored(t *testing.T) {
	e := NewEvaluator()
	opp := domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{ProfitMargin: 0.2, RiskScore: 5})
	validation := ValidationResult{IsValid: true, Confidence: 0.9}
	feasibility := Analysis{Overall: 30, Level: FeasibilityVeryLow, Urgency: UrgencyFlexible}

	result := e.Evaluate(opp, validation, feasibility)
	assert.Equal(t, domain.PriorityIgnore, result.Priority)
}

func TestScenarioS1EvaluatesToHighPriority(t *testing.T) {
	// Mirrors spec §8 scenario S1 end to end: the opportunity fed to the
	// evaluator is the real Detector output for the scenario's own prices
	// and liquidity, not a hand-fabricated figure.
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0000), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.9950), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, 30*time.Second)
	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	require.Len(t, opps, 1)
	opp := opps[0]
	require.True(t, opp.NetProfit.Sign() > 0, "S1 requires net_profit > 0, got %s", opp.NetProfit)

	e := NewEvaluator()
	validation := ValidationResult{IsValid: true, Confidence: 0.9, RiskScore: opp.RiskScore}
	feasibility := Analysis{Overall: 82, Level: FeasibilityHigh, Urgency: UrgencyUrgent}

	result := e.Evaluate(opp, validation, feasibility)
	assert.Contains(t, []domain.Priority{domain.PriorityHigh, domain.PriorityCritical}, result.Priority)
}
