package arbitrage

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
)

func simplePath() domain.ExecutionPath {
	return domain.ExecutionPath{
		Steps: []domain.ExecutionStep{
			{Kind: domain.StepKindWithdraw},
			{Kind: domain.StepKindBridge},
			{Kind: domain.StepKindDeposit},
		},
	}
}

func TestAnalyzeHighFeasibilityWithAmpleResourcesAndHealth(t *testing.T) {
	a := NewAnalyzer()
	opp := domain.ArbitrageOpportunity{
		SourcePrice:    money.FromFloat(1000),
		EstGasCost:     money.FromFloat(10),
		ExecutionTimeS: 30,
	}
	resources := Resources{AvailableCapitalUSD: 10_000, AvailableGasUSD: 100, AvailableLiquidityUSD: 10_000}
	health := []ChainHealth{
		{Chain: "ethereum", HealthScore: 100, Criticality: CriticalityCritical},
		{Chain: "polygon", HealthScore: 95, Criticality: CriticalityImportant},
	}

	analysis := a.Analyze(opp, simplePath(), resources, 10*time.Minute, health)
	assert.Equal(t, FeasibilityHigh, analysis.Level)
	assert.Equal(t, UrgencyFlexible, analysis.Urgency)
	assert.Empty(t, analysis.Bottlenecks)
}

func TestAnalyzeFlagsResourceBottleneckWhenCapitalIsTight(t *testing.T) {
	a := NewAnalyzer()
	opp := domain.ArbitrageOpportunity{
		SourcePrice:    money.FromFloat(10_000),
		EstGasCost:     money.FromFloat(10),
		ExecutionTimeS: 30,
	}
	resources := Resources{AvailableCapitalUSD: 2_000, AvailableGasUSD: 100, AvailableLiquidityUSD: 2_000} // well under required
	health := []ChainHealth{{Chain: "ethereum", HealthScore: 100, Criticality: CriticalityCritical}}

	analysis := a.Analyze(opp, simplePath(), resources, 10*time.Minute, health)
	assert.Less(t, analysis.Resource, 60.0)
	assert.NotEmpty(t, analysis.Bottlenecks)
	assert.Contains(t, analysis.Alternatives, "reduce position size to fit available capital/gas/liquidity")
}

func TestAnalyzeImmediateWhenWindowIsTight(t *testing.T) {
	a := NewAnalyzer()
	opp := domain.ArbitrageOpportunity{
		SourcePrice:    money.FromFloat(100),
		EstGasCost:     money.FromFloat(1),
		ExecutionTimeS: 60,
	}
	resources := Resources{AvailableCapitalUSD: 1000, AvailableGasUSD: 100, AvailableLiquidityUSD: 1000}
	health := []ChainHealth{{Chain: "ethereum", HealthScore: 100, Criticality: CriticalityCritical}}

	analysis := a.Analyze(opp, simplePath(), resources, 65*time.Second, health)
	assert.Equal(t, UrgencyImmediate, analysis.Urgency)
}

func TestAnalyzeWorstChainDominatesInfrastructure(t *testing.T) {
	a := NewAnalyzer()
	opp := domain.ArbitrageOpportunity{SourcePrice: money.FromFloat(100), EstGasCost: money.FromFloat(1), ExecutionTimeS: 30}
	resources := Resources{AvailableCapitalUSD: 1000, AvailableGasUSD: 100, AvailableLiquidityUSD: 1000}
	health := []ChainHealth{
		{Chain: "ethereum", HealthScore: 100, Criticality: CriticalityCritical},
		{Chain: "arbitrum", HealthScore: 20, Criticality: CriticalityCritical},
	}

	analysis := a.Analyze(opp, simplePath(), resources, 10*time.Minute, health)
	assert.Less(t, analysis.Infrastructure, 70.0)
	assert.NotEmpty(t, analysis.Bottlenecks)
}
