package liquidity

import (
	"testing"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRebalanceUnderConcentrationLimit reproduces spec §8 scenario S3.
func TestRebalanceUnderConcentrationLimit(t *testing.T) {
	positions := []Position{
		{Chain: "ethereum", Asset: "USDC", ValueUSD: money.FromFloat(700_000)},
		{Chain: "polygon", Asset: "USDC", ValueUSD: money.FromFloat(150_000)},
		{Chain: "arbitrum", Asset: "USDC", ValueUSD: money.FromFloat(150_000)},
	}
	target := map[domain.ChainID]float64{"ethereum": 0.40, "polygon": 0.30, "arbitrum": 0.30}

	o := New(Constraints{MaxChainConcentration: 0.60})
	plan := o.Optimize(positions, target)

	var movedOffEthereum money.Amount = money.Zero
	for _, m := range plan.Moves {
		if m.FromChain == "ethereum" {
			movedOffEthereum = movedOffEthereum.Add(m.AmountUSD)
		}
	}
	assert.True(t, movedOffEthereum.GreaterThanOrEqual(money.FromFloat(100_000)), "must move at least $100,000 off ethereum")

	for chain, frac := range plan.TargetDistribution {
		want := target[chain]
		assert.InDelta(t, want, frac, 0.1, "chain %s within 0.1 of target", chain)
	}
}

func TestOptimizeHandlesZeroTotalValueWithoutError(t *testing.T) {
	o := New(Constraints{})
	plan := o.Optimize(nil, map[domain.ChainID]float64{"ethereum": 1.0})
	assert.Empty(t, plan.Moves)
}

func TestClampToMaxChainConcentrationRenormalizes(t *testing.T) {
	o := New(Constraints{MaxChainConcentration: 0.5})
	target := map[domain.ChainID]float64{"ethereum": 0.8, "polygon": 0.2}

	plan := o.Optimize([]Position{{Chain: "ethereum", Asset: "USDC", ValueUSD: money.FromFloat(1000)}}, target)
	assert.LessOrEqual(t, plan.TargetDistribution["ethereum"], 0.5)

	var sum float64
	for _, f := range plan.TargetDistribution {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestAdaptReducesShockedChainAllocation(t *testing.T) {
	o := New(Constraints{})
	target := map[domain.ChainID]float64{"ethereum": 0.5, "polygon": 0.5}

	adjusted := o.Adapt(target, Shock{Kind: ShockBridgeCongestion, Chain: "ethereum", Severity: 0.5})
	assert.Less(t, adjusted["ethereum"], target["ethereum"])
	assert.Greater(t, adjusted["polygon"], target["polygon"])
}

func TestCrossBridgeOpportunitiesSurfacedOnLargeImbalance(t *testing.T) {
	positions := []Position{
		{Chain: "ethereum", Asset: "USDC", ValueUSD: money.FromFloat(900_000)},
		{Chain: "polygon", Asset: "USDC", ValueUSD: money.FromFloat(100_000)},
	}
	o := New(Constraints{})
	plan := o.Optimize(positions, map[domain.ChainID]float64{"ethereum": 0.5, "polygon": 0.5})
	require.NotEmpty(t, plan.CrossBridgeOpportunities)
}
