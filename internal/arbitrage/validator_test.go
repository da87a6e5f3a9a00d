package arbitrage

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
)

type fakeBridgeOperational struct {
	operational map[domain.BridgeID]bool
}

func (f *fakeBridgeOperational) IsOperational(bridge domain.BridgeID) bool {
	return f.operational[bridge]
}

func sampleOpportunity(expectedProfit float64) domain.ArbitrageOpportunity {
	return domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{
		ID:             "opp-1",
		Asset:          "USDC",
		SourceChain:    "ethereum",
		TargetChain:    "polygon",
		ExpectedProfit: money.FromFloat(expectedProfit),
		EstGasCost:     money.FromFloat(5),
		BridgeFee:      money.FromFloat(2),
		DetectedAt:     time.Now(),
		ExecutionPaths: []domain.ExecutionPath{{
			ID: "stargate:ethereum->polygon",
			Steps: []domain.ExecutionStep{
				{ID: "withdraw", Kind: domain.StepKindWithdraw, Chain: "ethereum"},
				{ID: "bridge", Kind: domain.StepKindBridge, Chain: "ethereum", Protocol: "stargate", Dependencies: []string{"withdraw"}},
				{ID: "deposit", Kind: domain.StepKindDeposit, Chain: "polygon", Dependencies: []string{"bridge"}},
			},
		}},
	})
}

func TestValidatePassesAllFiveChecks(t *testing.T) {
	v := NewValidator(&fakeBridgeOperational{operational: map[domain.BridgeID]bool{"stargate": true}},
		ProfileDefault, Thresholds{MaxSlippage: 0.02}, 30*time.Second, 100, 1000, 1.2)

	opp := sampleOpportunity(10)
	result := v.Validate(opp, 0.01, false)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Reasons)
}

func TestValidateRejectsExcessiveSlippage(t *testing.T) {
	v := NewValidator(&fakeBridgeOperational{operational: map[domain.BridgeID]bool{"stargate": true}},
		ProfileDefault, Thresholds{MaxSlippage: 0.02}, 30*time.Second, 100, 1000, 1.2)

	opp := sampleOpportunity(10)
	result := v.Validate(opp, 0.05, false)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Reasons[0], "slippage")
}

func TestValidateRequiresMEVProtectionAboveThreshold(t *testing.T) {
	v := NewValidator(&fakeBridgeOperational{operational: map[domain.BridgeID]bool{"stargate": true}},
		ProfileDefault, Thresholds{MaxSlippage: 0.02}, 30*time.Second, 5, 1000, 1.2)

	opp := sampleOpportunity(10) // profit above the 5 USD mev threshold, no protection step
	result := v.Validate(opp, 0.01, false)
	assert.False(t, result.IsValid)

	result = v.Validate(opp, 0.01, true) // explicit private submission flag satisfies the screen
	assert.True(t, result.IsValid)
}

func TestValidateFailsOnNonOperationalBridge(t *testing.T) {
	v := NewValidator(&fakeBridgeOperational{operational: map[domain.BridgeID]bool{"stargate": false}},
		ProfileDefault, Thresholds{MaxSlippage: 0.02}, 30*time.Second, 100, 1000, 1.2)

	opp := sampleOpportunity(10)
	result := v.Validate(opp, 0.01, false)
	assert.False(t, result.IsValid)
}

func TestValidateFailsOnGasHeadroom(t *testing.T) {
	v := NewValidator(&fakeBridgeOperational{operational: map[domain.BridgeID]bool{"stargate": true}},
		ProfileDefault, Thresholds{MaxSlippage: 0.02}, 30*time.Second, 100, 1 /* tiny gas budget */, 1.2)

	opp := sampleOpportunity(10)
	result := v.Validate(opp, 0.01, false)
	assert.False(t, result.IsValid)
}
