package rebalancer

import (
	"context"
	"errors"
	"testing"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/liquidity"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridgeCandidate struct {
	id          domain.BridgeID
	costUSD     float64
	operational bool
	risk        domain.RiskLevel
}

func (f *fakeBridgeCandidate) ID() domain.BridgeID  { return f.id }
func (f *fakeBridgeCandidate) CostUSD(money.Amount) money.Amount { return money.FromFloat(f.costUSD) }
func (f *fakeBridgeCandidate) IsOperational() bool  { return f.operational }
func (f *fakeBridgeCandidate) RiskLevel() domain.RiskLevel { return f.risk }

func cheapOperationalBridge() []BridgeCandidate {
	return []BridgeCandidate{&fakeBridgeCandidate{id: "stargate", costUSD: 5, operational: true, risk: domain.RiskLow}}
}

func TestPlanProducesOneStageForIndependentMoves(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000) // high budget threshold so nothing splits
	moves := []liquidity.Move{
		{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(10_000)},
		{Asset: "USDC", FromChain: "arbitrum", ToChain: "optimism", AmountUSD: money.FromFloat(10_000)},
	}
	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Len(t, plan.Stages[0].Ops, 2)
}

func TestPlanOrdersChainedMovesAcrossStages(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{
		{Asset: "USDC", FromChain: "polygon", ToChain: "arbitrum", AmountUSD: money.FromFloat(10_000)}, // needs funds arriving on polygon first
		{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(10_000)},
	}
	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, domain.ChainID("ethereum"), plan.Stages[0].Ops[0].Move.FromChain)
	assert.Equal(t, domain.ChainID("polygon"), plan.Stages[1].Ops[0].Move.FromChain)
}

func TestPlanSplitsLargeMoveBySlippageBudget(t *testing.T) {
	p := New(logx.NewNop(), 0.01, 1_000) // tiny budget threshold forces splitting
	moves := []liquidity.Move{
		{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(100_000)},
	}
	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Greater(t, len(plan.Stages[0].Ops), 1, "a move far over the slippage budget should split into multiple chunks")
}

func TestPlanFailsWithNoEligibleBridge(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(1_000)}}

	downBridges := []BridgeCandidate{&fakeBridgeCandidate{id: "stargate", operational: false}}
	_, err := p.Plan(moves, downBridges)
	require.Error(t, err)
}

func TestPlanNeverSelectsCriticalRiskBridge(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(1_000)}}

	candidates := []BridgeCandidate{
		&fakeBridgeCandidate{id: "cheap-but-critical", costUSD: 1, operational: true, risk: domain.RiskCritical},
		&fakeBridgeCandidate{id: "safe", costUSD: 10, operational: true, risk: domain.RiskMedium},
	}
	plan, err := p.Plan(moves, candidates)
	require.NoError(t, err)
	assert.Equal(t, domain.BridgeID("safe"), plan.Stages[0].Ops[0].Bridge)
}

func TestRunAcceptsPartialSuccessAtThreshold(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{
		{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(1_000)},
		{Asset: "USDC", FromChain: "arbitrum", ToChain: "optimism", AmountUSD: money.FromFloat(1_000)},
	}
	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)

	call := 0
	results, err := p.Run(context.Background(), plan, func(ctx context.Context, op Op) error {
		call++
		if call == 1 {
			return nil
		}
		return errors.New("boom")
	})
	require.NoError(t, err) // 50% completion meets the default 0.5 threshold
	assert.Len(t, results, 2)
}

func TestRunFailsBelowPartialExecutionThreshold(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{
		{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(1_000)},
		{Asset: "USDC", FromChain: "arbitrum", ToChain: "optimism", AmountUSD: money.FromFloat(1_000)},
		{Asset: "USDC", FromChain: "bsc", ToChain: "avalanche", AmountUSD: money.FromFloat(1_000)},
	}
	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), plan, func(ctx context.Context, op Op) error {
		return errors.New("always fails")
	})
	require.Error(t, err)
}

func TestRollbackPlanReversesEachMove(t *testing.T) {
	p := New(logx.NewNop(), 0.02, 1_000_000)
	moves := []liquidity.Move{{Asset: "USDC", FromChain: "ethereum", ToChain: "polygon", AmountUSD: money.FromFloat(1_000)}}

	plan, err := p.Plan(moves, cheapOperationalBridge())
	require.NoError(t, err)
	require.Len(t, plan.RollbackPlan, 1)
	assert.Equal(t, domain.ChainID("polygon"), plan.RollbackPlan[0].Move.FromChain)
	assert.Equal(t, domain.ChainID("ethereum"), plan.RollbackPlan[0].Move.ToChain)
}
