package arbitrage

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/pricefeed"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChainStates struct {
	states map[domain.ChainID]domain.ChainState
}

func (f *fakeChainStates) Get(chain domain.ChainID) (domain.ChainState, error) {
	st, ok := f.states[chain]
	if !ok {
		return domain.ChainState{}, errs.New(errs.ChainUnknown, string(chain))
	}
	return st, nil
}

type fakeBridge struct {
	id     domain.BridgeID
	chains map[domain.ChainID]bool
	assets map[domain.AssetID]bool
}

func (f *fakeBridge) ID() domain.BridgeID { return f.id }
func (f *fakeBridge) SupportsRoute(source, target domain.ChainID, asset domain.AssetID) bool {
	return f.chains[source] && f.chains[target] && f.assets[asset]
}
func (f *fakeBridge) FeeBase() float64     { return 10 }
func (f *fakeBridge) FeeVariable() float64 { return 0.001 }

// expensiveBridge is a fakeBridge whose FeeBase alone exceeds what a
// barely-above-threshold pct_diff can earn against a capped notional, used
// to exercise the detector's net-profit guard.
type expensiveBridge struct {
	fakeBridge
	fee float64
}

func (f *expensiveBridge) FeeBase() float64 { return f.fee }

func healthyChains() *fakeChainStates {
	return &fakeChainStates{states: map[domain.ChainID]domain.ChainState{
		"ethereum": {Chain: "ethereum", Status: domain.ChainHealthy},
		"polygon":  {Chain: "polygon", Status: domain.ChainHealthy},
	}}
}

func stargateBridge() []BridgeRoute {
	return []BridgeRoute{&fakeBridge{
		id:     "stargate",
		chains: map[domain.ChainID]bool{"ethereum": true, "polygon": true},
		assets: map[domain.AssetID]bool{"USDC": true},
	}}
}

// TestProfitableTwoChainArbitrage reproduces spec §8 scenario S1.
func TestProfitableTwoChainArbitrage(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0000), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.9950), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, 30*time.Second)

	start := time.Now()
	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	elapsed := time.Since(start)

	require.Len(t, opps, 1)
	assert.InDelta(t, 0.005, opps[0].PctDiff, 0.0005)
	assert.True(t, opps[0].NetProfit.Equal(opps[0].ExpectedProfit.Sub(opps[0].EstGasCost).Sub(opps[0].BridgeFee)))
	assert.True(t, opps[0].NetProfit.Sign() > 0, "spec §8 S1 requires net_profit > 0, got %s", opps[0].NetProfit)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

// TestStaleDetectionYieldsNoCandidate reproduces spec §8 scenario S2.
func TestStaleDetectionYieldsNoCandidate(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	// Published but immediately stale relative to the detector's own maxPriceAge.
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.995), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now.Add(-29 * time.Second)})

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, time.Second)

	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestBelowThresholdExcluded(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()

	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.000), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.999), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now}) // pct_diff ~= 0.001/0.999

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.002, MinLiquidityUSD: 100_000}, 30*time.Second)
	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	assert.Empty(t, opps, "pct_diff below min_profit_threshold must be excluded")
}

func TestAtThresholdIncluded(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()

	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.001), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(1.000), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now}) // pct_diff == 0.001/1.000, exactly the threshold

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, 30*time.Second)
	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	assert.Len(t, opps, 1, "pct_diff at or above min_profit_threshold must be included")
}

func TestNoBridgeRouteReturnsNoPathError(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.99), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})

	d := New(logx.NewNop(), bus, healthyChains(), nil, ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, 30*time.Second)
	_, err := d.Scan("USDC")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.NoPath, kind)
}

// TestUnprofitableAfterCostsExcluded mirrors the teacher's own
// netProfit<=0 guard: a pct_diff that clears min_profit_threshold must
// still be dropped once bridge fees exceed what that size could earn.
func TestUnprofitableAfterCostsExcluded(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	now := time.Now()
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0000), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "polygon", PriceUSD: money.FromFloat(0.9990), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: now})

	expensive := []BridgeRoute{&expensiveBridge{
		fakeBridge: fakeBridge{id: "stargate", chains: map[domain.ChainID]bool{"ethereum": true, "polygon": true}, assets: map[domain.AssetID]bool{"USDC": true}},
		fee:        1_000,
	}}
	d := New(logx.NewNop(), bus, healthyChains(), expensive, ProfileDefault, Thresholds{MinProfitThreshold: 0.0005, MinLiquidityUSD: 100_000, ReferenceTradeSizeUSD: 100_000}, 30*time.Second)

	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	assert.Empty(t, opps, "a candidate whose bridge fee swamps its capped-notional profit must not be emitted")
}

func TestSingleChainYieldsEmptySet(t *testing.T) {
	bus := pricefeed.New(30 * time.Second)
	bus.Publish(pricefeed.Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0), LiquidityUSD: money.FromFloat(1_000_000), Timestamp: time.Now()})

	d := New(logx.NewNop(), bus, healthyChains(), stargateBridge(), ProfileDefault, Thresholds{MinProfitThreshold: 0.001, MinLiquidityUSD: 100_000}, 30*time.Second)
	opps, err := d.Scan("USDC")
	require.NoError(t, err)
	assert.Empty(t, opps)
}
