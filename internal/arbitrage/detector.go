// Package arbitrage implements the detection/validation/feasibility/
// evaluation pipeline (spec §4.6-§4.9): ArbitrageDetector scans price
// deltas for candidates, OpportunityValidator filters them, FeasibilityAnalyzer
// scores executability, and OpportunityEvaluator combines both into one
// recommendation.
package arbitrage

import (
	"sort"
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/chainstate"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/pricefeed"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/google/uuid"
)

// Profile is the tagged-variant threshold set a Detector/Validator/Evaluator
// run under (SPEC_FULL.md 4.6a): one code path, three constant sets,
// matching the teacher's struct-based configuration rather than subclassing.
type Profile string

const (
	ProfileDefault      Profile = "default"
	ProfileConservative Profile = "conservative"
	ProfileAggressive   Profile = "aggressive"
)

// Thresholds is the set of profile-dependent constants consulted by the
// detector and validator.
type Thresholds struct {
	MinProfitThreshold float64
	MaxRiskScore       float64
	MaxSlippage        float64
	MinLiquidityUSD    float64

	// ReferenceTradeSizeUSD is the notional the detector assumes it would
	// trade to turn a pct_diff into a dollar ExpectedProfit — the same role
	// the teacher's calculateArbitrageOpportunity gives its (simplified,
	// fixed) `volume`, generalized to a configurable size instead of one
	// token. Zero means "use defaultReferenceTradeSizeUSD".
	ReferenceTradeSizeUSD float64
}

// defaultReferenceTradeSizeUSD is the notional used when a profile leaves
// ReferenceTradeSizeUSD unset.
const defaultReferenceTradeSizeUSD = 100_000

// thresholdsFor returns base scaled by the Profile's multipliers;
// ProfileDefault (or any other profile) returns base unchanged.
func thresholdsFor(profile Profile, base Thresholds) Thresholds {
	switch profile {
	case ProfileConservative:
		base.MinProfitThreshold *= 2
		base.MaxRiskScore *= 0.7
		base.MaxSlippage *= 0.5
		base.MinLiquidityUSD *= 1.5
		base.ReferenceTradeSizeUSD *= 0.5
	case ProfileAggressive:
		base.MinProfitThreshold *= 0.5
		base.MaxRiskScore *= 1.3
		base.MaxSlippage *= 1.5
		base.MinLiquidityUSD *= 0.5
		base.ReferenceTradeSizeUSD *= 2
	}
	return base
}

// BridgeRoute is the subset of BridgeConfig the detector needs to find
// eligible bridges for a candidate pair, kept as an interface so tests
// don't need a full config.BridgeConfig.
type BridgeRoute interface {
	ID() domain.BridgeID
	SupportsRoute(source, target domain.ChainID, asset domain.AssetID) bool
	FeeBase() float64
	FeeVariable() float64
}

// ChainStates is the read surface the detector needs from ChainStateCache.
type ChainStates interface {
	Get(chain domain.ChainID) (domain.ChainState, error)
}

var _ ChainStates = (*chainstate.Cache)(nil)

// Detector is ArbitrageDetector.
type Detector struct {
	logger     *logx.Logger
	bus        *pricefeed.Bus
	chains     ChainStates
	bridges    []BridgeRoute
	profile    Profile
	base       Thresholds
	maxPriceAge time.Duration

	mu         sync.Mutex
	lastScan   map[domain.AssetID]time.Time
	coalesce   time.Duration
}

// New constructs a Detector. Scan compares every chain the price bus holds
// a fresh sample for; no enabled-chain list is applied.
func New(logger *logx.Logger, bus *pricefeed.Bus, chains ChainStates, bridges []BridgeRoute, profile Profile, base Thresholds, maxPriceAge time.Duration) *Detector {
	return &Detector{
		logger:      logger.Named("arbitrage-detector"),
		bus:         bus,
		chains:      chains,
		bridges:     bridges,
		profile:     profile,
		base:        base,
		maxPriceAge: maxPriceAge,
		lastScan:    make(map[domain.AssetID]time.Time),
		coalesce:    50 * time.Millisecond,
	}
}

// thresholds returns the active profile's thresholds.
func (d *Detector) thresholds() Thresholds {
	return thresholdsFor(d.profile, d.base)
}

// ShouldScan reports whether enough time has passed since the last scan of
// asset to run another one, implementing the "at most one scan per 50ms
// per asset" coalescing rule (spec §4.6 Scheduling).
func (d *Detector) ShouldScan(asset domain.AssetID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if last, ok := d.lastScan[asset]; ok && now.Sub(last) < d.coalesce {
		return false
	}
	d.lastScan[asset] = now
	return true
}

// Scan compares the freshest samples for asset across every chain pair and
// returns candidates, sorted deterministically by (source,target) chain id
// for reproducibility across identical inputs (spec §8 round-trip property).
func (d *Detector) Scan(asset domain.AssetID) ([]domain.ArbitrageOpportunity, error) {
	samples := d.bus.LatestForAsset(asset)
	if len(samples) < 2 {
		return nil, nil
	}

	chains := make([]domain.ChainID, 0, len(samples))
	for c := range samples {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	th := d.thresholds()
	var out []domain.ArbitrageOpportunity

	for i := 0; i < len(chains); i++ {
		for j := i + 1; j < len(chains); j++ {
			a, b := samples[chains[i]], samples[chains[j]]
			opp, ok, err := d.evaluatePair(asset, a, b, th)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, opp)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceChain != out[j].SourceChain {
			return out[i].SourceChain < out[j].SourceChain
		}
		return out[i].TargetChain < out[j].TargetChain
	})
	return out, nil
}

func (d *Detector) evaluatePair(asset domain.AssetID, a, b pricefeed.Sample, th Thresholds) (domain.ArbitrageOpportunity, bool, error) {
	now := time.Now()
	if a.AgeMS(now) > d.maxPriceAge.Milliseconds() || b.AgeMS(now) > d.maxPriceAge.Milliseconds() {
		return domain.ArbitrageOpportunity{}, false, nil
	}

	pct := money.PctDiff(a.PriceUSD, b.PriceUSD)
	if pct < th.MinProfitThreshold {
		return domain.ArbitrageOpportunity{}, false, nil
	}

	source, target := a, b
	if source.PriceUSD.GreaterThan(target.PriceUSD) {
		source, target = target, source
	}

	srcState, err := d.chains.Get(source.Chain)
	if err != nil || !healthyEnough(srcState.Status) {
		return domain.ArbitrageOpportunity{}, false, nil
	}
	tgtState, err := d.chains.Get(target.Chain)
	if err != nil || !healthyEnough(tgtState.Status) {
		return domain.ArbitrageOpportunity{}, false, nil
	}

	if source.LiquidityUSD.LessThan(money.FromFloat(th.MinLiquidityUSD)) ||
		target.LiquidityUSD.LessThan(money.FromFloat(th.MinLiquidityUSD)) {
		return domain.ArbitrageOpportunity{}, false, nil
	}

	paths := d.buildPaths(asset, source.Chain, target.Chain)
	if len(paths) == 0 {
		return domain.ArbitrageOpportunity{}, false, errs.New(errs.NoPath, "no bridge connects "+string(source.Chain)+" to "+string(target.Chain))
	}

	bridgeFee := paths[0].TotalFees
	expectedProfit := expectedProfitUSD(pct, th.ReferenceTradeSizeUSD, source.LiquidityUSD, target.LiquidityUSD)
	gasCost := estimateGasCost(paths[0], map[domain.ChainID]float64{
		source.Chain: srcState.GasPrice,
		target.Chain: tgtState.GasPrice,
	})

	opp := domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{
		ID:             uuid.NewString(),
		Asset:          asset,
		SourceChain:    source.Chain,
		TargetChain:    target.Chain,
		SourcePrice:    source.PriceUSD,
		TargetPrice:    target.PriceUSD,
		PctDiff:        pct,
		ExpectedProfit: expectedProfit,
		EstGasCost:     gasCost,
		BridgeFee:      bridgeFee,
		ExecutionTimeS: paths[0].EstTime.Seconds(),
		Confidence:     1.0,
		DetectedAt:     time.Now(),
		ExecutionPaths: paths,
	})
	if opp.ExpectedProfit.Sign() > 0 {
		if m, ok := ratio(opp.NetProfit, opp.ExpectedProfit); ok {
			opp.ProfitMargin = m
		}
	}
	// Mirror the teacher's calculateArbitrageOpportunity guard: a candidate
	// whose own arithmetic doesn't clear its costs is not a candidate.
	if opp.NetProfit.Sign() <= 0 {
		return domain.ArbitrageOpportunity{}, false, nil
	}
	return opp, true, nil
}

// expectedProfitUSD scales pct (a fractional price delta) to a dollar
// figure against a real notional instead of returning the raw per-unit
// price delta, bounded by the thinner side's available liquidity so the
// estimate never assumes more size than the market could actually fill.
func expectedProfitUSD(pct float64, referenceTradeSizeUSD float64, sourceLiquidity, targetLiquidity money.Amount) money.Amount {
	if referenceTradeSizeUSD <= 0 {
		referenceTradeSizeUSD = defaultReferenceTradeSizeUSD
	}
	notional := money.FromFloat(referenceTradeSizeUSD)
	if sourceLiquidity.LessThan(notional) {
		notional = sourceLiquidity
	}
	if targetLiquidity.LessThan(notional) {
		notional = targetLiquidity
	}
	return notional.Mul(money.FromFloat(pct))
}

func ratio(numerator, denominator money.Amount) (float64, bool) {
	if denominator.Sign() == 0 {
		return 0, false
	}
	f, _ := numerator.Div(denominator).Float64()
	return f, true
}

func healthyEnough(status domain.ChainStatus) bool {
	return status == domain.ChainHealthy || status == domain.ChainDegraded
}

// buildPaths constructs one ExecutionPath per eligible bridge (those
// supporting both chains and the asset), tie-broken per spec §4.6: lower
// total fees, then higher success probability, then shorter est_time, then
// lexicographic bridge id.
func (d *Detector) buildPaths(asset domain.AssetID, source, target domain.ChainID) []domain.ExecutionPath {
	var paths []domain.ExecutionPath
	for _, br := range d.bridges {
		if !br.SupportsRoute(source, target, asset) {
			continue
		}
		fee := money.FromFloat(br.FeeBase())
		path := domain.ExecutionPath{
			ID: string(br.ID()) + ":" + string(source) + "->" + string(target),
			Steps: []domain.ExecutionStep{
				{ID: "withdraw", Kind: domain.StepKindWithdraw, Chain: source, EstGas: 80_000, EstTime: 15 * time.Second},
				{ID: "bridge", Kind: domain.StepKindBridge, Chain: source, Protocol: string(br.ID()), EstGas: 150_000, EstTime: 2 * time.Minute, Dependencies: []string{"withdraw"}},
				{ID: "deposit", Kind: domain.StepKindDeposit, Chain: target, EstGas: 80_000, EstTime: 15 * time.Second, Dependencies: []string{"bridge"}},
			},
			TotalGas:           310_000,
			TotalFees:          fee,
			EstTime:            2*time.Minute + 30*time.Second,
			SuccessProbability: 0.95,
			RiskLevel:          domain.RiskLow,
		}
		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if !a.TotalFees.Equal(b.TotalFees) {
			return a.TotalFees.LessThan(b.TotalFees)
		}
		if a.SuccessProbability != b.SuccessProbability {
			return a.SuccessProbability > b.SuccessProbability
		}
		if a.EstTime != b.EstTime {
			return a.EstTime < b.EstTime
		}
		return a.ID < b.ID
	})
	return paths
}

// gasUSDPerGasUnitPerGwei converts a step's (gas units, chain gas price in
// gwei) into a USD cost. Calibrated so a 310,000-gas three-step bridge
// route at a 30 gwei chain prices out near the $9.3 this package charged
// flatly before gas was wired in from ChainState.GasPrice.
const gasUSDPerGasUnitPerGwei = 0.000001

// estimateGasCost sums each step's cost at its own chain's live gas price,
// rather than a single constant blind to which chain is actually expensive
// right now.
func estimateGasCost(path domain.ExecutionPath, gasPriceGweiByChain map[domain.ChainID]float64) money.Amount {
	total := money.Zero
	for _, step := range path.Steps {
		gwei := gasPriceGweiByChain[step.Chain]
		total = total.Add(money.FromFloat(float64(step.EstGas) * gwei * gasUSDPerGasUnitPerGwei))
	}
	return total
}
