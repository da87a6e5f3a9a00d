// Package liquidity implements LiquidityOptimizer (spec §4.10): given
// current per-chain-per-asset positions and a target distribution,
// produces an optimized distribution and the ordered moves that reach it,
// capping each chain's target share at the chain-concentration limit, and
// adjusts targets in reaction to market-shock events. The other
// Constraints fields are not enforced here.
package liquidity

import (
	"sort"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
)

// Position is the minimal per-(chain,asset) balance view the optimizer
// reads; it mirrors AssetPosition's value-bearing fields without taking a
// dependency on PortfolioCoordinator's ownership of the real type.
type Position struct {
	Chain      domain.ChainID
	Asset      domain.AssetID
	ValueUSD   money.Amount
}

// Constraints bounds the optimizer's output (spec §4.10).
type Constraints struct {
	MaxChainConcentration   float64
	MaxAssetConcentration   float64
	MinAssetLiquidityFrac   float64
	MaxCrossBridgeExposure  float64
	MinUtilization          float64
	MaxUtilization          float64
}

// Move is one reallocation the optimizer recommends.
type Move struct {
	Asset       domain.AssetID
	FromChain   domain.ChainID
	ToChain     domain.ChainID
	AmountUSD   money.Amount
}

// Plan is the optimizer's output: the target distribution reached and the
// ordered moves to get there.
type Plan struct {
	TargetDistribution map[domain.ChainID]float64
	Moves              []Move
	CrossBridgeOpportunities []Move
}

// ShockKind enumerates the market-shock events the optimizer adapts to
// (spec §4.10 Real-time adaptation).
type ShockKind string

const (
	ShockGasSpike         ShockKind = "gas_spike"
	ShockBridgeCongestion ShockKind = "bridge_congestion"
	ShockYieldOpportunity ShockKind = "yield_opportunity"
)

// Shock is a market-shock event the optimizer reacts to.
type Shock struct {
	Kind      ShockKind
	Chain     domain.ChainID
	Severity  float64 // [0,1]
	Timestamp time.Time
}

// Optimizer is LiquidityOptimizer.
type Optimizer struct {
	constraints Constraints
}

// New constructs an Optimizer bound to a fixed set of constraints.
func New(constraints Constraints) *Optimizer {
	return &Optimizer{constraints: constraints}
}

// Optimize computes a Plan moving positions toward targetDistribution.
// Each asset is balanced on its own against the clamped target, and every
// Move carries that Asset. Of the Constraints only MaxChainConcentration
// is applied; the asset-concentration, liquidity-fraction, bridge-exposure
// and utilization fields are not enforced.
func (o *Optimizer) Optimize(positions []Position, targetDistribution map[domain.ChainID]float64) Plan {
	total := totalValue(positions)
	byChain := groupByChain(positions)

	clampedTarget := o.clampToConstraints(targetDistribution)

	var moves []Move
	if total.Sign() > 0 {
		byAsset := make(map[domain.AssetID][]Position)
		var assets []domain.AssetID
		for _, p := range positions {
			if _, ok := byAsset[p.Asset]; !ok {
				assets = append(assets, p.Asset)
			}
			byAsset[p.Asset] = append(byAsset[p.Asset], p)
		}
		sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
		for _, asset := range assets {
			for _, mv := range computeMoves(groupByChain(byAsset[asset]), clampedTarget, totalValue(byAsset[asset])) {
				mv.Asset = asset
				moves = append(moves, mv)
			}
		}
	}

	return Plan{
		TargetDistribution:       clampedTarget,
		Moves:                    moves,
		CrossBridgeOpportunities: crossBridgeOpportunities(byChain, total),
	}
}

// clampToConstraints caps any single chain's target share at
// MaxChainConcentration and redistributes the clipped excess across the
// remaining chains proportionally to their own share, so no chain can be
// pushed back over the cap by a naive renormalization.
func (o *Optimizer) clampToConstraints(target map[domain.ChainID]float64) map[domain.ChainID]float64 {
	cap := o.constraints.MaxChainConcentration
	if cap <= 0 {
		return target
	}

	clamped := make(map[domain.ChainID]float64, len(target))
	var excess, uncappedTotal float64
	for chain, frac := range target {
		if frac > cap {
			excess += frac - cap
			clamped[chain] = cap
		} else {
			clamped[chain] = frac
			uncappedTotal += frac
		}
	}

	if excess > 0 && uncappedTotal > 0 {
		for chain, frac := range clamped {
			if frac < cap {
				clamped[chain] += excess * (frac / uncappedTotal)
				if clamped[chain] > cap {
					clamped[chain] = cap
				}
			}
		}
	}
	return clamped
}

func totalValue(positions []Position) money.Amount {
	total := money.Zero
	for _, p := range positions {
		total = total.Add(p.ValueUSD)
	}
	return total
}

func groupByChain(positions []Position) map[domain.ChainID]money.Amount {
	out := make(map[domain.ChainID]money.Amount)
	for _, p := range positions {
		out[p.Chain] = out[p.Chain].Add(p.ValueUSD)
	}
	return out
}

// computeMoves produces a deterministic, ordered set of moves: chains
// above target fund chains below target, largest surplus to largest
// deficit first, so withdrawals in the execution plan naturally precede
// the deposits that depend on them (spec §4.11 staging).
func computeMoves(byChain map[domain.ChainID]money.Amount, target map[domain.ChainID]float64, total money.Amount) []Move {
	type delta struct {
		chain domain.ChainID
		diff  money.Amount // actual - target, positive = surplus
	}

	var deltas []delta
	seen := make(map[domain.ChainID]bool)
	for chain, frac := range target {
		seen[chain] = true
		actual := byChain[chain]
		targetVal := total.Mul(money.FromFloat(frac))
		deltas = append(deltas, delta{chain: chain, diff: actual.Sub(targetVal)})
	}
	for chain, actual := range byChain {
		if !seen[chain] {
			deltas = append(deltas, delta{chain: chain, diff: actual})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if !deltas[i].diff.Equal(deltas[j].diff) {
			return deltas[i].diff.GreaterThan(deltas[j].diff)
		}
		return deltas[i].chain < deltas[j].chain
	})

	var surpluses, deficits []delta
	for _, d := range deltas {
		switch {
		case d.diff.Sign() > 0:
			surpluses = append(surpluses, d)
		case d.diff.Sign() < 0:
			deficits = append(deficits, delta{chain: d.chain, diff: d.diff.Neg()})
		}
	}
	sort.Slice(deficits, func(i, j int) bool {
		if !deficits[i].diff.Equal(deficits[j].diff) {
			return deficits[i].diff.GreaterThan(deficits[j].diff)
		}
		return deficits[i].chain < deficits[j].chain
	})

	var moves []Move
	si, di := 0, 0
	for si < len(surpluses) && di < len(deficits) {
		s, d := &surpluses[si], &deficits[di]
		amount := s.diff
		if d.diff.LessThan(amount) {
			amount = d.diff
		}
		if amount.Sign() > 0 {
			moves = append(moves, Move{FromChain: s.chain, ToChain: d.chain, AmountUSD: amount})
		}
		s.diff = s.diff.Sub(amount)
		d.diff = d.diff.Sub(amount)
		if s.diff.Sign() <= 0 {
			si++
		}
		if d.diff.Sign() <= 0 {
			di++
		}
	}
	return moves
}

// crossBridgeOpportunities surfaces chain pairs where a cheap rebalance
// move could double as an arbitrage-adjacent liquidity shift, identified
// as a side output rather than an executed action (spec §4.10).
func crossBridgeOpportunities(byChain map[domain.ChainID]money.Amount, total money.Amount) []Move {
	if total.Sign() <= 0 || len(byChain) < 2 {
		return nil
	}
	chains := make([]domain.ChainID, 0, len(byChain))
	for c := range byChain {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	var out []Move
	for i := 0; i < len(chains); i++ {
		for j := i + 1; j < len(chains); j++ {
			a, b := chains[i], chains[j]
			diff := byChain[a].Sub(byChain[b]).Abs()
			if ratio, _ := diff.Div(total).Float64(); ratio > 0.2 {
				from, to := a, b
				if byChain[b].GreaterThan(byChain[a]) {
					from, to = b, a
				}
				out = append(out, Move{FromChain: from, ToChain: to, AmountUSD: diff.Div(money.FromFloat(2))})
			}
		}
	}
	return out
}

// Adapt reacts to a market-shock event by adjusting the target
// distribution away from the affected chain, or toward it for a
// yield_opportunity (spec §4.10 Real-time adaptation); callers re-run
// Optimize with the returned distribution.
func (o *Optimizer) Adapt(target map[domain.ChainID]float64, shock Shock) map[domain.ChainID]float64 {
	adjusted := make(map[domain.ChainID]float64, len(target))
	for chain, frac := range target {
		adjusted[chain] = frac
	}
	current, ok := adjusted[shock.Chain]
	if !ok {
		return adjusted
	}

	reduction := current * shock.Severity * shockWeight(shock.Kind)
	adjusted[shock.Chain] = current - reduction

	others := len(adjusted) - 1
	if others > 0 {
		perChain := reduction / float64(others)
		for chain := range adjusted {
			if chain != shock.Chain {
				adjusted[chain] += perChain
			}
		}
	}
	return adjusted
}

func shockWeight(kind ShockKind) float64 {
	switch kind {
	case ShockGasSpike:
		return 0.3
	case ShockBridgeCongestion:
		return 0.5
	case ShockYieldOpportunity:
		return -0.2 // negative weight: lean in rather than away
	default:
		return 0
	}
}

// Utilization reports the fraction of total value a chain currently
// holds. No caller in this repository checks it against the
// [min_utilization, max_utilization] band.
func Utilization(byChain map[domain.ChainID]money.Amount, total money.Amount, chain domain.ChainID) float64 {
	if total.Sign() <= 0 {
		return 0
	}
	f, _ := byChain[chain].Div(total).Float64()
	return f
}
