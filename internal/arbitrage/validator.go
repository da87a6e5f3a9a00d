package arbitrage

import (
	"time"

	"github.com/brdgsat/satellite/internal/bridgemonitor"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
)

// ValidationResult is the Validator's output (spec §4.7).
type ValidationResult struct {
	IsValid        bool
	Reasons        []string
	AdjustedProfit float64
	RiskScore      float64
	Confidence     float64
}

// BridgeOperational is the read surface OpportunityValidator needs from
// BridgeMonitor: whether a bridge is operational "within the last window".
type BridgeOperational interface {
	IsOperational(bridge domain.BridgeID) bool
}

var _ BridgeOperational = (*bridgemonitor.Monitor)(nil)

// Validator is OpportunityValidator.
type Validator struct {
	bridges     BridgeOperational
	profile     Profile
	base        Thresholds
	maxPriceAge time.Duration
	mevThresholdUSD    float64
	gasBudgetUSD       float64
	simulationGasBuffer float64
}

// NewValidator constructs a Validator. gasBudgetUSD is the available gas
// budget against which the gas-headroom check (step 4) is evaluated.
func NewValidator(bridges BridgeOperational, profile Profile, base Thresholds, maxPriceAge time.Duration, mevThresholdUSD, gasBudgetUSD, simulationGasBuffer float64) *Validator {
	return &Validator{
		bridges:             bridges,
		profile:             profile,
		base:                base,
		maxPriceAge:         maxPriceAge,
		mevThresholdUSD:     mevThresholdUSD,
		gasBudgetUSD:        gasBudgetUSD,
		simulationGasBuffer: simulationGasBuffer,
	}
}

// mevProtectedKinds is the set of ExecutionStep kinds this repo treats as
// carrying a MEV-protection mechanism: only swap steps are listed;
// bridge, deposit, withdraw and flash-loan legs do not count, and no step
// kind stands for a delayed or split submission.
var mevProtectedKinds = map[domain.StepKind]bool{
	domain.StepKindSwap: true,
}

// Validate applies the five-step pipeline from spec §4.7 in order, in a
// single pass, and is idempotent for identical input (step order and
// thresholds are pure functions of opp and the validator's own state).
func (v *Validator) Validate(opp domain.ArbitrageOpportunity, simulatedSlippage float64, hasPrivateSubmission bool) ValidationResult {
	th := thresholdsFor(v.profile, v.base)
	var reasons []string

	// 1. Price freshness.
	now := time.Now()
	if now.Sub(opp.DetectedAt) > v.maxPriceAge {
		reasons = append(reasons, "stale: age exceeds max_price_age")
	}

	// 2. Slippage simulation.
	if simulatedSlippage > th.MaxSlippage {
		reasons = append(reasons, "slippage exceeds max_slippage_tolerance")
	}

	// 3. MEV-risk screen.
	if opp.ExpectedProfit.GreaterThanOrEqual(money.FromFloat(v.mevThresholdUSD)) {
		protected := hasPrivateSubmission || pathHasMEVProtection(opp)
		if !protected {
			reasons = append(reasons, "profit above mev_protection_threshold without a protection mechanism")
		}
	}

	// 4. Gas-headroom check.
	if len(opp.ExecutionPaths) > 0 {
		gasUSD, _ := opp.EstGasCost.Float64()
		if gasUSD*v.simulationGasBuffer > v.gasBudgetUSD {
			reasons = append(reasons, "estimated gas exceeds available gas budget with simulation buffer applied")
		}
	}

	// 5. Bridge reachability.
	if len(opp.ExecutionPaths) > 0 {
		bridgeID := bridgeIDFromPath(opp.ExecutionPaths[0])
		if bridgeID != "" && v.bridges != nil && !v.bridges.IsOperational(bridgeID) {
			reasons = append(reasons, "bridge not reporting operational within the monitoring window")
		}
	}

	result := ValidationResult{
		IsValid:        len(reasons) == 0,
		Reasons:        reasons,
		AdjustedProfit: opp.ProfitMargin,
		RiskScore:      opp.RiskScore,
		Confidence:     opp.Confidence,
	}
	if !result.IsValid {
		result.Confidence = 0
	}
	return result
}

func pathHasMEVProtection(opp domain.ArbitrageOpportunity) bool {
	if len(opp.ExecutionPaths) == 0 {
		return false
	}
	for _, step := range opp.ExecutionPaths[0].Steps {
		if mevProtectedKinds[step.Kind] {
			return true
		}
	}
	return false
}

// BridgeIDFromPath returns the protocol id of path's bridge step, or "" if
// it has none. Exported so callers can look up a bridge's own
// private-submission policy before calling Validate.
func BridgeIDFromPath(path domain.ExecutionPath) domain.BridgeID {
	return bridgeIDFromPath(path)
}

func bridgeIDFromPath(path domain.ExecutionPath) domain.BridgeID {
	for _, step := range path.Steps {
		if step.Kind == domain.StepKindBridge {
			return domain.BridgeID(step.Protocol)
		}
	}
	return ""
}
