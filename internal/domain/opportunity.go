package domain

import (
	"time"

	"github.com/brdgsat/satellite/pkg/money"
)

// StepKind enumerates ExecutionStep kinds (spec §3). FlashBorrow/FlashRepay
// extend the base set so the planner can express a flash-loan-funded leg
// as plain execution-step data rather than contract authorship.
type StepKind string

const (
	StepKindSwap        StepKind = "swap"
	StepKindBridge      StepKind = "bridge"
	StepKindDeposit     StepKind = "deposit"
	StepKindWithdraw    StepKind = "withdraw"
	StepKindFlashBorrow StepKind = "flash_borrow"
	StepKindFlashRepay  StepKind = "flash_repay"
)

// ExecutionStep is one DAG node of an ExecutionPath (spec §3).
type ExecutionStep struct {
	ID           string
	Kind         StepKind
	Chain        ChainID
	Protocol     string
	Contract     string
	EstGas       uint64
	EstTime      time.Duration
	Dependencies []string
}

// ExecutionPath is one candidate route for an ArbitrageOpportunity (spec §3).
type ExecutionPath struct {
	ID                 string
	Steps              []ExecutionStep
	TotalGas           uint64
	TotalFees          money.Amount
	EstTime            time.Duration
	SuccessProbability float64
	RiskLevel          RiskLevel
}

// ArbitrageOpportunity is the immutable candidate produced by the detector
// (spec §3). net_profit is always expected_profit - est_gas_cost - bridge_fee
// (spec §8 property 3); constructors in this repo never set it independently.
type ArbitrageOpportunity struct {
	ID              string
	Asset           AssetID
	SourceChain     ChainID
	TargetChain     ChainID
	SourcePrice     money.Amount
	TargetPrice     money.Amount
	PctDiff         float64
	ExpectedProfit  money.Amount
	EstGasCost      money.Amount
	BridgeFee       money.Amount
	NetProfit       money.Amount
	ProfitMargin    float64
	ExecutionTimeS  float64
	RiskScore       float64
	Confidence      float64
	DetectedAt      time.Time
	ExecutionPaths  []ExecutionPath
}

// NewArbitrageOpportunity constructs an opportunity and derives NetProfit
// from ExpectedProfit/EstGasCost/BridgeFee so the conservation invariant
// (spec §8 property 3) can never drift out of sync with its inputs.
func NewArbitrageOpportunity(o ArbitrageOpportunity) ArbitrageOpportunity {
	o.NetProfit = o.ExpectedProfit.Sub(o.EstGasCost).Sub(o.BridgeFee)
	return o
}
