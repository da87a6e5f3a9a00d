// Package eventbus implements the single logical event bus spec §5
// describes: "A single logical event bus fans events to subscribers; each
// subscriber runs on its own task and consumes messages in FIFO order per
// source." Events are typed Go structs rather than a tagged union, one
// concrete type per producer named in spec §5's "Event bus (produced)"
// list.
package eventbus

import (
	"time"

	"github.com/brdgsat/satellite/internal/arbitrage"
	"github.com/brdgsat/satellite/internal/bridgemonitor"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/portfolio"
	"github.com/brdgsat/satellite/internal/riskassessor"
	"github.com/brdgsat/satellite/internal/syncer"
)

// Kind discriminates Event implementations for subscribers that want to
// type-switch without a full type assertion chain.
type Kind string

const (
	KindOpportunityDetected  Kind = "opportunity_detected"
	KindOpportunityEvaluated Kind = "opportunity_evaluated"
	KindExecutionCompleted   Kind = "execution_completed"
	KindExecutionFailed      Kind = "execution_failed"
	KindBridgeAlert          Kind = "bridge_alert"
	KindRiskAlert            Kind = "risk_alert"
	KindSyncAnomaly          Kind = "sync_anomaly"
)

// Event is the common interface every bus payload satisfies.
type Event interface {
	Kind() Kind
	Occurred() time.Time
}

// OpportunityDetected is emitted by ArbitrageDetector for every candidate
// it finds (spec §5).
type OpportunityDetected struct {
	Opportunity domain.ArbitrageOpportunity
	Timestamp   time.Time
}

func (e OpportunityDetected) Kind() Kind          { return KindOpportunityDetected }
func (e OpportunityDetected) Occurred() time.Time { return e.Timestamp }

// OpportunityEvaluated is emitted by OpportunityEvaluator once it scores a
// candidate (spec §5).
type OpportunityEvaluated struct {
	Opportunity domain.ArbitrageOpportunity
	Evaluation  arbitrage.ComprehensiveEvaluation
	Timestamp   time.Time
}

func (e OpportunityEvaluated) Kind() Kind          { return KindOpportunityEvaluated }
func (e OpportunityEvaluated) Occurred() time.Time { return e.Timestamp }

// ExecutionCompleted is emitted by PortfolioCoordinator when an
// ArbitrageExecution reaches `completed` (spec §5).
type ExecutionCompleted struct {
	Execution portfolio.ArbitrageExecution
	Timestamp time.Time
}

func (e ExecutionCompleted) Kind() Kind          { return KindExecutionCompleted }
func (e ExecutionCompleted) Occurred() time.Time { return e.Timestamp }

// ExecutionFailed is emitted by PortfolioCoordinator when a
// CoordinatedTransaction transitions to `failed` (spec §5).
type ExecutionFailed struct {
	Opportunity domain.ArbitrageOpportunity
	Reason      string
	Err         error
	Timestamp   time.Time
}

func (e ExecutionFailed) Kind() Kind          { return KindExecutionFailed }
func (e ExecutionFailed) Occurred() time.Time { return e.Timestamp }

// BridgeAlert wraps a bridgemonitor.Alert for bus delivery (spec §5).
type BridgeAlert struct {
	Alert     bridgemonitor.Alert
	Timestamp time.Time
}

func (e BridgeAlert) Kind() Kind          { return KindBridgeAlert }
func (e BridgeAlert) Occurred() time.Time { return e.Timestamp }

// RiskAlert wraps a riskassessor.Alert for bus delivery (spec §5).
type RiskAlert struct {
	Alert     riskassessor.Alert
	Timestamp time.Time
}

func (e RiskAlert) Kind() Kind          { return KindRiskAlert }
func (e RiskAlert) Occurred() time.Time { return e.Timestamp }

// SyncAnomaly is emitted by CrossChainSynchronizer when a sync pass
// surfaces an unresolved consensus conflict or a conservation-error spike
// (spec §5).
type SyncAnomaly struct {
	State     syncer.GlobalSyncState
	Reason    string
	Timestamp time.Time
}

func (e SyncAnomaly) Kind() Kind          { return KindSyncAnomaly }
func (e SyncAnomaly) Occurred() time.Time { return e.Timestamp }
