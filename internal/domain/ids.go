// Package domain holds the value types shared across every subsystem of
// the bridge satellite (spec §3 Data Model): interned identifiers, chain
// and bridge configuration snapshots, and the small enums components
// dispatch on. Keeping these in one package avoids import cycles between
// the thirteen components that all reference "a chain" or "an asset".
package domain

// ChainID, AssetID and BridgeID are opaque interned identifiers. They are
// distinct named types (not plain string) so a function signature like
// ResolveAsset(AssetID, ChainID) can't be called with the arguments
// swapped without a compiler error.
type ChainID string

type AssetID string

type BridgeID string

// ChainStatus is the health classification a ChainState carries.
type ChainStatus string

const (
	ChainHealthy  ChainStatus = "healthy"
	ChainDegraded ChainStatus = "degraded"
	ChainUnstable ChainStatus = "unstable"
	ChainOffline  ChainStatus = "offline"
)

// RiskLevel is the four-bucket classification shared by BridgeRiskAssessment
// and RiskAlert.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Priority is the CoordinatedTransaction / evaluation priority scale.
type Priority string

const (
	PriorityIgnore   Priority = "ignore"
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)
