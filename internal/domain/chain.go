package domain

import "time"

// ChainConfig is the static configuration of one chain (spec §3).
type ChainConfig struct {
	ID             ChainID
	Name           string
	RPCEndpoint    string
	GasToken       string
	BlockTime      time.Duration
	FinalityDepth  int
	NativeDecimals int32
}

// BridgeConfig is the static configuration of one bridge (spec §3).
// PrivateSubmission records whether this bridge's relay submits transactions
// through a private channel (e.g. a Flashbots-style builder) rather than the
// public mempool — the genuine signal OpportunityValidator's MEV-risk screen
// consults, distinct from whether any execution step happens to be a swap.
type BridgeConfig struct {
	ID                BridgeID
	Name              string
	SupportedChains   map[ChainID]bool
	SupportedAssets   map[AssetID]bool
	FeeBase           float64
	FeeVariable       float64
	PrivateSubmission bool
}

// SupportsRoute reports whether this bridge lists both chains and the asset.
func (b BridgeConfig) SupportsRoute(source, target ChainID, asset AssetID) bool {
	return b.SupportedChains[source] && b.SupportedChains[target] && b.SupportedAssets[asset]
}

// ChainState is the mutable per-chain snapshot owned exclusively by
// ChainStateCache (spec §3, §4.1).
type ChainState struct {
	Chain           ChainID
	BlockHeight     uint64
	FinalizedHeight uint64
	LastUpdate      time.Time
	GasPrice        float64
	HealthScore     int // [0,100]
	Status          ChainStatus
}

// StaleFor reports whether now-LastUpdate exceeds the given multiple of
// blockTime, the staleness rule ChainStateCache uses to demote a chain's
// status (spec §4.1).
func (cs ChainState) StaleFor(now time.Time, blockTime time.Duration, multiple float64) bool {
	if blockTime <= 0 {
		return false
	}
	return now.Sub(cs.LastUpdate) > time.Duration(float64(blockTime)*multiple)
}
