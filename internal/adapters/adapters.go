// Package adapters declares the Go interfaces for every external
// collaborator this satellite depends on but does not implement: chain
// RPC access, price feed ingestion, bridge quoting/execution, transaction
// signing, and durable persistence. Nothing in this package talks to the
// network; concrete clients live outside this repo and are wired in at
// `cmd/satellite/main.go`. Mirrors the teacher's ExchangeClient/
// PriceProvider split in crypto-wallet/internal/defi: core logic depends
// on a small interface, never a concrete RPC/HTTP client.
package adapters

import (
	"context"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
)

// ChainAdapter is the read/write surface ChainStateCache and the
// execution layer need from a chain's RPC endpoint. One implementation
// per chain family (EVM, Cosmos-SDK, ...) would live outside this repo.
type ChainAdapter interface {
	Chain() domain.ChainID

	// BlockHeight returns the current tip and the chain's finalized
	// height (finality depth already applied by the adapter).
	BlockHeight(ctx context.Context) (height, finalized uint64, err error)

	// GasPrice returns the current network gas price in the chain's
	// native unit.
	GasPrice(ctx context.Context) (float64, error)

	// SubmitTransaction broadcasts a signed transaction and returns its
	// hash once accepted by the mempool (not once finalized).
	SubmitTransaction(ctx context.Context, signedTx []byte) (txHash string, err error)

	// TransactionStatus reports whether txHash has confirmed, and at
	// what block height, or an error if it is still pending.
	TransactionStatus(ctx context.Context, txHash string) (confirmed bool, blockHeight uint64, err error)
}

// PriceFeedAdapter is one external price source PriceFeedBus ingests
// from. A satellite deployment registers one per venue (on-chain DEX
// quoter, centralized exchange REST/WS client, aggregator).
type PriceFeedAdapter interface {
	Name() string

	// Quote returns the latest price/liquidity sample this source has
	// for asset on chain. Returns an errs.StaleData-kind error if the
	// source has nothing recent enough to serve.
	Quote(ctx context.Context, asset domain.AssetID, chain domain.ChainID) (price, liquidityUSD money.Amount, observedAt time.Time, err error)
}

// BridgeAdapter is the quoting/execution surface BridgeMonitor and the
// ExecutionPlanner need from one cross-chain bridge protocol.
type BridgeAdapter interface {
	Bridge() domain.BridgeID

	// Quote estimates the fee and expected transfer time for moving
	// amount of asset from source to target.
	Quote(ctx context.Context, asset domain.AssetID, source, target domain.ChainID, amount money.Amount) (fee money.Amount, eta time.Duration, err error)

	// InitiateTransfer starts a cross-chain transfer and returns a
	// bridge-specific reference to poll via TransferStatus.
	InitiateTransfer(ctx context.Context, asset domain.AssetID, source, target domain.ChainID, amount money.Amount, recipient string) (ref string, err error)

	// TransferStatus reports whether a transfer initiated with
	// InitiateTransfer has completed on the target chain.
	TransferStatus(ctx context.Context, ref string) (completed bool, err error)

	// IsOperational is a cheap liveness probe BridgeMonitor polls on
	// its own schedule; it does not itself move funds.
	IsOperational(ctx context.Context) bool
}

// SignerAdapter abstracts the wallet/custody layer that turns an
// unsigned execution step into a signed, broadcastable payload. Kept
// separate from ChainAdapter so a single signer (e.g. an HSM-backed
// custody service) can serve steps across multiple chains.
type SignerAdapter interface {
	// Sign returns the signed transaction bytes for unsignedTx on chain,
	// or an errs.SignerUnavailable-kind error if the signer is
	// unreachable or refuses (e.g. a spending-limit policy).
	Sign(ctx context.Context, chain domain.ChainID, unsignedTx []byte) (signedTx []byte, err error)

	// Address returns this signer's address on chain, used to size
	// positions and check balances before planning a move.
	Address(ctx context.Context, chain domain.ChainID) (string, error)
}

// PersistenceAdapter is the durable sink for the audit/history log
// schema `pkg/auditlog` defines: appending records here is a
// fire-and-forget side effect of the core pipeline, never a dependency
// the core blocks on for correctness.
type PersistenceAdapter interface {
	// AppendRecord durably stores one JSON-serializable audit record.
	AppendRecord(ctx context.Context, kind string, record any) error

	// Close flushes and releases any underlying connection.
	Close() error
}
