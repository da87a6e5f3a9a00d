// Package errs provides the typed error vocabulary used across the bridge
// satellite. Every component returns one of these kinds rather than an
// opaque error, so callers can branch on Kind without string matching.
package errs

import (
	"fmt"
	"time"
)

// Kind enumerates the abstract error kinds from the bridge satellite
// specification (§7 Error Handling Design).
type Kind string

const (
	ConfigInvalid       Kind = "config_invalid"
	ChainUnknown        Kind = "chain_unknown"
	BridgeUnknown       Kind = "bridge_unknown"
	AssetUnknown        Kind = "asset_unknown"
	StaleData           Kind = "stale_data"
	InsufficientLiquidity Kind = "insufficient_liquidity"
	SlippageExceeded    Kind = "slippage_exceeded"
	ResourceBusy        Kind = "resource_busy"
	QueueFull           Kind = "queue_full"
	DeadlineExceeded    Kind = "deadline_exceeded"
	RiskLimitViolated   Kind = "risk_limit_violated"
	BridgeOutage        Kind = "bridge_outage"
	RpcTimeout          Kind = "rpc_timeout"
	Reverted            Kind = "reverted"
	SignerUnavailable   Kind = "signer_unavailable"
	ConsensusConflict   Kind = "consensus_conflict"
	RollbackFailed      Kind = "rollback_failed"
	InvariantViolated   Kind = "invariant_violated"
	NoPath              Kind = "no_path"
)

// Error is the concrete error type carried through the system. It wraps an
// optional underlying cause and carries free-form context for logging.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Context   map[string]any
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As traverse into the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is compares by Kind so callers can do errors.Is(err, errs.New(errs.ChainUnknown, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// With attaches a context key/value and returns the same error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 1)
	}
	e.Context[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now()}
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: cause, Timestamp: time.Now()}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a tiny local shim mirroring errors.As without importing errors
// twice for the single use above; kept here because errors.As requires a
// pointer-to-interface target which is clearer inlined at the call site in
// most of this codebase. Exported KindOf wraps it for convenience.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
