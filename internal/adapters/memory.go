package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/money"
)

// InMemoryChain is a deterministic ChainAdapter test double: every field
// is a fixed value or a canned response a test sets directly, mirroring
// the teacher's MockPriceProvider in crypto-wallet/internal/defi.
type InMemoryChain struct {
	mu          sync.Mutex
	chain       domain.ChainID
	Height      uint64
	Finalized   uint64
	Gas         float64
	SubmitErr   error
	StatusByTx  map[string]bool
	SubmitCount int
}

// NewInMemoryChain constructs a chain double reporting height/finalized/gas.
func NewInMemoryChain(chain domain.ChainID, height, finalized uint64, gas float64) *InMemoryChain {
	return &InMemoryChain{chain: chain, Height: height, Finalized: finalized, Gas: gas, StatusByTx: map[string]bool{}}
}

func (c *InMemoryChain) Chain() domain.ChainID { return c.chain }

func (c *InMemoryChain) BlockHeight(ctx context.Context) (uint64, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Height, c.Finalized, nil
}

func (c *InMemoryChain) GasPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Gas, nil
}

func (c *InMemoryChain) SubmitTransaction(ctx context.Context, signedTx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	c.SubmitCount++
	hash := string(signedTx)
	c.StatusByTx[hash] = true
	return hash, nil
}

func (c *InMemoryChain) TransactionStatus(ctx context.Context, txHash string) (bool, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	confirmed, ok := c.StatusByTx[txHash]
	if !ok {
		return false, 0, errs.New(errs.ChainUnknown, "unknown transaction hash")
	}
	return confirmed, c.Height, nil
}

// InMemoryPriceFeed is a deterministic PriceFeedAdapter test double
// holding one canned (price, liquidity) pair per (asset, chain).
type InMemoryPriceFeed struct {
	mu     sync.Mutex
	name   string
	quotes map[domain.AssetID]map[domain.ChainID]quote
}

type quote struct {
	price, liquidity money.Amount
	observedAt       time.Time
}

func NewInMemoryPriceFeed(name string) *InMemoryPriceFeed {
	return &InMemoryPriceFeed{name: name, quotes: map[domain.AssetID]map[domain.ChainID]quote{}}
}

func (p *InMemoryPriceFeed) Name() string { return p.name }

// Set registers the quote Quote will return for (asset, chain).
func (p *InMemoryPriceFeed) Set(asset domain.AssetID, chain domain.ChainID, price, liquidityUSD money.Amount, observedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quotes[asset] == nil {
		p.quotes[asset] = map[domain.ChainID]quote{}
	}
	p.quotes[asset][chain] = quote{price: price, liquidity: liquidityUSD, observedAt: observedAt}
}

func (p *InMemoryPriceFeed) Quote(ctx context.Context, asset domain.AssetID, chain domain.ChainID) (money.Amount, money.Amount, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byChain, ok := p.quotes[asset]
	if !ok {
		return money.Zero, money.Zero, time.Time{}, errs.New(errs.AssetUnknown, "no quote registered for asset")
	}
	q, ok := byChain[chain]
	if !ok {
		return money.Zero, money.Zero, time.Time{}, errs.New(errs.StaleData, "no quote registered for chain")
	}
	return q.price, q.liquidity, q.observedAt, nil
}

// InMemoryBridge is a deterministic BridgeAdapter test double: fee/ETA
// are fixed per instance, transfers complete immediately (Operational
// toggles liveness for BridgeMonitor tests).
type InMemoryBridge struct {
	mu          sync.Mutex
	bridge      domain.BridgeID
	Fee         money.Amount
	ETA         time.Duration
	Operational bool
	transfers   map[string]bool
	nextRef     int
}

func NewInMemoryBridge(bridge domain.BridgeID, fee money.Amount, eta time.Duration) *InMemoryBridge {
	return &InMemoryBridge{bridge: bridge, Fee: fee, ETA: eta, Operational: true, transfers: map[string]bool{}}
}

func (b *InMemoryBridge) Bridge() domain.BridgeID { return b.bridge }

func (b *InMemoryBridge) Quote(ctx context.Context, asset domain.AssetID, source, target domain.ChainID, amount money.Amount) (money.Amount, time.Duration, error) {
	return b.Fee, b.ETA, nil
}

func (b *InMemoryBridge) InitiateTransfer(ctx context.Context, asset domain.AssetID, source, target domain.ChainID, amount money.Amount, recipient string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.Operational {
		return "", errs.New(errs.BridgeOutage, "bridge is not operational")
	}
	b.nextRef++
	ref := recipient + ":" + string(rune('0'+b.nextRef%10))
	b.transfers[ref] = true
	return ref, nil
}

func (b *InMemoryBridge) TransferStatus(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	completed, ok := b.transfers[ref]
	if !ok {
		return false, errs.New(errs.BridgeUnknown, "unknown transfer reference")
	}
	return completed, nil
}

func (b *InMemoryBridge) IsOperational(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Operational
}

// InMemorySigner is a deterministic SignerAdapter test double that
// "signs" by prefixing the payload; Refuse forces SignerUnavailable for
// a given chain, the policy-refusal path SignerAdapter callers must
// handle.
type InMemorySigner struct {
	mu        sync.Mutex
	addresses map[domain.ChainID]string
	Refuse    map[domain.ChainID]bool
}

func NewInMemorySigner(addresses map[domain.ChainID]string) *InMemorySigner {
	return &InMemorySigner{addresses: addresses, Refuse: map[domain.ChainID]bool{}}
}

func (s *InMemorySigner) Sign(ctx context.Context, chain domain.ChainID, unsignedTx []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Refuse[chain] {
		return nil, errs.New(errs.SignerUnavailable, "signer refused to sign for chain")
	}
	signed := append([]byte("signed:"), unsignedTx...)
	return signed, nil
}

func (s *InMemorySigner) Address(ctx context.Context, chain domain.ChainID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.addresses[chain]
	if !ok {
		return "", errs.New(errs.ChainUnknown, "no address registered for chain")
	}
	return addr, nil
}

// InMemoryPersistence is a deterministic PersistenceAdapter test double
// that appends every record to an in-process slice instead of a file or
// topic.
type InMemoryPersistence struct {
	mu      sync.Mutex
	Records []PersistedRecord
	closed  bool
}

// PersistedRecord is one entry InMemoryPersistence captured.
type PersistedRecord struct {
	Kind   string
	Record any
}

func NewInMemoryPersistence() *InMemoryPersistence {
	return &InMemoryPersistence{}
}

func (p *InMemoryPersistence) AppendRecord(ctx context.Context, kind string, record any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.New(errs.InvariantViolated, "append after close")
	}
	p.Records = append(p.Records, PersistedRecord{Kind: kind, Record: record})
	return nil
}

func (p *InMemoryPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
