// Package pricefeed implements PriceFeedBus (spec §4.3): a fan-in of
// timestamped (asset, chain, price, liquidity) samples, at-least-once
// delivery to subscribers, filtering stale samples at publish time, and,
// when a subscriber's channel is full, dropping that channel's oldest
// buffered sample rather than blocking the publisher (spec §5). The drop
// is not per key: the oldest sample goes whatever its (asset, chain).
package pricefeed

import (
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
)

// Sample is a PriceSample (spec §3). AgeMS is computed on read, not stored,
// so a sample's staleness always reflects "now", not its creation time.
type Sample struct {
	Asset        domain.AssetID
	Chain        domain.ChainID
	PriceUSD     money.Amount
	LiquidityUSD money.Amount
	Timestamp    time.Time
	Source       string
}

// AgeMS returns how stale the sample is as of now.
func (s Sample) AgeMS(now time.Time) int64 {
	return now.Sub(s.Timestamp).Milliseconds()
}

type key struct {
	asset domain.AssetID
	chain domain.ChainID
}

// subscriber is one registered consumer: a bounded channel plus the
// predicate selecting which samples it wants.
type subscriber struct {
	id      int
	ch      chan Sample
	filter  func(Sample) bool
}

// Bus is PriceFeedBus.
type Bus struct {
	maxPriceAge time.Duration

	mu      sync.RWMutex
	latest  map[key]Sample
	subs    []*subscriber
	nextID  int
}

// New constructs a Bus. maxPriceAge is the staleness cutoff applied at
// publish time (spec §4.3).
func New(maxPriceAge time.Duration) *Bus {
	return &Bus{
		maxPriceAge: maxPriceAge,
		latest:      make(map[key]Sample),
	}
}

// Subscribe registers a consumer with a bounded inbox of the given depth
// and an optional filter (nil means "everything"). Returns the channel to
// read from and an unsubscribe function.
func (b *Bus) Subscribe(bufferDepth int, filter func(Sample) bool) (<-chan Sample, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{
		id:     b.nextID,
		ch:     make(chan Sample, bufferDepth),
		filter: filter,
	}
	b.nextID++

	// Copy-on-write: readers of b.subs during Publish never observe a
	// half-updated slice (spec §5 "copy-on-write to allow delivery
	// without blocking updates", applied here the same way BridgeMonitor
	// applies it to its alert subscriber list).
	next := make([]*subscriber, len(b.subs)+1)
	copy(next, b.subs)
	next[len(b.subs)] = s
	b.subs = next

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		next := make([]*subscriber, 0, len(b.subs))
		for _, sub := range b.subs {
			if sub.id != s.id {
				next = append(next, sub)
			}
		}
		b.subs = next
	}
	return s.ch, unsubscribe
}

// Publish delivers a sample to subscribers and updates the latest-value
// map, after dropping it if it is already stale or older than the
// previously stored sample for the same key (spec §4.3, §5 ordering
// guarantee: "samples older than the latest stored for that key are
// discarded").
func (b *Bus) Publish(s Sample) {
	if s.AgeMS(time.Now()) > b.maxPriceAge.Milliseconds() {
		return
	}

	k := key{asset: s.Asset, chain: s.Chain}

	b.mu.Lock()
	if prev, ok := b.latest[k]; ok && !s.Timestamp.After(prev.Timestamp) {
		b.mu.Unlock()
		return
	}
	b.latest[k] = s
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(s) {
			continue
		}
		select {
		case sub.ch <- s:
		default:
			// Back-pressure policy: drop the oldest buffered sample for
			// this subscriber and retry once, never blocking the
			// publisher (spec §4.3).
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- s:
			default:
			}
		}
	}
}

// Latest returns the most recent non-stale sample for (asset, chain).
func (b *Bus) Latest(asset domain.AssetID, chain domain.ChainID) (Sample, bool) {
	b.mu.RLock()
	s, ok := b.latest[key{asset: asset, chain: chain}]
	b.mu.RUnlock()
	if !ok {
		return Sample{}, false
	}
	if s.AgeMS(time.Now()) > b.maxPriceAge.Milliseconds() {
		return Sample{}, false
	}
	return s, true
}

// LatestForAsset returns the most recent non-stale sample on every chain
// that has one, keyed by chain — used by ArbitrageDetector to find pairs.
func (b *Bus) LatestForAsset(asset domain.AssetID) map[domain.ChainID]Sample {
	now := time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[domain.ChainID]Sample)
	for k, s := range b.latest {
		if k.asset != asset {
			continue
		}
		if s.AgeMS(now) > b.maxPriceAge.Milliseconds() {
			continue
		}
		out[k.chain] = s
	}
	return out
}

// Assets returns every asset that currently has at least one non-stale
// sample, used by the detector to enumerate its asset/chain matrix.
func (b *Bus) Assets() []domain.AssetID {
	now := time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[domain.AssetID]bool)
	for k, s := range b.latest {
		if s.AgeMS(now) > b.maxPriceAge.Milliseconds() {
			continue
		}
		seen[k.asset] = true
	}
	out := make([]domain.AssetID, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	return out
}
