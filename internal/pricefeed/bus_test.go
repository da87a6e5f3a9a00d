package pricefeed

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersStaleSamples(t *testing.T) {
	b := New(30 * time.Second)
	b.Publish(Sample{
		Asset: "USDC", Chain: "ethereum",
		PriceUSD: money.FromFloat(1.0), LiquidityUSD: money.FromFloat(1_000_000),
		Timestamp: time.Now().Add(-time.Minute), // stale
	})
	_, ok := b.Latest("USDC", "ethereum")
	assert.False(t, ok)
}

func TestPublishDiscardsOlderThanStored(t *testing.T) {
	b := New(30 * time.Second)
	now := time.Now()
	b.Publish(Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.01), Timestamp: now})
	b.Publish(Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.05), Timestamp: now.Add(-time.Second)})

	s, ok := b.Latest("USDC", "ethereum")
	require.True(t, ok)
	assert.True(t, s.PriceUSD.Equal(money.FromFloat(1.01)))
}

func TestSubscribeReceivesMatchingSamples(t *testing.T) {
	b := New(30 * time.Second)
	ch, unsub := b.Subscribe(4, func(s Sample) bool { return s.Asset == "USDC" })
	defer unsub()

	b.Publish(Sample{Asset: "WETH", Chain: "ethereum", PriceUSD: money.FromFloat(3000), Timestamp: time.Now()})
	b.Publish(Sample{Asset: "USDC", Chain: "ethereum", PriceUSD: money.FromFloat(1.0), Timestamp: time.Now()})

	select {
	case s := <-ch:
		assert.Equal(t, "USDC", string(s.Asset))
	case <-time.After(time.Second):
		t.Fatal("expected a sample")
	}
}

func TestOverflowDropsOldestNeverBlocks(t *testing.T) {
	b := New(30 * time.Second)
	ch, unsub := b.Subscribe(1, nil)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			chain := domain.ChainID(string(rune('a' + i)))
			b.Publish(Sample{Asset: "USDC", Chain: chain, PriceUSD: money.FromFloat(1), Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber channel")
	}
	s := <-ch
	assert.Equal(t, domain.ChainID("j"), s.Chain, "the newest sample survives; older buffered ones were dropped")
}
