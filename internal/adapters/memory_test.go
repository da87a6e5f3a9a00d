package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryChainRoundTripsSubmittedTransaction(t *testing.T) {
	c := NewInMemoryChain("ethereum", 100, 88, 30.0)
	ctx := context.Background()

	height, finalized, err := c.BlockHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), height)
	assert.Equal(t, uint64(88), finalized)

	hash, err := c.SubmitTransaction(ctx, []byte("tx-1"))
	require.NoError(t, err)
	confirmed, _, err := c.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.True(t, confirmed)
}

func TestInMemoryChainUnknownTxStatusErrors(t *testing.T) {
	c := NewInMemoryChain("ethereum", 1, 1, 1)
	_, _, err := c.TransactionStatus(context.Background(), "never-submitted")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.ChainUnknown, kind)
}

func TestInMemoryPriceFeedReturnsRegisteredQuote(t *testing.T) {
	feed := NewInMemoryPriceFeed("uniswap-v3")
	now := time.Now()
	feed.Set("usdc", "ethereum", money.FromFloat(1.0), money.FromFloat(5_000_000), now)

	price, liquidity, observedAt, err := feed.Quote(context.Background(), "usdc", "ethereum")
	require.NoError(t, err)
	assert.True(t, price.Equal(money.FromFloat(1.0)))
	assert.True(t, liquidity.Equal(money.FromFloat(5_000_000)))
	assert.Equal(t, now, observedAt)
}

func TestInMemoryPriceFeedUnregisteredAssetErrors(t *testing.T) {
	feed := NewInMemoryPriceFeed("uniswap-v3")
	_, _, _, err := feed.Quote(context.Background(), "doesnotexist", "ethereum")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.AssetUnknown, kind)
}

func TestInMemoryBridgeTransferCompletesWhenOperational(t *testing.T) {
	b := NewInMemoryBridge("stargate", money.FromFloat(10), 5*time.Minute)
	ref, err := b.InitiateTransfer(context.Background(), "usdc", "ethereum", "polygon", money.FromFloat(1000), "0xabc")
	require.NoError(t, err)

	completed, err := b.TransferStatus(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestInMemoryBridgeRefusesTransferWhenNotOperational(t *testing.T) {
	b := NewInMemoryBridge("stargate", money.FromFloat(10), 5*time.Minute)
	b.Operational = false

	_, err := b.InitiateTransfer(context.Background(), "usdc", "ethereum", "polygon", money.FromFloat(1000), "0xabc")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.BridgeOutage, kind)
}

func TestInMemorySignerRefusesWhenMarked(t *testing.T) {
	signer := NewInMemorySigner(map[domain.ChainID]string{"ethereum": "0xsigner"})
	signer.Refuse["polygon"] = true

	addr, err := signer.Address(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "0xsigner", addr)

	_, err = signer.Sign(context.Background(), "polygon", []byte("unsigned"))
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.SignerUnavailable, kind)
}

func TestInMemoryPersistenceRefusesAppendAfterClose(t *testing.T) {
	store := NewInMemoryPersistence()
	require.NoError(t, store.AppendRecord(context.Background(), "opportunity", map[string]string{"id": "opp-1"}))
	require.NoError(t, store.Close())

	err := store.AppendRecord(context.Background(), "opportunity", map[string]string{"id": "opp-2"})
	require.Error(t, err)
	assert.Len(t, store.Records, 1)
}
