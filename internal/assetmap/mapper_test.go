package assetmap

import (
	"testing"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeAndResolveRoundTrip(t *testing.T) {
	m := New()
	m.Register("USDC", "ethereum", "0xA0b8...eb48", 6, "usd coin")
	m.Register("USDC", "polygon", "0x2791...4174", 6)

	asset, ok := m.Canonicalize("ethereum", "0xa0b8...eb48") // case-insensitive
	assert.True(t, ok)
	assert.Equal(t, "USDC", string(asset))

	addr, decimals, ok := m.Resolve("USDC", "polygon")
	assert.True(t, ok)
	assert.Equal(t, "0x2791...4174", addr)
	assert.EqualValues(t, 6, decimals)
}

func TestUnknownMappingReturnsNotOKRatherThanError(t *testing.T) {
	m := New()
	_, ok := m.Canonicalize("ethereum", "0xdead")
	assert.False(t, ok)

	_, _, ok = m.Resolve("DOGE", "ethereum")
	assert.False(t, ok)
}

func TestSearchMatchesSubstringAndAlias(t *testing.T) {
	m := New()
	m.Register("USDC", "ethereum", "0xA0", 6, "usd coin")
	m.Register("WETH", "ethereum", "0xB0", 18, "wrapped ether")

	results := m.Search("usd")
	assert.ElementsMatch(t, []string{"USDC"}, idsToStrings(results))

	results = m.Search("eth")
	assert.ElementsMatch(t, []string{"WETH"}, idsToStrings(results))
}

func idsToStrings(ids []domain.AssetID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
