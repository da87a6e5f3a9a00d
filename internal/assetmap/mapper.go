// Package assetmap implements AssetMapper (spec §4.2): the canonical
// identity of a logical asset (e.g. "USDC") across per-chain token
// addresses and decimals. Every lookup here is O(1) except Search, which
// is allowed to scan since it serves operator/debug queries, not the hot
// detection path.
package assetmap

import "strings"

import "github.com/brdgsat/satellite/internal/domain"

// perChainEntry is the per-chain token address/decimals pair a canonical
// asset resolves to.
type perChainEntry struct {
	address  string
	decimals int32
}

// Mapper is AssetMapper.
type Mapper struct {
	// canonical -> chain -> (address, decimals)
	byAsset map[domain.AssetID]map[domain.ChainID]perChainEntry
	// chain -> lowercase(address) -> canonical
	byAddress map[domain.ChainID]map[string]domain.AssetID
	// canonical -> aliases (including the asset id itself, lowercase)
	aliases map[domain.AssetID][]string
}

// New constructs an empty Mapper; entries are added with Register.
func New() *Mapper {
	return &Mapper{
		byAsset:   make(map[domain.AssetID]map[domain.ChainID]perChainEntry),
		byAddress: make(map[domain.ChainID]map[string]domain.AssetID),
		aliases:   make(map[domain.AssetID][]string),
	}
}

// Register adds (or extends) the mapping for a canonical asset on one
// chain, plus any extra search aliases (e.g. "usd coin" for "USDC").
func (m *Mapper) Register(asset domain.AssetID, chain domain.ChainID, address string, decimals int32, aliases ...string) {
	addrLower := strings.ToLower(address)

	if m.byAsset[asset] == nil {
		m.byAsset[asset] = make(map[domain.ChainID]perChainEntry)
	}
	m.byAsset[asset][chain] = perChainEntry{address: address, decimals: decimals}

	if m.byAddress[chain] == nil {
		m.byAddress[chain] = make(map[string]domain.AssetID)
	}
	m.byAddress[chain][addrLower] = asset

	all := append([]string{strings.ToLower(string(asset))}, aliases...)
	m.aliases[asset] = dedupeAppend(m.aliases[asset], all...)
}

func dedupeAppend(existing []string, add ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := existing
	for _, a := range add {
		a = strings.ToLower(a)
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Canonicalize maps a per-chain token address to its canonical AssetID.
// Returns ("", false) for unknown mappings rather than an error, per spec.
func (m *Mapper) Canonicalize(chain domain.ChainID, address string) (domain.AssetID, bool) {
	byAddr, ok := m.byAddress[chain]
	if !ok {
		return "", false
	}
	asset, ok := byAddr[strings.ToLower(address)]
	return asset, ok
}

// Resolve returns the per-chain address and decimals for a canonical
// asset. Returns (zero, false) when the asset has no mapping on chain.
func (m *Mapper) Resolve(asset domain.AssetID, chain domain.ChainID) (address string, decimals int32, ok bool) {
	perChain, ok := m.byAsset[asset]
	if !ok {
		return "", 0, false
	}
	entry, ok := perChain[chain]
	if !ok {
		return "", 0, false
	}
	return entry.address, entry.decimals, true
}

// Chains returns every chain on which asset has a registered mapping.
func (m *Mapper) Chains(asset domain.AssetID) []domain.ChainID {
	perChain, ok := m.byAsset[asset]
	if !ok {
		return nil
	}
	out := make([]domain.ChainID, 0, len(perChain))
	for chain := range perChain {
		out = append(out, chain)
	}
	return out
}

// Search returns canonical AssetIDs whose id or registered aliases contain
// query as a substring (case-insensitive), in a deterministic order.
func (m *Mapper) Search(query string) []domain.AssetID {
	q := strings.ToLower(query)
	var matches []domain.AssetID
	for asset, aliases := range m.aliases {
		for _, alias := range aliases {
			if strings.Contains(alias, q) {
				matches = append(matches, asset)
				break
			}
		}
	}
	sortAssetIDs(matches)
	return matches
}

func sortAssetIDs(ids []domain.AssetID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
