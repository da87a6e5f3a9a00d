// Package chainstate implements ChainStateCache (spec §4.1): the sole
// writer of per-chain ChainState snapshots. Readers take lock-free
// snapshots (spec §5 "ChainStateCache uses a lock-free latest-value map:
// readers never block writers"), implemented here with sync.Map keyed by
// ChainID so get/snapshot never contend with apply.
package chainstate

import (
	"context"
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/logx"
)

// Update is what external RPC adapters feed into Apply; the cache is the
// only component that turns these into ChainState mutations (spec §4.1).
type Update struct {
	Chain       domain.ChainID
	BlockHeight uint64
	GasPrice    float64
	Healthy     bool
	Timestamp   time.Time
}

// Cache is ChainStateCache.
type Cache struct {
	logger *logx.Logger

	configs map[domain.ChainID]domain.ChainConfig // immutable after construction
	states  sync.Map                              // domain.ChainID -> domain.ChainState
}

// New constructs a Cache for the given configured chains, seeding an
// initial "healthy" ChainState per chain (spec: "Created at startup").
func New(logger *logx.Logger, chains []domain.ChainConfig) *Cache {
	c := &Cache{
		logger:  logger.Named("chainstate"),
		configs: make(map[domain.ChainID]domain.ChainConfig, len(chains)),
	}
	now := time.Now()
	for _, cfg := range chains {
		c.configs[cfg.ID] = cfg
		c.states.Store(cfg.ID, domain.ChainState{
			Chain:       cfg.ID,
			LastUpdate:  now,
			HealthScore: 100,
			Status:      domain.ChainHealthy,
		})
	}
	return c
}

// Get returns the current ChainState for chain, failing with ChainUnknown
// for unregistered ids (spec §4.1).
func (c *Cache) Get(chain domain.ChainID) (domain.ChainState, error) {
	if _, ok := c.configs[chain]; !ok {
		return domain.ChainState{}, errs.New(errs.ChainUnknown, string(chain))
	}
	v, ok := c.states.Load(chain)
	if !ok {
		return domain.ChainState{}, errs.New(errs.ChainUnknown, string(chain))
	}
	return v.(domain.ChainState), nil
}

// BlockTime returns the configured block time for chain, used by
// RiskAssessor to judge how stale a chain's head is relative to its own
// cadence rather than a fixed threshold.
func (c *Cache) BlockTime(chain domain.ChainID) (time.Duration, bool) {
	cfg, ok := c.configs[chain]
	if !ok {
		return 0, false
	}
	return cfg.BlockTime, true
}

// SnapshotAll returns a copy of every configured chain's current state,
// applying staleness demotion as of now (spec §4.1).
func (c *Cache) SnapshotAll() map[domain.ChainID]domain.ChainState {
	now := time.Now()
	out := make(map[domain.ChainID]domain.ChainState, len(c.configs))
	for id, cfg := range c.configs {
		v, ok := c.states.Load(id)
		if !ok {
			continue
		}
		st := v.(domain.ChainState)
		out[id] = demote(st, cfg.BlockTime, now)
	}
	return out
}

// Apply records an Update from an external adapter, the only mutation path
// into ChainState (spec §4.1).
func (c *Cache) Apply(ctx context.Context, u Update) error {
	cfg, ok := c.configs[u.Chain]
	if !ok {
		return errs.New(errs.ChainUnknown, string(u.Chain))
	}

	health := 100
	status := domain.ChainHealthy
	if !u.Healthy {
		health = 40
		status = domain.ChainUnstable
	}

	st := domain.ChainState{
		Chain:           u.Chain,
		BlockHeight:     u.BlockHeight,
		FinalizedHeight: safeFinalized(u.BlockHeight, cfg.FinalityDepth),
		LastUpdate:      u.Timestamp,
		GasPrice:        u.GasPrice,
		HealthScore:     health,
		Status:          status,
	}
	c.states.Store(u.Chain, demote(st, cfg.BlockTime, time.Now()))
	return nil
}

func safeFinalized(height uint64, depth int) uint64 {
	if depth < 0 || uint64(depth) > height {
		return 0
	}
	return height - uint64(depth)
}

// demote applies the staleness rule: now-last_update > 3x block_time ->
// degraded; > 10x block_time -> offline (spec §4.1). It never promotes a
// status that Apply already set to something worse than healthy.
func demote(st domain.ChainState, blockTime time.Duration, now time.Time) domain.ChainState {
	if st.StaleFor(now, blockTime, 10) {
		st.Status = domain.ChainOffline
		st.HealthScore = 0
		return st
	}
	if st.StaleFor(now, blockTime, 3) {
		if st.Status == domain.ChainHealthy {
			st.Status = domain.ChainDegraded
		}
		if st.HealthScore > 50 {
			st.HealthScore = 50
		}
	}
	return st
}
