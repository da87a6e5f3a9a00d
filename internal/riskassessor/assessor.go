// Package riskassessor implements RiskAssessor (spec §4.5): four weighted
// risk sub-scores rolled into one overall 0-100 score per chain, emitting a
// RiskAlert whenever the overall score crosses into a different RiskLevel.
package riskassessor

import (
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/bridgemonitor"
	"github.com/brdgsat/satellite/internal/chainstate"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/logx"
)

// Sub-score weights (spec §4.5): safety 0.35, liquidity 0.25, reliability
// 0.25, security 0.15.
const (
	weightSafety      = 0.35
	weightLiquidity   = 0.25
	weightReliability = 0.25
	weightSecurity    = 0.15
)

// Score is a RiskScore (spec §3): the four sub-scores plus the weighted
// overall and its level.
type Score struct {
	Chain       domain.ChainID
	Safety      float64
	Liquidity   float64
	Reliability float64
	Security    float64
	Overall     float64
	Level       domain.RiskLevel
	UpdatedAt   time.Time
}

// levelFor maps an overall score to a RiskLevel (spec §4.5: >=80 low, >=60
// medium, >=40 high, else critical).
func levelFor(overall float64) domain.RiskLevel {
	switch {
	case overall >= 80:
		return domain.RiskLow
	case overall >= 60:
		return domain.RiskMedium
	case overall >= 40:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

// Alert is a RiskAlert emitted whenever a chain's RiskLevel changes, in
// either direction.
type Alert struct {
	Chain     domain.ChainID
	Previous  domain.RiskLevel
	Current   domain.RiskLevel
	Score     Score
	Timestamp time.Time
}

// Inputs is the minimal read surface RiskAssessor needs from its upstream
// collaborators, kept as an interface so tests can substitute fakes
// without standing up a real ChainStateCache/BridgeMonitor pair.
type Inputs interface {
	ChainState(chain domain.ChainID) (domain.ChainState, time.Duration, bool)
	BridgeStatuses(chain domain.ChainID) []bridgemonitor.Status
}

// liveInputs adapts the real ChainStateCache + BridgeMonitor to Inputs.
type liveInputs struct {
	cache     *chainstate.Cache
	monitor   *bridgemonitor.Monitor
	bridgeIDs map[domain.ChainID][]domain.BridgeID
}

// NewLiveInputs builds an Inputs backed by real components. bridgesByChain
// maps a chain to the bridges that connect to it, since BridgeMonitor is
// indexed by bridge, not by chain.
func NewLiveInputs(cache *chainstate.Cache, monitor *bridgemonitor.Monitor, bridgesByChain map[domain.ChainID][]domain.BridgeID) Inputs {
	return &liveInputs{cache: cache, monitor: monitor, bridgeIDs: bridgesByChain}
}

func (l *liveInputs) ChainState(chain domain.ChainID) (domain.ChainState, time.Duration, bool) {
	st, err := l.cache.Get(chain)
	if err != nil {
		return domain.ChainState{}, 0, false
	}
	blockTime, _ := l.cache.BlockTime(chain)
	return st, blockTime, true
}

func (l *liveInputs) BridgeStatuses(chain domain.ChainID) []bridgemonitor.Status {
	ids := l.bridgeIDs[chain]
	out := make([]bridgemonitor.Status, 0, len(ids))
	for _, id := range ids {
		if st, ok := l.monitor.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

type chainRecord struct {
	score Score
}

type subscriber struct {
	id int
	ch chan Alert
}

// Assessor is RiskAssessor.
type Assessor struct {
	logger *logx.Logger
	in     Inputs

	mu      sync.RWMutex
	records map[domain.ChainID]chainRecord

	subsMu sync.Mutex
	subs   []*subscriber
	nextID int
}

// New constructs an Assessor.
func New(logger *logx.Logger, in Inputs) *Assessor {
	return &Assessor{
		logger:  logger.Named("risk-assessor"),
		in:      in,
		records: make(map[domain.ChainID]chainRecord),
	}
}

// Assess recomputes the four sub-scores and overall RiskLevel for chain,
// emitting an Alert when the level changed (spec §4.5). Called on the
// assessor's `risk.update_interval` tick per chain.
func (a *Assessor) Assess(chain domain.ChainID) Score {
	state, blockTime, haveState := a.in.ChainState(chain)
	bridges := a.in.BridgeStatuses(chain)

	safety := safetyScore(state, haveState)
	liquidity := liquidityScore(bridges)
	reliability := reliabilityScore(state, blockTime, haveState)
	security := securityScore(bridges)

	overall := weightSafety*safety + weightLiquidity*liquidity + weightReliability*reliability + weightSecurity*security

	score := Score{
		Chain:       chain,
		Safety:      safety,
		Liquidity:   liquidity,
		Reliability: reliability,
		Security:    security,
		Overall:     overall,
		Level:       levelFor(overall),
		UpdatedAt:   time.Now(),
	}

	a.mu.Lock()
	prev, existed := a.records[chain]
	a.records[chain] = chainRecord{score: score}
	a.mu.Unlock()

	if existed && prev.score.Level != score.Level {
		a.publish(Alert{
			Chain:     chain,
			Previous:  prev.score.Level,
			Current:   score.Level,
			Score:     score,
			Timestamp: score.UpdatedAt,
		})
	}
	return score
}

// safetyScore rewards a Healthy chain and penalizes staleness/degradation.
func safetyScore(state domain.ChainState, ok bool) float64 {
	if !ok {
		return 0
	}
	switch state.Status {
	case domain.ChainHealthy:
		return 100
	case domain.ChainDegraded:
		return 55
	case domain.ChainUnstable:
		return 30
	default:
		return 0
	}
}

// reliabilityScore looks at how stale the chain's head is relative to its
// own block time, as a proxy for node/RPC reliability.
func reliabilityScore(state domain.ChainState, blockTime time.Duration, ok bool) float64 {
	if !ok || blockTime <= 0 {
		return 0
	}
	age := time.Since(state.LastUpdate)
	switch {
	case age <= 0:
		return 100
	case age < blockTime:
		return 90
	case age < 3*blockTime:
		return 70
	case age < 10*blockTime:
		return 40
	default:
		return 5
	}
}

// liquidityScore and securityScore derive from the connected bridges'
// operational status and anomaly flags — a chain with no bridge
// connectivity data is treated neutrally, not penalized, since isolation
// itself is captured by safety/reliability.
func liquidityScore(bridges []bridgemonitor.Status) float64 {
	if len(bridges) == 0 {
		return 70
	}
	var operational int
	for _, b := range bridges {
		if b.IsOperational {
			operational++
		}
	}
	return 100 * float64(operational) / float64(len(bridges))
}

func securityScore(bridges []bridgemonitor.Status) float64 {
	if len(bridges) == 0 {
		return 85
	}
	score := 100.0
	for _, b := range bridges {
		score -= float64(len(b.AnomalyFlags)) * 5
		if b.LastIncident != nil {
			switch b.LastIncident.Severity {
			case bridgemonitor.SeverityCritical:
				score -= 40
			case bridgemonitor.SeverityHigh:
				score -= 25
			case bridgemonitor.SeverityMedium:
				score -= 10
			case bridgemonitor.SeverityLow:
				score -= 3
			}
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Latest returns the most recently computed Score for chain.
func (a *Assessor) Latest(chain domain.ChainID) (Score, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[chain]
	return rec.score, ok
}

// Subscribe registers a consumer of RiskAlerts.
func (a *Assessor) Subscribe(bufferDepth int) (<-chan Alert, func()) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	s := &subscriber{id: a.nextID, ch: make(chan Alert, bufferDepth)}
	a.nextID++

	next := make([]*subscriber, len(a.subs)+1)
	copy(next, a.subs)
	next[len(a.subs)] = s
	a.subs = next

	return s.ch, func() {
		a.subsMu.Lock()
		defer a.subsMu.Unlock()
		next := make([]*subscriber, 0, len(a.subs))
		for _, sub := range a.subs {
			if sub.id != s.id {
				next = append(next, sub)
			}
		}
		a.subs = next
	}
}

func (a *Assessor) publish(alert Alert) {
	a.subsMu.Lock()
	subs := a.subs
	a.subsMu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- alert:
		default:
		}
	}
}
