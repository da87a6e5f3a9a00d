// Package bridgemonitor implements BridgeMonitor (spec §4.4): per-bridge
// health polling, an EWMA-based response-time anomaly detector, and an
// incident log, with a copy-on-write alert-subscriber list so delivery
// never blocks updates (spec §5).
package bridgemonitor

import (
	"math"
	"sync"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/logx"
)

// HealthSample is one poll result fed into the monitor.
type HealthSample struct {
	Bridge       domain.BridgeID
	Timestamp    time.Time
	IsOperational bool
	ResponseTime time.Duration
	Errors       []string
}

// IncidentClass and IncidentSeverity are the spec §4.4 classification axes.
type IncidentClass string

const (
	IncidentExploit    IncidentClass = "exploit"
	IncidentBug        IncidentClass = "bug"
	IncidentDowntime   IncidentClass = "downtime"
	IncidentGovernance IncidentClass = "governance"
)

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

// Incident is one recorded entry in the incident log.
type Incident struct {
	Bridge    domain.BridgeID
	Class     IncidentClass
	Severity  IncidentSeverity
	Message   string
	Timestamp time.Time
}

// Alert is the latency-anomaly notification delivered to subscribers.
type Alert struct {
	Bridge    domain.BridgeID
	Timestamp time.Time
	Reason    string
	Sample    HealthSample
}

// Status is BridgeStatus (spec §3), the read model exposed to RiskAssessor
// and the ExecutionPlanner.
type Status struct {
	Bridge         domain.BridgeID
	IsOperational  bool
	CurrentTVL     float64
	Volume7d       float64
	AvgLatency     time.Duration
	AnomalyFlags   []string
	LastIncident   *Incident
}

// ewma tracks the exponentially weighted mean/variance of response times
// for the consecutive-window anomaly rule (spec §4.4: "exceeds mean + 3
// stddev for three consecutive windows").
type ewma struct {
	alpha          float64
	mean           float64
	variance       float64
	initialized    bool
	aboveThreshold int // consecutive windows above mean+3*stddev
}

func (e *ewma) observe(x float64) (anomalous bool) {
	if !e.initialized {
		e.mean = x
		e.variance = 0
		e.initialized = true
		return false
	}

	stddev := math.Sqrt(e.variance)
	threshold := e.mean + 3*stddev
	above := x > threshold && e.variance > 0

	// Update mean/variance using the standard EWMA variance recurrence, from
	// in-band samples only: a run of anomalous samples is measured against
	// the baseline that preceded it rather than inflating that baseline.
	if !above {
		diff := x - e.mean
		incr := e.alpha * diff
		e.mean += incr
		e.variance = (1 - e.alpha) * (e.variance + diff*incr)
	}

	if above {
		e.aboveThreshold++
	} else {
		e.aboveThreshold = 0
	}
	return e.aboveThreshold >= 3
}

type bridgeState struct {
	mu         sync.Mutex
	ewma       *ewma
	status     Status
	incidents  []Incident
	samples    int
}

type alertSub struct {
	id int
	ch chan Alert
}

// Monitor is BridgeMonitor.
type Monitor struct {
	logger         *logx.Logger
	alertRetention time.Duration

	mu       sync.RWMutex
	bridges  map[domain.BridgeID]*bridgeState
	subsMu   sync.Mutex
	subs     []*alertSub
	nextSubID int
}

// New constructs a Monitor for the given bridges.
func New(logger *logx.Logger, bridgeIDs []domain.BridgeID, alertRetention time.Duration) *Monitor {
	m := &Monitor{
		logger:         logger.Named("bridge-monitor"),
		alertRetention: alertRetention,
		bridges:        make(map[domain.BridgeID]*bridgeState, len(bridgeIDs)),
	}
	for _, id := range bridgeIDs {
		m.bridges[id] = &bridgeState{
			ewma:   &ewma{alpha: 0.3},
			status: Status{Bridge: id, IsOperational: true},
		}
	}
	return m
}

// Record ingests one poll result, updates the anomaly detector, and emits
// an Alert to subscribers when three consecutive windows exceed mean+3σ.
func (m *Monitor) Record(s HealthSample) {
	m.mu.RLock()
	bs, ok := m.bridges[s.Bridge]
	m.mu.RUnlock()
	if !ok {
		return
	}

	bs.mu.Lock()
	bs.samples++
	bs.status.IsOperational = s.IsOperational
	bs.status.AvgLatency = runningAvgDuration(bs.status.AvgLatency, bs.samples, s.ResponseTime)
	anomalous := bs.ewma.observe(float64(s.ResponseTime.Milliseconds()))
	if anomalous {
		bs.status.AnomalyFlags = appendCapped(bs.status.AnomalyFlags, "latency_anomaly", 50)
	}
	bs.mu.Unlock()

	if anomalous {
		m.publish(Alert{
			Bridge:    s.Bridge,
			Timestamp: s.Timestamp,
			Reason:    "response time exceeded mean+3stddev for 3 consecutive windows",
			Sample:    s,
		})
	}
}

func runningAvgDuration(prevAvg time.Duration, n int, sample time.Duration) time.Duration {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/time.Duration(n)
}

func appendCapped(flags []string, flag string, cap int) []string {
	flags = append(flags, flag)
	if len(flags) > cap {
		flags = flags[len(flags)-cap:]
	}
	return flags
}

// RecordIncident appends a classified incident to the bridge's log.
func (m *Monitor) RecordIncident(inc Incident) {
	m.mu.RLock()
	bs, ok := m.bridges[inc.Bridge]
	m.mu.RUnlock()
	if !ok {
		return
	}
	bs.mu.Lock()
	bs.incidents = m.prune(append(bs.incidents, inc))
	incCopy := inc
	bs.status.LastIncident = &incCopy
	bs.mu.Unlock()
}

// prune drops incidents older than alert_retention (spec §4.4).
func (m *Monitor) prune(incidents []Incident) []Incident {
	if m.alertRetention <= 0 {
		return incidents
	}
	cutoff := time.Now().Add(-m.alertRetention)
	out := incidents[:0:0]
	for _, inc := range incidents {
		if inc.Timestamp.After(cutoff) {
			out = append(out, inc)
		}
	}
	return out
}

// Status returns the current BridgeStatus for a bridge.
func (m *Monitor) Status(bridge domain.BridgeID) (Status, bool) {
	m.mu.RLock()
	bs, ok := m.bridges[bridge]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.status, true
}

// IsOperational reports whether bridge was operational as of its last poll.
func (m *Monitor) IsOperational(bridge domain.BridgeID) bool {
	st, ok := m.Status(bridge)
	return ok && st.IsOperational
}

// Subscribe registers a consumer of anomaly alerts; the subscriber list is
// copy-on-write so Record never blocks on a slow reader configuring
// itself (spec §5).
func (m *Monitor) Subscribe(bufferDepth int) (<-chan Alert, func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	s := &alertSub{id: m.nextSubID, ch: make(chan Alert, bufferDepth)}
	m.nextSubID++

	next := make([]*alertSub, len(m.subs)+1)
	copy(next, m.subs)
	next[len(m.subs)] = s
	m.subs = next

	return s.ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		next := make([]*alertSub, 0, len(m.subs))
		for _, sub := range m.subs {
			if sub.id != s.id {
				next = append(next, sub)
			}
		}
		m.subs = next
	}
}

func (m *Monitor) publish(a Alert) {
	m.subsMu.Lock()
	subs := m.subs
	m.subsMu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- a:
		default:
		}
	}
}
