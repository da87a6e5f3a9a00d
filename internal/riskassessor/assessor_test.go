package riskassessor

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/bridgemonitor"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInputs struct {
	state     domain.ChainState
	blockTime time.Duration
	haveState bool
	bridges   []bridgemonitor.Status
}

func (f *fakeInputs) ChainState(domain.ChainID) (domain.ChainState, time.Duration, bool) {
	return f.state, f.blockTime, f.haveState
}

func (f *fakeInputs) BridgeStatuses(domain.ChainID) []bridgemonitor.Status {
	return f.bridges
}

func TestAssessHealthyChainScoresLowRisk(t *testing.T) {
	in := &fakeInputs{
		state:     domain.ChainState{Status: domain.ChainHealthy, LastUpdate: time.Now()},
		blockTime: 2 * time.Second,
		haveState: true,
		bridges:   []bridgemonitor.Status{{IsOperational: true}},
	}
	a := New(logx.NewNop(), in)
	score := a.Assess("ethereum")

	assert.Equal(t, domain.RiskLow, score.Level)
	assert.Greater(t, score.Overall, 80.0)
}

func TestAssessUnknownChainScoresCritical(t *testing.T) {
	in := &fakeInputs{haveState: false}
	a := New(logx.NewNop(), in)
	score := a.Assess("unknown")

	assert.Equal(t, domain.RiskCritical, score.Level)
	assert.Equal(t, 0.0, score.Safety)
}

func TestAssessEmitsAlertOnLevelChange(t *testing.T) {
	in := &fakeInputs{
		state:     domain.ChainState{Status: domain.ChainHealthy, LastUpdate: time.Now()},
		blockTime: 2 * time.Second,
		haveState: true,
		bridges:   []bridgemonitor.Status{{IsOperational: true}},
	}
	a := New(logx.NewNop(), in)
	ch, unsub := a.Subscribe(4)
	defer unsub()

	a.Assess("ethereum") // establishes baseline, no prior level to compare

	select {
	case <-ch:
		t.Fatal("no alert expected on the first assessment")
	default:
	}

	in.state.Status = domain.ChainOffline
	in.blockTime = 0
	in.bridges = []bridgemonitor.Status{{IsOperational: false, AnomalyFlags: []string{"x", "y", "z"}}}
	a.Assess("ethereum")

	select {
	case alert := <-ch:
		assert.Equal(t, domain.RiskLow, alert.Previous)
		assert.Equal(t, domain.RiskCritical, alert.Current)
	case <-time.After(time.Second):
		t.Fatal("expected a risk alert after the level worsened")
	}

	latest, ok := a.Latest("ethereum")
	require.True(t, ok)
	assert.Equal(t, domain.RiskCritical, latest.Level)
}
