package eventbus

import (
	"testing"
	"time"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/riskassessor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := New(4)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	opp := domain.NewArbitrageOpportunity(domain.ArbitrageOpportunity{ID: "opp-1"})
	b.Publish(OpportunityDetected{Opportunity: opp, Timestamp: time.Now()})

	select {
	case e := <-ch:
		require.Equal(t, KindOpportunityDetected, e.Kind())
		got, ok := e.(OpportunityDetected)
		require.True(t, ok)
		assert.Equal(t, "opp-1", got.Opportunity.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(4)
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(RiskAlert{Timestamp: time.Now()})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, KindRiskAlert, e.Kind())
		case <-time.After(time.Second):
			t.Fatal("a subscriber never received the fanned-out event")
		}
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	b := New(4)
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(SyncAnomaly{Timestamp: time.Now()})

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "unsubscribed channel must not be fed")
	case <-time.After(50 * time.Millisecond):
		// expected: no delivery
	}
}

func TestPublishDropsOldestWhenSubscriberInboxIsFull(t *testing.T) {
	b := New(1)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	first := RiskAlert{Alert: riskassessor.Alert{Chain: "first"}, Timestamp: time.Now()}
	second := RiskAlert{Alert: riskassessor.Alert{Chain: "second"}, Timestamp: time.Now()}
	b.Publish(first)
	b.Publish(second) // inbox already full at depth 1; oldest must be dropped

	select {
	case e := <-ch:
		got, ok := e.(RiskAlert)
		require.True(t, ok)
		assert.Equal(t, domain.ChainID("second"), got.Alert.Chain, "publish must never block; the oldest buffered event is dropped")
	case <-time.After(time.Second):
		t.Fatal("subscriber never received any event")
	}

	select {
	case <-ch:
		t.Fatal("only one event should remain buffered after the drop")
	default:
	}
}

func TestPublishNeverBlocksWithNoSubscribers(t *testing.T) {
	b := New(1)
	done := make(chan struct{})
	go func() {
		b.Publish(BridgeAlert{Timestamp: time.Now()})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked despite having no subscribers")
	}
}
