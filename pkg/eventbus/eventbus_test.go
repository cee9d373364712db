package eventbus

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario5Backpressure encodes spec.md's literal Scenario 5:
// capacity 4, publish 10 events, expect the last 4 in order and a drop
// counter of 6.
func TestScenario5Backpressure(t *testing.T) {
	b := New(4)
	h := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Kind: KindFlowUpdated, FlowID: strconv.Itoa(i)})
	}

	got := b.Drain(h)
	require.Len(t, got, 4)
	for i, ev := range got {
		assert.Equal(t, strconv.Itoa(6+i), ev.FlowID)
	}
	assert.EqualValues(t, 6, b.DropCount(h))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(4)
	h := b.Subscribe()
	b.Unsubscribe(h)
	assert.NotPanics(t, func() { b.Unsubscribe(h) })
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishAfterUnsubscribeIsDropped(t *testing.T) {
	b := New(4)
	h := b.Subscribe()
	b.Unsubscribe(h)
	b.Publish(Event{Kind: KindFlowStarted})
	assert.Nil(t, b.Drain(h))
}

func TestOrderingPerFlowIDPreserved(t *testing.T) {
	b := New(10)
	h := b.Subscribe()
	b.Publish(Event{Kind: KindFlowStarted, FlowID: "a"})
	b.Publish(Event{Kind: KindFlowUpdated, FlowID: "b"})
	b.Publish(Event{Kind: KindFlowUpdated, FlowID: "a"})
	b.Publish(Event{Kind: KindFlowCompleted, FlowID: "a"})

	got := b.Drain(h)
	require.Len(t, got, 4)
	var aOrder []Kind
	for _, ev := range got {
		if ev.FlowID == "a" {
			aOrder = append(aOrder, ev.Kind)
		}
	}
	assert.Equal(t, []Kind{KindFlowStarted, KindFlowUpdated, KindFlowCompleted}, aOrder)
}
