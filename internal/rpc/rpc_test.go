package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFansOutToAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Event{Kind: EventStrategyTransition, New: "complete", Timestamp: time.Now()})

	select {
	case ev := <-a:
		assert.Equal(t, EventStrategyTransition, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}
	select {
	case ev := <-b:
		assert.Equal(t, "complete", ev.New)
	case <-time.After(time.Second):
		t.Fatal("subscriber b did not receive event")
	}
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	for i := 0; i < 200; i++ {
		h.Publish(Event{Kind: EventStepTransition})
	}

	count := 0
drain:
	for {
		select {
		case <-sub:
			count++
		default:
			break drain
		}
	}
	require.LessOrEqual(t, count, 100)
	assert.Greater(t, count, 0)
}
