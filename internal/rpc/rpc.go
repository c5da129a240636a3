// Package rpc is the fan-in hub external REST/notification layers would
// consume: the audit engine, the resource sync engine, and each
// orchestrator kind's engine all publish state-change events here over
// buffered channels, and any number of subscribers can drain them. This
// is the Go expression of the teacher's
// Orchestrator.stateChangeSubscribers / publishStateChangeEvent fan-out,
// generalized from one service-state event type to the four transition
// kinds this control plane produces.
package rpc

import (
	"sync"
	"time"

	"github.com/riddopic/distcloud/pkg/logging"
)

const component = "rpc"

// EventKind classifies a published Event.
type EventKind string

const (
	// EventStrategyTransition fires when the singleton strategy's state
	// changes (initial, applying, aborting, complete, failed, ...).
	EventStrategyTransition EventKind = "strategy_transition"

	// EventStepTransition fires when a per-subcloud strategy step
	// advances to a new named state.
	EventStepTransition EventKind = "step_transition"

	// EventAvailabilityTransition fires when a subcloud's reachability
	// state flips (online/offline).
	EventAvailabilityTransition EventKind = "availability_transition"

	// EventEndpointStatusChange fires when a (subcloud, endpoint) sync
	// classification changes.
	EventEndpointStatusChange EventKind = "endpoint_status_change"
)

// Event is a single state-change notification. Fields not applicable to
// a given Kind are left zero-valued.
type Event struct {
	Kind       EventKind
	SubcloudID int
	Region     string
	Endpoint   string
	Old        string
	New        string
	Details    string
	Timestamp  time.Time
}

// Hub fans Events in from any number of publishers and out to any number
// of subscribers. The zero value is an empty Hub ready for use, the same
// as what NewHub returns.
type Hub struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe returns a channel that receives every Event published after
// the call, buffered so a slow subscriber does not block publishers.
func (h *Hub) Subscribe() <-chan Event {
	ch := make(chan Event, 100)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()
	return ch
}

// Publish fans ev out to every current subscriber. A subscriber whose
// buffer is full is skipped rather than blocking the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	subscribers := make([]chan<- Event, len(h.subscribers))
	copy(subscribers, h.subscribers)
	h.mu.RUnlock()

	for _, sub := range subscribers {
		select {
		case sub <- ev:
		default:
			logging.Debug(component, "subscriber blocked, dropping %s event for subcloud %d", ev.Kind, ev.SubcloudID)
		}
	}
}
