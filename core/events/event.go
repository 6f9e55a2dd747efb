package events

import (
	"sync"

	"potchain/core/types"
)

// Event represents a structured state change emitted by the runtime.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can be flattened for subscribers.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Flatten converts an event into its attribute form. Events without a Payload
// implementation are carried with their type only.
func Flatten(evt Event) types.Event {
	if evt == nil {
		return types.Event{}
	}
	if payload, ok := evt.(Payload); ok {
		if flat := payload.Event(); flat != nil {
			out := *flat
			if out.Attributes == nil {
				out.Attributes = map[string]string{}
			}
			return out
		}
	}
	return types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Hub fans emitted events out to subscribers and keeps a bounded backlog of
// the most recent events. Slow subscribers drop events instead of blocking
// the emitter.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	buffer  int
	limit   int
	backlog []types.Event
	subs    map[uint64]chan types.Event
	dropped uint64
}

// NewHub constructs a hub with per-subscriber buffer size and backlog limit.
func NewHub(buffer, backlog int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if backlog < 0 {
		backlog = 0
	}
	return &Hub{
		buffer: buffer,
		limit:  backlog,
		subs:   make(map[uint64]chan types.Event),
	}
}

// Emit implements Emitter.
func (h *Hub) Emit(evt Event) {
	if h == nil || evt == nil {
		return
	}
	flat := Flatten(evt)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	flat.Sequence = h.seq
	if h.limit > 0 {
		h.backlog = append(h.backlog, flat)
		if len(h.backlog) > h.limit {
			h.backlog = append([]types.Event(nil), h.backlog[len(h.backlog)-h.limit:]...)
		}
	}
	for _, ch := range h.subs {
		select {
		case ch <- flat:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function closes
// the channel and must be called once the subscriber is done.
func (h *Hub) Subscribe() (<-chan types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan types.Event, h.buffer)
	h.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns the backlog in emission order.
func (h *Hub) Recent() []types.Event {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Event(nil), h.backlog...)
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Recorder collects events in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event type names in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.EventType()
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Multi fans an event out to several emitters.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
