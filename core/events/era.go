package events

import (
	"strconv"

	"potchain/core/types"
)

const (
	TypeForceEra        = "era.force_era"
	TypeNewEraTriggered = "era.new_era_triggered"
	TypeSessionEnded    = "era.session_ended"
)

// ForceEra records a change of the era forcing mode.
type ForceEra struct {
	Mode string
}

// EventType implements the Event interface.
func (ForceEra) EventType() string { return TypeForceEra }

// Event converts the struct into a types.Event payload.
func (e ForceEra) Event() *types.Event {
	return &types.Event{Type: TypeForceEra, Attributes: map[string]string{"mode": e.Mode}}
}

// NewEraTriggered signals that a session boundary opened a new era.
type NewEraTriggered struct {
	Era          uint32
	StartSession uint32
}

// EventType implements the Event interface.
func (NewEraTriggered) EventType() string { return TypeNewEraTriggered }

// Event converts the struct into a types.Event payload.
func (e NewEraTriggered) Event() *types.Event {
	return &types.Event{Type: TypeNewEraTriggered, Attributes: map[string]string{
		"era":          formatEra(e.Era),
		"startSession": strconv.FormatUint(uint64(e.StartSession), 10),
	}}
}

// SessionEnded records a session end and the reward distribution outcome.
type SessionEnded struct {
	Session uint32
	Era     uint32
	Error   string
}

// EventType implements the Event interface.
func (SessionEnded) EventType() string { return TypeSessionEnded }

// Event converts the struct into a types.Event payload.
func (e SessionEnded) Event() *types.Event {
	attrs := map[string]string{
		"session": strconv.FormatUint(uint64(e.Session), 10),
		"era":     formatEra(e.Era),
	}
	if e.Error != "" {
		attrs["error"] = e.Error
	}
	return &types.Event{Type: TypeSessionEnded, Attributes: attrs}
}
