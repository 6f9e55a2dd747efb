package events

import (
	"testing"

	"potchain/core/types"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "test.bare" }

func TestFlatten(t *testing.T) {
	flat := Flatten(SeedTrustAdded{Who: types.AccountID{0x01}})
	if flat.Type != TypeSeedTrustAdded || flat.Attr("who") != (types.AccountID{0x01}).String() {
		t.Fatalf("unexpected flattened event %+v", flat)
	}
	bare := Flatten(bareEvent{})
	if bare.Type != "test.bare" || bare.Attributes == nil {
		t.Fatalf("bare event not carried: %+v", bare)
	}
	if got := Flatten(nil); got.Type != "" {
		t.Fatalf("nil event should flatten to zero value")
	}
}

func TestHubSequencesAndBacklog(t *testing.T) {
	hub := NewHub(4, 2)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Emit(ForceEra{Mode: "force_new"})
	hub.Emit(NewEraTriggered{Era: 1, StartSession: 6})
	hub.Emit(ValidatorsNotChanged{Era: 1})

	for want := uint64(1); want <= 3; want++ {
		evt := <-ch
		if evt.Sequence != want {
			t.Fatalf("sequence %d, want %d", evt.Sequence, want)
		}
	}
	recent := hub.Recent()
	if len(recent) != 2 || recent[0].Type != TypeNewEraTriggered || recent[1].Type != TypeValidatorsNotChanged {
		t.Fatalf("unexpected backlog %+v", recent)
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub(1, 0)
	_, cancel := hub.Subscribe()
	hub.Emit(ForceEra{Mode: "force_none"})
	hub.Emit(ForceEra{Mode: "force_none"})
	if hub.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", hub.Dropped())
	}
	cancel()
	cancel()
	hub.Emit(ForceEra{Mode: "force_none"})
	if hub.Dropped() != 1 {
		t.Fatalf("cancelled subscriber should not count drops")
	}
	if hub.Recent() != nil {
		t.Fatalf("backlog disabled but events retained")
	}
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Emit(SeedTrustNumChanged{Old: 1, New: 2})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("multi did not fan out")
	}
	if kinds := a.Types(); kinds[0] != TypeSeedTrustNumChanged {
		t.Fatalf("unexpected types %v", kinds)
	}
	a.Reset()
	if len(a.Events()) != 0 {
		t.Fatalf("reset did not clear")
	}
	NoopEmitter{}.Emit(bareEvent{})
}
