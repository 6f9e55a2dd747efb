package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPotMetricsRecordObservations(t *testing.T) {
	m := Pot()
	if m != Pot() {
		t.Fatalf("expected singleton registry")
	}

	before := testutil.ToFloat64(m.staleVotes)
	m.ObserveStaleVote()
	if got := testutil.ToFloat64(m.staleVotes); got != before+1 {
		t.Fatalf("stale votes: got %v want %v", got, before+1)
	}

	m.ObserveVote("")
	if got := testutil.ToFloat64(m.votesAccumulated.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected unknown token label to be counted, got %v", got)
	}

	m.SetEra(7)
	if got := testutil.ToFloat64(m.eraIndex); got != 7 {
		t.Fatalf("era gauge: got %v", got)
	}

	m.SetElected(2, 3)
	if got := testutil.ToFloat64(m.electedValidators.WithLabelValues("pot")); got != 3 {
		t.Fatalf("pot slice gauge: got %v", got)
	}

	var nilMetrics *PotMetrics
	nilMetrics.ObserveElection("elected")
	nilMetrics.SetLedgerEntries(1)
}
