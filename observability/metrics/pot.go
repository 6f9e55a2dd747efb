package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PotMetrics tracks vote accumulation, fee settlement and election activity.
type PotMetrics struct {
	votesAccumulated  *prometheus.CounterVec
	staleVotes        prometheus.Counter
	feePayments       *prometheus.CounterVec
	elections         *prometheus.CounterVec
	eraIndex          prometheus.Gauge
	ledgerEntries     prometheus.Gauge
	registeredTokens  prometheus.Gauge
	electedValidators *prometheus.GaugeVec
}

var (
	potOnce     sync.Once
	potRegistry *PotMetrics
)

// Pot returns the process-wide metrics registry, registering collectors with
// the default Prometheus registerer on first use.
func Pot() *PotMetrics {
	potOnce.Do(func() {
		potRegistry = &PotMetrics{
			votesAccumulated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pot_votes_accumulated_total",
				Help: "Count of vote weight updates applied to the ledger by system token.",
			}, []string{"token"}),
			staleVotes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pot_stale_votes_total",
				Help: "Count of votes dropped because the ledger reached its entry cap.",
			}),
			feePayments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pot_fee_payments_total",
				Help: "Count of fee payments by outcome.",
			}, []string{"outcome"}),
			elections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pot_elections_total",
				Help: "Count of election runs by outcome.",
			}, []string{"outcome"}),
			eraIndex: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pot_era_index",
				Help: "Index of the active era.",
			}),
			ledgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pot_ledger_entries",
				Help: "Number of distinct (token, candidate) entries in the vote ledger.",
			}),
			registeredTokens: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pot_registered_tokens",
				Help: "Number of registered system tokens.",
			}),
			electedValidators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "pot_elected_validators",
				Help: "Size of the last elected validator set by slice.",
			}, []string{"slice"}),
		}
		prometheus.MustRegister(
			potRegistry.votesAccumulated,
			potRegistry.staleVotes,
			potRegistry.feePayments,
			potRegistry.elections,
			potRegistry.eraIndex,
			potRegistry.ledgerEntries,
			potRegistry.registeredTokens,
			potRegistry.electedValidators,
		)
	})
	return potRegistry
}

func (m *PotMetrics) ObserveVote(token string) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.votesAccumulated.WithLabelValues(token).Inc()
}

func (m *PotMetrics) ObserveStaleVote() {
	if m == nil {
		return
	}
	m.staleVotes.Inc()
}

func (m *PotMetrics) ObserveFeePayment(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.feePayments.WithLabelValues(outcome).Inc()
}

func (m *PotMetrics) ObserveElection(outcome string) {
	if m == nil {
		return
	}
	m.elections.WithLabelValues(outcome).Inc()
}

func (m *PotMetrics) SetEra(era uint32) {
	if m == nil {
		return
	}
	m.eraIndex.Set(float64(era))
}

func (m *PotMetrics) SetLedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}

func (m *PotMetrics) SetRegisteredTokens(n int) {
	if m == nil {
		return
	}
	m.registeredTokens.Set(float64(n))
}

// SetElected records the sizes of the seed trust and PoT slices.
func (m *PotMetrics) SetElected(seed, pot int) {
	if m == nil {
		return
	}
	m.electedValidators.WithLabelValues("seed").Set(float64(seed))
	m.electedValidators.WithLabelValues("pot").Set(float64(pot))
}
