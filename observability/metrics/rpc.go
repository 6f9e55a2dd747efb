package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const rpcMeterName = "potchain/rpc"

// RPCMetrics tracks HTTP API traffic. Admin operations are also exported
// through the OpenTelemetry meter installed by the daemon.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	admin    *prometheus.CounterVec

	adminCounter metric.Int64Counter
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// RPC returns the HTTP API metrics registry.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pot_rpc_requests_total",
				Help: "HTTP API requests by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pot_rpc_request_duration_seconds",
				Help:    "HTTP API request latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),
			admin: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pot_rpc_admin_operations_total",
				Help: "Administrative operations by name and outcome.",
			}, []string{"op", "outcome"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency, rpcRegistry.admin)
		rpcRegistry.initMeter()
	})
	return rpcRegistry
}

func (m *RPCMetrics) initMeter() {
	counter, err := otel.GetMeterProvider().Meter(rpcMeterName).Int64Counter("pot.rpc.admin_operations")
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(rpcMeterName).Int64Counter("pot.rpc.admin_operations")
	}
	m.adminCounter = counter
}

// ObserveRequest records one served request.
func (m *RPCMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveAdmin records the outcome of an administrative operation.
func (m *RPCMetrics) ObserveAdmin(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.admin.WithLabelValues(op, outcome).Inc()
	if m.adminCounter != nil {
		m.adminCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
}
