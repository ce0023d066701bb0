package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the engine. Each instance owns
// its registry so engines and tests can be constructed repeatedly without
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec // labels: kind
	RecordsApplied  prometheus.Counter
	SignalsRejected *prometheus.CounterVec // labels: reason
	OrdersEmitted   prometheus.Counter
	TradesExecuted  prometheus.Counter
	MarginCalls     prometheus.Counter
	FeedReconnects  prometheus.Counter
	RecorderErrors  prometheus.Counter
	FlagWaitDur     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantcore_events_published_total",
			Help: "Events published on the bus (by kind)",
		}, []string{"kind"}),
		RecordsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_records_applied_total",
			Help: "Market records applied to the order book",
		}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantcore_signals_rejected_total",
			Help: "Signal batches rejected by the execution manager (by reason)",
		}, []string{"reason"}),
		OrdersEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_orders_emitted_total",
			Help: "Orders emitted to the broker",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_trades_executed_total",
			Help: "Fills produced by the broker",
		}),
		MarginCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_margin_calls_total",
			Help: "Margin-call conditions detected at end of day",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_feed_reconnects_total",
			Help: "Live feed reconnection attempts",
		}),
		RecorderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantcore_recorder_errors_total",
			Help: "Persistence failures in the recorder",
		}),
		FlagWaitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantcore_flag_wait_duration_seconds",
			Help:    "Time spent waiting on lockstep flags",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.EventsPublished,
		m.RecordsApplied,
		m.SignalsRejected,
		m.OrdersEmitted,
		m.TradesExecuted,
		m.MarginCalls,
		m.FeedReconnects,
		m.RecorderErrors,
		m.FlagWaitDur,
	)

	return m
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
