// Package metrics holds the Prometheus collectors of the quoter, feed and REST client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quoter"

// Metrics 指标集合
type Metrics struct {
	// REST
	RESTRequestsTotal   *prometheus.CounterVec
	RESTRequestDuration *prometheus.HistogramVec

	// feed
	WSMessagesTotal   *prometheus.CounterVec
	WSReconnectsTotal prometheus.Counter
	WSPingsTotal      prometheus.Counter
	BestBid           prometheus.Gauge
	BestAsk           prometheus.Gauge

	// quoter
	RequotesTotal  prometheus.Counter
	SkippedTotal   *prometheus.CounterVec
	OrderErrors    *prometheus.CounterVec
	QuotedBid      prometheus.Gauge
	QuotedAsk      prometheus.Gauge
	ShutdownCancel prometheus.Counter
}

// New creates an unregistered set of collectors labelled with the traded symbol.
func New(symbol string) *Metrics {
	labels := prometheus.Labels{"symbol": symbol}
	return &Metrics{
		RESTRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rest",
			Name:        "requests_total",
			Help:        "REST requests by endpoint and outcome",
			ConstLabels: labels,
		}, []string{"endpoint", "outcome"}),
		RESTRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "rest",
			Name:        "request_duration_seconds",
			Help:        "REST round trip in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"endpoint"}),

		WSMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "messages_total",
			Help:        "WebSocket frames received by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		WSReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "reconnects_total",
			Help:        "WebSocket reconnect attempts",
			ConstLabels: labels,
		}),
		WSPingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "app_pings_total",
			Help:        "Application pings sent",
			ConstLabels: labels,
		}),
		BestBid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "best_bid",
			Help:        "Last observed best bid",
			ConstLabels: labels,
		}),
		BestAsk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        "best_ask",
			Help:        "Last observed best ask",
			ConstLabels: labels,
		}),

		RequotesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "requotes_total",
			Help:        "Cancel and replace rounds issued",
			ConstLabels: labels,
		}),
		SkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "skipped_ticks_total",
			Help:        "Ticks skipped by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		OrderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "order_errors_total",
			Help:        "Failed cancel or place calls by operation",
			ConstLabels: labels,
		}, []string{"op"}),
		QuotedBid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "quoted_bid",
			Help:        "Bid believed to be resting",
			ConstLabels: labels,
		}),
		QuotedAsk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "quoted_ask",
			Help:        "Ask believed to be resting",
			ConstLabels: labels,
		}),
		ShutdownCancel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "shutdown_cancels_total",
			Help:        "Cancel-all calls issued by the shutdown handler",
			ConstLabels: labels,
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.RESTRequestsTotal,
		m.RESTRequestDuration,
		m.WSMessagesTotal,
		m.WSReconnectsTotal,
		m.WSPingsTotal,
		m.BestBid,
		m.BestAsk,
		m.RequotesTotal,
		m.SkippedTotal,
		m.OrderErrors,
		m.QuotedBid,
		m.QuotedAsk,
		m.ShutdownCancel,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
