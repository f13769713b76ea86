package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stealth"

// Recorder collects scanner, broker and broadcast metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	scans           *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	signals         *prometheus.CounterVec
	cooldownRejects prometheus.Counter
	moduleErrors    *prometheus.CounterVec
	fetchErrors     prometheus.Counter
	trades          *prometheus.CounterVec
	openPositions   prometheus.Gauge
	equity          prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	subscribers     prometheus.Gauge
}

// New creates a Recorder with Go and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans by outcome",
		}, []string{"outcome"}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full universe scan",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals stored by tier",
		}, []string{"tier"}),
		cooldownRejects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_rejects_total",
			Help:      "Qualifying signals suppressed by an active cooldown",
		}),
		moduleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_errors_total",
			Help:      "Scoring module failures",
		}, []string{"module"}),
		fetchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Market data fetch failures during scans",
		}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Paper trades by lifecycle event",
		}, []string{"event"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open paper positions",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Cash plus marked value of open positions",
		}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the broadcast hub",
		}, []string{"type"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded from full subscriber queues",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected stream subscribers",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ScanCompleted(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.scans.WithLabelValues(outcome).Inc()
	r.scanDuration.Observe(d.Seconds())
}

func (r *Recorder) SignalStored(tier string) { r.signals.WithLabelValues(tier).Inc() }

func (r *Recorder) CooldownRejected() { r.cooldownRejects.Inc() }

func (r *Recorder) ModuleFailed(module string) { r.moduleErrors.WithLabelValues(module).Inc() }

func (r *Recorder) FetchFailed() { r.fetchErrors.Inc() }

func (r *Recorder) TradeOpened() { r.trades.WithLabelValues("opened").Inc() }

func (r *Recorder) TradeClosed(reason string) { r.trades.WithLabelValues("closed_" + reason).Inc() }

func (r *Recorder) Positions(open int, equity float64) {
	r.openPositions.Set(float64(open))
	r.equity.Set(equity)
}

// EventPublished, EventDropped and SubscribersChanged satisfy broadcast.Metrics.
func (r *Recorder) EventPublished(eventType string) {
	r.eventsPublished.WithLabelValues(eventType).Inc()
}

func (r *Recorder) EventDropped() { r.eventsDropped.Inc() }

func (r *Recorder) SubscribersChanged(n int) { r.subscribers.Set(float64(n)) }
