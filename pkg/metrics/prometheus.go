package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fillsTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	signalsTotal  *prometheus.CounterVec
	forcedStops   *prometheus.CounterVec
	openPositions *prometheus.GaugeVec
	capital       *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fillsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_fills_total",
				Help: "Total number of executed fills",
			},
			[]string{"mode", "side", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrade_last_price_krw",
				Help: "Last recorded price for a symbol in KRW",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autotrade_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_signals_total",
				Help: "Total number of strategy signals emitted",
			},
			[]string{"strategy", "kind"},
		),
		forcedStops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrade_forced_stops_total",
				Help: "Total number of strategy runs stopped forcibly",
			},
			[]string{"strategy"},
		),
		openPositions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrade_open_positions",
				Help: "Currently open positions",
			},
			[]string{"mode"},
		),
		capital: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrade_capital_krw",
				Help: "Free cash available for trading in KRW",
			},
			[]string{"mode"},
		),
	}
}

// RecordFill records one executed fill.
func (r *Recorder) RecordFill(mode, side, symbol string) {
	r.fillsTotal.WithLabelValues(mode, side, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSignal records a strategy signal by kind.
func (r *Recorder) RecordSignal(strategy, kind string) {
	r.signalsTotal.WithLabelValues(strategy, kind).Inc()
}

// RecordForcedStop records a run that had to be stopped forcibly.
func (r *Recorder) RecordForcedStop(strategy string) {
	r.forcedStops.WithLabelValues(strategy).Inc()
}

// SetOpenPositions publishes the current open position count.
func (r *Recorder) SetOpenPositions(mode string, count int) {
	r.openPositions.WithLabelValues(mode).Set(float64(count))
}

// SetCapital publishes the current free cash level.
func (r *Recorder) SetCapital(mode string, krw float64) {
	r.capital.WithLabelValues(mode).Set(krw)
}
