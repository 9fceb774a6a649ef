package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    ExchangeLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "autotrade",
            Subsystem: "exchange",
            Name:      "latency_seconds",
            Help:      "Latency of exchange REST calls",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"endpoint"},
    )

    ExchangeErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "autotrade",
            Subsystem: "exchange",
            Name:      "errors_total",
            Help:      "Errors by exchange endpoint",
        },
        []string{"endpoint"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(ExchangeLatency, ExchangeErrors)
    })
}
