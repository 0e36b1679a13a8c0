package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/local/cbzbinder/internal/imposition"
)

var (
    mergesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cbzbinder",
            Name:      "merges_total",
            Help:      "Total merge runs by result (success, failed, dlq, cancelled)",
        },
        []string{"result"},
    )

    mergeLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "cbzbinder",
            Name:      "merge_duration_seconds",
            Help:      "Duration of merge runs",
            Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
        },
    )

    pagesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cbzbinder",
            Name:      "pages_total",
            Help:      "Pages laid out, by kind (single, spread)",
        },
        []string{"kind"},
    )

    blanksTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cbzbinder",
            Name:      "blank_slots_total",
            Help:      "Blank slots inserted, by kind (gap, pad)",
        },
        []string{"kind"},
    )

    sheetsTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "cbzbinder",
            Name:      "sheets_total",
            Help:      "Physical sheets imposed",
        },
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "cbzbinder",
            Name:      "retries_total",
            Help:      "Total number of merge job retries",
        },
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "cbzbinder",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )

    initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(mergesTotal, mergeLatency, pagesTotal, blanksTotal, sheetsTotal, retriesTotal, queueDepth)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// WriteTextfile dumps the registry in text exposition format, for one-shot
// CLI runs picked up by a node exporter textfile collector.
func WriteTextfile(path string) error {
    return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

func ObserveMerge(result string, dur time.Duration) {
    mergesTotal.WithLabelValues(result).Inc()
    if result == "success" { mergeLatency.Observe(dur.Seconds()) }
}

// ObserveLayout records what the engine placed for one run.
func ObserveLayout(st imposition.Stats) {
    pagesTotal.WithLabelValues("single").Add(float64(st.Singles))
    pagesTotal.WithLabelValues("spread").Add(float64(st.Spreads))
    blanksTotal.WithLabelValues("gap").Add(float64(st.Gaps))
    blanksTotal.WithLabelValues("pad").Add(float64(st.Pads))
    sheetsTotal.Add(float64(st.Sheets))
}

func IncRetry() { retriesTotal.Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
