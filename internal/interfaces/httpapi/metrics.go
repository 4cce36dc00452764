package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is registered on its own registry and doubles as the scanner and
// log fetcher observer.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scans           *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	scanCandidates  prometheus.Histogram
	packsDetected   prometheus.Counter
	scanFailures    prometheus.Counter
	txAnalyzed      *prometheus.CounterVec
	logWindows      *prometheus.CounterVec
	logWindowSize   prometheus.Histogram
	logsFetched     prometheus.Counter
	blockTimes      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packscan_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "packscan_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packscan_scans_total",
			Help: "Wallet scans by candidate source and result.",
		}, []string{"source", "result"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "packscan_scan_duration_seconds",
			Help:    "Wallet scan duration by candidate source.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		scanCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "packscan_scan_candidates",
			Help:    "Candidate transactions analyzed per scan.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 80, 150, 300, 500},
		}),
		packsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packscan_pack_purchases_detected_total",
			Help: "Pack purchases detected across all scans.",
		}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packscan_scan_item_failures_total",
			Help: "Candidates whose analysis failed inside a scan.",
		}),
		txAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packscan_tx_analyzed_total",
			Help: "Transaction analyses by receipt status.",
		}, []string{"status"}),
		logWindows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packscan_log_windows_total",
			Help: "eth_getLogs windows by result.",
		}, []string{"result"}),
		logWindowSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "packscan_log_window_blocks",
			Help:    "Width of eth_getLogs windows in blocks.",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 6),
		}),
		logsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packscan_logs_fetched_total",
			Help: "Logs returned by successful eth_getLogs windows.",
		}),
		blockTimes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "packscan_block_timestamps_total",
			Help: "Block timestamps resolved, by origin.",
		}, []string{"origin"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration,
		m.scans, m.scanDuration, m.scanCandidates, m.packsDetected, m.scanFailures,
		m.txAnalyzed, m.logWindows, m.logWindowSize, m.logsFetched, m.blockTimes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnScanCompleted(source string, candidates, packs, failures int, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.scans.WithLabelValues(source, result).Inc()
	m.scanDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.scanCandidates.Observe(float64(candidates))
	m.packsDetected.Add(float64(packs))
	m.scanFailures.Add(float64(failures))
}

func (m *Metrics) OnTxAnalyzed(status string, err error) {
	if err != nil {
		status = "error"
	}
	if status == "" {
		status = "unknown"
	}
	m.txAnalyzed.WithLabelValues(status).Inc()
}

func (m *Metrics) OnLogWindow(fromBlock, toBlock uint64, logCount int, err error) {
	if err != nil {
		m.logWindows.WithLabelValues("rejected").Inc()
		return
	}
	m.logWindows.WithLabelValues("ok").Inc()
	m.logWindowSize.Observe(float64(toBlock - fromBlock + 1))
	m.logsFetched.Add(float64(logCount))
}

func (m *Metrics) OnBlockTimes(cached, fetched int) {
	m.blockTimes.WithLabelValues("cache").Add(float64(cached))
	m.blockTimes.WithLabelValues("rpc").Add(float64(fetched))
}

func (m *Metrics) observeRequest(route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.observeRequest(route, rec.status, time.Since(started))
	}
}
