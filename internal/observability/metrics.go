package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	journalsPosted  *prometheus.CounterVec
	stockMovements  *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	integrityErrors *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_journal_entries_total",
		Help: "Jumlah jurnal yang diposting per tipe dokumen.",
	}, []string{"document_type"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_movements_total",
		Help: "Jumlah baris stock ledger per jenis mutasi.",
	}, []string{"kind"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rejected_operations_total",
		Help: "Operasi yang ditolak per modul dan kode alasan.",
	}, []string{"module", "code"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_integrity_failures_total",
		Help: "Pelanggaran integritas ledger yang terdeteksi.",
	}, []string{"check"})
	registry.MustRegister(requests, duration, journals, movements, rejections, integrity)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		journalsPosted:  journals,
		stockMovements:  movements,
		rejections:      rejections,
		integrityErrors: integrity,
	}
}

// JournalPosted menghitung jurnal yang berhasil diposting.
func (m *Metrics) JournalPosted(documentType string) {
	if m == nil {
		return
	}
	m.journalsPosted.WithLabelValues(documentType).Inc()
}

// StockMovement menghitung baris stock ledger baru.
func (m *Metrics) StockMovement(kind string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(kind).Inc()
}

// Rejected menghitung operasi yang ditolak karena validasi atau konflik.
func (m *Metrics) Rejected(module, code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(module, code).Inc()
}

// IntegrityFailure menghitung pelanggaran integritas.
func (m *Metrics) IntegrityFailure(check string) {
	if m == nil {
		return
	}
	m.integrityErrors.WithLabelValues(check).Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
