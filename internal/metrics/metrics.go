// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"doctools/internal/logger"
)

var documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "doctools_documents_processed_total",
	Help: "Source documents processed, labelled by outcome.",
}, []string{"status"})

var subDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "doctools_subdocuments_total",
	Help: "Sub-documents produced by splitting, labelled by classification.",
}, []string{"classification"})

var recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "doctools_records_written_total",
	Help: "Records accepted by a sink.",
}, []string{"sink"})

var extractionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "doctools_extraction_duration_seconds",
	Help:    "Latency of extraction service calls.",
	Buckets: []float64{.25, .5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"processor_type"})

var inFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "doctools_documents_in_flight",
	Help: "Documents currently being processed.",
})

// Outcome labels for DocumentProcessed.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

func DocumentProcessed(status string) {
	documentsProcessed.WithLabelValues(status).Inc()
}

func SubDocumentCreated(classification string) {
	subDocuments.WithLabelValues(classification).Inc()
}

func RecordsWritten(sink string, n int) {
	recordsWritten.WithLabelValues(sink).Add(float64(n))
}

func CaptureExtraction(processorType string, elapsed time.Duration) {
	extractionLatency.WithLabelValues(processorType).Observe(elapsed.Seconds())
}

func IncrementInFlight() {
	inFlight.Inc()
}

func DecrementInFlight() {
	inFlight.Dec()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	log := logger.WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
