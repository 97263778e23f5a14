// Package metrics exposes ingestion metrics in Prometheus format.
//
// Each Metrics value owns its registry, so tests and multiple commands in
// one process never collide on registration.
//
//	m := metrics.New()
//	store = metrics.InstrumentStore(store, m)
//	p := pipeline.NewPipeline(store, tables, factory, pipeline.WithRecorder(m))
//	go m.Serve(ctx, ":9108", logger)
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/coinlake/internal/logging"
)

const namespace = "coinlake"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	rowsWritten   prometheus.Counter
	objectBytes   *prometheus.CounterVec
	objectOps     *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30, 120},
			},
			[]string{"stage", "outcome"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Pipeline runs by outcome.",
			},
			[]string{"outcome"},
		),
		rowsWritten: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Rows committed to tables.",
			},
		),
		objectBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "object_bytes_total",
				Help:      "Bytes moved to and from the object store.",
			},
			[]string{"direction"},
		),
		objectOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "object_operations_total",
				Help:      "Object store operations by kind and outcome.",
			},
			[]string{"op", "outcome"},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// RunFinished counts a finished pipeline run.
func (m *Metrics) RunFinished(err error) {
	m.runs.WithLabelValues(outcome(err)).Inc()
}

// RowsWritten counts committed rows.
func (m *Metrics) RowsWritten(n int64) {
	if n > 0 {
		m.rowsWritten.Add(float64(n))
	}
}

func (m *Metrics) objectOp(op string, err error) {
	m.objectOps.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) bytesIn(n int64) {
	m.objectBytes.WithLabelValues("in").Add(float64(n))
}

func (m *Metrics) bytesOut(n int64) {
	m.objectBytes.WithLabelValues("out").Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	logger = logging.OrComponent(logger, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
			return err
		}
		return nil
	}
}
