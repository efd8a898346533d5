// Package metrics exposes the engine's run-time counters and histograms
// over Prometheus (spec.md's domain-stack expansion — the core spec is
// silent on metrics, but the teacher pack's vjache-cie wires
// prometheus/client_golang behind promhttp for exactly this kind of
// operational surface, and AleutianLocal's trace-cache staleness checker
// (other_examples) shows the counter-per-reason pattern this package
// reuses for check outcomes instead of staleness reasons).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "checks_total",
		Help:      "Checks executed, labeled by outcome (passed, failed, skipped, timeout).",
	}, []string{"outcome"})

	CheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verify",
		Name:      "check_duration_seconds",
		Help:      "Wall-clock duration of a check's command execution.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"check"})

	HashDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verify",
		Name:      "hash_duration_seconds",
		Help:      "Time spent computing a check's content hash.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"check"})

	HashedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "hashed_files_total",
		Help:      "Total number of files fingerprinted across all runs.",
	})
)

func init() {
	prometheus.MustRegister(ChecksTotal, CheckDuration, HashDuration, HashedFiles)
}

// ObserveHash records a hash computation's duration and file count.
func ObserveHash(check string, start time.Time, fileCount int) {
	HashDuration.WithLabelValues(check).Observe(time.Since(start).Seconds())
	HashedFiles.Add(float64(fileCount))
}

// Server optionally exposes /metrics for scraping, gated by --metrics-addr
// (spec.md's external interfaces section treats this as an opt-in,
// non-core surface).
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) a metrics HTTP server on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully. Errors other than http.ErrServerClosed are returned.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
