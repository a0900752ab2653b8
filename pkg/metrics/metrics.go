// Package metrics provides Prometheus metrics for issuer sessions.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide metrics registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry holds all issuer metrics on a private Prometheus registry.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	lockDecisions  *prometheus.CounterVec
	forceAcquires  prometheus.Counter
	heartbeats     *prometheus.CounterVec
	replicaOps     *prometheus.CounterVec
	shutdowns      prometheus.Counter
	shutdownErrors prometheus.Counter
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		lockDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "lock_decisions_total",
			Help:      "Startup lock decisions by resulting mode.",
		}, []string{"mode"}),
		forceAcquires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "lock_force_acquires_total",
			Help:      "Forced acquisitions of a zombie lock.",
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "heartbeat_refreshes_total",
			Help:      "Lock heartbeat refreshes by result.",
		}, []string{"result"}),
		replicaOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "replica_operations_total",
			Help:      "Local replica operations by operation and result.",
		}, []string{"op", "result"}),
		shutdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "session_shutdowns_total",
			Help:      "Completed session shutdowns.",
		}),
		shutdownErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "issuer",
			Name:      "session_shutdown_step_errors_total",
			Help:      "Shutdown steps that failed and were skipped over.",
		}),
	}
	r.reg.MustRegister(r.lockDecisions, r.forceAcquires, r.heartbeats, r.replicaOps, r.shutdowns, r.shutdownErrors)
	return r
}

// Gatherer exposes the underlying registry for export.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes all metrics in text exposition format to path.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on ln until ctx ends.
func (r *Registry) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RecordDecision records a startup lock decision.
func (r *Registry) RecordDecision(mode string) {
	if r == nil {
		return
	}
	r.lockDecisions.WithLabelValues(mode).Inc()
}

// RecordForceAcquire records a forced acquisition.
func (r *Registry) RecordForceAcquire() {
	if r == nil {
		return
	}
	r.forceAcquires.Inc()
}

// RecordHeartbeat records one heartbeat refresh.
func (r *Registry) RecordHeartbeat(success bool) {
	if r == nil {
		return
	}
	r.heartbeats.WithLabelValues(result(success)).Inc()
}

// RecordReplicaOp records a replica stage, checkpoint, sync-back or discard.
func (r *Registry) RecordReplicaOp(op string, success bool) {
	if r == nil {
		return
	}
	r.replicaOps.WithLabelValues(op, result(success)).Inc()
}

// RecordShutdown records a completed shutdown and how many of its steps failed.
func (r *Registry) RecordShutdown(failedSteps int) {
	if r == nil {
		return
	}
	r.shutdowns.Inc()
	r.shutdownErrors.Add(float64(failedSteps))
}

// Counters for tests and diagnostics.

// HeartbeatCounter returns the heartbeat counter for result "ok" or "error".
func (r *Registry) HeartbeatCounter(res string) prometheus.Counter {
	return r.heartbeats.WithLabelValues(res)
}

// ReplicaOpCounter returns the replica counter for op and result.
func (r *Registry) ReplicaOpCounter(op, res string) prometheus.Counter {
	return r.replicaOps.WithLabelValues(op, res)
}

// DecisionCounter returns the decision counter for mode.
func (r *Registry) DecisionCounter(mode string) prometheus.Counter {
	return r.lockDecisions.WithLabelValues(mode)
}

func result(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}
