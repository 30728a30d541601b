// Package metrics provides lightweight in-process counters for the
// gateway: per-method call timing and auth rejection counts. Snapshots are
// exposed through the structured log on shutdown.
package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// MethodMetrics tracks one JSON-RPC method.
type MethodMetrics struct {
	Name          string        `json:"name"`
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	LastExecution time.Time     `json:"last_execution"`
}

// Monitor aggregates gateway metrics. Safe for concurrent use.
type Monitor struct {
	mu           sync.Mutex
	methods      map[string]*MethodMetrics
	authFailures map[string]int64
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		methods:      make(map[string]*MethodMetrics),
		authFailures: make(map[string]int64),
	}
}

// ObserveMethod records one dispatched call.
func (m *Monitor) ObserveMethod(method string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.methods[method]
	if !ok {
		metrics = &MethodMetrics{Name: method}
		m.methods[method] = metrics
	}
	metrics.Count++
	if !success {
		metrics.Errors++
	}
	metrics.TotalDuration += duration
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
	metrics.LastExecution = time.Now()
}

// RecordAuthFailure counts a gate rejection by reason category.
func (m *Monitor) RecordAuthFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures[reason]++
}

// MethodSnapshot returns a copy of the per-method metrics.
func (m *Monitor) MethodSnapshot() map[string]MethodMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]MethodMetrics, len(m.methods))
	for name, metrics := range m.methods {
		snapshot[name] = *metrics
	}
	return snapshot
}

// AuthFailureSnapshot returns a copy of the rejection counters.
func (m *Monitor) AuthFailureSnapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]int64, len(m.authFailures))
	for reason, count := range m.authFailures {
		snapshot[reason] = count
	}
	return snapshot
}

// LogSummary writes the aggregated counters to logger.
func (m *Monitor) LogSummary(logger *slog.Logger) {
	for name, metrics := range m.MethodSnapshot() {
		average := time.Duration(0)
		if metrics.Count > 0 {
			average = metrics.TotalDuration / time.Duration(metrics.Count)
		}
		logger.Info("method metrics",
			"method", name,
			"count", metrics.Count,
			"errors", metrics.Errors,
			"avg_duration", average,
			"max_duration", metrics.MaxDuration,
		)
	}
	for reason, count := range m.AuthFailureSnapshot() {
		logger.Info("auth rejection metrics", "reason", reason, "count", count)
	}
}
