// Copyright 2025 LumenFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus counters for the orchestration
// kernel's own operations — claims, completions, lock conflicts,
// recovery escalations, sandbox invocations — ambient observability
// the distilled spec's Non-goals exclude only for control-plane sync,
// not local metrics (SPEC_FULL.md Part D).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the fixed set of counters/histograms LumenFlow's
// kernel emits, mirroring the teacher's pkg/observability.Metrics
// per-subsystem grouping but scoped to the governance domain.
type Metrics struct {
	registry *prometheus.Registry

	wuClaims      *prometheus.CounterVec
	wuCompletions *prometheus.CounterVec
	wuBlocks      *prometheus.CounterVec
	wuCancels     *prometheus.CounterVec

	lockConflicts *prometheus.CounterVec

	recoveryEscalations *prometheus.CounterVec
	recoverySeverity    *prometheus.CounterVec

	sandboxInvocations *prometheus.CounterVec

	mergeDuration *prometheus.HistogramVec
	mergeRetries  *prometheus.CounterVec
}

// New creates a fresh Metrics instance registered on its own
// registry, so multiple workspaces in one process never collide.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.wuClaims = m.counter("wu", "claims_total", "Total work unit claim events", "lane")
	m.wuCompletions = m.counter("wu", "completions_total", "Total work unit complete events", "lane")
	m.wuBlocks = m.counter("wu", "blocks_total", "Total work unit block events", "lane")
	m.wuCancels = m.counter("wu", "cancels_total", "Total work unit cancel events", "lane")

	m.lockConflicts = m.counter("lanes", "lock_conflicts_total", "Total lane WIP/lock conflicts rejected at claim time", "lane")

	m.recoveryEscalations = m.counter("recovery", "escalations_total", "Total stuck-spawn escalations", "classification")
	m.recoverySeverity = m.counter("recovery", "escalations_by_severity_total", "Escalations broken down by severity", "severity")

	m.sandboxInvocations = m.counter("sandbox", "invocations_total", "Total sandboxed command invocations", "backend", "enforced")

	m.mergeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lumenflow",
		Subsystem: "worktree",
		Name:      "merge_duration_seconds",
		Help:      "Duration of the complete() merge sequence in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"lane"})
	m.registry.MustRegister(m.mergeDuration)

	m.mergeRetries = m.counter("worktree", "merge_retries_total", "Total fast-forward merge retry attempts", "lane")

	return m
}

func (m *Metrics) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumenflow",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	m.registry.MustRegister(c)
	return c
}

// ObserveClaim increments the claims counter for lane.
func (m *Metrics) ObserveClaim(lane string) { m.wuClaims.WithLabelValues(lane).Inc() }

// ObserveCompletion increments the completions counter for lane.
func (m *Metrics) ObserveCompletion(lane string) { m.wuCompletions.WithLabelValues(lane).Inc() }

// ObserveBlock increments the blocks counter for lane.
func (m *Metrics) ObserveBlock(lane string) { m.wuBlocks.WithLabelValues(lane).Inc() }

// ObserveCancel increments the cancels counter for lane.
func (m *Metrics) ObserveCancel(lane string) { m.wuCancels.WithLabelValues(lane).Inc() }

// ObserveLockConflict increments the lock-conflict counter for lane.
func (m *Metrics) ObserveLockConflict(lane string) { m.lockConflicts.WithLabelValues(lane).Inc() }

// ObserveEscalation records a recovery escalation by classification
// and severity.
func (m *Metrics) ObserveEscalation(classification, severity string) {
	m.recoveryEscalations.WithLabelValues(classification).Inc()
	m.recoverySeverity.WithLabelValues(severity).Inc()
}

// ObserveSandboxInvocation records a sandbox backend invocation.
func (m *Metrics) ObserveSandboxInvocation(backendID string, enforced bool) {
	enforcedLabel := "false"
	if enforced {
		enforcedLabel = "true"
	}
	m.sandboxInvocations.WithLabelValues(backendID, enforcedLabel).Inc()
}

// ObserveMergeDuration records how long a complete() merge sequence
// took for lane.
func (m *Metrics) ObserveMergeDuration(lane string, seconds float64) {
	m.mergeDuration.WithLabelValues(lane).Observe(seconds)
}

// ObserveMergeRetry increments the merge-retry counter for lane.
func (m *Metrics) ObserveMergeRetry(lane string) { m.mergeRetries.WithLabelValues(lane).Inc() }

// Handler returns the Prometheus scrape endpoint handler, served by
// the "lumenflow serve" command (SPEC_FULL.md Part D).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
