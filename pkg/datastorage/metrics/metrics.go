/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the datastorage package's Prometheus instruments. Like
// internal/metrics, these are built against an explicit registry rather
// than promauto's default one, so repository tests can assert on them
// without touching the process-global default registry.
type Metrics struct {
	// AuditTracesTotal counts one trace per audit write attempt, labeled by
	// the emitting service and its outcome.
	AuditTracesTotal *prometheus.CounterVec

	// AuditLagSeconds observes the delay between an event occurring and its
	// audit record being durably written, labeled by service.
	AuditLagSeconds *prometheus.HistogramVec

	// WriteDuration observes how long a repository write took, labeled by
	// table name.
	WriteDuration *prometheus.HistogramVec

	// ValidationFailures counts rejected writes, labeled by field and reason.
	ValidationFailures *prometheus.CounterVec
}

// NewMetricsWithRegistry constructs a Metrics and registers it with reg.
// namespace and subsystem follow Prometheus naming convention
// (namespace_subsystem_name); subsystem may be empty.
func NewMetricsWithRegistry(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuditTracesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_traces_total",
			Help:      "Total audit trace write attempts by service and status.",
		}, []string{"service", "status"}),

		AuditLagSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_lag_seconds",
			Help:      "Delay between an event occurring and its audit record being written.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),

		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Duration of a repository write, by table.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),

		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_failures_total",
			Help:      "Rejected writes by field and validation reason.",
		}, []string{"field", "reason"}),
	}

	reg.MustRegister(m.AuditTracesTotal, m.AuditLagSeconds, m.WriteDuration, m.ValidationFailures)
	return m
}
