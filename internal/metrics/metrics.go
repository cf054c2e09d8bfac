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

// Package metrics holds the errwatch daemon's own operational Prometheus
// instruments (SPEC_FULL.md §4.14) — signatures by status, poll cycle
// duration, in-flight investigations, daily budget spent. It is distinct
// from pkg/datastorage/metrics, which instruments the audit-trace write
// path, not the core daemon loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds the daemon's Prometheus instruments, registered against an
// explicit registry so tests never touch the process-global default one.
// The Scheduler, Poll and Investigator code does not update these
// instruments; they report only what a caller sets on them.
type Metrics struct {
	// SignaturesByStatus holds a count of signatures per status label.
	SignaturesByStatus *prometheus.GaugeVec

	// PollCycleDuration observes how long one full poll cycle took.
	PollCycleDuration prometheus.Histogram

	// InvestigationsInFlight tracks the number of investigations currently
	// running concurrently, bounded by max_concurrent_investigations.
	InvestigationsInFlight prometheus.Gauge

	// DailyBudgetSpentUsd reports the running total spent against the daily
	// diagnosis budget, reset at UTC midnight.
	DailyBudgetSpentUsd prometheus.Gauge

	// DiagnosesTotal counts completed diagnoses by outcome
	// (succeeded, budget_exceeded, failed).
	DiagnosesTotal *prometheus.CounterVec
}

// NewMetricsWithRegistry constructs a Metrics and registers it with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignaturesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signatures_by_status",
			Help:      "Current number of signatures in each status.",
		}, []string{"status"}),

		PollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of one full poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),

		InvestigationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "investigations_in_flight",
			Help:      "Number of investigations currently running.",
		}),

		DailyBudgetSpentUsd: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_budget_spent_usd",
			Help:      "Running total spent against the daily diagnosis budget.",
		}),

		DiagnosesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_total",
			Help:      "Completed diagnoses by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SignaturesByStatus, m.PollCycleDuration, m.InvestigationsInFlight,
		m.DailyBudgetSpentUsd, m.DiagnosesTotal,
	)
	return m
}

// Handler returns the HTTP handler the webhook surface mounts at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
