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

// Package webhook exposes a thin HTTP surface over the core daemon:
// investigateNow and showStats, plus the Prometheus /metrics endpoint
// (SPEC_FULL.md §6.1). It delegates every decision to the pkg/errwatch
// facade; it contains no triage or investigation logic of its own.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/metrics"
	"github.com/triagectl/errwatch/pkg/core/ports"
)

// App is the subset of pkg/errwatch.App the webhook depends on.
type App interface {
	InvestigateNow(ctx context.Context, id string) error
	ShowStats(ctx context.Context) (ports.Stats, error)
	Registry() *prometheus.Registry
}

// NewRouter builds the chi router backing the webhook surface.
func NewRouter(app App) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/investigate/{signatureID}", investigateNowHandler(app))
	r.Get("/stats", showStatsHandler(app))
	r.Handle("/metrics", metrics.Handler(app.Registry()))

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func investigateNowHandler(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "signatureID")
		if id == "" {
			writeError(w, http.StatusBadRequest, "signatureID is required")
			return
		}

		if err := app.InvestigateNow(r.Context(), id); err != nil {
			writeError(w, apperrors.GetStatusCode(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func showStatsHandler(app App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := app.ShowStats(r.Context())
		if err != nil {
			writeError(w, apperrors.GetStatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
