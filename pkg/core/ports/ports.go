// Package ports declares the interfaces the core depends on and never
// implements itself — Telemetry, Store, Diagnosis, Notification — per
// spec.md §6. Concrete adapters live under internal/ and import this
// package, never the reverse.
package ports

import (
	"context"
	"time"

	"github.com/triagectl/errwatch/pkg/core/model"
)

// InvestigationContext is the gathered evidence an Investigator assembles
// before calling Diagnosis.Diagnose (spec.md §4.5 step 4).
type InvestigationContext struct {
	Signature        *model.Signature
	RecentEvents     []model.ErrorEvent
	Traces           []model.TraceTree
	CorrelatedLogs   []model.LogEntry
	SimilarSignatures []*model.Signature
	CodebasePath     string
}

// Telemetry is the consumed interface over an observability backend.
type Telemetry interface {
	GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error)
	GetTrace(ctx context.Context, traceID string) (*model.TraceTree, error)
	GetCorrelatedLogs(ctx context.Context, traceIDs []string, window time.Duration) ([]model.LogEntry, error)
	GetEventsForFingerprint(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error)
}

// Stats is the aggregate view returned by Store.GetStats.
type Stats struct {
	Total             int
	ByStatus          map[model.Status]int
	TotalOccurrences  int
	EstimatedSpendUsd float64
	MeanOccurrences   float64
	OccurrenceStdDev  float64
}

// Store is the consumed persistence interface over the Signature aggregate.
type Store interface {
	GetByID(ctx context.Context, id string) (*model.Signature, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error)
	Save(ctx context.Context, sig *model.Signature) error
	Update(ctx context.Context, sig *model.Signature) error
	GetPendingInvestigation(ctx context.Context) ([]*model.Signature, error)
	GetAll(ctx context.Context, status *model.Status) ([]*model.Signature, error)
	GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]*model.Signature, error)
	GetStats(ctx context.Context) (Stats, error)
	Close() error
}

// Diagnosis is the consumed interface over the external LLM diagnosis engine.
type Diagnosis interface {
	Diagnose(ctx context.Context, investigationCtx InvestigationContext) (model.Diagnosis, error)
	EstimateCost(ctx context.Context, investigationCtx InvestigationContext) (float64, error)
}

// Notification is the consumed interface over an alert sink.
type Notification interface {
	Report(ctx context.Context, sig *model.Signature, diagnosis model.Diagnosis) error
	ReportSummary(ctx context.Context, signatures []*model.Signature) error
}
