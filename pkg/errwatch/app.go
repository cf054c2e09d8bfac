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

// Package errwatch assembles one adapter set (internal/store/postgres,
// internal/telemetry/otel, internal/diagnosis/{anthropic,bedrock},
// internal/notification/{slack,issuetracker,stdout,markdown}) and the core
// decision packages (pkg/core/*) into a single runnable App, consumed by
// cmd/errwatchd and cmd/errwatchctl.
package errwatch

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	otelglobal "go.opentelemetry.io/otel"
	"go.uber.org/zap"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/diagnosis/anthropic"
	"github.com/triagectl/errwatch/internal/diagnosis/bedrock"
	"github.com/triagectl/errwatch/internal/metrics"
	"github.com/triagectl/errwatch/internal/notification/audit"
	"github.com/triagectl/errwatch/internal/notification/issuetracker"
	"github.com/triagectl/errwatch/internal/notification/markdown"
	"github.com/triagectl/errwatch/internal/notification/slack"
	"github.com/triagectl/errwatch/internal/notification/stdout"
	"github.com/triagectl/errwatch/internal/store/postgres"
	"github.com/triagectl/errwatch/internal/store/redislock"
	"github.com/triagectl/errwatch/internal/telemetry/otel"
	"github.com/triagectl/errwatch/internal/triage/policy"
	"github.com/triagectl/errwatch/pkg/core/config"
	"github.com/triagectl/errwatch/pkg/core/fingerprint"
	"github.com/triagectl/errwatch/pkg/core/investigator"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/poll"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/core/scheduler"
	"github.com/triagectl/errwatch/pkg/core/triage"
	"github.com/triagectl/errwatch/pkg/datastorage/repository"
	dsmetrics "github.com/triagectl/errwatch/pkg/datastorage/metrics"
)

// App wires one adapter set into the core and exposes the operations
// cmd/errwatchd and cmd/errwatchctl drive.
type App struct {
	cfg          *config.Config
	store        ports.Store
	scheduler    *scheduler.Scheduler
	investigator *investigator.Investigator
	budget       *scheduler.BudgetTracker
	lock         *redislock.InvestigationLock
	metrics      *metrics.Metrics
	registry     *prometheus.Registry
	logger       *zap.Logger
	auxDB        *sql.DB
}

// New constructs an App from cfg, dialing the store and any configured
// adapters. Callers own the returned App's lifetime and should call Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	otelglobal.SetLogger(zapr.NewLogger(logger))

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.Store.DSN})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(cfg.Store.DSN); err != nil {
		return nil, err
	}

	triageCfg, err := triage.NewConfig(cfg.MinOccurrenceForInvestigation, cfg.IgnoreTags)
	if err != nil {
		return nil, err
	}

	store := postgres.New(pool, logger, triageCfg)

	telemetryClient := otel.New(cfg.Telemetry.BaseURL, cfg.Timeouts.Telemetry())

	diagnosisEngine, err := newDiagnosisEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metricsInstruments := metrics.NewMetricsWithRegistry("errwatch", registry)
	datastorageMetrics := dsmetrics.NewMetricsWithRegistry("errwatch", "datastorage", registry)

	auxDB, err := postgres.OpenSQL(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	auditRepo := repository.NewNotificationAuditRepository(auxDB, logger, datastorageMetrics)
	notifier = audit.New(notifier, cfg.Notification.Provider, auditRepo, logger)

	var lock *redislock.InvestigationLock
	if cfg.Store.RedisAddr != "" {
		lock = redislock.New(redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr}), 2*cfg.Timeouts.Diagnosis())
	}

	budget := scheduler.NewBudgetTracker(cfg.DailyBudgetUsd, nil)

	inv := investigator.New(
		store, telemetryClient, diagnosisEngine, notifier, budget, triageCfg,
		cfg.CodebasePath, cfg.EventsPerFingerprint, logger,
	)

	pollService := poll.New(
		telemetryClient, store, fingerprint.New(), cfg.PollBatchSize,
		time.Duration(cfg.ErrorLookbackMinutes)*time.Minute, cfg.Services, logger,
	)

	sched := scheduler.New(
		pollService, inv, store, budget,
		time.Duration(cfg.PollIntervalSeconds)*time.Second, cfg.MaxConcurrentInvestigations, logger,
	)

	if cfg.Triage.PolicyEnabled {
		services := make([]policy.ServiceMetadata, 0, len(cfg.Triage.Services))
		for _, svc := range cfg.Triage.Services {
			services = append(services, policy.ServiceMetadata{Name: svc.Name, Team: svc.Team, Tier: svc.Tier})
		}
		sched.EnablePolicy(policy.New(), services, triageCfg, cfg.MinOccurrenceForInvestigation)
	}

	return &App{
		cfg: cfg, store: store, scheduler: sched, investigator: inv, budget: budget, lock: lock,
		metrics: metricsInstruments, registry: registry, logger: logger, auxDB: auxDB,
	}, nil
}

func newLogger(cfg config.Logging) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, apperrors.NewInvalidConfigError("logging.level", err.Error())
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func newDiagnosisEngine(ctx context.Context, cfg *config.Config) (ports.Diagnosis, error) {
	switch cfg.Diagnosis.Provider {
	case "bedrock":
		return bedrock.New(ctx, cfg.Diagnosis.AWSRegion, cfg.Diagnosis.Model, cfg.PerDiagnosisBudgetUsd)
	default:
		return anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), cfg.Diagnosis.Model, cfg.PerDiagnosisBudgetUsd), nil
	}
}

func newNotifier(ctx context.Context, cfg *config.Config) (ports.Notification, error) {
	switch cfg.Notification.Provider {
	case "slack":
		return slack.New(cfg.Notification.Slack.BotToken, cfg.Notification.Slack.Channel), nil
	case "issuetracker":
		return issuetracker.New(ctx, issuetracker.Config{
			BaseURL:      cfg.Notification.IssueTracker.BaseURL,
			ClientID:     cfg.Notification.IssueTracker.ClientID,
			ClientSecret: cfg.Notification.IssueTracker.ClientSecret,
			TokenURL:     cfg.Notification.IssueTracker.TokenURL,
			Project:      cfg.Notification.IssueTracker.Project,
		}), nil
	case "markdown":
		return markdown.New(cfg.Notification.OutputDir), nil
	default:
		return stdout.New(os.Stdout), nil
	}
}

// Run drives the daemon loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.scheduler.Run(ctx)
}

// Close releases the App's adapter resources.
func (a *App) Close() error {
	a.auxDB.Close()
	return a.store.Close()
}

// Registry exposes the Prometheus registry the webhook mounts at /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// ListSignatures returns every signature, optionally filtered by status.
func (a *App) ListSignatures(ctx context.Context, status *model.Status) ([]*model.Signature, error) {
	return a.store.GetAll(ctx, status)
}

// ShowSignature returns one signature by ID.
func (a *App) ShowSignature(ctx context.Context, id string) (*model.Signature, error) {
	return a.store.GetByID(ctx, id)
}

// ShowStats returns the aggregate Stats view.
func (a *App) ShowStats(ctx context.Context) (ports.Stats, error) {
	return a.store.GetStats(ctx)
}

// MuteSignature transitions a DIAGNOSED signature to MUTED.
func (a *App) MuteSignature(ctx context.Context, id, reason string) error {
	return a.transition(ctx, id, func(sig *model.Signature) error { return sig.MarkMuted(reason) })
}

// ResolveSignature transitions a DIAGNOSED signature to RESOLVED.
func (a *App) ResolveSignature(ctx context.Context, id, note string) error {
	return a.transition(ctx, id, func(sig *model.Signature) error { return sig.MarkResolved(note) })
}

// RetriageSignature reopens a DIAGNOSED signature back to NEW, clearing its
// diagnosis so the next poll cycle re-investigates from scratch.
func (a *App) RetriageSignature(ctx context.Context, id string) error {
	return a.transition(ctx, id, func(sig *model.Signature) error { return sig.Retriage() })
}

func (a *App) transition(ctx context.Context, id string, apply func(*model.Signature) error) error {
	sig, err := a.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sig == nil {
		return apperrors.NewNotFoundError("signature")
	}
	if err := apply(sig); err != nil {
		return err
	}
	return a.store.Update(ctx, sig)
}

// InvestigateNow dispatches a single, out-of-band investigation of id,
// bypassing the Scheduler's poll cadence. Used by the CLI and the webhook's
// investigateNow endpoint.
func (a *App) InvestigateNow(ctx context.Context, id string) error {
	if a.lock != nil {
		token, ok, err := a.lock.Acquire(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewInProgressError(id)
		}
		defer a.lock.Release(ctx, id, token)
	}
	return a.investigator.Investigate(ctx, id)
}
