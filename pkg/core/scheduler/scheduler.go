// Package scheduler drives Poll and Investigator on a cadence, enforces the
// daily budget, and responds to cancellation, per spec.md §4.7.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/triage/policy"
	"github.com/triagectl/errwatch/pkg/core/investigator"
	"github.com/triagectl/errwatch/pkg/core/poll"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/core/triage"
)

// BudgetTracker is an in-memory, UTC-midnight-resetting accumulator of
// reported diagnosis cost. Record is called by the Investigator from
// concurrently running investigations and Spent/Exceeded by the Scheduler;
// all of them go through one mutex per spec.md §5's shared-mutable-resource
// rule.
type BudgetTracker struct {
	mu         sync.Mutex
	dailyLimit float64
	spent      float64
	day        time.Time // UTC midnight of the currently-tracked day
	now        func() time.Time
}

// NewBudgetTracker constructs a tracker against dailyLimit. now defaults to
// time.Now when nil, overridable for deterministic tests.
func NewBudgetTracker(dailyLimit float64, now func() time.Time) *BudgetTracker {
	if now == nil {
		now = time.Now
	}
	return &BudgetTracker{dailyLimit: dailyLimit, day: utcMidnight(now()), now: now}
}

func utcMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (b *BudgetTracker) rolloverLocked() {
	today := utcMidnight(b.now())
	if today.After(b.day) {
		b.day = today
		b.spent = 0
	}
}

// Record adds costUsd to today's spend. Cost overshoot by at most one
// diagnosis (the one that crosses the line) is acceptable per spec.md §4.7;
// Record never refuses a write, it only accounts for it.
func (b *BudgetTracker) Record(costUsd float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spent += costUsd
}

// Spent returns today's cumulative reported cost.
func (b *BudgetTracker) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return b.spent
}

// Exceeded reports whether today's spend has reached the daily limit.
func (b *BudgetTracker) Exceeded() bool {
	return b.Spent() >= b.dailyLimit
}

// Scheduler is the long-running driver loop.
type Scheduler struct {
	poll         *poll.Service
	investigator *investigator.Investigator
	store        ports.Store
	budget       *BudgetTracker
	pollInterval time.Duration
	maxConcurrent int
	logger       *zap.Logger

	policyEvaluator      *policy.Evaluator
	policyServices       []policy.ServiceMetadata
	baseTriageCfg        triage.Config
	minOccurrence        int
}

// EnablePolicy turns on per-cycle Rego policy evaluation (SPEC_FULL.md
// §4.13). evaluator runs once per tick against services; its Result widens
// baseTriageCfg for that cycle and is pushed into the Investigator before
// any signature in the cycle is investigated. Call before Run; a Scheduler
// with no policy enabled behaves exactly as before.
func (s *Scheduler) EnablePolicy(evaluator *policy.Evaluator, services []policy.ServiceMetadata, baseTriageCfg triage.Config, minOccurrenceForInvestigation int) {
	s.policyEvaluator = evaluator
	s.policyServices = services
	s.baseTriageCfg = baseTriageCfg
	s.minOccurrence = minOccurrenceForInvestigation
}

// New constructs a Scheduler.
func New(pollService *poll.Service, inv *investigator.Investigator, store ports.Store, budget *BudgetTracker, pollInterval time.Duration, maxConcurrent int, logger *zap.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		poll: pollService, investigator: inv, store: store, budget: budget,
		pollInterval: pollInterval, maxConcurrent: maxConcurrent, logger: logger,
	}
}

// Run executes the loop described in spec.md §4.7 until ctx is cancelled.
// Cancellation interrupts sleep immediately; the in-flight tick (if any)
// completes before Run returns, matching the "no hard kill" rule.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	cycleID := time.Now().UTC().Format("20060102T150405Z")
	log := s.logger.With(zap.String("cycle_id", cycleID))

	s.applyPolicy(ctx, log)

	if s.budget.Exceeded() {
		log.Info("daily budget already exhausted, skipping investigation phase this tick")
	}

	if _, err := s.poll.PollOnce(ctx, time.Now()); err != nil {
		log.Error("poll cycle failed", zap.Error(err))
	}

	if s.budget.Exceeded() {
		return
	}

	pending, err := s.store.GetPendingInvestigation(ctx)
	if err != nil {
		log.Error("failed to fetch pending signatures", zap.Error(err))
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrent)

	for _, sig := range pending {
		if s.budget.Exceeded() {
			log.Info("daily budget exceeded mid-tick, skipping remaining signatures")
			break
		}
		sigID := sig.ID()
		group.Go(func() error {
			// Checked again once a slot is free: the loop's check above can run
			// while the previous investigation has not yet recorded its cost.
			if s.budget.Exceeded() {
				log.Info("daily budget exceeded mid-tick, skipping signature", zap.String("signature_id", sigID))
				return nil
			}
			if err := s.investigator.Investigate(groupCtx, sigID); err != nil {
				if apperrors.IsType(err, apperrors.ErrorTypeSkipped) || apperrors.IsType(err, apperrors.ErrorTypeInProgress) {
					log.Debug("investigation not run", zap.String("signature_id", sigID), zap.Error(err))
					return nil
				}
				log.Error("investigation failed", zap.String("signature_id", sigID), zap.Error(err))
			}
			return nil
		})
	}

	_ = group.Wait() // individual failures are already logged; the tick always continues.
}

// applyPolicy re-evaluates the Rego tag bundle, if enabled, and pushes the
// resulting widened triage.Config and notify decision into the
// Investigator. A failed evaluation leaves the Investigator on its last
// known-good policy rather than blocking the tick.
func (s *Scheduler) applyPolicy(ctx context.Context, log *zap.Logger) {
	if s.policyEvaluator == nil {
		return
	}
	result, err := s.policyEvaluator.Evaluate(ctx, s.policyServices)
	if err != nil {
		log.Warn("triage policy evaluation failed, keeping last known policy", zap.Error(err))
		return
	}
	merged, err := result.Apply(s.baseTriageCfg, s.minOccurrence)
	if err != nil {
		log.Warn("policy-widened triage config invalid, keeping last known policy", zap.Error(err))
		return
	}
	s.investigator.SetTriagePolicy(merged, &result)
}
