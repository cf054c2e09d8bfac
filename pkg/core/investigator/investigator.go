// Package investigator runs one investigation end-to-end per spec.md §4.5:
// fetch context, invoke diagnosis, persist, notify, with strict state
// transition semantics under partial failure.
package investigator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/triage/policy"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/core/triage"
)

const similarSignaturesLimit = 5

// maxTraceIDs bounds how many distinct trace IDs are fetched per
// investigation (spec.md §4.5 step 4, M = 3).
const maxTraceIDs = 3

// BudgetTracker is the minimal interface the Investigator needs from the
// Scheduler's daily budget tracker (spec.md §4.7). Kept separate from
// scheduler.BudgetTracker to avoid an import cycle between the two core
// packages.
type BudgetTracker interface {
	Record(costUsd float64)
}

// Investigator orchestrates investigations; it is safe for concurrent use
// by up to maxConcurrentInvestigations callers at once.
type Investigator struct {
	store        ports.Store
	telemetry    ports.Telemetry
	diagnosis    ports.Diagnosis
	notification ports.Notification
	budget       BudgetTracker
	codebasePath string
	logger       *zap.Logger

	eventsPerFingerprint int

	mu         sync.Mutex
	inProgress map[string]struct{}

	cfgMu        sync.RWMutex
	triageCfg    triage.Config
	policyResult *policy.Result
}

// New constructs an Investigator. eventsPerFingerprint is spec.md §4.5's N
// (the limit on telemetry.getEventsForFingerprint); triageCfg is the same
// config the Scheduler's Poll/Store pending-query uses, so the decision in
// step 2 is consistent with what made this signature a candidate.
func New(store ports.Store, telemetry ports.Telemetry, diagnosis ports.Diagnosis, notification ports.Notification, budget BudgetTracker, triageCfg triage.Config, codebasePath string, eventsPerFingerprint int, logger *zap.Logger) *Investigator {
	return &Investigator{
		store: store, telemetry: telemetry, diagnosis: diagnosis, notification: notification,
		budget: budget, triageCfg: triageCfg, codebasePath: codebasePath, eventsPerFingerprint: eventsPerFingerprint,
		logger: logger, inProgress: make(map[string]struct{}),
	}
}

// SetTriagePolicy installs the Scheduler's latest per-cycle triage config
// and, when policy evaluation is enabled, the Rego bundle's widened
// ShouldNotify decision. Every subsequent Investigate call uses these until
// the next cycle replaces them; nil result falls back to triage.ShouldNotify.
func (inv *Investigator) SetTriagePolicy(cfg triage.Config, result *policy.Result) {
	inv.cfgMu.Lock()
	defer inv.cfgMu.Unlock()
	inv.triageCfg = cfg
	inv.policyResult = result
}

func (inv *Investigator) currentTriagePolicy() (triage.Config, *policy.Result) {
	inv.cfgMu.RLock()
	defer inv.cfgMu.RUnlock()
	return inv.triageCfg, inv.policyResult
}

func (inv *Investigator) enter(sigID string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, busy := inv.inProgress[sigID]; busy {
		return false
	}
	inv.inProgress[sigID] = struct{}{}
	return true
}

func (inv *Investigator) leave(sigID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.inProgress, sigID)
}

// Investigate runs the full protocol for one signature ID.
func (inv *Investigator) Investigate(ctx context.Context, sigID string) error {
	if !inv.enter(sigID) {
		return apperrors.NewInProgressError(sigID)
	}
	defer inv.leave(sigID)

	log := inv.logger.With(zap.String("signature_id", sigID))

	sig, err := inv.store.GetByID(ctx, sigID)
	if err != nil {
		return apperrors.NewStoreUnavailableError("getById", err)
	}
	if sig == nil {
		return apperrors.NewNotFoundError("signature")
	}
	log = log.With(zap.String("fingerprint", sig.Fingerprint()))

	triageCfg, policyResult := inv.currentTriagePolicy()
	if !triage.ShouldInvestigate(triageCfg, sig) {
		return apperrors.NewSkippedError("signature does not meet investigation criteria")
	}

	if err := sig.MarkInvestigating(); err != nil {
		return err
	}
	if err := inv.store.Update(ctx, sig); err != nil {
		return apperrors.NewStoreUnavailableError("update(markInvestigating)", err)
	}

	investigationCtx := inv.gatherContext(ctx, sig, log)

	diagnosis, diagErr := inv.diagnosis.Diagnose(ctx, investigationCtx)
	if diagErr != nil {
		if err := sig.RevertToNew(); err != nil {
			log.Warn("failed to revert signature after diagnosis failure", zap.Error(err))
		} else if err := inv.store.Update(ctx, sig); err != nil {
			log.Warn("failed to persist reverted signature", zap.Error(err))
		}
		return apperrors.NewDiagnosisFailedError(diagErr)
	}

	if diagnosis.CostUsd > 0 {
		inv.budget.Record(diagnosis.CostUsd)
	}

	if err := sig.MarkDiagnosed(diagnosis); err != nil {
		return err
	}
	if err := inv.store.Update(ctx, sig); err != nil {
		return apperrors.NewStorePersistFailedError(err)
	}

	shouldNotify := triage.ShouldNotify(sig, diagnosis)
	if policyResult != nil {
		shouldNotify = policyResult.ShouldNotify(sig, diagnosis)
	}
	if shouldNotify {
		if err := inv.notification.Report(ctx, sig, diagnosis); err != nil {
			log.Warn("notification failed, investigation still considered successful", zap.Error(err))
		}
	}

	return nil
}

// gatherContext implements spec.md §4.5 step 4's partial-failure-tolerant
// context collection: every source degrades to empty on error rather than
// aborting the investigation.
func (inv *Investigator) gatherContext(ctx context.Context, sig *model.Signature, log *zap.Logger) ports.InvestigationContext {
	investigationCtx := ports.InvestigationContext{Signature: sig, CodebasePath: inv.codebasePath}

	events, err := inv.telemetry.GetEventsForFingerprint(ctx, sig.Fingerprint(), inv.eventsPerFingerprint)
	if err != nil {
		log.Info("telemetry events unavailable, continuing with empty context", zap.Error(err))
		events = nil
	}
	investigationCtx.RecentEvents = events

	traceIDs := distinctTraceIDs(events, maxTraceIDs)
	var traces []model.TraceTree
	for _, traceID := range traceIDs {
		tree, err := inv.telemetry.GetTrace(ctx, traceID)
		if err != nil {
			log.Info("trace fetch failed, skipping", zap.String("trace_id", traceID), zap.Error(err))
			continue
		}
		if tree != nil {
			traces = append(traces, *tree)
		}
	}
	investigationCtx.Traces = traces

	if len(traceIDs) > 0 {
		logs, err := inv.telemetry.GetCorrelatedLogs(ctx, traceIDs, 0)
		if err != nil {
			log.Info("correlated logs unavailable, continuing with empty context", zap.Error(err))
			logs = nil
		}
		investigationCtx.CorrelatedLogs = logs
	}

	similar, err := inv.store.GetSimilar(ctx, sig, similarSignaturesLimit)
	if err != nil {
		log.Info("similar signatures unavailable, continuing with empty context", zap.Error(err))
		similar = nil
	}
	investigationCtx.SimilarSignatures = similar

	return investigationCtx
}

func distinctTraceIDs(events []model.ErrorEvent, max int) []string {
	seen := make(map[string]struct{}, max)
	var out []string
	for _, e := range events {
		if e.TraceID == "" {
			continue
		}
		if _, ok := seen[e.TraceID]; ok {
			continue
		}
		seen[e.TraceID] = struct{}{}
		out = append(out, e.TraceID)
		if len(out) >= max {
			break
		}
	}
	return out
}
