// Package memstore is an in-memory, mutex-guarded implementation of
// pkg/core/ports.Store. It backs the end-to-end scenario tests of spec.md §8
// so they run without a database; the daemon (pkg/errwatch) always uses the
// Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/core/triage"
)

// Store is a single-process, concurrency-safe reference Store.
type Store struct {
	mu            sync.RWMutex
	byID          map[string]*model.Signature
	byFingerprint map[string]string // fingerprint -> id
	triageCfg     triage.Config
}

// New constructs an empty Store. triageCfg is used only to order
// GetPendingInvestigation by priority; the store itself never decides
// whether to investigate.
func New(triageCfg triage.Config) *Store {
	return &Store{
		byID:          make(map[string]*model.Signature),
		byFingerprint: make(map[string]string),
		triageCfg:     triageCfg,
	}
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return sig.Clone(), nil
}

func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) Save(ctx context.Context, sig *model.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byFingerprint[sig.Fingerprint()]; exists {
		return apperrors.NewDuplicateFingerprintError(sig.Fingerprint())
	}
	s.byID[sig.ID()] = sig.Clone()
	s.byFingerprint[sig.Fingerprint()] = sig.ID()
	return nil
}

func (s *Store) Update(ctx context.Context, sig *model.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sig.ID()]; !ok {
		return apperrors.NewNotFoundError("signature")
	}
	s.byID[sig.ID()] = sig.Clone()
	return nil
}

func (s *Store) GetPendingInvestigation(ctx context.Context) ([]*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*model.Signature
	for _, sig := range s.byID {
		if triage.ShouldInvestigate(s.triageCfg, sig) {
			pending = append(pending, sig.Clone())
		}
	}
	now := time.Now().UTC()
	sort.Slice(pending, func(i, j int) bool {
		pi, pj := triage.Priority(now, pending[i]), triage.Priority(now, pending[j])
		if pi != pj {
			return pi > pj
		}
		return pending[i].ID() < pending[j].ID()
	})
	return pending, nil
}

func (s *Store) GetAll(ctx context.Context, status *model.Status) ([]*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Signature
	for _, sig := range s.byID {
		if status != nil && sig.Status() != *status {
			continue
		}
		out = append(out, sig.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (s *Store) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]*model.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Signature
	for _, other := range s.byID {
		if other.ID() == sig.ID() {
			continue
		}
		if other.Service() != sig.Service() || other.ErrorType() != sig.ErrorType() {
			continue
		}
		out = append(out, other.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceCount() > out[j].OccurrenceCount() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetStats(ctx context.Context) (ports.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := ports.Stats{ByStatus: make(map[model.Status]int)}
	for _, sig := range s.byID {
		stats.Total++
		stats.ByStatus[sig.Status()]++
		stats.TotalOccurrences += sig.OccurrenceCount()
		if d := sig.Diagnosis(); d != nil {
			stats.EstimatedSpendUsd += d.CostUsd
		}
	}
	return stats, nil
}

func (s *Store) Close() error { return nil }
