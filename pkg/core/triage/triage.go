// Package triage implements the pure investigate/notify/priority decision
// layer. Every function here is allocation-light and side-effect free.
package triage

import (
	"time"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/model"
)

// Config holds the thresholds triage decisions are evaluated against.
type Config struct {
	MinOccurrenceForInvestigation int
	IgnoreTags                    map[string]struct{}
}

// NewConfig validates thresholds are all positive, per spec.md §4.4.
func NewConfig(minOccurrenceForInvestigation int, ignoreTags []string) (Config, error) {
	if minOccurrenceForInvestigation <= 0 {
		return Config{}, apperrors.NewInvalidConfigError("minOccurrenceForInvestigation", "must be > 0")
	}
	tags := make(map[string]struct{}, len(ignoreTags))
	for _, t := range ignoreTags {
		tags[t] = struct{}{}
	}
	return Config{MinOccurrenceForInvestigation: minOccurrenceForInvestigation, IgnoreTags: tags}, nil
}

const (
	tagCritical  = "critical"
	tagFlakyTest = "flaky-test"
)

// ShouldInvestigate reports whether sig is a candidate for investigation.
func ShouldInvestigate(cfg Config, sig *model.Signature) bool {
	if sig.Status() != model.StatusNew {
		return false
	}
	if sig.OccurrenceCount() < cfg.MinOccurrenceForInvestigation {
		return false
	}
	for tag := range cfg.IgnoreTags {
		if sig.HasTag(tag) {
			return false
		}
	}
	return true
}

// ShouldNotify reports whether diagnosis is worth reporting.
func ShouldNotify(sig *model.Signature, diagnosis model.Diagnosis) bool {
	if diagnosis.Confidence != model.ConfidenceLow {
		return true
	}
	return sig.HasTag(tagCritical)
}

// Priority computes sig's urgency score; higher is more urgent.
func Priority(now time.Time, sig *model.Signature) int {
	score := sig.OccurrenceCount()
	if score > 100 {
		score = 100
	}

	age := now.Sub(sig.LastSeen())
	switch {
	case age < time.Hour:
		score += 50
	case age < 24*time.Hour:
		score += 25
	}

	if sig.Status() == model.StatusNew {
		score += 50
	}

	if sig.HasTag(tagCritical) {
		score += 100
	}
	if sig.HasTag(tagFlakyTest) {
		score -= 20
	}

	return score
}
