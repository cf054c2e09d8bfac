// Package model defines the immutable value objects and the Signature
// aggregate that the rest of the core operates on.
package model

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/triagectl/errwatch/internal/errors"
)

// Severity is the level of an ErrorEvent.
type Severity string

const (
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

// Confidence is the diagnosis engine's confidence in a Diagnosis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Status is a Signature's lifecycle state. Transitions are the Signature
// methods MarkInvestigating, RevertToNew, MarkDiagnosed, MarkResolved,
// MarkMuted and Retriage below.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusInvestigating Status = "INVESTIGATING"
	StatusDiagnosed     Status = "DIAGNOSED"
	StatusResolved      Status = "RESOLVED"
	StatusMuted         Status = "MUTED"
)

// StackFrame is one immutable frame of a stack trace.
type StackFrame struct {
	Module     string
	Function   string
	Filename   string
	LineNumber *int
}

// NewStackFrame validates and trims module/function/filename.
func NewStackFrame(module, function, filename string, lineNumber *int) (StackFrame, error) {
	module = strings.TrimSpace(module)
	function = strings.TrimSpace(function)
	filename = strings.TrimSpace(filename)
	if module == "" {
		return StackFrame{}, apperrors.NewInvalidSignatureStateError("module", "must not be empty")
	}
	if function == "" {
		return StackFrame{}, apperrors.NewInvalidSignatureStateError("function", "must not be empty")
	}
	if filename == "" {
		return StackFrame{}, apperrors.NewInvalidSignatureStateError("filename", "must not be empty")
	}
	return StackFrame{Module: module, Function: function, Filename: filename, LineNumber: lineNumber}, nil
}

// ErrorEvent is an immutable observation of one error occurrence.
type ErrorEvent struct {
	TraceID      string
	SpanID       string
	Service      string
	ErrorType    string
	ErrorMessage string
	StackFrames  []StackFrame
	Timestamp    time.Time
	Attributes   map[string]interface{}
	Severity     Severity
}

// NewErrorEvent validates the mandatory fields per spec.md §3.
func NewErrorEvent(traceID, spanID, service, errorType, errorMessage string, frames []StackFrame, timestamp time.Time, attributes map[string]interface{}, severity Severity) (ErrorEvent, error) {
	for name, v := range map[string]string{
		"traceId": traceID, "spanId": spanID, "service": service,
		"errorType": errorType, "errorMessage": errorMessage,
	} {
		if strings.TrimSpace(v) == "" {
			return ErrorEvent{}, apperrors.NewInvalidSignatureStateError(name, "must not be empty")
		}
	}
	if timestamp.IsZero() {
		return ErrorEvent{}, apperrors.NewInvalidSignatureStateError("timestamp", "is mandatory")
	}
	if timestamp.Location() != time.UTC {
		timestamp = timestamp.UTC()
	}
	switch severity {
	case SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityFatal:
	default:
		return ErrorEvent{}, apperrors.NewInvalidSignatureStateError("severity", "must be one of DEBUG/INFO/WARN/ERROR/FATAL")
	}
	framesCopy := make([]StackFrame, len(frames))
	copy(framesCopy, frames)
	attrsCopy := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		attrsCopy[k] = v
	}
	return ErrorEvent{
		TraceID: traceID, SpanID: spanID, Service: service,
		ErrorType: errorType, ErrorMessage: errorMessage,
		StackFrames: framesCopy, Timestamp: timestamp,
		Attributes: attrsCopy, Severity: severity,
	}, nil
}

// AttributesView returns a defensive copy so callers cannot mutate the
// event's internal map.
func (e ErrorEvent) AttributesView() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Attributes))
	for k, v := range e.Attributes {
		out[k] = v
	}
	return out
}

// Diagnosis is the immutable structured output of the external analysis engine.
type Diagnosis struct {
	RootCause    string
	SuggestedFix string
	Evidence     []string
	Confidence   Confidence
	DiagnosedAt  time.Time
	Model        string
	CostUsd      float64
}

// NewDiagnosis validates the Diagnosis invariants.
func NewDiagnosis(rootCause, suggestedFix string, evidence []string, confidence Confidence, diagnosedAt time.Time, model string, costUsd float64) (Diagnosis, error) {
	if strings.TrimSpace(rootCause) == "" {
		return Diagnosis{}, apperrors.NewInvalidSignatureStateError("rootCause", "must not be empty")
	}
	if strings.TrimSpace(suggestedFix) == "" {
		return Diagnosis{}, apperrors.NewInvalidSignatureStateError("suggestedFix", "must not be empty")
	}
	if len(evidence) == 0 {
		return Diagnosis{}, apperrors.NewInvalidSignatureStateError("evidence", "must be non-empty")
	}
	for i, e := range evidence {
		if strings.TrimSpace(e) == "" {
			return Diagnosis{}, apperrors.NewInvalidSignatureStateError("evidence", "entries must not be empty")
		}
		evidence[i] = e
	}
	switch confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return Diagnosis{}, apperrors.NewInvalidSignatureStateError("confidence", "must be HIGH/MEDIUM/LOW")
	}
	if costUsd < 0 {
		return Diagnosis{}, apperrors.NewInvalidSignatureStateError("costUsd", "must be >= 0")
	}
	evCopy := make([]string, len(evidence))
	copy(evCopy, evidence)
	return Diagnosis{
		RootCause: rootCause, SuggestedFix: suggestedFix, Evidence: evCopy,
		Confidence: confidence, DiagnosedAt: diagnosedAt.UTC(), Model: model, CostUsd: costUsd,
	}, nil
}

// Signature is the mutable aggregate representing a fingerprint class. All
// fields are unexported; callers must go through the constructor and the
// transition methods so invariants 1-5 of spec.md §3 always hold.
type Signature struct {
	id              string
	fingerprint     string
	errorType       string
	service         string
	messageTemplate string
	stackHash       string
	firstSeen       time.Time
	lastSeen        time.Time
	occurrenceCount int
	status          Status
	diagnosis       *Diagnosis
	tags            map[string]struct{}
	revision        int
}

// NewSignatureParams groups the fields of a freshly-observed Signature.
type NewSignatureParams struct {
	ID              string
	Fingerprint     string
	ErrorType       string
	Service         string
	MessageTemplate string
	StackHash       string
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	Status          Status
	Tags            []string
}

// NewSignature constructs a Signature, enforcing invariants 1 and 2.
func NewSignature(p NewSignatureParams) (*Signature, error) {
	if p.OccurrenceCount < 1 {
		return nil, apperrors.NewInvalidSignatureStateError("occurrenceCount", "must be >= 1")
	}
	if p.LastSeen.Before(p.FirstSeen) {
		return nil, apperrors.NewInvalidSignatureStateError("lastSeen", "must be >= firstSeen")
	}
	status := p.Status
	if status == "" {
		status = StatusNew
	}
	tags := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		tags[t] = struct{}{}
	}
	return &Signature{
		id: p.ID, fingerprint: p.Fingerprint, errorType: p.ErrorType, service: p.Service,
		messageTemplate: p.MessageTemplate, stackHash: p.StackHash,
		firstSeen: p.FirstSeen.UTC(), lastSeen: p.LastSeen.UTC(),
		occurrenceCount: p.OccurrenceCount, status: status, tags: tags,
	}, nil
}

// RestoreSignature reconstructs a Signature from persisted fields without
// re-deriving firstSeen/lastSeen invariants beyond the basic checks; used by
// Store adapters when rehydrating rows. revision is the store's optimistic
// concurrency counter (SPEC_FULL.md §3), opaque to the domain logic.
func RestoreSignature(p NewSignatureParams, diagnosis *Diagnosis, revision int) (*Signature, error) {
	sig, err := NewSignature(p)
	if err != nil {
		return nil, err
	}
	sig.diagnosis = diagnosis
	sig.revision = revision
	return sig, nil
}

func (s *Signature) ID() string              { return s.id }
func (s *Signature) Fingerprint() string      { return s.fingerprint }
func (s *Signature) ErrorType() string        { return s.errorType }
func (s *Signature) Service() string          { return s.service }
func (s *Signature) MessageTemplate() string  { return s.messageTemplate }
func (s *Signature) StackHash() string        { return s.stackHash }
func (s *Signature) FirstSeen() time.Time     { return s.firstSeen }
func (s *Signature) LastSeen() time.Time      { return s.lastSeen }
func (s *Signature) OccurrenceCount() int     { return s.occurrenceCount }
func (s *Signature) Status() Status           { return s.status }
func (s *Signature) Revision() int            { return s.revision }
func (s *Signature) Diagnosis() *Diagnosis    { return s.diagnosis }

// Tags returns a read-only snapshot; mutating it has no effect on s.
func (s *Signature) Tags() map[string]struct{} {
	out := make(map[string]struct{}, len(s.tags))
	for t := range s.tags {
		out[t] = struct{}{}
	}
	return out
}

// HasTag reports whether s carries tag.
func (s *Signature) HasTag(tag string) bool {
	_, ok := s.tags[tag]
	return ok
}

// TagsSorted returns the tags in a deterministic order, for logging/tests.
func (s *Signature) TagsSorted() []string {
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RecordOccurrence is orthogonal to status (spec.md §4.3): it advances
// lastSeen and increments occurrenceCount, rejecting clock skew.
func (s *Signature) RecordOccurrence(timestamp time.Time) error {
	timestamp = timestamp.UTC()
	if timestamp.Before(s.firstSeen) {
		return apperrors.NewClockSkewError(s.firstSeen.Format(time.RFC3339), timestamp.Format(time.RFC3339))
	}
	if timestamp.After(s.lastSeen) {
		s.lastSeen = timestamp
	}
	s.occurrenceCount++
	s.revision++
	return nil
}

// MarkInvestigating transitions NEW|INVESTIGATING -> INVESTIGATING.
// Idempotent when already INVESTIGATING, per spec.md §4.3.
func (s *Signature) MarkInvestigating() error {
	switch s.status {
	case StatusNew, StatusInvestigating:
		s.status = StatusInvestigating
		s.revision++
		return nil
	default:
		return apperrors.NewInvalidStateTransitionError(string(s.status), "markInvestigating", string(StatusInvestigating))
	}
}

// RevertToNew transitions INVESTIGATING -> NEW on diagnosis failure.
func (s *Signature) RevertToNew() error {
	if s.status != StatusInvestigating {
		return apperrors.NewInvalidStateTransitionError(string(s.status), "revertToNew", string(StatusNew))
	}
	s.status = StatusNew
	s.revision++
	return nil
}

// MarkDiagnosed transitions NEW|INVESTIGATING -> DIAGNOSED, setting diagnosis.
// This is the only legal way to set diagnosis (invariant 5).
func (s *Signature) MarkDiagnosed(d Diagnosis) error {
	switch s.status {
	case StatusNew, StatusInvestigating:
		s.status = StatusDiagnosed
		s.diagnosis = &d
		s.revision++
		return nil
	default:
		return apperrors.NewInvalidStateTransitionError(string(s.status), "markDiagnosed", string(StatusDiagnosed))
	}
}

// MarkResolved transitions DIAGNOSED -> RESOLVED. note is accepted for
// operator audit trails but not stored on the domain object.
func (s *Signature) MarkResolved(note string) error {
	if s.status != StatusDiagnosed {
		return apperrors.NewInvalidStateTransitionError(string(s.status), "markResolved", string(StatusResolved))
	}
	s.status = StatusResolved
	s.revision++
	return nil
}

// MarkMuted transitions DIAGNOSED -> MUTED.
func (s *Signature) MarkMuted(reason string) error {
	if s.status != StatusDiagnosed {
		return apperrors.NewInvalidStateTransitionError(string(s.status), "markMuted", string(StatusMuted))
	}
	s.status = StatusMuted
	s.revision++
	return nil
}

// Retriage transitions DIAGNOSED -> NEW, clearing the diagnosis. Per
// DESIGN NOTES §9's open question, the prior diagnosis is discarded (the
// source's behavior is preserved); see DESIGN.md for the rationale.
func (s *Signature) Retriage() error {
	if s.status != StatusDiagnosed {
		return apperrors.NewInvalidStateTransitionError(string(s.status), "retriage", string(StatusNew))
	}
	s.status = StatusNew
	s.diagnosis = nil
	s.revision++
	return nil
}

// Clone returns a deep copy safe for a caller to hold as a snapshot.
func (s *Signature) Clone() *Signature {
	clone := *s
	clone.tags = s.Tags()
	if s.diagnosis != nil {
		d := *s.diagnosis
		d.Evidence = append([]string(nil), s.diagnosis.Evidence...)
		clone.diagnosis = &d
	}
	return &clone
}

// SpanNode is one immutable node of a TraceTree.
type SpanNode struct {
	SpanID     string
	ParentID   *string
	Service    string
	Operation  string
	DurationMs float64
	Status     string
	Attributes map[string]interface{}
	Events     []string
	Children   []SpanNode
}

// TraceTree is a rooted, immutable tree of SpanNode.
type TraceTree struct {
	Root SpanNode
}

// LogEntry is an immutable correlated log line.
type LogEntry struct {
	Timestamp  time.Time
	Severity   Severity
	Body       string
	Attributes map[string]interface{}
	TraceID    string
	SpanID     string
}
