// Package fingerprint implements the deterministic normalization and hashing
// pipeline that maps an ErrorEvent to a stable fingerprint string.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/triagectl/errwatch/pkg/core/model"
)

// topKFrames pins K = 10 per spec.md §9's open question: the source
// suggests "top frames" without a fixed count; this value is a chosen
// constant, not derived from any upstream source.
const topKFrames = 10

// normalizationPatterns is applied in order; the order is the documented
// tie-break when patterns could overlap (spec.md §4.1 step 2).
var normalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),                                   // ISO dates
	regexp.MustCompile(`\d{2}:\d{2}:\d{2}(\.\d+)?`),                           // times
	regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), // UUIDs
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),                         // IPv4
	regexp.MustCompile(`\b\d{2,}\b`),                                         // decimal integers, length >= 2
	regexp.MustCompile(`:\d+\b`),                                             // colon-prefixed ports
	regexp.MustCompile(`(?i)\b[0-9a-f]{8,}\b`),                               // residual hex runs
}

var whitespaceRun = regexp.MustCompile(`\s+`)

const unitSeparator = "\x1f"

// Fingerprinter is a pure, stateless normalization/hashing pipeline. It has
// no fields because every rule is a fixed constant from spec.md §4.1.
type Fingerprinter struct{}

// New returns a Fingerprinter. There is no configuration: the algorithm is
// fully specified by spec.md §4.1 and has no tunable knobs.
func New() *Fingerprinter {
	return &Fingerprinter{}
}

// Fingerprint maps event to a deterministic hex digest.
func (f *Fingerprinter) Fingerprint(event model.ErrorEvent) string {
	normalizedMessage := f.TemplatizeMessage(event.ErrorMessage)
	stackHash := f.StackHash(event.StackFrames)
	tuple := strings.Join([]string{event.Service, event.ErrorType, normalizedMessage, stackHash}, unitSeparator)
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// TemplatizeMessage replaces dynamic substrings in s with "*", in the fixed
// order documented in spec.md §4.1 step 2, then collapses whitespace.
// Idempotent: templatizing an already-templatized message is a no-op.
func (f *Fingerprinter) TemplatizeMessage(s string) string {
	out := s
	for i, re := range normalizationPatterns {
		replacement := "*"
		if i == 5 { // colon-prefixed ports keep the leading colon
			replacement = ":*"
		}
		out = re.ReplaceAllString(out, replacement)
	}
	out = whitespaceRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// NormalizeStack drops line numbers from frames, preserving order.
func (f *Fingerprinter) NormalizeStack(frames []model.StackFrame) []model.StackFrame {
	out := make([]model.StackFrame, len(frames))
	for i, fr := range frames {
		out[i] = model.StackFrame{Module: fr.Module, Function: fr.Function, Filename: fr.Filename}
	}
	return out
}

// StackHash hashes the top-K normalized frames, serialized as
// "module|function|filename" and concatenated, K = topKFrames or all frames
// if fewer.
func (f *Fingerprinter) StackHash(frames []model.StackFrame) string {
	normalized := f.NormalizeStack(frames)
	k := topKFrames
	if len(normalized) < k {
		k = len(normalized)
	}
	var b strings.Builder
	for i := 0; i < k; i++ {
		fr := normalized[i]
		b.WriteString(fr.Module)
		b.WriteByte('|')
		b.WriteString(fr.Function)
		b.WriteByte('|')
		b.WriteString(fr.Filename)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
