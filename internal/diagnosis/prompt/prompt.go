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

// Package prompt builds the investigation prompt shared by both Diagnosis
// adapters (internal/diagnosis/anthropic, internal/diagnosis/bedrock), so
// prompt construction is not duplicated per provider (SPEC_FULL.md §4.10).
package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
)

const template = `You are diagnosing a recurring production error.

Signature:
  Service: {{.service}}
  Error type: {{.errorType}}
  Message template: {{.messageTemplate}}
  First seen: {{.firstSeen}}
  Last seen: {{.lastSeen}}
  Occurrence count: {{.occurrenceCount}}
  Tags: {{.tags}}

Recent events:
{{.events}}

Trace context:
{{.traces}}

Correlated logs:
{{.logs}}

Similar signatures already known:
{{.similarSignatures}}

Codebase path: {{.codebasePath}}

Respond with the root cause, a suggested fix, and the evidence that led you
there, along with your confidence level (HIGH, MEDIUM, or LOW).`

// Build renders the investigation prompt for one InvestigationContext.
func Build(investigationCtx ports.InvestigationContext) (string, error) {
	tmpl := prompts.NewPromptTemplate(template, []string{
		"service", "errorType", "messageTemplate", "firstSeen", "lastSeen",
		"occurrenceCount", "tags", "events", "traces", "logs", "similarSignatures",
		"codebasePath",
	})

	sig := investigationCtx.Signature
	values := map[string]any{
		"service":           sig.Service(),
		"errorType":         sig.ErrorType(),
		"messageTemplate":   sig.MessageTemplate(),
		"firstSeen":         sig.FirstSeen().Format("2006-01-02T15:04:05Z"),
		"lastSeen":          sig.LastSeen().Format("2006-01-02T15:04:05Z"),
		"occurrenceCount":   sig.OccurrenceCount(),
		"tags":              strings.Join(sig.TagsSorted(), ", "),
		"events":            formatEvents(investigationCtx.RecentEvents),
		"traces":            formatTraces(investigationCtx.Traces),
		"logs":              formatLogs(investigationCtx.CorrelatedLogs),
		"similarSignatures": formatSimilar(investigationCtx.SimilarSignatures),
		"codebasePath":      investigationCtx.CodebasePath,
	}

	return tmpl.Format(values)
}

func formatEvents(events []model.ErrorEvent) string {
	if len(events) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s: %s (trace %s)\n", e.Severity, e.ErrorType, e.ErrorMessage, e.TraceID)
		for _, f := range e.StackFrames {
			fmt.Fprintf(&b, "    at %s.%s (%s)\n", f.Module, f.Function, f.Filename)
		}
	}
	return b.String()
}

func formatTraces(traces []model.TraceTree) string {
	if len(traces) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range traces {
		fmt.Fprintf(&b, "- root span %s (%s), %.2fms, status=%s\n", t.Root.SpanID, t.Root.Operation, t.Root.DurationMs, t.Root.Status)
	}
	return b.String()
}

func formatLogs(logs []model.LogEntry) string {
	if len(logs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "- [%s] %s\n", l.Severity, l.Body)
	}
	return b.String()
}

func formatSimilar(signatures []*model.Signature) string {
	if len(signatures) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range signatures {
		fmt.Fprintf(&b, "- %s (%s), %d occurrences, status=%s\n", s.ErrorType(), s.Service(), s.OccurrenceCount(), s.Status())
	}
	return b.String()
}
