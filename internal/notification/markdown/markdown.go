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

// Package markdown renders a Signature/Diagnosis into Markdown, shared by
// every Notification adapter so the report body is consistent across slack,
// issuetracker, and stdout (SPEC_FULL.md §4.12).
package markdown

import (
	"fmt"
	"strings"

	"github.com/triagectl/errwatch/pkg/core/model"
)

// Report renders a single signature's diagnosis as a Markdown document.
func Report(sig *model.Signature, diagnosis model.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s in `%s`\n\n", sig.ErrorType(), sig.Service())
	fmt.Fprintf(&b, "- **Signature ID:** %s\n", sig.ID())
	fmt.Fprintf(&b, "- **Occurrences:** %d (first seen %s, last seen %s)\n",
		sig.OccurrenceCount(), sig.FirstSeen().Format("2006-01-02T15:04:05Z"), sig.LastSeen().Format("2006-01-02T15:04:05Z"))
	if tags := sig.TagsSorted(); len(tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(tags, ", "))
	}
	fmt.Fprintf(&b, "- **Confidence:** %s\n", diagnosis.Confidence)
	fmt.Fprintf(&b, "- **Diagnosed by:** %s (est. $%.4f)\n\n", diagnosis.Model, diagnosis.CostUsd)

	fmt.Fprintf(&b, "**Root cause**\n\n%s\n\n", diagnosis.RootCause)
	fmt.Fprintf(&b, "**Suggested fix**\n\n%s\n\n", diagnosis.SuggestedFix)

	if len(diagnosis.Evidence) > 0 {
		b.WriteString("**Evidence**\n\n")
		for _, e := range diagnosis.Evidence {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// Summary renders a digest of many signatures as a Markdown table.
func Summary(signatures []*model.Signature) string {
	var b strings.Builder
	b.WriteString("### Signature Summary\n\n")
	b.WriteString("| Service | Error Type | Status | Occurrences | Last Seen |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, sig := range signatures {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
			sig.Service(), sig.ErrorType(), sig.Status(), sig.OccurrenceCount(),
			sig.LastSeen().Format("2006-01-02T15:04:05Z"))
	}
	return b.String()
}
