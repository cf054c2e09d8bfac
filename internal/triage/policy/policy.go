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

// Package policy augments triage decisions with signals the core triage
// config doesn't carry — owning team, service tier — by evaluating a Rego
// bundle once per poll cycle (SPEC_FULL.md §4.13). The result widens
// pkg/core/triage.Config's ignore-tag set for that cycle; it never
// participates in the invariant-checked Signature state transitions
// themselves, and is deliberately evaluated once per cycle rather than once
// per signature, since the inputs (team/tier) do not change within a cycle.
package policy

import (
	"context"
	_ "embed"

	"github.com/open-policy-agent/opa/rego"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/triage"
)

//go:embed bundle/tags.rego
var defaultBundle string

// ServiceMetadata is the per-service signal the bundle reads to compute its
// effective tag sets.
type ServiceMetadata struct {
	Name string `json:"name"`
	Team string `json:"team"`
	Tier string `json:"tier"`
}

// Result is the bundle's decision for one poll cycle.
type Result struct {
	IgnoreTags   []string
	CriticalTags map[string]struct{}
}

// Evaluator evaluates the tag policy against a Rego module, defaulting to
// the bundled policy.
type Evaluator struct {
	module string
}

// New constructs an Evaluator over the bundled default policy.
func New() *Evaluator {
	return &Evaluator{module: defaultBundle}
}

// NewWithModule constructs an Evaluator over a caller-supplied Rego module,
// for deployments that want to override the bundled tag policy.
func NewWithModule(module string) *Evaluator {
	return &Evaluator{module: module}
}

// Evaluate runs the bundle once against the given service metadata.
func (e *Evaluator) Evaluate(ctx context.Context, services []ServiceMetadata) (Result, error) {
	input := map[string]interface{}{"services": services}

	r := rego.New(
		rego.Query("data.errwatch.triage"),
		rego.Module("tags.rego", e.module),
		rego.Input(input),
	)

	resultSet, err := r.Eval(ctx)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "policy: rego evaluation failed")
	}
	if len(resultSet) == 0 || len(resultSet[0].Expressions) == 0 {
		return Result{}, nil
	}

	decision, ok := resultSet[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Result{}, apperrors.New(apperrors.ErrorTypeInternal, "policy: unexpected rego result shape")
	}

	return Result{
		IgnoreTags:   toStringSlice(decision["ignore_tags"]),
		CriticalTags: toStringSet(decision["critical_tags"]),
	}, nil
}

// Apply merges Result into base, returning a new triage.Config for that
// poll cycle. base's own ignore tags are preserved and widened, never
// narrowed, by the policy decision.
func (r Result) Apply(base triage.Config, minOccurrenceForInvestigation int) (triage.Config, error) {
	merged := make([]string, 0, len(base.IgnoreTags)+len(r.IgnoreTags))
	for tag := range base.IgnoreTags {
		merged = append(merged, tag)
	}
	merged = append(merged, r.IgnoreTags...)
	return triage.NewConfig(minOccurrenceForInvestigation, merged)
}

// ShouldNotify is triage.ShouldNotify widened by the policy's critical-tags
// decision: a signature tagged with any policy-critical service name
// notifies even at LOW confidence, the same way a statically-tagged
// "critical" signature does.
func (r Result) ShouldNotify(sig *model.Signature, diagnosis model.Diagnosis) bool {
	if triage.ShouldNotify(sig, diagnosis) {
		return true
	}
	for tag := range r.CriticalTags {
		if sig.HasTag(tag) {
			return true
		}
	}
	return false
}

func toStringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toStringSet(v interface{}) map[string]struct{} {
	slice := toStringSlice(v)
	if len(slice) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(slice))
	for _, s := range slice {
		out[s] = struct{}{}
	}
	return out
}
