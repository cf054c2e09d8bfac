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

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/triage"
)

func TestEvaluateDefaultBundleIgnoresExperimentalTierServices(t *testing.T) {
	e := New()
	result, err := e.Evaluate(context.Background(), []ServiceMetadata{
		{Name: "playground-svc", Team: "growth", Tier: "experimental"},
		{Name: "checkout", Team: "payments", Tier: "critical"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !containsString(result.IgnoreTags, "playground-svc") {
		t.Fatalf("expected playground-svc in ignore tags, got %v", result.IgnoreTags)
	}
	if !containsString(result.IgnoreTags, "do-not-investigate") {
		t.Fatalf("expected default ignore tag present, got %v", result.IgnoreTags)
	}
	if _, ok := result.CriticalTags["checkout"]; !ok {
		t.Fatalf("expected checkout in critical tags, got %v", result.CriticalTags)
	}
}

func TestApplyWidensBaseIgnoreTags(t *testing.T) {
	base, err := triage.NewConfig(5, []string{"flaky-test"})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	result := Result{IgnoreTags: []string{"experimental-svc"}}

	merged, err := result.Apply(base, 5)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := merged.IgnoreTags["flaky-test"]; !ok {
		t.Fatalf("expected base tag preserved")
	}
	if _, ok := merged.IgnoreTags["experimental-svc"]; !ok {
		t.Fatalf("expected policy tag merged in")
	}
}

func TestShouldNotifyHonorsPolicyCriticalTags(t *testing.T) {
	now := time.Now().UTC()
	sig, err := model.NewSignature(model.NewSignatureParams{
		ID: "sig-1", Fingerprint: "fp-1", ErrorType: "X", Service: "checkout",
		MessageTemplate: "x", StackHash: "h", FirstSeen: now, LastSeen: now,
		OccurrenceCount: 1, Status: model.StatusNew, Tags: []string{"checkout"},
	})
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	diagnosis, err := model.NewDiagnosis("c", "f", []string{"e"}, model.ConfidenceLow, now, "m", 0)
	if err != nil {
		t.Fatalf("NewDiagnosis: %v", err)
	}

	result := Result{CriticalTags: map[string]struct{}{"checkout": {}}}
	if !result.ShouldNotify(sig, diagnosis) {
		t.Fatal("expected policy-critical tag to force notification at LOW confidence")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
