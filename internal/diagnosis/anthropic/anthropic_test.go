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

package anthropic

import (
	"context"
	"testing"
	"time"

	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
)

func testSignature(t *testing.T) *model.Signature {
	t.Helper()
	now := time.Now().UTC()
	sig, err := model.NewSignature(model.NewSignatureParams{
		ID:              "sig-1",
		Fingerprint:     "fp-1",
		ErrorType:       "TimeoutError",
		Service:         "checkout",
		MessageTemplate: "request to %s timed out",
		StackHash:       "hash-1",
		FirstSeen:       now,
		LastSeen:        now,
		OccurrenceCount: 7,
		Status:          model.StatusNew,
	})
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	return sig
}

func TestTokenCostKnownModel(t *testing.T) {
	cost := tokenCost("claude-sonnet-4-20250514", 1_000_000, 1_000_000)
	if cost != 18 {
		t.Fatalf("expected 18, got %v", cost)
	}
}

func TestTokenCostUnknownModelFallsBackToDefault(t *testing.T) {
	gotUnknown := tokenCost("some-future-model", 1_000_000, 1_000_000)
	gotDefault := tokenCost(defaultModel, 1_000_000, 1_000_000)
	if gotUnknown != gotDefault {
		t.Fatalf("expected fallback to default model rate, got %v vs %v", gotUnknown, gotDefault)
	}
}

func TestExtractJSONStripsSurroundingProse(t *testing.T) {
	in := "Sure, here you go:\n{\"rootCause\":\"x\"}\nHope that helps!"
	got := string(extractJSON(in))
	if got != `{"rootCause":"x"}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONNoBracesReturnsInputVerbatim(t *testing.T) {
	in := "no json here"
	if string(extractJSON(in)) != in {
		t.Fatalf("expected verbatim passthrough")
	}
}

func TestEstimateCostScalesWithPromptSize(t *testing.T) {
	c := New("", "", 1.0)
	sig := testSignature(t)

	small := ports.InvestigationContext{Signature: sig, CodebasePath: "/repo"}
	estimateSmall, err := c.EstimateCost(context.Background(), small)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	big := small
	for i := 0; i < 50; i++ {
		big.RecentEvents = append(big.RecentEvents, model.ErrorEvent{ErrorType: "TimeoutError", ErrorMessage: "request to downstream-service-number-forty-two timed out after 30000ms"})
	}
	estimateBig, err := c.EstimateCost(context.Background(), big)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	if estimateBig <= estimateSmall {
		t.Fatalf("expected larger context to estimate a higher cost: small=%v big=%v", estimateSmall, estimateBig)
	}
}
