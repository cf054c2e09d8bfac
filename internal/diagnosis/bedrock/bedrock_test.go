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

package bedrock

import (
	"encoding/json"
	"testing"
)

func TestTokenCostKnownModel(t *testing.T) {
	cost := tokenCost("anthropic.claude-sonnet-4-20250514-v1:0", 1_000_000, 1_000_000)
	if cost != 18 {
		t.Fatalf("expected 18, got %v", cost)
	}
}

func TestTokenCostUnknownModelFallsBackToDefault(t *testing.T) {
	gotUnknown := tokenCost("some-future-model-id", 1_000_000, 1_000_000)
	gotDefault := tokenCost(defaultModelID, 1_000_000, 1_000_000)
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

func TestAnthropicRequestBodyShape(t *testing.T) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		Messages:         []anthropicMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round anthropicRequest
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.AnthropicVersion != "bedrock-2023-05-31" || len(round.Messages) != 1 || round.Messages[0].Content != "hello" {
		t.Fatalf("round trip mismatch: %+v", round)
	}
}
