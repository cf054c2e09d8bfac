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

// Package anthropic implements pkg/core/ports.Diagnosis against the
// Anthropic Messages API (SPEC_FULL.md §4.10).
package anthropic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/diagnosis/prompt"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
	sharedhttp "github.com/triagectl/errwatch/pkg/shared/http"
)

// rate is a model's per-million-token pricing in USD, used to turn a
// response's token usage into an estimated CostUsd.
type rate struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// rates are list prices as of this writing; an unrecognized model falls
// back to the Sonnet rate rather than erroring, since pricing should never
// block a diagnosis from being recorded.
var rates = map[string]rate{
	"claude-opus-4-20250514":   {inputPerMillion: 15, outputPerMillion: 75},
	"claude-sonnet-4-20250514": {inputPerMillion: 3, outputPerMillion: 15},
	"claude-haiku-4-20250514":  {inputPerMillion: 0.8, outputPerMillion: 4},
}

const defaultModel = "claude-sonnet-4-20250514"

// diagnosisResponse is the structured shape the model is asked to return.
type diagnosisResponse struct {
	RootCause    string   `json:"rootCause"`
	SuggestedFix string   `json:"suggestedFix"`
	Evidence     []string `json:"evidence"`
	Confidence   string   `json:"confidence"`
}

// Client implements ports.Diagnosis over the Anthropic Messages API.
type Client struct {
	client              anthropic.Client
	model               string
	perDiagnosisBudget  float64
}

// New constructs a Client. apiKey may be empty, in which case the SDK falls
// back to the ANTHROPIC_API_KEY environment variable.
func New(apiKey, model string, perDiagnosisBudgetUsd float64) *Client {
	opts := []option.RequestOption{option.WithHTTPClient(sharedhttp.NewDefaultClient())}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client:             anthropic.NewClient(opts...),
		model:              model,
		perDiagnosisBudget: perDiagnosisBudgetUsd,
	}
}

// Diagnose implements ports.Diagnosis.
func (c *Client) Diagnose(ctx context.Context, investigationCtx ports.InvestigationContext) (model.Diagnosis, error) {
	estimated, err := c.EstimateCost(ctx, investigationCtx)
	if err != nil {
		return model.Diagnosis{}, err
	}
	if estimated > c.perDiagnosisBudget {
		return model.Diagnosis{}, apperrors.NewBudgetExceededError(c.perDiagnosisBudget, estimated)
	}

	prompt, err := prompt.Build(investigationCtx)
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisEngineError(err)
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt + "\n\nRespond as a single JSON object with keys: rootCause, suggestedFix, evidence (array of strings), confidence (HIGH, MEDIUM, or LOW). No other text.")),
		},
	})
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisEngineError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var parsed diagnosisResponse
	if err := json.Unmarshal(extractJSON(text.String()), &parsed); err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisFailedError(err)
	}

	cost := tokenCost(c.model, message.Usage.InputTokens, message.Usage.OutputTokens)

	diagnosis, err := model.NewDiagnosis(
		parsed.RootCause,
		parsed.SuggestedFix,
		parsed.Evidence,
		model.Confidence(strings.ToUpper(parsed.Confidence)),
		time.Now().UTC(),
		c.model,
		cost,
	)
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisFailedError(err)
	}
	return diagnosis, nil
}

// EstimateCost approximates the cost of a Diagnose call from the
// investigation context's size, before any tokens are actually spent.
func (c *Client) EstimateCost(_ context.Context, investigationCtx ports.InvestigationContext) (float64, error) {
	prompt, err := prompt.Build(investigationCtx)
	if err != nil {
		return 0, apperrors.NewDiagnosisEngineError(err)
	}
	estimatedInputTokens := int64(len(prompt) / 4)
	const estimatedOutputTokens = 512
	return tokenCost(c.model, estimatedInputTokens, estimatedOutputTokens), nil
}

func tokenCost(modelName string, inputTokens, outputTokens int64) float64 {
	r, ok := rates[modelName]
	if !ok {
		r = rates[defaultModel]
	}
	return float64(inputTokens)/1_000_000*r.inputPerMillion + float64(outputTokens)/1_000_000*r.outputPerMillion
}

// extractJSON trims any leading/trailing prose the model added despite being
// asked for bare JSON, returning the span from the first '{' to the last '}'
// (or s unchanged when there is no such span). Braces are not balanced.
func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
