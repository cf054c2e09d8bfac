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

// Package bedrock implements pkg/core/ports.Diagnosis against Amazon
// Bedrock's InvokeModel API for Anthropic Claude models (SPEC_FULL.md
// §4.10). It exists alongside internal/diagnosis/anthropic to demonstrate
// that the Diagnosis port is pluggable: the daemon selects between them by
// config.Diagnosis.Provider, and the rest of the core is unaware of which
// one is wired in.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/diagnosis/prompt"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
)

const defaultModelID = "anthropic.claude-sonnet-4-20250514-v1:0"

type rate struct {
	inputPerMillion  float64
	outputPerMillion float64
}

var rates = map[string]rate{
	"anthropic.claude-opus-4-20250514-v1:0":   {inputPerMillion: 15, outputPerMillion: 75},
	"anthropic.claude-sonnet-4-20250514-v1:0": {inputPerMillion: 3, outputPerMillion: 15},
	"anthropic.claude-haiku-4-20250514-v1:0":  {inputPerMillion: 0.8, outputPerMillion: 4},
}

// anthropicRequest is the request body Bedrock expects for Anthropic models
// invoked through InvokeModel, per Bedrock's Anthropic "messages" schema.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type diagnosisResponse struct {
	RootCause    string   `json:"rootCause"`
	SuggestedFix string   `json:"suggestedFix"`
	Evidence     []string `json:"evidence"`
	Confidence   string   `json:"confidence"`
}

// Client implements ports.Diagnosis over Amazon Bedrock.
type Client struct {
	runtime            *bedrockruntime.Client
	modelID            string
	perDiagnosisBudget float64
}

// New constructs a Client, resolving AWS credentials and the target region
// the way any Bedrock-calling service does: through the default AWS config
// chain, with an explicit region override when one is configured.
func New(ctx context.Context, region, modelID string, perDiagnosisBudgetUsd float64) (*Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, apperrors.NewInvalidConfigError("aws_region", err.Error())
	}
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Client{
		runtime:            bedrockruntime.NewFromConfig(cfg),
		modelID:            modelID,
		perDiagnosisBudget: perDiagnosisBudgetUsd,
	}, nil
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

	rendered, err := prompt.Build(investigationCtx)
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisEngineError(err)
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		Messages: []anthropicMessage{
			{Role: "user", Content: rendered + "\n\nRespond as a single JSON object with keys: rootCause, suggestedFix, evidence (array of strings), confidence (HIGH, MEDIUM, or LOW). No other text."},
		},
	})
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisEngineError(err)
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisEngineError(err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisFailedError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var parsed diagnosisResponse
	if err := json.Unmarshal(extractJSON(text.String()), &parsed); err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisFailedError(err)
	}

	cost := tokenCost(c.modelID, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	diagnosis, err := model.NewDiagnosis(
		parsed.RootCause,
		parsed.SuggestedFix,
		parsed.Evidence,
		model.Confidence(strings.ToUpper(parsed.Confidence)),
		time.Now().UTC(),
		c.modelID,
		cost,
	)
	if err != nil {
		return model.Diagnosis{}, apperrors.NewDiagnosisFailedError(err)
	}
	return diagnosis, nil
}

// EstimateCost implements ports.Diagnosis.
func (c *Client) EstimateCost(_ context.Context, investigationCtx ports.InvestigationContext) (float64, error) {
	rendered, err := prompt.Build(investigationCtx)
	if err != nil {
		return 0, apperrors.NewDiagnosisEngineError(err)
	}
	estimatedInputTokens := int64(len(rendered) / 4)
	const estimatedOutputTokens = 512
	return tokenCost(c.modelID, estimatedInputTokens, estimatedOutputTokens), nil
}

func tokenCost(modelID string, inputTokens, outputTokens int64) float64 {
	r, ok := rates[modelID]
	if !ok {
		r = rates[defaultModelID]
	}
	return float64(inputTokens)/1_000_000*r.inputPerMillion + float64(outputTokens)/1_000_000*r.outputPerMillion
}

func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
