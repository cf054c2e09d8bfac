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

// Package issuetracker implements pkg/core/ports.Notification by filing an
// issue against a generic REST issue-tracking API, authenticated with the
// OAuth2 client-credentials grant (SPEC_FULL.md §4.12).
package issuetracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/notification/markdown"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/notification/sanitization"
	sharedhttp "github.com/triagectl/errwatch/pkg/shared/http"
)

// Config names the endpoint and client-credentials an issue-tracker tenant
// requires.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Project      string
}

// Notifier implements ports.Notification by filing issues against an
// issue-tracking REST API.
type Notifier struct {
	httpClient *http.Client
	baseURL    string
	project    string
	sanitizer  *sanitization.Sanitizer
}

// New constructs a Notifier. The returned http.Client automatically
// acquires and refreshes an OAuth2 access token via client_credentials
// before every request.
func New(ctx context.Context, cfg Config) *Notifier {
	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, sharedhttp.NewDefaultClient())
	return &Notifier{
		httpClient: oauthCfg.Client(ctx),
		baseURL:    cfg.BaseURL,
		project:    cfg.Project,
		sanitizer:  sanitization.NewSanitizer(),
	}
}

type issueRequest struct {
	Project     string `json:"project"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Report implements ports.Notification.
func (n *Notifier) Report(ctx context.Context, sig *model.Signature, diagnosis model.Diagnosis) error {
	title := fmt.Sprintf("%s: %s in %s", sig.ID(), sig.ErrorType(), sig.Service())
	return n.fileIssue(ctx, title, n.sanitizer.Sanitize(markdown.Report(sig, diagnosis)))
}

// ReportSummary implements ports.Notification.
func (n *Notifier) ReportSummary(ctx context.Context, signatures []*model.Signature) error {
	return n.fileIssue(ctx, "errwatch signature summary", n.sanitizer.Sanitize(markdown.Summary(signatures)))
}

func (n *Notifier) fileIssue(ctx context.Context, title, description string) error {
	body, err := json.Marshal(issueRequest{Project: n.project, Title: title, Description: description})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "issuetracker: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/issues", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "issuetracker: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "issuetracker: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return apperrors.Newf(apperrors.ErrorTypeInternal, "issuetracker: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}
