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

// Package slack implements pkg/core/ports.Notification by posting to a
// Slack channel via the Slack Web API (SPEC_FULL.md §4.12).
package slack

import (
	"context"

	"github.com/slack-go/slack"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/internal/notification/markdown"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/notification/sanitization"
)

// Notifier implements ports.Notification over the Slack Web API.
type Notifier struct {
	client    *slack.Client
	channel   string
	sanitizer *sanitization.Sanitizer
}

// New constructs a Notifier posting to channel using botToken.
func New(botToken, channel string) *Notifier {
	return newWithOptions(botToken, channel)
}

// newWithOptions lets tests point the Slack client at an httptest server via
// slack.OptionAPIURL.
func newWithOptions(botToken, channel string, opts ...slack.Option) *Notifier {
	return &Notifier{
		client:    slack.New(botToken, opts...),
		channel:   channel,
		sanitizer: sanitization.NewSanitizer(),
	}
}

// Report implements ports.Notification.
func (n *Notifier) Report(ctx context.Context, sig *model.Signature, diagnosis model.Diagnosis) error {
	text := n.sanitizer.Sanitize(markdown.Report(sig, diagnosis))
	return n.post(ctx, text)
}

// ReportSummary implements ports.Notification.
func (n *Notifier) ReportSummary(ctx context.Context, signatures []*model.Signature) error {
	text := n.sanitizer.Sanitize(markdown.Summary(signatures))
	return n.post(ctx, text)
}

func (n *Notifier) post(ctx context.Context, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "slack: post message failed")
	}
	return nil
}
