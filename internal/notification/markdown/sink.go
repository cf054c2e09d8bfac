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

package markdown

import (
	"context"
	"fmt"

	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/notification/delivery"
	"github.com/triagectl/errwatch/pkg/notification/sanitization"
)

// Notifier implements pkg/core/ports.Notification by writing a sanitized
// Markdown file per report under a directory, via delivery.FileDeliveryService.
// It is the dependency-free sink for local runs and development
// (SPEC_FULL.md §4.12).
type Notifier struct {
	delivery  delivery.Service
	sanitizer *sanitization.Sanitizer
}

// New constructs a Notifier writing one file per report under dir.
func New(dir string) *Notifier {
	return &Notifier{
		delivery:  delivery.NewFileDeliveryService(dir),
		sanitizer: sanitization.NewSanitizer(),
	}
}

// Report implements ports.Notification.
func (n *Notifier) Report(ctx context.Context, sig *model.Signature, diagnosis model.Diagnosis) error {
	msg := delivery.Message{
		Subject: fmt.Sprintf("%s: %s in %s", sig.ID(), sig.ErrorType(), sig.Service()),
		Body:    n.sanitizer.Sanitize(Report(sig, diagnosis)),
	}
	return n.delivery.Deliver(ctx, msg)
}

// ReportSummary implements ports.Notification.
func (n *Notifier) ReportSummary(ctx context.Context, signatures []*model.Signature) error {
	msg := delivery.Message{
		Subject: "errwatch signature summary",
		Body:    n.sanitizer.Sanitize(Summary(signatures)),
	}
	return n.delivery.Deliver(ctx, msg)
}
