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

// Package stdout implements pkg/core/ports.Notification by writing the
// rendered Markdown report to an io.Writer (os.Stdout in production). It is
// the dependency-free sink for local runs and development (SPEC_FULL.md
// §4.12), requiring no chat or ticketing credentials to exercise the daemon
// end to end.
package stdout

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/triagectl/errwatch/internal/notification/markdown"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/notification/sanitization"
)

// Notifier writes reports to w, serialized by a mutex so concurrent
// investigations never interleave their output.
type Notifier struct {
	mu        sync.Mutex
	w         io.Writer
	sanitizer *sanitization.Sanitizer
}

// New constructs a Notifier writing to w.
func New(w io.Writer) *Notifier {
	return &Notifier{w: w, sanitizer: sanitization.NewSanitizer()}
}

// Report implements ports.Notification.
func (n *Notifier) Report(_ context.Context, sig *model.Signature, diagnosis model.Diagnosis) error {
	body := n.sanitizer.Sanitize(markdown.Report(sig, diagnosis))
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.w, body)
	return err
}

// ReportSummary implements ports.Notification.
func (n *Notifier) ReportSummary(_ context.Context, signatures []*model.Signature) error {
	body := n.sanitizer.Sanitize(markdown.Summary(signatures))
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.w, body)
	return err
}
