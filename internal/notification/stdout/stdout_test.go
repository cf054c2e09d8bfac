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

package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/triagectl/errwatch/pkg/core/model"
)

func testSignature(t *testing.T) *model.Signature {
	t.Helper()
	now := time.Now().UTC()
	sig, err := model.NewSignature(model.NewSignatureParams{
		ID: "sig-1", Fingerprint: "fp-1", ErrorType: "TimeoutError", Service: "checkout",
		MessageTemplate: "x", StackHash: "h", FirstSeen: now, LastSeen: now,
		OccurrenceCount: 3, Status: model.StatusNew,
	})
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	return sig
}

func TestReportWritesSanitizedMarkdown(t *testing.T) {
	var buf bytes.Buffer
	n := New(&buf)
	sig := testSignature(t)
	diagnosis, err := model.NewDiagnosis(
		"downstream service leaked password: hunter2 in logs",
		"rotate the credential",
		[]string{"log line 1"},
		model.ConfidenceHigh,
		time.Now(),
		"claude-sonnet-4-20250514",
		0.01,
	)
	if err != nil {
		t.Fatalf("NewDiagnosis: %v", err)
	}

	if err := n.Report(context.Background(), sig, diagnosis); err != nil {
		t.Fatalf("Report: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "TimeoutError") {
		t.Fatalf("expected error type in output, got %q", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("expected secret to be redacted, got %q", out)
	}
}

func TestReportSummaryListsSignatures(t *testing.T) {
	var buf bytes.Buffer
	n := New(&buf)
	sig := testSignature(t)

	if err := n.ReportSummary(context.Background(), []*model.Signature{sig}); err != nil {
		t.Fatalf("ReportSummary: %v", err)
	}
	if !strings.Contains(buf.String(), "checkout") {
		t.Fatalf("expected service name in summary, got %q", buf.String())
	}
}
