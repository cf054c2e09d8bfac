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

package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

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

func TestReportPostsSanitizedMarkdownToConfiguredChannel(t *testing.T) {
	var sawText, sawChannel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		sawText = r.Form.Get("text")
		sawChannel = r.Form.Get("channel")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1234.5678"}`))
	}))
	defer server.Close()

	n := newWithOptions("xoxb-test", "C1", slack.OptionAPIURL(server.URL+"/"))

	sig := testSignature(t)
	diagnosis, err := model.NewDiagnosis(
		"leaked secret: token: hunter2xyz in a log line",
		"rotate it",
		[]string{"ev"}, model.ConfidenceHigh, time.Now(), "claude-sonnet-4-20250514", 0.01,
	)
	if err != nil {
		t.Fatalf("NewDiagnosis: %v", err)
	}

	if err := n.Report(context.Background(), sig, diagnosis); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if sawChannel != "C1" {
		t.Fatalf("expected channel C1, got %q", sawChannel)
	}
	if !strings.Contains(sawText, "TimeoutError") {
		t.Fatalf("expected posted text to contain error type, got %q", sawText)
	}
	if strings.Contains(sawText, "hunter2xyz") {
		t.Fatalf("expected secret to be redacted, got %q", sawText)
	}
}
