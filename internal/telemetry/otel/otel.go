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

// Package otel implements pkg/core/ports.Telemetry against an
// OTLP-compatible trace/log query backend (Tempo, Jaeger, or any store
// fronted by the OTel query HTTP API) (SPEC_FULL.md §4.11). Every call is
// wrapped by a gobreaker circuit breaker so a degraded telemetry backend
// fails fast with TelemetryUnavailable instead of stalling a poll cycle.
package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sony/gobreaker"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/model"
	sharederrors "github.com/triagectl/errwatch/pkg/shared/errors"
	sharedhttp "github.com/triagectl/errwatch/pkg/shared/http"
)

// Client implements ports.Telemetry over an OTLP-compatible query backend
// reachable by HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New constructs a Client. timeout bounds every individual HTTP call
// (SPEC_FULL.md §5); the breaker opens after 5 consecutive failures and
// probes again after 30 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telemetry-backend",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedhttp.NewClientWithTimeout(timeout),
		breaker:    breaker,
	}
}

// wireSpan is the JSON shape returned by the query backend for one span.
type wireSpan struct {
	TraceID    string            `json:"traceId"`
	SpanID     string            `json:"spanId"`
	ParentID   string            `json:"parentSpanId"`
	Service    string            `json:"service"`
	Operation  string            `json:"operationName"`
	DurationMs float64           `json:"durationMs"`
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes"`
	Events     []string          `json:"events"`
}

type wireErrorEvent struct {
	TraceID      string            `json:"traceId"`
	SpanID       string            `json:"spanId"`
	Service      string            `json:"service"`
	ErrorType    string            `json:"errorType"`
	ErrorMessage string            `json:"errorMessage"`
	StackFrames  []wireStackFrame  `json:"stackFrames"`
	Timestamp    time.Time         `json:"timestamp"`
	Attributes   map[string]string `json:"attributes"`
	Severity     string            `json:"severity"`
}

type wireStackFrame struct {
	Module     string `json:"module"`
	Function   string `json:"function"`
	Filename   string `json:"filename"`
	LineNumber *int   `json:"lineNumber"`
}

type wireLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Severity   string            `json:"severity"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes"`
	TraceID    string            `json:"traceId"`
	SpanID     string            `json:"spanId"`
}

// GetRecentErrors implements ports.Telemetry.
func (c *Client) GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	for _, svc := range services {
		q.Add("service", svc)
	}

	var wire []wireErrorEvent
	if err := c.getJSON(ctx, "/api/errors", q, &wire); err != nil {
		return nil, err
	}

	events := make([]model.ErrorEvent, 0, len(wire))
	for _, w := range wire {
		event, err := toErrorEvent(w)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// GetTrace implements ports.Telemetry.
func (c *Client) GetTrace(ctx context.Context, traceID string) (*model.TraceTree, error) {
	if !trace.TraceID(parseTraceID(traceID)).IsValid() {
		return nil, nil
	}

	var spans []wireSpan
	if err := c.getJSON(ctx, "/api/traces/"+traceID, nil, &spans); err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}

	tree := buildTraceTree(spans)
	return &tree, nil
}

// GetCorrelatedLogs implements ports.Telemetry.
func (c *Client) GetCorrelatedLogs(ctx context.Context, traceIDs []string, window time.Duration) ([]model.LogEntry, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, id := range traceIDs {
		q.Add("traceId", id)
	}
	q.Set("windowSeconds", strconv.Itoa(int(window.Seconds())))

	var wire []wireLogEntry
	if err := c.getJSON(ctx, "/api/logs", q, &wire); err != nil {
		return nil, err
	}

	logs := make([]model.LogEntry, 0, len(wire))
	for _, w := range wire {
		logs = append(logs, model.LogEntry{
			Timestamp:  w.Timestamp,
			Severity:   model.Severity(w.Severity),
			Body:       w.Body,
			Attributes: stringMapToAny(w.Attributes),
			TraceID:    w.TraceID,
			SpanID:     w.SpanID,
		})
	}
	return logs, nil
}

// GetEventsForFingerprint implements ports.Telemetry.
func (c *Client) GetEventsForFingerprint(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error) {
	q := url.Values{}
	q.Set("fingerprint", fingerprint)
	q.Set("limit", strconv.Itoa(limit))

	var wire []wireErrorEvent
	if err := c.getJSON(ctx, "/api/errors/by-fingerprint", q, &wire); err != nil {
		return nil, err
	}

	events := make([]model.ErrorEvent, 0, len(wire))
	for _, w := range wire {
		event, err := toErrorEvent(w)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func toErrorEvent(w wireErrorEvent) (model.ErrorEvent, error) {
	frames := make([]model.StackFrame, 0, len(w.StackFrames))
	for _, f := range w.StackFrames {
		frame, err := model.NewStackFrame(f.Module, f.Function, f.Filename, f.LineNumber)
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return model.NewErrorEvent(
		w.TraceID, w.SpanID, w.Service, w.ErrorType, w.ErrorMessage,
		frames, w.Timestamp, stringMapToAny(w.Attributes), model.Severity(w.Severity),
	)
}

func buildTraceTree(spans []wireSpan) model.TraceTree {
	byParent := make(map[string][]wireSpan)
	var root wireSpan
	for _, s := range spans {
		if s.ParentID == "" {
			root = s
			continue
		}
		byParent[s.ParentID] = append(byParent[s.ParentID], s)
	}
	return model.TraceTree{Root: toSpanNode(root, byParent)}
}

func toSpanNode(w wireSpan, byParent map[string][]wireSpan) model.SpanNode {
	children := byParent[w.SpanID]
	childNodes := make([]model.SpanNode, 0, len(children))
	for _, c := range children {
		childNodes = append(childNodes, toSpanNode(c, byParent))
	}
	var parentID *string
	if w.ParentID != "" {
		p := w.ParentID
		parentID = &p
	}
	return model.SpanNode{
		SpanID:     w.SpanID,
		ParentID:   parentID,
		Service:    w.Service,
		Operation:  w.Operation,
		DurationMs: w.DurationMs,
		Status:     w.Status,
		Attributes: stringMapToAny(w.Attributes),
		Events:     w.Events,
		Children:   childNodes,
	}
}

// stringMapToAny adapts the wire format's string-typed OTel attributes
// (already attribute.Key-named by the backend) into the model's
// map[string]interface{}.
func stringMapToAny(m map[string]string) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		kv := attribute.String(k, v)
		out[string(kv.Key)] = kv.Value.AsString()
	}
	return out
}

func parseTraceID(s string) [16]byte {
	var id trace.TraceID
	// TraceIDFromHex validates length/hex-ness; an invalid ID decodes to the
	// zero value, which IsValid() correctly reports as false.
	parsed, err := trace.TraceIDFromHex(s)
	if err == nil {
		id = parsed
	}
	return id
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, path, query)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return apperrors.NewTelemetryUnavailableError(path, err)
		}
		return apperrors.NewTelemetryUnavailableError(path, err)
	}

	body := result.([]byte)
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewTelemetryUnavailableError(path, err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewTelemetryTimeoutError("query telemetry backend", ctx.Err())
		}
		return nil, sharederrors.NetworkError("query telemetry backend", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telemetry backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
