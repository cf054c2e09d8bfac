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

// Package delivery writes sanitized notification content to a filesystem
// sink. It backs the stdout/markdown notification adapters in environments
// where no chat or ticketing integration is configured.
package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Message is the sanitized, sink-agnostic content a Service delivers.
type Message struct {
	Subject string
	Body    string
}

// Service delivers a Message to its sink.
type Service interface {
	Deliver(ctx context.Context, msg Message) error
}

// RetryableError marks a delivery failure a caller should retry, as opposed
// to a permanent rejection of the message content itself.
type RetryableError struct {
	msg   string
	cause error
}

func (e *RetryableError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *RetryableError) Unwrap() error { return e.cause }

// FileDeliveryService writes each notification as a file under dir.
type FileDeliveryService struct {
	dir string
}

// NewFileDeliveryService returns a Service that writes notifications under dir,
// creating it on first delivery if it does not already exist.
func NewFileDeliveryService(dir string) *FileDeliveryService {
	return &FileDeliveryService{dir: dir}
}

// Deliver writes msg to a new file under the service's directory. The file
// name is derived from the subject and the current time so repeated
// deliveries never collide.
func (s *FileDeliveryService) Deliver(ctx context.Context, msg Message) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &RetryableError{msg: "failed to create output directory", cause: err}
	}

	name := fmt.Sprintf("%d-%s.md", time.Now().UnixNano(), sanitizeFileName(msg.Subject))
	path := filepath.Join(s.dir, name)

	content := msg.Subject + "\n\n" + msg.Body + "\n"

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return &RetryableError{msg: "failed to write temporary file", cause: err}
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.WriteString(content)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return &RetryableError{msg: "failed to write temporary file", cause: writeErr}
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return &RetryableError{msg: "failed to write temporary file", cause: closeErr}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &RetryableError{msg: "failed to write temporary file", cause: err}
	}
	return nil
}

func sanitizeFileName(s string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", ":", "", "\\", "-")
	out := r.Replace(s)
	if len(out) > 60 {
		out = out[:60]
	}
	if out == "" {
		return "notification"
	}
	return out
}
