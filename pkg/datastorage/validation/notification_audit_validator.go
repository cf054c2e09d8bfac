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

package validation

import (
	"strconv"
	"strings"
	"time"

	"github.com/triagectl/errwatch/pkg/datastorage/models"
)

const clockSkewTolerance = 5 * time.Minute

var validChannels = map[string]bool{
	"slack":        true,
	"issuetracker": true,
	"stdout":       true,
	"markdown":     true,
}

var validStatuses = map[string]bool{
	"sent":         true,
	"failed":       true,
	"acknowledged": true,
	"escalated":    true,
}

// NotificationAuditValidator validates models.NotificationAudit rows before
// they are persisted.
type NotificationAuditValidator struct{}

// NewNotificationAuditValidator constructs a NotificationAuditValidator.
func NewNotificationAuditValidator() *NotificationAuditValidator {
	return &NotificationAuditValidator{}
}

// Validate returns a populated *ValidationError, or nil if audit is valid.
func (v *NotificationAuditValidator) Validate(audit *models.NotificationAudit) *ValidationError {
	if audit == nil {
		err := NewValidationError("notification_audit", "audit record cannot be nil")
		err.AddFieldError("_root", "cannot be nil")
		return err
	}

	err := NewValidationError("notification_audit", "validation failed")

	validateRequiredString(err, "signature_id", audit.SignatureID, 255)
	validateRequiredString(err, "notification_id", audit.NotificationID, 255)
	validateRequiredString(err, "recipient", audit.Recipient, 255)
	validateEnum(err, "channel", audit.Channel, validChannels, 50)
	validateRequiredString(err, "message_summary", audit.MessageSummary, 0)
	validateEnum(err, "status", audit.Status, validStatuses, 50)
	validateSentAt(err, audit.SentAt)
	validateEscalationLevel(err, audit.EscalationLevel)

	if len(err.FieldErrors) == 0 {
		return nil
	}
	return err
}

func validateRequiredString(err *ValidationError, field, value string, maxLen int) {
	if strings.TrimSpace(value) == "" {
		err.AddFieldError(field, field+" is required")
		return
	}
	if maxLen > 0 && len(value) > maxLen {
		err.AddFieldError(field, field+" must be at most "+strconv.Itoa(maxLen)+" characters")
	}
}

func validateEnum(err *ValidationError, field, value string, allowed map[string]bool, maxLen int) {
	if strings.TrimSpace(value) == "" {
		err.AddFieldError(field, field+" is required")
		return
	}
	if maxLen > 0 && len(value) > maxLen {
		err.AddFieldError(field, field+" must be at most "+strconv.Itoa(maxLen)+" characters")
		return
	}
	if !allowed[strings.ToLower(value)] {
		err.AddFieldError(field, field+" must be one of the allowed values")
	}
}

func validateSentAt(err *ValidationError, sentAt time.Time) {
	if sentAt.IsZero() {
		err.AddFieldError("sent_at", "sent_at is required")
		return
	}
	if sentAt.After(time.Now().Add(clockSkewTolerance)) {
		err.AddFieldError("sent_at", "sent_at cannot be in the future")
	}
}

func validateEscalationLevel(err *ValidationError, level int) {
	if level < 0 {
		err.AddFieldError("escalation_level", "escalation_level must be non-negative")
		return
	}
	if level > 100 {
		err.AddFieldError("escalation_level", "escalation_level must be at most 100")
	}
}
