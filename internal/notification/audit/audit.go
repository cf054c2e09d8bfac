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

// Package audit decorates a ports.Notification with a durable delivery
// record in pkg/datastorage, so compliance reporting can see every
// notification attempt regardless of which
// provider (slack, issuetracker, stdout, markdown) sent it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/datastorage/models"
	"github.com/triagectl/errwatch/pkg/datastorage/repository"
)

// Notifier wraps an inner ports.Notification and records one
// NotificationAudit row per delivery attempt, win or lose. A recording
// failure never blocks or errors the delivery itself; it is logged and
// swallowed.
type Notifier struct {
	inner    ports.Notification
	provider string
	audits   *repository.NotificationAuditRepository
	log      *zap.Logger
}

// New wraps inner, recording each attempt under provider's name via audits.
func New(inner ports.Notification, provider string, audits *repository.NotificationAuditRepository, log *zap.Logger) *Notifier {
	return &Notifier{inner: inner, provider: provider, audits: audits, log: log}
}

// Report delivers via inner and records the attempt.
func (n *Notifier) Report(ctx context.Context, sig *model.Signature, diagnosis model.Diagnosis) error {
	err := n.inner.Report(ctx, sig, diagnosis)
	n.record(ctx, sig.ID(), fmt.Sprintf("diagnosis report: %s", diagnosis.RootCause), err)
	return err
}

// ReportSummary delivers via inner and records one attempt per signature.
func (n *Notifier) ReportSummary(ctx context.Context, signatures []*model.Signature) error {
	err := n.inner.ReportSummary(ctx, signatures)
	for _, sig := range signatures {
		n.record(ctx, sig.ID(), "daily summary", err)
	}
	return err
}

func (n *Notifier) record(ctx context.Context, signatureID, summary string, deliveryErr error) {
	status := "sent"
	errMsg := ""
	if deliveryErr != nil {
		status = "failed"
		errMsg = deliveryErr.Error()
	}

	audit := &models.NotificationAudit{
		SignatureID:    signatureID,
		NotificationID: uuid.NewString(),
		Recipient:      n.provider,
		Channel:        n.provider,
		MessageSummary: summary,
		Status:         status,
		SentAt:         time.Now(),
		DeliveryStatus: status,
		ErrorMessage:   errMsg,
	}

	if _, err := n.audits.Create(ctx, audit); err != nil {
		n.log.Warn("failed to record notification audit", zap.Error(err), zap.String("signature_id", signatureID))
	}
}
