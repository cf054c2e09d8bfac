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

// Package repository holds database/sql-based repositories for audit and
// compliance data that sit alongside the signature store proper.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/triagectl/errwatch/pkg/datastorage/metrics"
	"github.com/triagectl/errwatch/pkg/datastorage/models"
	"github.com/triagectl/errwatch/pkg/datastorage/validation"
	"github.com/triagectl/errwatch/pkg/datastorage/repository/sqlutil"
)

const pgUniqueViolation = "23505"

// NotificationAuditRepository persists notification delivery attempts for
// compliance reporting.
type NotificationAuditRepository struct {
	db        *sql.DB
	log       *zap.Logger
	validator *validation.NotificationAuditValidator
	metrics   *metrics.Metrics
}

// NewNotificationAuditRepository constructs a NotificationAuditRepository
// backed by db. m may be nil, in which case writes go unobserved.
func NewNotificationAuditRepository(db *sql.DB, log *zap.Logger, m *metrics.Metrics) *NotificationAuditRepository {
	return &NotificationAuditRepository{
		db:        db,
		log:       log,
		validator: validation.NewNotificationAuditValidator(),
		metrics:   m,
	}
}

// Create validates and inserts audit, returning it populated with its
// assigned ID and timestamps.
func (r *NotificationAuditRepository) Create(ctx context.Context, audit *models.NotificationAudit) (*models.NotificationAudit, error) {
	if verr := r.validator.Validate(audit); verr != nil {
		r.observeValidationFailure(verr)
		return nil, verr
	}

	start := time.Now()
	const query = `
		INSERT INTO notification_audit
			(signature_id, notification_id, recipient, channel, message_summary, status, sent_at, delivery_status, error_message, escalation_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		audit.SignatureID,
		audit.NotificationID,
		audit.Recipient,
		audit.Channel,
		audit.MessageSummary,
		audit.Status,
		audit.SentAt,
		sqlutil.ToNullStringValue(audit.DeliveryStatus),
		sqlutil.ToNullStringValue(audit.ErrorMessage),
		audit.EscalationLevel,
	)

	result := *audit
	if err := row.Scan(&result.ID, &result.CreatedAt, &result.UpdatedAt); err != nil {
		r.observeWrite(metrics.StatusFailure, time.Since(start))
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, validation.NewConflictProblem("notification_audit", "notification_id", audit.NotificationID)
		}
		r.log.Error("failed to insert notification audit", zap.Error(err))
		return nil, validation.NewInternalErrorProblem("failed to insert notification audit record")
	}
	r.observeWrite(metrics.StatusSuccess, time.Since(start))
	return &result, nil
}

// GetByNotificationID retrieves the audit record for notificationID.
func (r *NotificationAuditRepository) GetByNotificationID(ctx context.Context, notificationID string) (*models.NotificationAudit, error) {
	const query = `
		SELECT id, signature_id, notification_id, recipient, channel, message_summary, status,
			sent_at, delivery_status, error_message, escalation_level, created_at, updated_at
		FROM notification_audit WHERE notification_id = $1`

	var (
		audit          models.NotificationAudit
		deliveryStatus sql.NullString
		errorMessage   sql.NullString
	)

	row := r.db.QueryRowContext(ctx, query, notificationID)
	err := row.Scan(
		&audit.ID, &audit.SignatureID, &audit.NotificationID, &audit.Recipient, &audit.Channel,
		&audit.MessageSummary, &audit.Status, &audit.SentAt, &deliveryStatus, &errorMessage,
		&audit.EscalationLevel, &audit.CreatedAt, &audit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validation.NewNotFoundProblem("notification_audit", notificationID)
		}
		r.log.Error("failed to retrieve notification audit", zap.Error(err))
		return nil, validation.NewInternalErrorProblem("failed to retrieve notification audit record")
	}
	if deliveryStatus.Valid {
		audit.DeliveryStatus = deliveryStatus.String
	}
	if errorMessage.Valid {
		audit.ErrorMessage = errorMessage.String
	}
	return &audit, nil
}

// HealthCheck pings the underlying database connection.
func (r *NotificationAuditRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return validation.NewServiceUnavailableProblem("health check failed: " + err.Error())
	}
	return nil
}

func (r *NotificationAuditRepository) observeWrite(status string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.WriteDuration.WithLabelValues(metrics.TableNotificationAudit).Observe(elapsed.Seconds())
	r.metrics.AuditTracesTotal.WithLabelValues(metrics.ServiceNotification, status).Inc()
}

func (r *NotificationAuditRepository) observeValidationFailure(verr *validation.ValidationError) {
	if r.metrics == nil {
		return
	}
	for field := range verr.FieldErrors {
		r.metrics.ValidationFailures.WithLabelValues(field, metrics.ValidationReasonInvalid).Inc()
	}
}
