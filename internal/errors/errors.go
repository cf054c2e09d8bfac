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

// Package errors implements the structured error taxonomy used across the
// daemon core and its adapters.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	faster "github.com/go-faster/errors"
)

// ErrorType names one kind from the error taxonomy.
type ErrorType string

const (
	ErrorTypeInvalidConfig          ErrorType = "invalid_config"
	ErrorTypeInvalidSignatureState  ErrorType = "invalid_signature_state"
	ErrorTypeInvalidStateTransition ErrorType = "invalid_state_transition"
	ErrorTypeClockSkew              ErrorType = "clock_skew"
	ErrorTypeNotFound               ErrorType = "not_found"
	ErrorTypeDuplicateFingerprint   ErrorType = "duplicate_fingerprint"
	ErrorTypeTelemetryUnavailable   ErrorType = "telemetry_unavailable"
	ErrorTypeTelemetryTimeout       ErrorType = "telemetry_timeout"
	ErrorTypeDiagnosisTimeout       ErrorType = "diagnosis_timeout"
	ErrorTypeDiagnosisEngineError   ErrorType = "diagnosis_engine_error"
	ErrorTypeStoreUnavailable       ErrorType = "store_unavailable"
	ErrorTypeBudgetExceeded         ErrorType = "budget_exceeded"
	ErrorTypeSkipped                ErrorType = "skipped"
	ErrorTypeInProgress             ErrorType = "in_progress"
	ErrorTypeCorruptRecord          ErrorType = "corrupt_record"
	ErrorTypeDiagnosisFailed        ErrorType = "diagnosis_failed"
	ErrorTypeStorePersistFailed     ErrorType = "store_persist_failed"
	ErrorTypeConcurrentModification ErrorType = "concurrent_modification"
	ErrorTypeInternal               ErrorType = "internal"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeInvalidConfig:          http.StatusBadRequest,
	ErrorTypeInvalidSignatureState:  http.StatusBadRequest,
	ErrorTypeInvalidStateTransition: http.StatusConflict,
	ErrorTypeClockSkew:              http.StatusConflict,
	ErrorTypeNotFound:               http.StatusNotFound,
	ErrorTypeDuplicateFingerprint:   http.StatusConflict,
	ErrorTypeTelemetryUnavailable:   http.StatusServiceUnavailable,
	ErrorTypeTelemetryTimeout:       http.StatusGatewayTimeout,
	ErrorTypeDiagnosisTimeout:       http.StatusGatewayTimeout,
	ErrorTypeDiagnosisEngineError:   http.StatusBadGateway,
	ErrorTypeStoreUnavailable:       http.StatusServiceUnavailable,
	ErrorTypeBudgetExceeded:         http.StatusTooManyRequests,
	ErrorTypeSkipped:                http.StatusOK,
	ErrorTypeInProgress:             http.StatusConflict,
	ErrorTypeCorruptRecord:          http.StatusInternalServerError,
	ErrorTypeDiagnosisFailed:        http.StatusBadGateway,
	ErrorTypeStorePersistFailed:     http.StatusInternalServerError,
	ErrorTypeConcurrentModification: http.StatusConflict,
	ErrorTypeInternal:               http.StatusInternalServerError,
}

// AppError is the structured error carried across package boundaries.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

// New creates an AppError of the given type with no cause.
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCodes[errType],
	}
}

// Newf creates a formatted AppError.
func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps cause in an AppError of the given type, preserving the causal
// chain via go-faster/errors so the stack of the original failure survives.
func Wrap(cause error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCodes[errType],
		Cause:      faster.Wrap(cause, message),
	}
}

// Wrapf wraps cause with a formatted message.
func Wrapf(cause error, errType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, errType, fmt.Sprintf(format, args...))
}

// WithDetails attaches extra detail to the error in place and returns it.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted detail.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg += fmt.Sprintf(" (%s)", e.Details)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if faster.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// GetType returns err's ErrorType, or ErrorTypeInternal for plain errors.
func GetType(err error) ErrorType {
	var appErr *AppError
	if faster.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status associated with err.
func GetStatusCode(err error) int {
	var appErr *AppError
	if faster.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the operator-safe text shown for error kinds whose raw
// message may carry internal detail unsafe to surface externally.
var ErrorMessages = struct {
	ResourceNotFound       string
	OperationTimeout       string
	BudgetExceeded         string
	ConcurrentModification string
}{
	ResourceNotFound:       "the requested resource was not found",
	OperationTimeout:       "the operation timed out",
	BudgetExceeded:         "the daily diagnosis budget has been exhausted",
	ConcurrentModification: "the resource was modified concurrently",
}

// SafeErrorMessage returns a message safe to expose to an external caller.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !faster.As(err, &appErr) {
		return "an unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeInvalidConfig, ErrorTypeInvalidSignatureState:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeTelemetryTimeout, ErrorTypeDiagnosisTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeBudgetExceeded:
		return ErrorMessages.BudgetExceeded
	case ErrorTypeInvalidStateTransition, ErrorTypeClockSkew, ErrorTypeDuplicateFingerprint, ErrorTypeConcurrentModification:
		return ErrorMessages.ConcurrentModification
	default:
		return "an internal error occurred"
	}
}

// LogFields renders err as structured logging fields.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	var appErr *AppError
	if !faster.As(err, &appErr) {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins non-nil errors into a single error with " -> " separators.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		for _, e := range errs {
			if e != nil {
				return e
			}
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, " -> "))
}

// Constructors for the kinds referenced directly by spec.md §7.

func NewInvalidConfigError(field, reason string) *AppError {
	return New(ErrorTypeInvalidConfig, fmt.Sprintf("invalid config field %q: %s", field, reason))
}

func NewInvalidSignatureStateError(field, reason string) *AppError {
	return New(ErrorTypeInvalidSignatureState, fmt.Sprintf("invalid signature field %q: %s", field, reason))
}

func NewInvalidStateTransitionError(from, event, to string) *AppError {
	return Newf(ErrorTypeInvalidStateTransition, "cannot apply %s to signature in state %s (target %s)", event, from, to)
}

func NewClockSkewError(firstSeen, occurredAt string) *AppError {
	return Newf(ErrorTypeClockSkew, "occurrence timestamp %s precedes firstSeen %s", occurredAt, firstSeen)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewDuplicateFingerprintError(fingerprint string) *AppError {
	return Newf(ErrorTypeDuplicateFingerprint, "signature with fingerprint %s already exists", fingerprint)
}

func NewTelemetryUnavailableError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeTelemetryUnavailable, "telemetry unavailable: %s", operation)
}

func NewTelemetryTimeoutError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeTelemetryTimeout, "telemetry timed out: %s", operation)
}

func NewDiagnosisTimeoutError(cause error) *AppError {
	return Wrap(cause, ErrorTypeDiagnosisTimeout, "diagnosis engine timed out")
}

func NewDiagnosisEngineError(cause error) *AppError {
	return Wrap(cause, ErrorTypeDiagnosisEngineError, "diagnosis engine returned an error")
}

func NewStoreUnavailableError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeStoreUnavailable, "store unavailable: %s", operation)
}

func NewBudgetExceededError(dailyLimit, spent float64) *AppError {
	return Newf(ErrorTypeBudgetExceeded, "daily budget exceeded: spent %.4f of %.4f", spent, dailyLimit)
}

func NewSkippedError(reason string) *AppError {
	return New(ErrorTypeSkipped, reason)
}

func NewInProgressError(signatureID string) *AppError {
	return Newf(ErrorTypeInProgress, "signature %s is already being investigated", signatureID)
}

func NewCorruptRecordError(id string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeCorruptRecord, "corrupt record: %s", id)
}

func NewDiagnosisFailedError(cause error) *AppError {
	return Wrap(cause, ErrorTypeDiagnosisFailed, "diagnosis failed")
}

func NewStorePersistFailedError(cause error) *AppError {
	return Wrap(cause, ErrorTypeStorePersistFailed, "failed to persist signature")
}

func NewConcurrentModificationError(id string, expectedRevision int) *AppError {
	return Newf(ErrorTypeConcurrentModification, "signature %s was modified concurrently: expected revision %d", id, expectedRevision)
}
