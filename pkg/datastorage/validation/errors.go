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

// Package validation provides field-level validators and RFC 7807 problem
// details for the datastorage repository layer.
package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ValidationError collects per-field validation failures for one resource.
type ValidationError struct {
	Resource    string
	Message     string
	FieldErrors map[string]string
}

// NewValidationError constructs an empty ValidationError for resource.
func NewValidationError(resource, message string) *ValidationError {
	return &ValidationError{
		Resource:    resource,
		Message:     message,
		FieldErrors: make(map[string]string),
	}
}

// AddFieldError records or overwrites the error for field.
func (e *ValidationError) AddFieldError(field, message string) {
	e.FieldErrors[field] = message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return fmt.Sprintf("%s: %s", e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d invalid fields)", e.Resource, e.Message, len(e.FieldErrors))
}

// ToRFC7807 converts the error into an RFC 7807 problem detail.
func (e *ValidationError) ToRFC7807() *RFC7807Problem {
	return &RFC7807Problem{
		Type:     "https://errwatch.dev/errors/validation-error",
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   e.Message,
		Instance: fmt.Sprintf("/audit/%s", e.Resource),
		Extensions: map[string]interface{}{
			"resource":     e.Resource,
			"field_errors": e.FieldErrors,
		},
	}
}

// RFC7807Problem is an RFC 7807 "Problem Details for HTTP APIs" document.
// Extensions are flattened into the top-level JSON object on marshal.
type RFC7807Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Instance   string                 `json:"instance,omitempty"`
	Extensions map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extensions alongside the standard RFC 7807 fields.
func (p *RFC7807Problem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 5+len(p.Extensions))
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	for k, v := range p.Extensions {
		out[k] = v
	}
	return json.Marshal(out)
}

// Error implements the error interface.
func (p *RFC7807Problem) Error() string {
	return fmt.Sprintf("%s (%d): %s", p.Title, p.Status, p.Detail)
}

// NewValidationErrorProblem builds a 400 problem detail from field errors.
func NewValidationErrorProblem(resource string, fieldErrors map[string]string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     "https://errwatch.dev/errors/validation-error",
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   fmt.Sprintf("validation failed for %s", resource),
		Instance: fmt.Sprintf("/audit/%s", resource),
		Extensions: map[string]interface{}{
			"resource":     resource,
			"field_errors": fieldErrors,
		},
	}
}

// NewNotFoundProblem builds a 404 problem detail for a missing resource.
func NewNotFoundProblem(resource, id string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     "https://errwatch.dev/errors/not-found",
		Title:    "Resource Not Found",
		Status:   http.StatusNotFound,
		Detail:   fmt.Sprintf("%s %q was not found", resource, id),
		Instance: fmt.Sprintf("/audit/%s/%s", resource, id),
		Extensions: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalErrorProblem builds a 500 problem detail.
func NewInternalErrorProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   "https://errwatch.dev/errors/internal-error",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}

// NewServiceUnavailableProblem builds a 503 problem detail.
func NewServiceUnavailableProblem(detail string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:   "https://errwatch.dev/errors/service-unavailable",
		Title:  "Service Unavailable",
		Status: http.StatusServiceUnavailable,
		Detail: detail,
		Extensions: map[string]interface{}{
			"retry": true,
		},
	}
}

// NewConflictProblem builds a 409 problem detail for a unique constraint
// violation on field.
func NewConflictProblem(resource, field, value string) *RFC7807Problem {
	return &RFC7807Problem{
		Type:     "https://errwatch.dev/errors/conflict",
		Title:    "Resource Conflict",
		Status:   http.StatusConflict,
		Detail:   fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Instance: fmt.Sprintf("/audit/%s", resource),
		Extensions: map[string]interface{}{
			"resource": resource,
			"field":    field,
			"value":    value,
		},
	}
}
