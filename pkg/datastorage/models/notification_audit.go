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

// Package models holds the row shapes persisted by pkg/datastorage.
package models

import "time"

// NotificationAudit is one delivery attempt of a diagnosis notification,
// recorded for compliance reporting.
type NotificationAudit struct {
	ID              int64
	SignatureID     string
	NotificationID  string
	Recipient       string
	Channel         string
	MessageSummary  string
	Status          string
	SentAt          time.Time
	DeliveryStatus  string
	ErrorMessage    string
	EscalationLevel int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
