/*
dto.go - Request and response shapes for the HTTP API

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract.

NAMING CONVENTION:
  - *Request: request body types from clients
  - *DTO: response types returned to clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/plancharge/engine/syncer"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// UpdateCollaboratorRequest patches the unified collaborator. Nil fields
// are left untouched.
type UpdateCollaboratorRequest struct {
	IsActive           *bool  `json:"is_active"`
	EligibleForVoucher *bool  `json:"eligible_for_voucher"`
	Reason             string `json:"reason"`
	ModifiedBy         string `json:"modified_by"`
}

// ForecastRequest writes one forecast day.
type ForecastRequest struct {
	CollaboratorID string  `json:"collaborator_id"`
	ProjectID      string  `json:"project_id"`
	TaskID         *string `json:"task_id"`
	Date           string  `json:"date"`
	Hours          float64 `json:"hours"`
	Description    string  `json:"description"`
	CreatedBy      string  `json:"created_by"`
}

// BatchForecastRequest spreads one allocation over a date range.
type BatchForecastRequest struct {
	CollaboratorID string  `json:"collaborator_id"`
	ProjectID      string  `json:"project_id"`
	TaskID         *string `json:"task_id"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	HoursPerDay    float64 `json:"hours_per_day"`
	Description    string  `json:"description"`
	CreatedBy      string  `json:"created_by"`
}

// UpdateForecastRequest rewrites one row's hours and description.
type UpdateForecastRequest struct {
	Hours       float64 `json:"hours"`
	Description string  `json:"description"`
}

// DeleteGroupRequest names the reference row of the batch to delete.
type DeleteGroupRequest struct {
	ForecastID string `json:"forecast_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ForecastWriteDTO reports a single-row write.
type ForecastWriteDTO struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// WorkingDaysDTO is the month calendar breakdown.
type WorkingDaysDTO struct {
	Year             int      `json:"year"`
	Month            int      `json:"month"`
	WorkingDaysCount int      `json:"working_days_count"`
	WorkingDays      []string `json:"working_days"`
	Holidays         []string `json:"holidays"`
	Weekends         []string `json:"weekends"`
	TotalDays        int      `json:"total_days"`
}

// SyncRunDTO is one sync run for the status endpoint.
type SyncRunDTO struct {
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	SyncType        string     `json:"sync_type"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	DurationSeconds int        `json:"duration_seconds"`
	RecordsCreated  int        `json:"records_created"`
	RecordsUpdated  int        `json:"records_updated"`
	RecordsFailed   int        `json:"records_failed"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// SyncStatusDTO is the latest run per source, plus the latest full chain.
type SyncStatusDTO struct {
	Payroll   *SyncRunDTO `json:"payroll"`
	Timetrack *SyncRunDTO `json:"timetrack"`
	Full      *SyncRunDTO `json:"full"`
}

// SyncResultDTO reports a triggered sync.
type SyncResultDTO struct {
	Status  string        `json:"status"`
	Counts  syncer.Counts `json:"counts"`
	Message string        `json:"message,omitempty"`
}
