/*
store.go - Store interfaces and sentinel errors

PURPOSE:
  The contract between domain packages and persistence. Lookups that may
  legitimately miss return (nil, nil); ErrNotFound is reserved for
  operations addressed at a row the caller asserted exists (updates,
  deletes).

UPSERT CONTRACT:
  Insert* methods fail on unique-constraint violations; the sync service
  implements upserts as Get-then-Insert-or-Update so it can apply the
  partial-field preservation policy before writing.

SEE ALSO:
  - records.go: record types
  - store/sqlite: production implementation
  - store/memory: test implementation
*/
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned on unique-constraint violations
	// ((source, external id), override email, forecast natural key).
	ErrDuplicate = errors.New("duplicate record")
)

// =============================================================================
// PAYROLL STAGING (source A)
// =============================================================================

type PayrollStore interface {
	GetPayrollEmployeeByExternalID(ctx context.Context, externalID string) (*PayrollEmployee, error)
	GetPayrollEmployeeByID(ctx context.Context, id string) (*PayrollEmployee, error)
	// FindPayrollEmployeeByEmail matches case-insensitively and returns the
	// first row when duplicates share the email.
	FindPayrollEmployeeByEmail(ctx context.Context, email string) (*PayrollEmployee, error)
	InsertPayrollEmployee(ctx context.Context, e *PayrollEmployee) error
	UpdatePayrollEmployee(ctx context.Context, e *PayrollEmployee) error
	ListPayrollEmployees(ctx context.Context, activeOnly bool) ([]PayrollEmployee, error)

	GetPayrollContractByExternalID(ctx context.Context, externalID string) (*PayrollContract, error)
	InsertPayrollContract(ctx context.Context, c *PayrollContract) error
	UpdatePayrollContract(ctx context.Context, c *PayrollContract) error
	ListPayrollContracts(ctx context.Context) ([]PayrollContract, error)

	GetPayrollAbsenceByExternalID(ctx context.Context, externalID string) (*PayrollAbsence, error)
	InsertPayrollAbsence(ctx context.Context, a *PayrollAbsence) error
	UpdatePayrollAbsence(ctx context.Context, a *PayrollAbsence) error
	// ListPayrollAbsencesOverlapping returns absences whose [StartDate,
	// EndDate] intersects [from, to], optionally restricted to one employee
	// (by external ID; empty means all) and to a status set (empty means all).
	ListPayrollAbsencesOverlapping(ctx context.Context, employeeExternalID string, from, to time.Time, statuses []string) ([]PayrollAbsence, error)

	PayrollCounts(ctx context.Context) (employees, contracts, absences int, err error)
}

// =============================================================================
// TIME-TRACKING STAGING (source B)
// =============================================================================

type TimetrackStore interface {
	GetCollaboratorByExternalID(ctx context.Context, externalID string) (*Collaborator, error)
	GetCollaboratorByID(ctx context.Context, id string) (*Collaborator, error)
	FindCollaboratorByEmail(ctx context.Context, email string) (*Collaborator, error)
	InsertCollaborator(ctx context.Context, c *Collaborator) error
	UpdateCollaborator(ctx context.Context, c *Collaborator) error
	ListCollaborators(ctx context.Context, activeOnly bool) ([]Collaborator, error)

	GetProjectByExternalID(ctx context.Context, externalID string) (*Project, error)
	GetProjectByID(ctx context.Context, id string) (*Project, error)
	InsertProject(ctx context.Context, p *Project) error
	UpdateProject(ctx context.Context, p *Project) error
	ListProjects(ctx context.Context, activeOnly bool) ([]Project, error)

	GetTaskByExternalID(ctx context.Context, externalID string) (*Task, error)
	GetTaskByID(ctx context.Context, id string) (*Task, error)
	InsertTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t *Task) error
	ListTasksByProject(ctx context.Context, projectID string) ([]Task, error)

	GetDeclarationByExternalID(ctx context.Context, externalID string) (*Declaration, error)
	InsertDeclaration(ctx context.Context, d *Declaration) error
	UpdateDeclaration(ctx context.Context, d *Declaration) error
	ListDeclarationsInRange(ctx context.Context, from, to time.Time) ([]Declaration, error)

	TimetrackCounts(ctx context.Context) (collaborators, projects, tasks, declarations int, err error)
}

// =============================================================================
// LOCALLY-OWNED ROWS
// =============================================================================

type OverrideStore interface {
	ListOverrides(ctx context.Context) ([]EligibilityOverride, error)
	GetOverrideByEmail(ctx context.Context, email string) (*EligibilityOverride, error)
	// UpsertOverride inserts or replaces the override for o.Email.
	UpsertOverride(ctx context.Context, o *EligibilityOverride) error
	DeleteOverrideByEmail(ctx context.Context, email string) error
}

type ForecastStore interface {
	GetForecast(ctx context.Context, id string) (*Forecast, error)
	// FindForecastByKey looks up the row with the forecast natural key
	// (collaborator, project, task, date); taskID nil matches rows with no task.
	FindForecastByKey(ctx context.Context, collaboratorID, projectID string, taskID *string, date time.Time) (*Forecast, error)
	InsertForecast(ctx context.Context, f *Forecast) error
	UpdateForecast(ctx context.Context, f *Forecast) error
	ListForecastsInRange(ctx context.Context, from, to time.Time) ([]Forecast, error)
	// ListForecastsByCollaboratorProject returns all rows for the pair; the
	// forecast service narrows them to a batch group in memory.
	ListForecastsByCollaboratorProject(ctx context.Context, collaboratorID, projectID string) ([]Forecast, error)
	DeleteForecasts(ctx context.Context, ids []string) (int, error)
}

type SyncRunStore interface {
	InsertSyncRun(ctx context.Context, r *SyncRun) error
	// FinalizeSyncRun writes the terminal status, counts and timing of a run.
	FinalizeSyncRun(ctx context.Context, r *SyncRun) error
	LatestSyncRun(ctx context.Context, source SourceSystem) (*SyncRun, error)
}

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Store is the full persistence surface. Both implementations satisfy it.
type Store interface {
	PayrollStore
	TimetrackStore
	OverrideStore
	ForecastStore
	SyncRunStore
	UserStore
}
