/*
Package store defines the persistence model for the plan-de-charge engine.

PURPOSE:
  Declares the staging-table record types synced from the two external HR
  systems, the locally-owned rows (eligibility overrides, forecasts, sync
  runs) and the store interfaces the domain packages depend on.

KEY CONCEPTS:
  - SourceSystem: which external system a staged record came from. The
    payroll system is the authority for contracts and absences; the
    time-tracking system for projects, tasks and declarations.
  - ExternalID: the record's identifier in its source system. Uniqueness is
    enforced on (source, external id) so re-syncing never duplicates rows.
  - Optional fields use pointers only where "absent" and "empty" must be
    told apart (matricule and code fields, which syncs must preserve when
    the upstream payload omits them).

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - store/memory: in-memory store for tests

SEE ALSO:
  - store.go: interfaces and sentinel errors
*/
package store

import "time"

// SourceSystem identifies one of the two synced external systems.
type SourceSystem string

const (
	// SourcePayroll is the payroll-of-record system (source A).
	SourcePayroll SourceSystem = "payroll"
	// SourceTimetrack is the time-declaration system (source B).
	SourceTimetrack SourceSystem = "timetrack"
	// SourceFull labels sync runs that cover both systems in one chain.
	SourceFull SourceSystem = "full"
)

// Absence statuses. Only approved and pending absences reduce entitlement.
const (
	AbsencePending   = "pending"
	AbsenceApproved  = "approved"
	AbsenceRejected  = "rejected"
	AbsenceCancelled = "cancelled"
)

// SyncRun statuses.
const (
	SyncStarted = "started"
	SyncSuccess = "success"
	SyncFailed  = "failed"
	SyncPartial = "partial"
)

// =============================================================================
// PAYROLL STAGING (source A)
// =============================================================================

// PayrollEmployee is a staged employee row from the payroll system.
// Several rows may share an email (e.g., internship converted to a permanent
// contract); the most recently created row is authoritative.
type PayrollEmployee struct {
	ID         string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string

	RegistrationNumber *string // preserved when the source omits it

	Department      string
	Position        string
	HireDate        *time.Time
	TerminationDate *time.Time
	IsActive        bool

	LocalUserID  string // linked internal account, empty when unlinked
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns "First Last", falling back to the email.
func (e PayrollEmployee) DisplayName() string {
	return displayName(e.FirstName, e.LastName, e.Email)
}

// PayrollContract is a staged contract row. Contracts reference their
// employee by the source-local external ID, not the internal row ID.
type PayrollContract struct {
	ID                 string
	ExternalID         string
	EmployeeExternalID string

	ContractType string
	JobTitle     string
	StartDate    time.Time
	EndDate      *time.Time
	WeeklyHours  *float64
	IsActive     bool

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PayrollAbsence is a staged absence row, with an inclusive date range.
type PayrollAbsence struct {
	ID                 string
	ExternalID         string
	EmployeeExternalID string

	AbsenceType  string
	AbsenceCode  *string // preserved when the source omits it
	StartDate    time.Time
	EndDate      time.Time
	DurationDays *float64
	Status       string

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// TIME-TRACKING STAGING (source B)
// =============================================================================

// Collaborator is a staged person row from the time-tracking system. It is
// the side that carries the matricule (payroll registration number used by
// the voucher CSV export).
type Collaborator struct {
	ID         string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string

	Matricule *string // preserved when the source omits it

	Department string
	Position   string
	IsActive   bool
	IsAdmin    bool

	LocalUserID  string
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns "First Last", falling back to the email.
func (c Collaborator) DisplayName() string {
	return displayName(c.FirstName, c.LastName, c.Email)
}

// Project is a staged project row.
type Project struct {
	ID         string
	ExternalID string
	Name       string
	Code       *string // preserved when the source omits it

	Description string
	ClientName  string
	StartDate   *time.Time
	EndDate     *time.Time
	IsActive    bool
	IsBillable  bool

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Task is a staged task row, owned by a project.
type Task struct {
	ID         string
	ExternalID string
	ProjectID  string // internal project row ID
	Name       string
	Code       *string

	IsActive   bool
	IsBillable bool

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Declaration is a staged time entry: one collaborator, one project, an
// optional task, exactly one date.
type Declaration struct {
	ID             string
	ExternalID     string
	CollaboratorID string // internal collaborator row ID
	ProjectID      string // internal project row ID
	TaskID         *string

	Date          time.Time
	DurationHours float64
	Description   string
	Status        string
	IsBillable    bool

	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// LOCALLY-OWNED ROWS
// =============================================================================

// EligibilityOverride pins a collaborator's meal-voucher eligibility,
// taking precedence over the computed active-contract default. One row per
// email; created only through the explicit update path, never by sync.
type EligibilityOverride struct {
	ID             string
	CollaboratorID string
	Email          string // stored lower-cased, unique
	IsEligible     bool
	Reason         string
	ModifiedBy     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Forecast is one planned day of work. Rows written together by a batch
// call carry no batch identifier; grouping is reconstructed heuristically.
type Forecast struct {
	ID             string
	CollaboratorID string
	ProjectID      string
	TaskID         *string

	Date        time.Time
	Hours       float64
	Description string
	CreatedBy   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncRun is an append-only audit row bracketing one sync invocation.
type SyncRun struct {
	ID       string
	Source   SourceSystem
	SyncType string // "employees", "declarations", "full", ...
	Status   string

	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds int

	RecordsCreated int
	RecordsUpdated int
	RecordsFailed  int

	ErrorMessage string
	TriggeredBy  string
}

// User is an internal account staged records can be linked to.
type User struct {
	ID        string
	Email     string
	FullName  string
	CreatedAt time.Time
}

func displayName(first, last, email string) string {
	name := first
	if last != "" {
		if name != "" {
			name += " "
		}
		name += last
	}
	if name == "" {
		return email
	}
	return name
}
