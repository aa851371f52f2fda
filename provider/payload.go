package provider

import "time"

// Normalized payloads. Field names here are the canonical vocabulary; the
// upstream JSON shapes never leave the client that parsed them.
//
// Pointer fields mean "upstream did not send a value", which the sync
// service must distinguish from an explicit empty value (matricule and
// code preservation).

// EmployeePayload is one payroll employee, with its contracts embedded the
// way the upstream API ships them.
type EmployeePayload struct {
	ExternalID         string
	Email              string
	FirstName          string
	LastName           string
	RegistrationNumber *string
	Department         string
	Position           string
	HireDate           *time.Time
	TerminationDate    *time.Time
	IsActive           bool

	Contracts []ContractPayload
}

// ContractPayload is one payroll contract, keyed back to its employee by
// the employee's external ID.
type ContractPayload struct {
	ExternalID         string
	EmployeeExternalID string
	ContractType       string
	JobTitle           string
	StartDate          time.Time
	EndDate            *time.Time
	WeeklyHours        *float64
	IsActive           bool
}

// AbsencePayload is one payroll absence with an inclusive date range.
type AbsencePayload struct {
	ExternalID         string
	EmployeeExternalID string
	AbsenceType        string
	AbsenceCode        *string
	StartDate          time.Time
	EndDate            time.Time
	DurationDays       *float64
	Status             string
}

// CollaboratorPayload is one time-tracking user.
type CollaboratorPayload struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Matricule  *string
	IsActive   bool
	IsAdmin    bool
}

// ProjectPayload is one time-tracking project.
type ProjectPayload struct {
	ExternalID  string
	Name        string
	Code        *string
	Description string
	ClientName  string
	StartDate   *time.Time
	EndDate     *time.Time
	IsActive    bool
	IsBillable  bool
}

// TaskPayload is one time-tracking task, keyed to its project by the
// project's external ID.
type TaskPayload struct {
	ExternalID        string
	ProjectExternalID string
	Name              string
	Code              *string
	IsActive          bool
	IsBillable        bool
}

// DeclarationPayload is one time entry. Every entry references a project;
// the task reference is optional.
type DeclarationPayload struct {
	ExternalID             string
	CollaboratorExternalID string
	ProjectExternalID      string
	TaskExternalID         *string
	Date                   time.Time
	DurationHours          float64
	Description            string
	Status                 string
}
