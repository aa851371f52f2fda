package forecast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/store"
)

// DeclarationBufferDays widens the declaration fetch around the requested
// month so adjacent-month navigation does not refetch. The per-day
// breakdown is still filtered to the month.
const DeclarationBufferDays = 180

// DeclarationEntry is one declared time slot in the plan-charge view.
type DeclarationEntry struct {
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	ProjectCode *string `json:"project_code"`
	Hours       float64 `json:"hours"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	IsBillable  bool    `json:"is_billable"`
}

// AbsenceEntry is one absence clipped to the month.
type AbsenceEntry struct {
	Type         string   `json:"type"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	DurationDays *float64 `json:"duration_days"`
	Status       string   `json:"status"`
}

// PlanChargeRow is one collaborator's month: declared time by day plus
// concurrent absences.
type PlanChargeRow struct {
	CollaboratorID string                        `json:"collaborator_id"`
	Name           string                        `json:"name"`
	Email          string                        `json:"email"`
	Matricule      *string                       `json:"matricule"`
	TimetrackID    string                        `json:"timetrack_id,omitempty"`
	PayrollID      string                        `json:"payroll_id,omitempty"`
	TotalHours     decimal.Decimal               `json:"total_hours"`
	Declarations   map[string][]DeclarationEntry `json:"declarations"`
	Absences       []AbsenceEntry                `json:"absences"`
}

// PlanCharge is the full month projection.
type PlanCharge struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Collaborators []PlanChargeRow `json:"collaborators"`
}

// PlanCharge assembles the month view for every active collaborator:
// time-tracking people first, then payroll-only employees with their
// absences. Declarations come from the buffered window but only days
// inside the month are kept.
func (s *Service) PlanCharge(ctx context.Context, year int, month time.Month) (PlanCharge, error) {
	if month < time.January || month > time.December {
		return PlanCharge{}, fmt.Errorf("%w: got %d", calendar.ErrInvalidMonth, int(month))
	}
	first, last := calendar.MonthBounds(year, month)

	collaborators, err := s.store.ListCollaborators(ctx, true)
	if err != nil {
		return PlanCharge{}, fmt.Errorf("list collaborators: %w", err)
	}
	payroll, err := s.store.ListPayrollEmployees(ctx, true)
	if err != nil {
		return PlanCharge{}, fmt.Errorf("list payroll employees: %w", err)
	}

	// Same dedupe rule as the reconciliation engine: latest CreatedAt wins.
	payrollByEmail := make(map[string]store.PayrollEmployee)
	for _, p := range payroll {
		key := strings.ToLower(p.Email)
		if key == "" {
			continue
		}
		if prev, ok := payrollByEmail[key]; ok && prev.CreatedAt.After(p.CreatedAt) {
			continue
		}
		payrollByEmail[key] = p
	}

	declarations, err := s.store.ListDeclarationsInRange(ctx,
		first.AddDate(0, 0, -DeclarationBufferDays), last.AddDate(0, 0, DeclarationBufferDays))
	if err != nil {
		return PlanCharge{}, fmt.Errorf("list declarations: %w", err)
	}
	declsByCollab := make(map[string][]store.Declaration)
	for _, d := range declarations {
		if d.Date.Before(first) || d.Date.After(last) {
			continue
		}
		declsByCollab[d.CollaboratorID] = append(declsByCollab[d.CollaboratorID], d)
	}

	absences, err := s.store.ListPayrollAbsencesOverlapping(ctx, "", first, last,
		[]string{store.AbsenceApproved, store.AbsencePending})
	if err != nil {
		return PlanCharge{}, fmt.Errorf("list absences: %w", err)
	}
	absencesByEmployee := make(map[string][]store.PayrollAbsence)
	for _, a := range absences {
		absencesByEmployee[a.EmployeeExternalID] = append(absencesByEmployee[a.EmployeeExternalID], a)
	}

	projectCache := map[string]*store.Project{}
	project := func(id string) *store.Project {
		if p, ok := projectCache[id]; ok {
			return p
		}
		p, err := s.store.GetProjectByID(ctx, id)
		if err != nil {
			p = nil
		}
		projectCache[id] = p
		return p
	}

	out := PlanCharge{
		Year:          year,
		Month:         int(month),
		StartDate:     first.Format("2006-01-02"),
		EndDate:       last.Format("2006-01-02"),
		Collaborators: []PlanChargeRow{},
	}

	consumed := make(map[string]bool)
	for _, c := range collaborators {
		if c.Email == "" {
			continue
		}
		key := strings.ToLower(c.Email)
		consumed[key] = true

		row := PlanChargeRow{
			CollaboratorID: c.ID,
			Name:           collaboratorName(c),
			Email:          c.Email,
			Matricule:      c.Matricule,
			TimetrackID:    c.ExternalID,
			TotalHours:     decimal.Zero,
			Declarations:   map[string][]DeclarationEntry{},
			Absences:       []AbsenceEntry{},
		}

		for _, d := range declsByCollab[c.ID] {
			entry := DeclarationEntry{
				ProjectID:   d.ProjectID,
				ProjectName: "Unknown",
				Hours:       d.DurationHours,
				Description: d.Description,
				Status:      d.Status,
				IsBillable:  d.IsBillable,
			}
			if p := project(d.ProjectID); p != nil {
				entry.ProjectName = p.Name
				entry.ProjectCode = p.Code
			}
			day := d.Date.Format("2006-01-02")
			row.Declarations[day] = append(row.Declarations[day], entry)
			row.TotalHours = row.TotalHours.Add(decimal.NewFromFloat(d.DurationHours))
		}

		if pe, ok := payrollByEmail[key]; ok {
			row.PayrollID = pe.ExternalID
			row.Absences = clipAbsences(absencesByEmployee[pe.ExternalID], first, last)
			if row.Matricule == nil {
				row.Matricule = pe.RegistrationNumber
			}
		}

		out.Collaborators = append(out.Collaborators, row)
	}

	// Payroll-only employees still show their absences.
	for key, pe := range payrollByEmail {
		if consumed[key] {
			continue
		}
		out.Collaborators = append(out.Collaborators, PlanChargeRow{
			CollaboratorID: "payroll_" + pe.ID,
			Name:           payrollName(pe),
			Email:          pe.Email,
			Matricule:      pe.RegistrationNumber,
			PayrollID:      pe.ExternalID,
			TotalHours:     decimal.Zero,
			Declarations:   map[string][]DeclarationEntry{},
			Absences:       clipAbsences(absencesByEmployee[pe.ExternalID], first, last),
		})
	}

	sort.Slice(out.Collaborators, func(i, j int) bool {
		return strings.ToLower(out.Collaborators[i].Name) < strings.ToLower(out.Collaborators[j].Name)
	})
	return out, nil
}

func clipAbsences(absences []store.PayrollAbsence, first, last time.Time) []AbsenceEntry {
	out := []AbsenceEntry{}
	for _, a := range absences {
		start := calendar.DateOnly(a.StartDate)
		end := calendar.DateOnly(a.EndDate)
		if start.Before(first) {
			start = first
		}
		if end.After(last) {
			end = last
		}
		out = append(out, AbsenceEntry{
			Type:         a.AbsenceType,
			StartDate:    start.Format("2006-01-02"),
			EndDate:      end.Format("2006-01-02"),
			DurationDays: a.DurationDays,
			Status:       a.Status,
		})
	}
	return out
}

func payrollName(pe store.PayrollEmployee) string {
	name := strings.TrimSpace(strings.TrimSpace(pe.FirstName) + " " + strings.TrimSpace(pe.LastName))
	if name == "" {
		name = pe.Email
	}
	return name
}
