/*
Package voucher computes monthly meal-voucher ("Titres Restaurant")
entitlements.

PURPOSE:
  For an employee and a month, entitled voucher days = working days in
  the month minus working days covered by qualifying absences. The
  result feeds both a JSON response and a fixed-format CSV consumed by
  the downstream ordering tool.

KEY DECISIONS:
  - Only approved and pending absences reduce entitlement; rejected and
    cancelled never do.
  - Absences are clipped to the month, then only working days inside
    the clipped range are counted: a weekend or holiday inside an
    absence does not consume entitlement twice.
  - Entitled days are clamped at zero, never negative.
  - The month roster comes from the reconciled collaborator view,
    restricted to eligible, active entries carrying a matricule. The
    matricule requirement is an output-format constraint of the CSV,
    not a business rule.
  - An email with no payroll record yields ErrEmployeeNotFound on the
    single-employee path, so callers can tell "no absences" apart from
    "no such employee". The roster path tolerates missing payroll data
    and reports zero absences instead.

SEE ALSO:
  - calendar: working-day partition of the month
  - reconcile: the unified roster and eligibility flags
*/
package voucher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/reconcile"
	"github.com/plancharge/engine/store"
)

// ErrEmployeeNotFound marks an email with no payroll record behind it.
var ErrEmployeeNotFound = errors.New("no payroll employee for email")

// qualifyingStatuses are the absence statuses that reduce entitlement.
var qualifyingStatuses = []string{store.AbsenceApproved, store.AbsencePending}

// AbsenceDetail is one absence's contribution to the month.
type AbsenceDetail struct {
	Type               string `json:"type"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
	WorkingDaysInMonth int    `json:"working_days_in_month"`
	Status             string `json:"status"`
}

// Entitlement is one employee's voucher computation for a month.
type Entitlement struct {
	Email       string          `json:"email"`
	Matricule   *string         `json:"matricule"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	WorkingDays int             `json:"working_days"`
	AbsenceDays int             `json:"absence_days"`
	TRRights    int             `json:"tr_rights"`
	Absences    []AbsenceDetail `json:"absences"`
	Holidays    []string        `json:"holidays"`
}

// MonthEntitlements is the whole-roster computation for a month.
type MonthEntitlements struct {
	Year        int           `json:"year"`
	Month       int           `json:"month"`
	WorkingDays int           `json:"working_days"`
	Holidays    []string      `json:"holidays"`
	Employees   []Entitlement `json:"employees"`
}

// Service computes entitlements against the staged store.
type Service struct {
	store    store.Store
	engine   *reconcile.Engine
	holidays calendar.HolidayProvider
}

func New(st store.Store, engine *reconcile.Engine, holidays calendar.HolidayProvider) *Service {
	return &Service{store: st, engine: engine, holidays: holidays}
}

// ComputeEntitlement computes one employee's entitlement for (year, month).
// The email is matched case-insensitively against the payroll roster; no
// payroll record yields ErrEmployeeNotFound.
func (s *Service) ComputeEntitlement(ctx context.Context, email string, year int, month time.Month) (Entitlement, error) {
	mc, err := calendar.ComputeMonth(year, month, s.holidays)
	if err != nil {
		return Entitlement{}, err
	}

	emp, err := s.store.FindPayrollEmployeeByEmail(ctx, email)
	if err != nil {
		return Entitlement{}, fmt.Errorf("find payroll employee: %w", err)
	}
	if emp == nil {
		return Entitlement{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, email)
	}

	ent, err := s.compute(ctx, email, emp, mc)
	if err != nil {
		return Entitlement{}, err
	}
	return ent, nil
}

// ComputeAll computes entitlements for every eligible, active collaborator
// in the unified view that carries a matricule.
func (s *Service) ComputeAll(ctx context.Context, year int, month time.Month) (MonthEntitlements, error) {
	mc, err := calendar.ComputeMonth(year, month, s.holidays)
	if err != nil {
		return MonthEntitlements{}, err
	}

	views, err := s.engine.Views(ctx, true)
	if err != nil {
		return MonthEntitlements{}, fmt.Errorf("merge collaborators: %w", err)
	}

	out := MonthEntitlements{
		Year:        year,
		Month:       int(month),
		WorkingDays: len(mc.WorkingDays),
		Holidays:    isoDates(mc.Holidays),
		Employees:   []Entitlement{},
	}

	for _, v := range views {
		if !v.EligibleForVoucher || !v.IsActive || v.Matricule == nil || v.Email == "" {
			continue
		}
		emp, err := s.store.FindPayrollEmployeeByEmail(ctx, v.Email)
		if err != nil {
			return MonthEntitlements{}, fmt.Errorf("find payroll employee: %w", err)
		}
		ent, err := s.compute(ctx, v.Email, emp, mc)
		if err != nil {
			return MonthEntitlements{}, err
		}
		// The roster carries the richer identity attributes.
		ent.Matricule = v.Matricule
		ent.FirstName = v.FirstName
		ent.LastName = v.LastName
		out.Employees = append(out.Employees, ent)
	}

	log.Printf("[Voucher] Computed entitlements for %d collaborators (%d-%02d)", len(out.Employees), year, int(month))
	return out, nil
}

// compute builds the per-employee result. A nil emp means no payroll data:
// zero absences, which the roster path accepts.
func (s *Service) compute(ctx context.Context, email string, emp *store.PayrollEmployee, mc calendar.MonthCalendar) (Entitlement, error) {
	ent := Entitlement{
		Email:       email,
		Year:        mc.Year,
		Month:       int(mc.Month),
		WorkingDays: len(mc.WorkingDays),
		Absences:    []AbsenceDetail{},
		Holidays:    isoDates(mc.Holidays),
	}
	if emp != nil {
		ent.Matricule = emp.RegistrationNumber
		ent.FirstName = emp.FirstName
		ent.LastName = emp.LastName
	}

	// Names and matricule prefer the timetrack side when staged.
	if collab, err := s.store.FindCollaboratorByEmail(ctx, email); err == nil && collab != nil {
		if collab.Matricule != nil {
			ent.Matricule = collab.Matricule
		}
		if collab.FirstName != "" {
			ent.FirstName = collab.FirstName
		}
		if collab.LastName != "" {
			ent.LastName = collab.LastName
		}
	}

	if emp != nil {
		first, last := calendar.MonthBounds(mc.Year, mc.Month)
		absences, err := s.store.ListPayrollAbsencesOverlapping(ctx, emp.ExternalID, first, last, qualifyingStatuses)
		if err != nil {
			return Entitlement{}, fmt.Errorf("list absences: %w", err)
		}

		working := mc.WorkingDaySet()
		for _, a := range absences {
			days := clippedWorkingDays(a, first, last, working)
			ent.AbsenceDays += days
			ent.Absences = append(ent.Absences, AbsenceDetail{
				Type:               a.AbsenceType,
				StartDate:          a.StartDate.Format("2006-01-02"),
				EndDate:            a.EndDate.Format("2006-01-02"),
				WorkingDaysInMonth: days,
				Status:             a.Status,
			})
		}
	}

	ent.TRRights = ent.WorkingDays - ent.AbsenceDays
	if ent.TRRights < 0 {
		ent.TRRights = 0
	}
	return ent, nil
}

// clippedWorkingDays clips the absence to [first, last] and counts the
// working days inside the clipped range.
func clippedWorkingDays(a store.PayrollAbsence, first, last time.Time, working map[time.Time]bool) int {
	start := calendar.DateOnly(a.StartDate)
	end := calendar.DateOnly(a.EndDate)
	if start.Before(first) {
		start = first
	}
	if end.After(last) {
		end = last
	}

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if working[d] {
			count++
		}
	}
	return count
}

func isoDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// GenerateCSV renders the downstream ordering tool's file. The format is a
// compatibility contract: semicolon separator, a blank line after the
// header, two-digit month, newline-terminated rows. Rows without a
// matricule are omitted.
func GenerateCSV(data MonthEntitlements) string {
	var b strings.Builder
	b.WriteString("Annee;Mois;Matricule;Nb jours\n\n")
	for _, e := range data.Employees {
		if e.Matricule == nil || *e.Matricule == "" {
			continue
		}
		fmt.Fprintf(&b, "%d;%02d;%s;%d\n", data.Year, data.Month, *e.Matricule, e.TRRights)
	}
	return b.String()
}
