package voucher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/reconcile"
	"github.com/plancharge/engine/store"
	"github.com/plancharge/engine/store/memory"
	"github.com/plancharge/engine/voucher"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fixedHolidays pins the holiday table so tests do not depend on the
// jurisdiction calendar.
type fixedHolidays map[time.Time]bool

func (f fixedHolidays) IsPublicHoliday(d time.Time) bool { return f[calendar.DateOnly(d)] }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }

type fixture struct {
	store *memory.Memory
	svc   *voucher.Service
}

func newFixture(holidays calendar.HolidayProvider) fixture {
	st := memory.New()
	eng := reconcile.New(st)
	return fixture{store: st, svc: voucher.New(st, eng, holidays)}
}

func (f fixture) seedEmployee(t *testing.T, extID, email, matricule string) {
	t.Helper()
	emp := &store.PayrollEmployee{
		ID: "row-" + extID, ExternalID: extID, Email: email,
		FirstName: "Jean", LastName: "Martin", IsActive: true,
	}
	if matricule != "" {
		emp.RegistrationNumber = strp(matricule)
	}
	if err := f.store.InsertPayrollEmployee(context.Background(), emp); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
}

func (f fixture) seedAbsence(t *testing.T, extID, employeeExtID, status string, start, end time.Time) {
	t.Helper()
	err := f.store.InsertPayrollAbsence(context.Background(), &store.PayrollAbsence{
		ID: "abs-" + extID, ExternalID: extID, EmployeeExternalID: employeeExtID,
		AbsenceType: "vacation", StartDate: start, EndDate: end, Status: status,
	})
	if err != nil {
		t.Fatalf("seed absence: %v", err)
	}
}

// =============================================================================
// PER-EMPLOYEE COMPUTATION
// =============================================================================

func TestComputeEntitlement_March2025WithFiveDayAbsence(t *testing.T) {
	// GIVEN: March 2025 (10 weekend days, 21 weekdays) with one pinned
	// holiday on Monday the 17th, and an approved Mon-Fri absence
	f := newFixture(fixedHolidays{day(2025, time.March, 17): true})
	f.seedEmployee(t, "e1", "jean@corp.fr", "001")
	f.seedAbsence(t, "a1", "e1", store.AbsenceApproved, day(2025, time.March, 10), day(2025, time.March, 14))

	// WHEN: Computing the month
	ent, err := f.svc.ComputeEntitlement(context.Background(), "jean@corp.fr", 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: 20 working days, 5 absence days, 15 voucher days
	if ent.WorkingDays != 20 {
		t.Errorf("expected 20 working days, got %d", ent.WorkingDays)
	}
	if ent.AbsenceDays != 5 {
		t.Errorf("expected 5 absence days, got %d", ent.AbsenceDays)
	}
	if ent.TRRights != ent.WorkingDays-5 {
		t.Errorf("expected %d voucher days, got %d", ent.WorkingDays-5, ent.TRRights)
	}
	if len(ent.Absences) != 1 || ent.Absences[0].WorkingDaysInMonth != 5 {
		t.Errorf("unexpected absence detail: %+v", ent.Absences)
	}
}

func TestComputeEntitlement_AbsenceClippedToMonth(t *testing.T) {
	// GIVEN: A pending absence spanning the February/March boundary
	f := newFixture(fixedHolidays{})
	f.seedEmployee(t, "e1", "jean@corp.fr", "001")
	f.seedAbsence(t, "a1", "e1", store.AbsencePending, day(2025, time.February, 20), day(2025, time.March, 5))

	// WHEN: Computing March
	ent, err := f.svc.ComputeEntitlement(context.Background(), "jean@corp.fr", 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Only March 3-5 count (the 1st and 2nd are a weekend)
	if ent.AbsenceDays != 3 {
		t.Errorf("expected 3 absence days after clipping, got %d", ent.AbsenceDays)
	}
}

func TestComputeEntitlement_RejectedAndCancelledDoNotCount(t *testing.T) {
	// GIVEN: One rejected and one cancelled weekday absence
	f := newFixture(fixedHolidays{})
	f.seedEmployee(t, "e1", "jean@corp.fr", "001")
	f.seedAbsence(t, "a1", "e1", store.AbsenceRejected, day(2025, time.March, 10), day(2025, time.March, 12))
	f.seedAbsence(t, "a2", "e1", store.AbsenceCancelled, day(2025, time.March, 20), day(2025, time.March, 21))

	// WHEN: Computing the month
	ent, err := f.svc.ComputeEntitlement(context.Background(), "jean@corp.fr", 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Neither reduces the entitlement
	if ent.AbsenceDays != 0 {
		t.Errorf("expected 0 absence days, got %d", ent.AbsenceDays)
	}
	if ent.TRRights != ent.WorkingDays {
		t.Errorf("expected full entitlement, got %d of %d", ent.TRRights, ent.WorkingDays)
	}
}

func TestComputeEntitlement_NeverNegative(t *testing.T) {
	// GIVEN: Two approved absences together covering more than the month
	f := newFixture(fixedHolidays{})
	f.seedEmployee(t, "e1", "jean@corp.fr", "001")
	f.seedAbsence(t, "a1", "e1", store.AbsenceApproved, day(2025, time.February, 1), day(2025, time.April, 30))
	f.seedAbsence(t, "a2", "e1", store.AbsenceApproved, day(2025, time.March, 1), day(2025, time.March, 31))

	// WHEN: Computing March
	ent, err := f.svc.ComputeEntitlement(context.Background(), "jean@corp.fr", 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The result is clamped at zero
	if ent.TRRights != 0 {
		t.Errorf("expected 0 voucher days, got %d", ent.TRRights)
	}
}

func TestComputeEntitlement_UnknownEmailIsNotFound(t *testing.T) {
	// GIVEN: An empty payroll roster
	f := newFixture(fixedHolidays{})

	// WHEN: Asking for a stranger
	_, err := f.svc.ComputeEntitlement(context.Background(), "ghost@corp.fr", 2025, time.March)

	// THEN: The error is distinguishable from a zero-absence result
	if !errors.Is(err, voucher.ErrEmployeeNotFound) {
		t.Errorf("expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestComputeEntitlement_InvalidMonthRejected(t *testing.T) {
	f := newFixture(fixedHolidays{})
	_, err := f.svc.ComputeEntitlement(context.Background(), "jean@corp.fr", 2025, time.Month(13))
	if !errors.Is(err, calendar.ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
}

// =============================================================================
// ROSTER COMPUTATION
// =============================================================================

func TestComputeAll_FiltersRosterAndToleratesMissingPayroll(t *testing.T) {
	// GIVEN: An eligible active collaborator with a matricule and no
	// payroll record (override makes them eligible), one without a
	// matricule, and one inactive
	f := newFixture(fixedHolidays{})
	ctx := context.Background()
	seedCollab := func(id, email string, matricule *string, active bool) {
		t.Helper()
		if err := f.store.InsertCollaborator(ctx, &store.Collaborator{
			ID: id, ExternalID: "x-" + id, Email: email,
			FirstName: "F" + id, LastName: "L" + id,
			Matricule: matricule, IsActive: active,
		}); err != nil {
			t.Fatalf("seed collaborator: %v", err)
		}
	}
	seedCollab("c1", "alice@corp.fr", strp("100"), true)
	seedCollab("c2", "nomatricule@corp.fr", nil, true)
	seedCollab("c3", "gone@corp.fr", strp("300"), false)
	eng := reconcile.New(f.store)
	if _, err := eng.Update(ctx, "c1", reconcile.UpdateFields{
		EligibleForVoucher: boolTrue(), ModifiedBy: "hr",
	}); err != nil {
		t.Fatalf("override: %v", err)
	}

	// WHEN: Computing the whole roster
	all, err := f.svc.ComputeAll(ctx, 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Only the eligible, active, matricule-bearing collaborator
	// appears, with zero absences despite the missing payroll record
	if len(all.Employees) != 1 {
		t.Fatalf("expected 1 employee, got %d", len(all.Employees))
	}
	got := all.Employees[0]
	if got.Email != "alice@corp.fr" || *got.Matricule != "100" {
		t.Errorf("unexpected employee: %+v", got)
	}
	if got.AbsenceDays != 0 || got.TRRights != all.WorkingDays {
		t.Errorf("expected full entitlement, got %+v", got)
	}
	if all.Year != 2025 || all.Month != 3 {
		t.Errorf("unexpected period: %d-%d", all.Year, all.Month)
	}
}

func boolTrue() *bool { b := true; return &b }

// =============================================================================
// CSV EXPORT
// =============================================================================

func TestGenerateCSV_ExactBytes(t *testing.T) {
	// GIVEN: One employee with a matricule and one without
	data := voucher.MonthEntitlements{
		Year:  2025,
		Month: 3,
		Employees: []voucher.Entitlement{
			{Matricule: strp("007"), TRRights: 18},
			{Matricule: nil, TRRights: 5},
		},
	}

	// WHEN: Rendering the export
	got := voucher.GenerateCSV(data)

	// THEN: The bytes match the ordering tool's template exactly and the
	// matricule-less employee is omitted
	want := "Annee;Mois;Matricule;Nb jours\n\n2025;03;007;18\n"
	if got != want {
		t.Errorf("csv mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestGenerateCSV_EmptyRosterKeepsHeaderAndBlankLine(t *testing.T) {
	got := voucher.GenerateCSV(voucher.MonthEntitlements{Year: 2025, Month: 12})
	want := "Annee;Mois;Matricule;Nb jours\n\n"
	if got != want {
		t.Errorf("csv mismatch:\n got %q\nwant %q", got, want)
	}
}
