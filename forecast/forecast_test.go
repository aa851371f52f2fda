package forecast_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/forecast"
	"github.com/plancharge/engine/store"
	"github.com/plancharge/engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixedHolidays map[time.Time]bool

func (f fixedHolidays) IsPublicHoliday(d time.Time) bool { return f[calendar.DateOnly(d)] }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }

func seedForecast(t *testing.T, st *memory.Memory, id, collabID, projectID string, taskID *string, date time.Time, hours float64, description string, createdAt time.Time) {
	t.Helper()
	err := st.InsertForecast(context.Background(), &store.Forecast{
		ID: id, CollaboratorID: collabID, ProjectID: projectID, TaskID: taskID,
		Date: date, Hours: hours, Description: description, CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed forecast: %v", err)
	}
}

// =============================================================================
// BATCH WRITER
// =============================================================================

func TestCreateBatch_SkipsWeekendsAndHolidays(t *testing.T) {
	// GIVEN: A two-week range containing a weekend and a pinned holiday
	// on Monday March 17th
	st := memory.New()
	svc := forecast.New(st, fixedHolidays{day(2025, time.March, 17): true})

	// WHEN: Spreading 7 hours per day over March 10-21
	res, err := svc.CreateBatch(context.Background(), forecast.BatchParams{
		CollaboratorID: "c1", ProjectID: "p1",
		StartDate: day(2025, time.March, 10), EndDate: day(2025, time.March, 21),
		HoursPerDay: 7, CreatedBy: "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: 10 weekdays minus the holiday get a row each
	if res.Created != 9 || res.Updated != 0 || res.TotalDays != 9 {
		t.Errorf("expected 9 created rows, got %+v", res)
	}
	if f, _ := st.FindForecastByKey(context.Background(), "c1", "p1", nil, day(2025, time.March, 17)); f != nil {
		t.Error("holiday should not carry a forecast row")
	}
	if f, _ := st.FindForecastByKey(context.Background(), "c1", "p1", nil, day(2025, time.March, 15)); f != nil {
		t.Error("saturday should not carry a forecast row")
	}
}

func TestCreateBatch_RerunUpdatesInsteadOfDuplicating(t *testing.T) {
	// GIVEN: A batch already written
	st := memory.New()
	svc := forecast.New(st, fixedHolidays{})
	params := forecast.BatchParams{
		CollaboratorID: "c1", ProjectID: "p1",
		StartDate: day(2025, time.March, 10), EndDate: day(2025, time.March, 12),
		HoursPerDay: 7,
	}
	if _, err := svc.CreateBatch(context.Background(), params); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	// WHEN: Re-running with different hours
	params.HoursPerDay = 4
	res, err := svc.CreateBatch(context.Background(), params)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}

	// THEN: Every day is an update, and the hours changed in place
	if res.Created != 0 || res.Updated != 3 {
		t.Errorf("expected 3 updates, got %+v", res)
	}
	f, _ := st.FindForecastByKey(context.Background(), "c1", "p1", nil, day(2025, time.March, 11))
	if f == nil || f.Hours != 4 {
		t.Errorf("expected hours rewritten to 4, got %+v", f)
	}
}

func TestCreateBatch_RejectsBadInput(t *testing.T) {
	svc := forecast.New(memory.New(), fixedHolidays{})

	_, err := svc.CreateBatch(context.Background(), forecast.BatchParams{
		CollaboratorID: "c1", ProjectID: "p1",
		StartDate: day(2025, time.March, 12), EndDate: day(2025, time.March, 10),
		HoursPerDay: 7,
	})
	if !errors.Is(err, forecast.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}

	_, err = svc.CreateBatch(context.Background(), forecast.BatchParams{
		CollaboratorID: "c1", ProjectID: "p1",
		StartDate: day(2025, time.March, 10), EndDate: day(2025, time.March, 12),
	})
	if !errors.Is(err, forecast.ErrInvalidHours) {
		t.Errorf("expected ErrInvalidHours, got %v", err)
	}
}

// =============================================================================
// GROUP RECONSTRUCTION
// =============================================================================

func TestGroup_SameSecondRowsGroupedLaterRowExcluded(t *testing.T) {
	// GIVEN: Two rows written in the same second and a third with
	// identical parameters written ten seconds later
	st := memory.New()
	svc := forecast.New(st, fixedHolidays{})
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	seedForecast(t, st, "f1", "c1", "p1", nil, day(2025, time.March, 10), 7, "ramp-up", at)
	seedForecast(t, st, "f2", "c1", "p1", nil, day(2025, time.March, 11), 7, "ramp-up", at)
	seedForecast(t, st, "f3", "c1", "p1", nil, day(2025, time.March, 12), 7, "ramp-up", at.Add(10*time.Second))

	// WHEN: Reconstructing the batch around the first row
	g, err := svc.Group(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Only the same-second pair is returned
	sort.Strings(g.ForecastIDs)
	if len(g.ForecastIDs) != 2 || g.ForecastIDs[0] != "f1" || g.ForecastIDs[1] != "f2" {
		t.Errorf("expected [f1 f2], got %v", g.ForecastIDs)
	}
	if g.TotalDays != 2 || g.HoursPerDay != 7 {
		t.Errorf("unexpected group summary: %+v", g)
	}
	if !g.StartDate.Equal(day(2025, time.March, 10)) || !g.EndDate.Equal(day(2025, time.March, 11)) {
		t.Errorf("unexpected group range: %s - %s", g.StartDate, g.EndDate)
	}
}

func TestGroup_ParameterMismatchExcluded(t *testing.T) {
	// GIVEN: Rows inside the window that differ in task, hours or text
	st := memory.New()
	svc := forecast.New(st, fixedHolidays{})
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	seedForecast(t, st, "f1", "c1", "p1", nil, day(2025, time.March, 10), 7, "x", at)
	seedForecast(t, st, "f2", "c1", "p1", strp("t1"), day(2025, time.March, 11), 7, "x", at)
	seedForecast(t, st, "f3", "c1", "p1", nil, day(2025, time.March, 12), 4, "x", at)
	seedForecast(t, st, "f4", "c1", "p1", nil, day(2025, time.March, 13), 7, "y", at)

	// WHEN: Reconstructing around f1
	g, err := svc.Group(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Only the reference row itself matches
	if len(g.ForecastIDs) != 1 || g.ForecastIDs[0] != "f1" {
		t.Errorf("expected [f1], got %v", g.ForecastIDs)
	}
}

func TestGroup_UnknownIDIsNotFound(t *testing.T) {
	svc := forecast.New(memory.New(), fixedHolidays{})
	_, err := svc.Group(context.Background(), "ghost")
	if !errors.Is(err, forecast.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGroup_RemovesOnlyTheBatch(t *testing.T) {
	// GIVEN: A same-second pair and an unrelated later row
	st := memory.New()
	svc := forecast.New(st, fixedHolidays{})
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	seedForecast(t, st, "f1", "c1", "p1", nil, day(2025, time.March, 10), 7, "x", at)
	seedForecast(t, st, "f2", "c1", "p1", nil, day(2025, time.March, 11), 7, "x", at)
	seedForecast(t, st, "f3", "c1", "p1", nil, day(2025, time.March, 12), 7, "x", at.Add(time.Minute))

	// WHEN: Deleting the group of f1
	n, err := svc.DeleteGroup(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The pair is gone, the later row survives
	if n != 2 {
		t.Errorf("expected 2 deleted rows, got %d", n)
	}
	if f, _ := st.GetForecast(context.Background(), "f3"); f == nil {
		t.Error("unrelated row should survive")
	}
	if f, _ := st.GetForecast(context.Background(), "f1"); f != nil {
		t.Error("grouped row should be gone")
	}
}

// =============================================================================
// SINGLE ROWS
// =============================================================================

func TestUpsert_ValidatesHours(t *testing.T) {
	svc := forecast.New(memory.New(), fixedHolidays{})
	_, _, err := svc.Upsert(context.Background(), forecast.UpsertParams{
		CollaboratorID: "c1", ProjectID: "p1", Date: day(2025, time.March, 10),
	})
	if !errors.Is(err, forecast.ErrInvalidHours) {
		t.Errorf("expected ErrInvalidHours, got %v", err)
	}
}

func TestDelete_UnknownIDIsNotFound(t *testing.T) {
	svc := forecast.New(memory.New(), fixedHolidays{})
	if err := svc.Delete(context.Background(), "ghost"); !errors.Is(err, forecast.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// =============================================================================
// PLAN-CHARGE PROJECTION
// =============================================================================

func TestPlanCharge_JoinsDeclarationsAndClippedAbsences(t *testing.T) {
	// GIVEN: An active collaborator with March declarations (plus one in
	// April that must not appear), a matching payroll employee whose
	// absence spans the February/March boundary, and a payroll-only
	// employee with an absence
	st := memory.New()
	ctx := context.Background()
	svc := forecast.New(st, fixedHolidays{})

	if err := st.InsertCollaborator(ctx, &store.Collaborator{
		ID: "c1", ExternalID: "gz-1", Email: "alice@corp.fr",
		FirstName: "Alice", LastName: "Durand", Matricule: strp("100"), IsActive: true,
	}); err != nil {
		t.Fatalf("seed collaborator: %v", err)
	}
	if err := st.InsertProject(ctx, &store.Project{
		ID: "p1", ExternalID: "gp-1", Name: "Atlas", Code: strp("ATL"), IsActive: true,
	}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	seedDecl := func(id string, date time.Time, hours float64) {
		t.Helper()
		if err := st.InsertDeclaration(ctx, &store.Declaration{
			ID: id, ExternalID: "gd-" + id, CollaboratorID: "c1", ProjectID: "p1",
			Date: date, DurationHours: hours, Status: "submitted", IsBillable: true,
		}); err != nil {
			t.Fatalf("seed declaration: %v", err)
		}
	}
	seedDecl("d1", day(2025, time.March, 10), 7.5)
	seedDecl("d2", day(2025, time.March, 10), 1.25)
	seedDecl("d3", day(2025, time.April, 2), 8)

	if err := st.InsertPayrollEmployee(ctx, &store.PayrollEmployee{
		ID: "pe1", ExternalID: "pf-1", Email: "alice@corp.fr", IsActive: true,
	}); err != nil {
		t.Fatalf("seed payroll employee: %v", err)
	}
	if err := st.InsertPayrollEmployee(ctx, &store.PayrollEmployee{
		ID: "pe2", ExternalID: "pf-2", Email: "bob@corp.fr", FirstName: "Bob", IsActive: true,
	}); err != nil {
		t.Fatalf("seed payroll employee: %v", err)
	}
	seedAbs := func(id, empExtID string, start, end time.Time) {
		t.Helper()
		if err := st.InsertPayrollAbsence(ctx, &store.PayrollAbsence{
			ID: id, ExternalID: "pa-" + id, EmployeeExternalID: empExtID,
			AbsenceType: "vacation", StartDate: start, EndDate: end,
			Status: store.AbsenceApproved,
		}); err != nil {
			t.Fatalf("seed absence: %v", err)
		}
	}
	seedAbs("a1", "pf-1", day(2025, time.February, 24), day(2025, time.March, 4))
	seedAbs("a2", "pf-2", day(2025, time.March, 17), day(2025, time.March, 18))

	// WHEN: Building March 2025
	pc, err := svc.PlanCharge(ctx, 2025, time.March)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Both people appear, sorted by name
	if len(pc.Collaborators) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(pc.Collaborators))
	}
	alice, bob := pc.Collaborators[0], pc.Collaborators[1]
	if alice.Email != "alice@corp.fr" || bob.Email != "bob@corp.fr" {
		t.Fatalf("unexpected order: %s, %s", alice.Email, bob.Email)
	}

	// Declarations keep only March days, merged per day
	if len(alice.Declarations) != 1 {
		t.Errorf("expected 1 declaration day, got %d", len(alice.Declarations))
	}
	entries := alice.Declarations["2025-03-10"]
	if len(entries) != 2 || entries[0].ProjectName != "Atlas" {
		t.Errorf("unexpected entries: %+v", entries)
	}
	if alice.TotalHours.String() != "8.75" {
		t.Errorf("expected total 8.75, got %s", alice.TotalHours.String())
	}

	// Alice's absence is clipped to the month start
	if len(alice.Absences) != 1 || alice.Absences[0].StartDate != "2025-03-01" || alice.Absences[0].EndDate != "2025-03-04" {
		t.Errorf("unexpected absences: %+v", alice.Absences)
	}

	// The payroll-only employee carries a prefixed ID and their absence
	if bob.CollaboratorID != "payroll_pe2" || len(bob.Absences) != 1 {
		t.Errorf("unexpected payroll-only row: %+v", bob)
	}
}

func TestPlanCharge_InvalidMonthRejected(t *testing.T) {
	svc := forecast.New(memory.New(), fixedHolidays{})
	_, err := svc.PlanCharge(context.Background(), 2025, time.Month(0))
	if !errors.Is(err, calendar.ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
}
