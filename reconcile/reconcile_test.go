package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plancharge/engine/reconcile"
	"github.com/plancharge/engine/store"
	"github.com/plancharge/engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func seedCollaborator(t *testing.T, st *memory.Memory, id, email string, active bool) {
	t.Helper()
	err := st.InsertCollaborator(context.Background(), &store.Collaborator{
		ID: id, ExternalID: "x-" + id, Email: email,
		FirstName: "F" + id, LastName: "L" + id, IsActive: active,
	})
	require.NoError(t, err)
}

func seedPayroll(t *testing.T, st *memory.Memory, id, email string, active bool, createdAt time.Time) {
	t.Helper()
	err := st.InsertPayrollEmployee(context.Background(), &store.PayrollEmployee{
		ID: id, ExternalID: "px-" + id, Email: email,
		FirstName: "P" + id, LastName: "Q" + id, IsActive: active,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
}

func seedActiveContract(t *testing.T, st *memory.Memory, id, employeeExternalID string) {
	t.Helper()
	err := st.InsertPayrollContract(context.Background(), &store.PayrollContract{
		ID: id, ExternalID: "cx-" + id, EmployeeExternalID: employeeExternalID,
		StartDate: time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC), IsActive: true,
	})
	require.NoError(t, err)
}

// =============================================================================
// MERGE
// =============================================================================

func TestMerge_EmailAppearsAtMostOnce(t *testing.T) {
	// GIVEN: Overlapping people in both sources, plus payroll duplicates
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "alice@corp.fr", true)
	seedCollaborator(t, st, "c2", "bob@corp.fr", true)
	seedPayroll(t, st, "p1", "ALICE@corp.fr", true, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	seedPayroll(t, st, "p2", "alice@corp.fr", true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seedPayroll(t, st, "p3", "carol@corp.fr", true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	// WHEN: Merging
	eng := reconcile.New(st)
	views, err := eng.Views(ctx, false)
	require.NoError(t, err)

	// THEN: Each lower-cased email appears exactly once
	seen := map[string]int{}
	for _, v := range views {
		seen[v.Email]++
	}
	assert.Len(t, views, 3)
	for email, n := range seen {
		assert.Equal(t, 1, n, "email %s appears %d times", email, n)
	}
}

func TestMerge_PayrollDedupeKeepsLatestCreatedAt(t *testing.T) {
	// GIVEN: Two payroll rows for one email, the newer carrying a different name
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "alice@corp.fr", true)
	seedPayroll(t, st, "old", "alice@corp.fr", true, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC))
	seedPayroll(t, st, "new", "alice@corp.fr", true, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	seedActiveContract(t, st, "k1", "px-new")

	// WHEN: Merging
	eng := reconcile.New(st)
	merged, err := eng.Merge(ctx, false)
	require.NoError(t, err)

	// THEN: The join uses the newer payroll row
	require.Len(t, merged, 1)
	both, ok := merged[0].(reconcile.Both)
	require.True(t, ok, "expected a Both variant, got %T", merged[0])
	assert.Equal(t, "new", both.Payroll.ID)
	assert.True(t, both.HasActiveContract)
}

func TestMerge_TimetrackDedupeKeepsLatestCreatedAt(t *testing.T) {
	// GIVEN: Two timetrack rows for one email, the newer created later
	st := memory.New()
	ctx := context.Background()
	for _, row := range []struct {
		id      string
		created time.Time
	}{
		{"old", time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"new", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	} {
		err := st.InsertCollaborator(ctx, &store.Collaborator{
			ID: row.id, ExternalID: "x-" + row.id, Email: "alice@corp.fr",
			FirstName: "F" + row.id, IsActive: true, CreatedAt: row.created,
		})
		require.NoError(t, err)
	}

	// WHEN: Merging
	eng := reconcile.New(st)
	merged, err := eng.Merge(ctx, false)
	require.NoError(t, err)

	// THEN: The newer row is authoritative, same as the payroll side
	require.Len(t, merged, 1)
	only, ok := merged[0].(reconcile.TimetrackOnly)
	require.True(t, ok, "expected a TimetrackOnly variant, got %T", merged[0])
	assert.Equal(t, "new", only.Timetrack.ID)
}

func TestMerge_EligibilityDefaults(t *testing.T) {
	// GIVEN: A matched pair with an active contract, a timetrack-only
	// person, and an active payroll-only employee
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "matched@corp.fr", true)
	seedPayroll(t, st, "p1", "matched@corp.fr", true, time.Now())
	seedActiveContract(t, st, "k1", "px-p1")
	seedCollaborator(t, st, "c2", "solo-tt@corp.fr", true)
	seedPayroll(t, st, "p2", "solo-pr@corp.fr", true, time.Now())

	// WHEN: Merging
	eng := reconcile.New(st)
	views, err := eng.Views(ctx, false)
	require.NoError(t, err)

	byEmail := map[string]reconcile.View{}
	for _, v := range views {
		byEmail[v.Email] = v
	}

	// THEN: Contract-backed pair eligible; timetrack-only NOT eligible;
	// active payroll-only eligible. The asymmetry is the point.
	assert.True(t, byEmail["matched@corp.fr"].EligibleForVoucher)
	assert.False(t, byEmail["solo-tt@corp.fr"].EligibleForVoucher)
	assert.True(t, byEmail["solo-pr@corp.fr"].EligibleForVoucher)
	assert.Equal(t, reconcile.SourceBoth, byEmail["matched@corp.fr"].Source)
	assert.Equal(t, reconcile.SourceTimetrackOnly, byEmail["solo-tt@corp.fr"].Source)
	assert.Equal(t, reconcile.SourcePayrollOnly, byEmail["solo-pr@corp.fr"].Source)
}

func TestMerge_OverridePrecedenceAndRevert(t *testing.T) {
	// GIVEN: A contract-backed (default eligible) collaborator with a
	// blocking override
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "alice@corp.fr", true)
	seedPayroll(t, st, "p1", "alice@corp.fr", true, time.Now())
	seedActiveContract(t, st, "k1", "px-p1")
	eng := reconcile.New(st)
	_, err := eng.Update(ctx, "c1", reconcile.UpdateFields{
		EligibleForVoucher: boolp(false), Reason: "long leave", ModifiedBy: "hr",
	})
	require.NoError(t, err)

	// WHEN: Merging with the override in place
	views, err := eng.Views(ctx, false)
	require.NoError(t, err)
	require.Len(t, views, 1)

	// THEN: The override wins over the computed default
	assert.False(t, views[0].EligibleForVoucher)

	// WHEN: The override is removed
	require.NoError(t, eng.RemoveOverride(ctx, "alice@corp.fr"))
	views, err = eng.Views(ctx, false)
	require.NoError(t, err)

	// THEN: Eligibility reverts to the computed default
	assert.True(t, views[0].EligibleForVoucher)
}

func TestMerge_SortedByDisplayNameCaseInsensitive(t *testing.T) {
	// GIVEN: Names that only sort correctly case-insensitively
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.InsertCollaborator(ctx, &store.Collaborator{
		ID: "c1", ExternalID: "x1", Email: "z@corp.fr", FirstName: "zoe", LastName: "abad", IsActive: true,
	}))
	require.NoError(t, st.InsertCollaborator(ctx, &store.Collaborator{
		ID: "c2", ExternalID: "x2", Email: "b@corp.fr", FirstName: "Bernard", LastName: "Zed", IsActive: true,
	}))

	// WHEN: Merging
	views, err := reconcile.New(st).Views(ctx, false)
	require.NoError(t, err)

	// THEN: "Bernard Zed" precedes "zoe abad"
	require.Len(t, views, 2)
	assert.Equal(t, "b@corp.fr", views[0].Email)
	assert.Equal(t, "z@corp.fr", views[1].Email)
}

// =============================================================================
// UPDATE PATH
// =============================================================================

func TestUpdate_UnknownIDIsNotFound(t *testing.T) {
	st := memory.New()
	eng := reconcile.New(st)

	_, err := eng.Update(context.Background(), "ghost", reconcile.UpdateFields{IsActive: boolp(false)})
	assert.True(t, errors.Is(err, reconcile.ErrNotFound))

	_, err = eng.Update(context.Background(), reconcile.PayrollIDPrefix+"ghost", reconcile.UpdateFields{IsActive: boolp(false)})
	assert.True(t, errors.Is(err, reconcile.ErrNotFound))
}

func TestUpdate_ActiveFlagMirrorsToOtherSource(t *testing.T) {
	// GIVEN: A matched pair, both active
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "alice@corp.fr", true)
	seedPayroll(t, st, "p1", "alice@corp.fr", true, time.Now())
	eng := reconcile.New(st)

	// WHEN: Deactivating via the timetrack-native ID
	_, err := eng.Update(ctx, "c1", reconcile.UpdateFields{IsActive: boolp(false)})
	require.NoError(t, err)

	// THEN: Both staged records are inactive
	c, _ := st.GetCollaboratorByID(ctx, "c1")
	require.NotNil(t, c)
	assert.False(t, c.IsActive)
	p, _ := st.GetPayrollEmployeeByID(ctx, "p1")
	require.NotNil(t, p)
	assert.False(t, p.IsActive)
}

func TestUpdate_PayrollOnlyMissingMirrorIsNotAnError(t *testing.T) {
	// GIVEN: A payroll-only employee
	st := memory.New()
	ctx := context.Background()
	seedPayroll(t, st, "p1", "solo@corp.fr", true, time.Now())
	eng := reconcile.New(st)

	// WHEN: Deactivating via the prefixed unified ID
	v, err := eng.Update(ctx, reconcile.PayrollIDPrefix+"p1", reconcile.UpdateFields{IsActive: boolp(false)})

	// THEN: The write succeeds despite no timetrack mirror existing
	require.NoError(t, err)
	assert.False(t, v.IsActive)
	assert.Equal(t, reconcile.PayrollIDPrefix+"p1", v.ID)
}

func TestUpdate_OverrideRequiresEmail(t *testing.T) {
	// GIVEN: A collaborator staged without an email
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.InsertCollaborator(ctx, &store.Collaborator{
		ID: "c1", ExternalID: "x1", Email: "", IsActive: true,
	}))
	eng := reconcile.New(st)

	// WHEN: Writing an eligibility override
	_, err := eng.Update(ctx, "c1", reconcile.UpdateFields{EligibleForVoucher: boolp(true)})

	// THEN: It is rejected before persisting
	assert.True(t, errors.Is(err, reconcile.ErrEmptyEmail))
	overrides, _ := st.ListOverrides(ctx)
	assert.Empty(t, overrides)
}

func TestComputeStats(t *testing.T) {
	// GIVEN: A small mixed population
	st := memory.New()
	ctx := context.Background()
	seedCollaborator(t, st, "c1", "a@corp.fr", true)
	seedCollaborator(t, st, "c2", "b@corp.fr", false)
	seedPayroll(t, st, "p1", "a@corp.fr", true, time.Now())
	seedActiveContract(t, st, "k1", "px-p1")

	// WHEN: Computing stats
	stats, err := reconcile.New(st).ComputeStats(ctx)
	require.NoError(t, err)

	// THEN: Counts line up per source and in the merged view
	assert.Equal(t, 1, stats.PayrollEmployees)
	assert.Equal(t, 1, stats.PayrollActive)
	assert.Equal(t, 1, stats.ActiveContracts)
	assert.Equal(t, 2, stats.TimetrackPeople)
	assert.Equal(t, 1, stats.TimetrackActive)
	assert.Equal(t, 2, stats.UnifiedCount)
	assert.Equal(t, 1, stats.EligibleForVouchers)
}
