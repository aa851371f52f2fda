package reconcile

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/plancharge/engine/store"
)

// UpdateFields carries the mutable unified-collaborator fields. Nil means
// "leave unchanged".
type UpdateFields struct {
	IsActive           *bool
	EligibleForVoucher *bool
	Reason             string
	ModifiedBy         string
}

// Update applies fields to the collaborator addressed by a unified ID.
// Setting the active flag writes through to the addressed record and
// best-effort mirrors to the email-matched record in the other source.
// Setting eligibility always upserts an override row; it never mutates
// computed state.
func (e *Engine) Update(ctx context.Context, id string, fields UpdateFields) (View, error) {
	if strings.HasPrefix(id, PayrollIDPrefix) {
		return e.updatePayrollOnly(ctx, strings.TrimPrefix(id, PayrollIDPrefix), fields)
	}
	return e.updateTimetrack(ctx, id, fields)
}

func (e *Engine) updateTimetrack(ctx context.Context, id string, fields UpdateFields) (View, error) {
	collab, err := e.store.GetCollaboratorByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	if collab == nil {
		return View{}, fmt.Errorf("collaborator %s: %w", id, ErrNotFound)
	}

	if fields.IsActive != nil {
		collab.IsActive = *fields.IsActive
		if err := e.store.UpdateCollaborator(ctx, collab); err != nil {
			return View{}, err
		}
		e.mirrorPayrollActive(ctx, collab.Email, *fields.IsActive)
	}

	if fields.EligibleForVoucher != nil {
		if err := e.upsertOverride(ctx, collab.Email, collab.ID, *fields.EligibleForVoucher, fields); err != nil {
			return View{}, err
		}
	}

	return e.refreshView(ctx, id)
}

func (e *Engine) updatePayrollOnly(ctx context.Context, rowID string, fields UpdateFields) (View, error) {
	emp, err := e.store.GetPayrollEmployeeByID(ctx, rowID)
	if err != nil {
		return View{}, err
	}
	if emp == nil {
		return View{}, fmt.Errorf("payroll employee %s: %w", rowID, ErrNotFound)
	}

	if fields.IsActive != nil {
		emp.IsActive = *fields.IsActive
		if err := e.store.UpdatePayrollEmployee(ctx, emp); err != nil {
			return View{}, err
		}
		e.mirrorTimetrackActive(ctx, emp.Email, *fields.IsActive)
	}

	if fields.EligibleForVoucher != nil {
		if err := e.upsertOverride(ctx, emp.Email, "", *fields.EligibleForVoucher, fields); err != nil {
			return View{}, err
		}
	}

	return e.refreshView(ctx, PayrollIDPrefix+rowID)
}

// upsertOverride validates and writes the eligibility override row.
func (e *Engine) upsertOverride(ctx context.Context, email, collaboratorID string, eligible bool, fields UpdateFields) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrEmptyEmail
	}
	o := &store.EligibilityOverride{
		ID:             fmt.Sprintf("ovr-%d", time.Now().UnixNano()),
		CollaboratorID: collaboratorID,
		Email:          email,
		IsEligible:     eligible,
		Reason:         fields.Reason,
		ModifiedBy:     fields.ModifiedBy,
	}
	return e.store.UpsertOverride(ctx, o)
}

// RemoveOverride deletes the override for an email, reverting eligibility
// to the computed default on the next merge.
func (e *Engine) RemoveOverride(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrEmptyEmail
	}
	return e.store.DeleteOverrideByEmail(ctx, email)
}

// mirrorPayrollActive propagates an active-flag change to the email-matched
// payroll record. A missing mirror record is not an error.
func (e *Engine) mirrorPayrollActive(ctx context.Context, email string, active bool) {
	if email == "" {
		return
	}
	emp, err := e.store.FindPayrollEmployeeByEmail(ctx, email)
	if err != nil || emp == nil {
		return
	}
	emp.IsActive = active
	if err := e.store.UpdatePayrollEmployee(ctx, emp); err != nil {
		log.Printf("[Reconcile] Mirror to payroll record %s failed: %v", emp.ID, err)
	}
}

func (e *Engine) mirrorTimetrackActive(ctx context.Context, email string, active bool) {
	if email == "" {
		return
	}
	collab, err := e.store.FindCollaboratorByEmail(ctx, email)
	if err != nil || collab == nil {
		return
	}
	collab.IsActive = active
	if err := e.store.UpdateCollaborator(ctx, collab); err != nil {
		log.Printf("[Reconcile] Mirror to collaborator %s failed: %v", collab.ID, err)
	}
}

// refreshView re-merges and returns the entry for the unified ID.
func (e *Engine) refreshView(ctx context.Context, id string) (View, error) {
	views, err := e.Views(ctx, false)
	if err != nil {
		return View{}, err
	}
	for _, v := range views {
		if v.ID == id {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("collaborator %s: %w", id, ErrNotFound)
}

// Stats summarizes the staged workforce data.
type Stats struct {
	PayrollEmployees    int `json:"payroll_employees"`
	PayrollActive       int `json:"payroll_active"`
	PayrollContracts    int `json:"payroll_contracts"`
	ActiveContracts     int `json:"active_contracts"`
	TimetrackPeople     int `json:"timetrack_people"`
	TimetrackActive     int `json:"timetrack_active"`
	UnifiedCount        int `json:"unified_count"`
	EligibleForVouchers int `json:"eligible_for_vouchers"`
}

// ComputeStats counts both staged sources and the merged view.
func (e *Engine) ComputeStats(ctx context.Context) (Stats, error) {
	var st Stats

	payroll, err := e.store.ListPayrollEmployees(ctx, false)
	if err != nil {
		return st, err
	}
	st.PayrollEmployees = len(payroll)
	for _, p := range payroll {
		if p.IsActive {
			st.PayrollActive++
		}
	}

	contracts, err := e.store.ListPayrollContracts(ctx)
	if err != nil {
		return st, err
	}
	st.PayrollContracts = len(contracts)
	for _, c := range contracts {
		if c.IsActive {
			st.ActiveContracts++
		}
	}

	timetrack, err := e.store.ListCollaborators(ctx, false)
	if err != nil {
		return st, err
	}
	st.TimetrackPeople = len(timetrack)
	for _, c := range timetrack {
		if c.IsActive {
			st.TimetrackActive++
		}
	}

	views, err := e.Views(ctx, false)
	if err != nil {
		return st, err
	}
	st.UnifiedCount = len(views)
	for _, v := range views {
		if v.EligibleForVoucher {
			st.EligibleForVouchers++
		}
	}
	return st, nil
}
