/*
Package reconcile merges the two staged workforce views into one.

PURPOSE:
  Builds the unified collaborator list joining time-tracking people
  (source B) and payroll employees (source A) by lower-cased email, and
  computes meal-voucher eligibility for each entry.

KEY DECISIONS:
  - The unified collaborator is a sum type (Both | TimetrackOnly |
    PayrollOnly), each variant carrying exactly the records guaranteed
    present, with a single View() projection for the API/CSV layers.
  - Eligibility: an explicit override always wins; otherwise presence of
    at least one active payroll contract. A timetrack-only person defaults
    to NOT eligible; a payroll-only active employee defaults to eligible.
    The asymmetry is deliberate: payroll is the authoritative source.
  - Rows sharing an email within one source are deduplicated keeping the
    latest CreatedAt (last seen wins on ties).
  - Payroll-only entries are addressed through IDs prefixed "payroll_",
    which keeps them distinguishable from timetrack-native row IDs on the
    update path.

INVARIANT:
  Every lower-cased email appears at most once in the merged output.

SEE ALSO:
  - voucher: consumes the merged view for entitlement computation
  - store: the staged records this package joins
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/plancharge/engine/store"
)

// PayrollIDPrefix marks unified IDs that address a payroll-only record.
const PayrollIDPrefix = "payroll_"

var (
	// ErrEmptyEmail is returned when an eligibility override would be
	// keyed on an empty email.
	ErrEmptyEmail = errors.New("override email must not be empty")

	// ErrNotFound is returned when an update addresses an unknown unified ID.
	ErrNotFound = errors.New("collaborator not found")
)

// Source tags which systems back a unified entry.
type Source string

const (
	SourceBoth          Source = "both"
	SourceTimetrackOnly Source = "timetrack"
	SourcePayrollOnly   Source = "payroll"
)

// =============================================================================
// SUM TYPE
// =============================================================================

// Collaborator is the unified entry: exactly one of the three variants.
type Collaborator interface {
	View() View
	seal()
}

// Both joins a timetrack person with their payroll record.
type Both struct {
	Timetrack store.Collaborator
	Payroll   store.PayrollEmployee

	HasActiveContract bool
	Eligible          bool
}

// TimetrackOnly is a person with no payroll match.
type TimetrackOnly struct {
	Timetrack store.Collaborator

	Eligible bool // override only; default false
}

// PayrollOnly is a payroll employee absent from the time-tracking system.
type PayrollOnly struct {
	Payroll store.PayrollEmployee

	HasActiveContract bool
	Eligible          bool
}

func (Both) seal()          {}
func (TimetrackOnly) seal() {}
func (PayrollOnly) seal()   {}

// View is the flattened shape consumed by the API and CSV layers.
type View struct {
	ID                 string  `json:"id"`
	Source             Source  `json:"source"`
	Email              string  `json:"email"`
	FirstName          string  `json:"first_name"`
	LastName           string  `json:"last_name"`
	Matricule          *string `json:"matricule"`
	Department         string  `json:"department"`
	Position           string  `json:"position"`
	IsActive           bool    `json:"is_active"`
	IsAdmin            bool    `json:"is_admin"`
	EligibleForVoucher bool    `json:"eligible_for_voucher"`
	HasActiveContract  bool    `json:"has_active_contract"`
	PayrollExternalID  string  `json:"payroll_external_id,omitempty"`
}

// View projects the join. Timetrack attributes win where both sources carry
// a value; the matricule falls back to the payroll registration number.
func (c Both) View() View {
	v := View{
		ID:                 c.Timetrack.ID,
		Source:             SourceBoth,
		Email:              c.Timetrack.Email,
		FirstName:          firstNonEmpty(c.Timetrack.FirstName, c.Payroll.FirstName),
		LastName:           firstNonEmpty(c.Timetrack.LastName, c.Payroll.LastName),
		Matricule:          c.Timetrack.Matricule,
		Department:         firstNonEmpty(c.Timetrack.Department, c.Payroll.Department),
		Position:           firstNonEmpty(c.Timetrack.Position, c.Payroll.Position),
		IsActive:           c.Timetrack.IsActive,
		IsAdmin:            c.Timetrack.IsAdmin,
		EligibleForVoucher: c.Eligible,
		HasActiveContract:  c.HasActiveContract,
		PayrollExternalID:  c.Payroll.ExternalID,
	}
	if v.Matricule == nil {
		v.Matricule = c.Payroll.RegistrationNumber
	}
	return v
}

func (c TimetrackOnly) View() View {
	return View{
		ID:                 c.Timetrack.ID,
		Source:             SourceTimetrackOnly,
		Email:              c.Timetrack.Email,
		FirstName:          c.Timetrack.FirstName,
		LastName:           c.Timetrack.LastName,
		Matricule:          c.Timetrack.Matricule,
		Department:         c.Timetrack.Department,
		Position:           c.Timetrack.Position,
		IsActive:           c.Timetrack.IsActive,
		IsAdmin:            c.Timetrack.IsAdmin,
		EligibleForVoucher: c.Eligible,
	}
}

func (c PayrollOnly) View() View {
	return View{
		ID:                 PayrollIDPrefix + c.Payroll.ID,
		Source:             SourcePayrollOnly,
		Email:              c.Payroll.Email,
		FirstName:          c.Payroll.FirstName,
		LastName:           c.Payroll.LastName,
		Matricule:          c.Payroll.RegistrationNumber,
		Department:         c.Payroll.Department,
		Position:           c.Payroll.Position,
		IsActive:           c.Payroll.IsActive,
		EligibleForVoucher: c.Eligible,
		HasActiveContract:  c.HasActiveContract,
		PayrollExternalID:  c.Payroll.ExternalID,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine merges and updates unified collaborators.
type Engine struct {
	store store.Store
}

// New creates a reconciliation engine.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Merge builds the unified list. activeOnly filters each source's input to
// active records before joining.
func (e *Engine) Merge(ctx context.Context, activeOnly bool) ([]Collaborator, error) {
	timetrack, err := e.store.ListCollaborators(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	payroll, err := e.store.ListPayrollEmployees(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list payroll employees: %w", err)
	}
	contracts, err := e.store.ListPayrollContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	overrides, err := e.store.ListOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	// Same-source dedupe by lower-cased email on both sides: latest
	// CreatedAt wins, last seen wins on ties.
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

	timetrackByEmail := make(map[string]store.Collaborator)
	var timetrackOrder []string
	for _, tc := range timetrack {
		key := strings.ToLower(tc.Email)
		if key == "" {
			continue
		}
		prev, ok := timetrackByEmail[key]
		if !ok {
			timetrackOrder = append(timetrackOrder, key)
		} else if prev.CreatedAt.After(tc.CreatedAt) {
			continue
		}
		timetrackByEmail[key] = tc
	}

	activeContract := make(map[string]bool) // by employee external ID
	for _, c := range contracts {
		if c.IsActive {
			activeContract[c.EmployeeExternalID] = true
		}
	}

	overrideByEmail := make(map[string]store.EligibilityOverride, len(overrides))
	for _, o := range overrides {
		overrideByEmail[strings.ToLower(o.Email)] = o
	}

	var out []Collaborator
	consumed := make(map[string]bool)

	for _, key := range timetrackOrder {
		tc := timetrackByEmail[key]
		pe, matched := payrollByEmail[key]
		if matched {
			consumed[key] = true
			hasContract := activeContract[pe.ExternalID]
			out = append(out, Both{
				Timetrack:         tc,
				Payroll:           pe,
				HasActiveContract: hasContract,
				Eligible:          resolveEligibility(overrideByEmail, key, hasContract),
			})
			continue
		}
		// No payroll record: not eligible unless an override says so.
		out = append(out, TimetrackOnly{
			Timetrack: tc,
			Eligible:  resolveEligibility(overrideByEmail, key, false),
		})
	}

	for _, pe := range payrollByEmail {
		key := strings.ToLower(pe.Email)
		if consumed[key] {
			continue
		}
		hasContract := activeContract[pe.ExternalID]
		// Payroll-only default: eligible when active, even without a
		// contract row staged. Payroll is authoritative.
		def := hasContract || pe.IsActive
		out = append(out, PayrollOnly{
			Payroll:           pe,
			HasActiveContract: hasContract,
			Eligible:          resolveEligibility(overrideByEmail, key, def),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(displayName(out[i].View())) < strings.ToLower(displayName(out[j].View()))
	})
	return out, nil
}

// Views is the flattened form of Merge.
func (e *Engine) Views(ctx context.Context, activeOnly bool) ([]View, error) {
	merged, err := e.Merge(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]View, len(merged))
	for i, c := range merged {
		views[i] = c.View()
	}
	return views, nil
}

func resolveEligibility(overrides map[string]store.EligibilityOverride, email string, def bool) bool {
	if o, ok := overrides[email]; ok {
		return o.IsEligible
	}
	return def
}

func displayName(v View) string {
	name := strings.TrimSpace(v.FirstName + " " + v.LastName)
	if name == "" {
		return v.Email
	}
	return name
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
