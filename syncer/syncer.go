/*
Package syncer upserts normalized provider payloads into the staging tables.

PURPOSE:
  One SyncX method per entity kind, each returning {created, updated, failed}
  counts. A failing record is counted and logged with its external ID, never
  aborts the batch. Every invocation is bracketed by a SyncRun row:
  status=started before work begins, finalized success/failed afterward.
  Only a total pipeline failure (the upstream list call itself) finalizes
  as failed; nonzero record failures still finalize success.

MERGE POLICY:
  Upserts are Get-then-Insert-or-Update on (source, externalID).
  Identifier/code-like fields - the employee registration number, the
  collaborator matricule, project and task codes - are PRESERVED when the
  incoming payload omits them; a flaky upstream payload must not erase
  previously-good identifiers. Name fields, status flags and timestamps are
  always overwritten.

CROSS-LINKING:
  On create, staged people are linked to an internal user account by exact
  case-insensitive email. No account is ever created implicitly.

DEPENDENCY ORDER:
  employees -> contracts -> absences; collaborators -> projects -> tasks ->
  declarations. A record whose reference cannot be resolved is a per-record
  failure.

SEE ALSO:
  - provider: the payload source
  - store: the staging tables
*/
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/plancharge/engine/provider"
	"github.com/plancharge/engine/store"
)

// DefaultWindowDays is the half-width of the rolling sync window for
// absences and declarations.
const DefaultWindowDays = 180

// PayrollSource lists normalized payloads from the payroll system.
type PayrollSource interface {
	ListEmployees(ctx context.Context) ([]provider.EmployeePayload, error)
	ListContracts(ctx context.Context) ([]provider.ContractPayload, error)
	ListAbsences(ctx context.Context, from, to time.Time) ([]provider.AbsencePayload, error)
}

// TimetrackSource lists normalized payloads from the time-tracking system.
type TimetrackSource interface {
	ListCollaborators(ctx context.Context) ([]provider.CollaboratorPayload, error)
	ListProjects(ctx context.Context) ([]provider.ProjectPayload, error)
	ListTasks(ctx context.Context) ([]provider.TaskPayload, error)
	ListDeclarations(ctx context.Context, from, to time.Time) ([]provider.DeclarationPayload, error)
}

// Counts aggregates the outcome of one sync batch.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func (c Counts) add(other Counts) Counts {
	return Counts{
		Created: c.Created + other.Created,
		Updated: c.Updated + other.Updated,
		Failed:  c.Failed + other.Failed,
	}
}

// Service orchestrates syncs from both sources into the store.
type Service struct {
	store     store.Store
	payroll   PayrollSource
	timetrack TimetrackSource

	// now is swapped in tests.
	now func() time.Time
}

// New creates a sync service. Either source may be nil if only the other
// system is configured; calling a sync for a nil source returns an error.
func New(st store.Store, payroll PayrollSource, timetrack TimetrackSource) *Service {
	return &Service{
		store:     st,
		payroll:   payroll,
		timetrack: timetrack,
		now:       time.Now,
	}
}

// DefaultWindow returns the rolling sync range: today +/- DefaultWindowDays.
func (s *Service) DefaultWindow() (time.Time, time.Time) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -DefaultWindowDays), today.AddDate(0, 0, DefaultWindowDays)
}

// FullSync runs every entity sync in dependency order. Sub-sync failures
// are collected, not fatal: the run finalizes partial when some entity
// syncs failed and others did not, failed when all did.
func (s *Service) FullSync(ctx context.Context, triggeredBy string) (Counts, error) {
	from, to := s.DefaultWindow()

	return s.runChain(ctx, store.SourceFull, triggeredBy, []chainStep{
		{"payroll employees", func() (Counts, error) { return s.SyncPayrollEmployees(ctx) }},
		{"payroll contracts", func() (Counts, error) { return s.SyncPayrollContracts(ctx) }},
		{"payroll absences", func() (Counts, error) { return s.SyncPayrollAbsences(ctx, from, to) }},
		{"collaborators", func() (Counts, error) { return s.SyncCollaborators(ctx) }},
		{"projects", func() (Counts, error) { return s.SyncProjects(ctx) }},
		{"tasks", func() (Counts, error) { return s.SyncTasks(ctx) }},
		{"declarations", func() (Counts, error) { return s.SyncDeclarations(ctx, from, to) }},
	})
}

// SyncPayrollAll runs the source-A chain (employees, contracts, absences)
// under one run record, with FullSync's failure semantics.
func (s *Service) SyncPayrollAll(ctx context.Context, triggeredBy string) (Counts, error) {
	from, to := s.DefaultWindow()
	return s.runChain(ctx, store.SourcePayroll, triggeredBy, []chainStep{
		{"payroll employees", func() (Counts, error) { return s.SyncPayrollEmployees(ctx) }},
		{"payroll contracts", func() (Counts, error) { return s.SyncPayrollContracts(ctx) }},
		{"payroll absences", func() (Counts, error) { return s.SyncPayrollAbsences(ctx, from, to) }},
	})
}

// SyncTimetrackAll runs the source-B chain (collaborators, projects, tasks,
// declarations) under one run record.
func (s *Service) SyncTimetrackAll(ctx context.Context, triggeredBy string) (Counts, error) {
	from, to := s.DefaultWindow()
	return s.runChain(ctx, store.SourceTimetrack, triggeredBy, []chainStep{
		{"collaborators", func() (Counts, error) { return s.SyncCollaborators(ctx) }},
		{"projects", func() (Counts, error) { return s.SyncProjects(ctx) }},
		{"tasks", func() (Counts, error) { return s.SyncTasks(ctx) }},
		{"declarations", func() (Counts, error) { return s.SyncDeclarations(ctx, from, to) }},
	})
}

type chainStep struct {
	name string
	fn   func() (Counts, error)
}

func (s *Service) runChain(ctx context.Context, source store.SourceSystem, triggeredBy string, steps []chainStep) (Counts, error) {
	label := string(source)
	run := s.startRun(ctx, source, "full", triggeredBy)
	total := Counts{}
	var firstErr error
	failures := 0

	for _, st := range steps {
		counts, err := st.fn()
		total = total.add(counts)
		if err != nil {
			failures++
			log.Printf("[Syncer] %s sync step %s failed: %v", label, st.name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", st.name, err)
			}
		}
	}

	status := store.SyncSuccess
	switch {
	case failures == len(steps):
		status = store.SyncFailed
	case failures > 0:
		status = store.SyncPartial
	}
	s.finalizeRun(ctx, run, total, status, firstErr)
	return total, firstErr
}

// =============================================================================
// SYNC-RUN BRACKETING
// =============================================================================

func (s *Service) startRun(ctx context.Context, source store.SourceSystem, syncType, triggeredBy string) *store.SyncRun {
	run := &store.SyncRun{
		ID:          fmt.Sprintf("run-%d", time.Now().UnixNano()),
		Source:      source,
		SyncType:    syncType,
		Status:      store.SyncStarted,
		StartedAt:   s.now().UTC(),
		TriggeredBy: triggeredBy,
	}
	if err := s.store.InsertSyncRun(ctx, run); err != nil {
		log.Printf("[Syncer] Failed to record sync run start: %v", err)
	}
	return run
}

func (s *Service) finalizeRun(ctx context.Context, run *store.SyncRun, counts Counts, status string, cause error) {
	completed := s.now().UTC()
	run.Status = status
	run.CompletedAt = &completed
	run.DurationSeconds = int(completed.Sub(run.StartedAt).Seconds())
	run.RecordsCreated = counts.Created
	run.RecordsUpdated = counts.Updated
	run.RecordsFailed = counts.Failed
	if cause != nil {
		run.ErrorMessage = cause.Error()
	}
	if err := s.store.FinalizeSyncRun(ctx, run); err != nil {
		log.Printf("[Syncer] Failed to finalize sync run %s: %v", run.ID, err)
	}
	log.Printf("[Syncer] %s/%s finished %s: created=%d updated=%d failed=%d",
		run.Source, run.SyncType, status, counts.Created, counts.Updated, counts.Failed)
}

// bracket wraps one entity sync in a SyncRun. fn's error means the batch as
// a whole could not run (e.g. the upstream list call failed).
func (s *Service) bracket(ctx context.Context, source store.SourceSystem, syncType string, fn func() (Counts, error)) (Counts, error) {
	run := s.startRun(ctx, source, syncType, "")
	counts, err := fn()
	status := store.SyncSuccess
	if err != nil {
		status = store.SyncFailed
	}
	s.finalizeRun(ctx, run, counts, status, err)
	return counts, err
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// linkUser returns the internal account ID for the email, or "" when no
// account matches.
func (s *Service) linkUser(ctx context.Context, email string) string {
	if email == "" {
		return ""
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil || u == nil {
		return ""
	}
	return u.ID
}
