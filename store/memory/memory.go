/*
Package memory provides an in-memory store.Store for tests.

PURPOSE:
  Mirrors the SQLite store's semantics (uniqueness, case-insensitive email
  matching, overlap queries) without touching disk. Every domain package's
  tests run against this implementation.

CONCURRENCY:
  A single RWMutex guards all maps; good enough for test workloads.

SEE ALSO:
  - store/store.go: interface contracts
  - store/sqlite: production implementation
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plancharge/engine/store"
)

// Memory implements store.Store with maps.
type Memory struct {
	mu sync.RWMutex

	payrollEmployees map[string]*store.PayrollEmployee // by internal ID
	payrollContracts map[string]*store.PayrollContract
	payrollAbsences  map[string]*store.PayrollAbsence

	collaborators map[string]*store.Collaborator
	projects      map[string]*store.Project
	tasks         map[string]*store.Task
	declarations  map[string]*store.Declaration

	overrides map[string]*store.EligibilityOverride // by lower-cased email
	forecasts map[string]*store.Forecast
	syncRuns  []*store.SyncRun
	users     map[string]*store.User

	seq atomic.Int64
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		payrollEmployees: make(map[string]*store.PayrollEmployee),
		payrollContracts: make(map[string]*store.PayrollContract),
		payrollAbsences:  make(map[string]*store.PayrollAbsence),
		collaborators:    make(map[string]*store.Collaborator),
		projects:         make(map[string]*store.Project),
		tasks:            make(map[string]*store.Task),
		declarations:     make(map[string]*store.Declaration),
		overrides:        make(map[string]*store.EligibilityOverride),
		forecasts:        make(map[string]*store.Forecast),
		users:            make(map[string]*store.User),
	}
}

func (m *Memory) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, m.seq.Add(1))
}

// AddUser seeds an internal account.
func (m *Memory) AddUser(_ context.Context, u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	m.users[u.ID] = &u
	return nil
}

// =============================================================================
// PAYROLL STAGING
// =============================================================================

func (m *Memory) GetPayrollEmployeeByExternalID(_ context.Context, externalID string) (*store.PayrollEmployee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.payrollEmployees {
		if e.ExternalID == externalID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetPayrollEmployeeByID(_ context.Context, id string) (*store.PayrollEmployee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.payrollEmployees[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) FindPayrollEmployeeByEmail(_ context.Context, email string) (*store.PayrollEmployee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*store.PayrollEmployee
	for _, e := range m.payrollEmployees {
		if strings.EqualFold(e.Email, email) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	// Deterministic "first" row: oldest CreatedAt, then ID.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	cp := *matched[0]
	return &cp, nil
}

func (m *Memory) InsertPayrollEmployee(_ context.Context, e *store.PayrollEmployee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payrollEmployees {
		if existing.ExternalID == e.ExternalID {
			return store.ErrDuplicate
		}
	}
	if e.ID == "" {
		e.ID = m.nextID("pe")
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := *e
	m.payrollEmployees[e.ID] = &cp
	return nil
}

func (m *Memory) UpdatePayrollEmployee(_ context.Context, e *store.PayrollEmployee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payrollEmployees[e.ID]; !ok {
		return store.ErrNotFound
	}
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	m.payrollEmployees[e.ID] = &cp
	return nil
}

func (m *Memory) ListPayrollEmployees(_ context.Context, activeOnly bool) ([]store.PayrollEmployee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.PayrollEmployee
	for _, e := range m.payrollEmployees {
		if activeOnly && !e.IsActive {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPayrollContractByExternalID(_ context.Context, externalID string) (*store.PayrollContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.payrollContracts {
		if c.ExternalID == externalID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertPayrollContract(_ context.Context, c *store.PayrollContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payrollContracts {
		if existing.ExternalID == c.ExternalID {
			return store.ErrDuplicate
		}
	}
	if c.ID == "" {
		c.ID = m.nextID("pc")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	m.payrollContracts[c.ID] = &cp
	return nil
}

func (m *Memory) UpdatePayrollContract(_ context.Context, c *store.PayrollContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payrollContracts[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.payrollContracts[c.ID] = &cp
	return nil
}

func (m *Memory) ListPayrollContracts(_ context.Context) ([]store.PayrollContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.PayrollContract
	for _, c := range m.payrollContracts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPayrollAbsenceByExternalID(_ context.Context, externalID string) (*store.PayrollAbsence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.payrollAbsences {
		if a.ExternalID == externalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertPayrollAbsence(_ context.Context, a *store.PayrollAbsence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payrollAbsences {
		if existing.ExternalID == a.ExternalID {
			return store.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = m.nextID("pa")
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	cp := *a
	m.payrollAbsences[a.ID] = &cp
	return nil
}

func (m *Memory) UpdatePayrollAbsence(_ context.Context, a *store.PayrollAbsence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payrollAbsences[a.ID]; !ok {
		return store.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	m.payrollAbsences[a.ID] = &cp
	return nil
}

func (m *Memory) ListPayrollAbsencesOverlapping(_ context.Context, employeeExternalID string, from, to time.Time, statuses []string) ([]store.PayrollAbsence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statusSet := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		statusSet[s] = true
	}
	var out []store.PayrollAbsence
	for _, a := range m.payrollAbsences {
		if employeeExternalID != "" && a.EmployeeExternalID != employeeExternalID {
			continue
		}
		if len(statusSet) > 0 && !statusSet[a.Status] {
			continue
		}
		if a.EndDate.Before(from) || a.StartDate.After(to) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) PayrollCounts(_ context.Context) (int, int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payrollEmployees), len(m.payrollContracts), len(m.payrollAbsences), nil
}

// =============================================================================
// TIME-TRACKING STAGING
// =============================================================================

func (m *Memory) GetCollaboratorByExternalID(_ context.Context, externalID string) (*store.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.collaborators {
		if c.ExternalID == externalID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetCollaboratorByID(_ context.Context, id string) (*store.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collaborators[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) FindCollaboratorByEmail(_ context.Context, email string) (*store.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*store.Collaborator
	for _, c := range m.collaborators {
		if strings.EqualFold(c.Email, email) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	cp := *matched[0]
	return &cp, nil
}

func (m *Memory) InsertCollaborator(_ context.Context, c *store.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.collaborators {
		if existing.ExternalID == c.ExternalID {
			return store.ErrDuplicate
		}
	}
	if c.ID == "" {
		c.ID = m.nextID("col")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	m.collaborators[c.ID] = &cp
	return nil
}

func (m *Memory) UpdateCollaborator(_ context.Context, c *store.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collaborators[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.collaborators[c.ID] = &cp
	return nil
}

func (m *Memory) ListCollaborators(_ context.Context, activeOnly bool) ([]store.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Collaborator
	for _, c := range m.collaborators {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetProjectByExternalID(_ context.Context, externalID string) (*store.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetProjectByID(_ context.Context, id string) (*store.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) InsertProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if existing.ExternalID == p.ExternalID {
			return store.ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = m.nextID("prj")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) UpdateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) ListProjects(_ context.Context, activeOnly bool) ([]store.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Project
	for _, p := range m.projects {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTaskByExternalID(_ context.Context, externalID string) (*store.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetTaskByID(_ context.Context, id string) (*store.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) InsertTask(_ context.Context, t *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if existing.ExternalID == t.ExternalID {
			return store.ErrDuplicate
		}
	}
	if t.ID == "" {
		t.ID = m.nextID("tsk")
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) UpdateTask(_ context.Context, t *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return store.ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) ListTasksByProject(_ context.Context, projectID string) ([]store.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDeclarationByExternalID(_ context.Context, externalID string) (*store.Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.declarations {
		if d.ExternalID == externalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertDeclaration(_ context.Context, d *store.Declaration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.declarations {
		if existing.ExternalID == d.ExternalID {
			return store.ErrDuplicate
		}
	}
	if d.ID == "" {
		d.ID = m.nextID("dec")
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	cp := *d
	m.declarations[d.ID] = &cp
	return nil
}

func (m *Memory) UpdateDeclaration(_ context.Context, d *store.Declaration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.declarations[d.ID]; !ok {
		return store.ErrNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	m.declarations[d.ID] = &cp
	return nil
}

func (m *Memory) ListDeclarationsInRange(_ context.Context, from, to time.Time) ([]store.Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Declaration
	for _, d := range m.declarations {
		if d.Date.Before(from) || d.Date.After(to) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) TimetrackCounts(_ context.Context) (int, int, int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collaborators), len(m.projects), len(m.tasks), len(m.declarations), nil
}

// =============================================================================
// OVERRIDES
// =============================================================================

func (m *Memory) ListOverrides(_ context.Context) ([]store.EligibilityOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.EligibilityOverride
	for _, o := range m.overrides {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Memory) GetOverrideByEmail(_ context.Context, email string) (*store.EligibilityOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.overrides[strings.ToLower(email)]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpsertOverride(_ context.Context, o *store.EligibilityOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(o.Email)
	now := time.Now().UTC()
	if existing, ok := m.overrides[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		if o.ID == "" {
			o.ID = m.nextID("ovr")
		}
		o.CreatedAt = now
	}
	o.Email = key
	o.UpdatedAt = now
	cp := *o
	m.overrides[key] = &cp
	return nil
}

func (m *Memory) DeleteOverrideByEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := m.overrides[key]; !ok {
		return store.ErrNotFound
	}
	delete(m.overrides, key)
	return nil
}

// =============================================================================
// FORECASTS
// =============================================================================

func (m *Memory) GetForecast(_ context.Context, id string) (*store.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.forecasts[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) FindForecastByKey(_ context.Context, collaboratorID, projectID string, taskID *string, date time.Time) (*store.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.forecasts {
		if f.CollaboratorID == collaboratorID && f.ProjectID == projectID &&
			sameTask(f.TaskID, taskID) && f.Date.Equal(date) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertForecast(_ context.Context, f *store.Forecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.forecasts {
		if existing.CollaboratorID == f.CollaboratorID && existing.ProjectID == f.ProjectID &&
			sameTask(existing.TaskID, f.TaskID) && existing.Date.Equal(f.Date) {
			return store.ErrDuplicate
		}
	}
	if f.ID == "" {
		f.ID = m.nextID("fc")
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	cp := *f
	m.forecasts[f.ID] = &cp
	return nil
}

func (m *Memory) UpdateForecast(_ context.Context, f *store.Forecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forecasts[f.ID]; !ok {
		return store.ErrNotFound
	}
	f.UpdatedAt = time.Now().UTC()
	cp := *f
	m.forecasts[f.ID] = &cp
	return nil
}

func (m *Memory) ListForecastsInRange(_ context.Context, from, to time.Time) ([]store.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Forecast
	for _, f := range m.forecasts {
		if f.Date.Before(from) || f.Date.After(to) {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListForecastsByCollaboratorProject(_ context.Context, collaboratorID, projectID string) ([]store.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Forecast
	for _, f := range m.forecasts {
		if f.CollaboratorID == collaboratorID && f.ProjectID == projectID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) DeleteForecasts(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.forecasts[id]; ok {
			delete(m.forecasts, id)
			deleted++
		}
	}
	return deleted, nil
}

// =============================================================================
// SYNC RUNS / USERS
// =============================================================================

func (m *Memory) InsertSyncRun(_ context.Context, r *store.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = m.nextID("run")
	}
	cp := *r
	m.syncRuns = append(m.syncRuns, &cp)
	return nil
}

func (m *Memory) FinalizeSyncRun(_ context.Context, r *store.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.syncRuns {
		if existing.ID == r.ID {
			cp := *r
			m.syncRuns[i] = &cp
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *Memory) LatestSyncRun(_ context.Context, source store.SourceSystem) (*store.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.syncRuns) - 1; i >= 0; i-- {
		if m.syncRuns[i].Source == source {
			cp := *m.syncRuns[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (*store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func sameTask(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
