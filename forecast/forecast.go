/*
Package forecast plans future workload and assembles the monthly
plan-de-charge projection.

PURPOSE:
  Forecast rows allocate hours to a (collaborator, project, task, date)
  key. The batch writer spreads an allocation over a date range while
  skipping weekends and holidays; the plan-charge projection joins
  staged declarations and absences into one per-collaborator month view.

KEY DECISIONS:
  - Batch writes are per-day upserts on the natural key, not one
    transaction across the range. Re-running a batch updates rows in
    place instead of duplicating them.
  - No batch identifier is persisted. Group reconstructs "written
    together" heuristically: same collaborator, project, task, hours
    and description, created within two seconds of the reference row.
    Unrelated batches with identical parameters inside that window
    would merge; kept as-is for compatibility with stored data.
  - Plan-charge fetches declarations from a wide window around the
    month so adjacent-month navigation stays warm, then filters the
    per-day breakdown to the requested month. Hour totals are summed
    with decimals to keep quarter-hour bookings exact.

SEE ALSO:
  - calendar: working-day decisions for the batch writer
  - store: forecast rows and the staged declarations/absences
*/
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plancharge/engine/calendar"
	"github.com/plancharge/engine/store"
)

// GroupWindow bounds how far apart two rows' CreatedAt may be while still
// counting as one batch.
const GroupWindow = 2 * time.Second

var (
	ErrNotFound     = errors.New("forecast not found")
	ErrInvalidRange = errors.New("start date must not be after end date")
	ErrInvalidHours = errors.New("hours must be positive")
)

// Service owns forecast rows and the plan-charge projection.
type Service struct {
	store    store.Store
	holidays calendar.HolidayProvider
	now      func() time.Time
}

func New(st store.Store, holidays calendar.HolidayProvider) *Service {
	return &Service{store: st, holidays: holidays, now: time.Now}
}

// =============================================================================
// SINGLE UPSERT
// =============================================================================

// UpsertParams addresses one forecast day.
type UpsertParams struct {
	CollaboratorID string
	ProjectID      string
	TaskID         *string
	Date           time.Time
	Hours          float64
	Description    string
	CreatedBy      string
}

// Upsert writes one forecast row, updating in place when the natural key
// already exists. The returned action is "created" or "updated".
func (s *Service) Upsert(ctx context.Context, p UpsertParams) (*store.Forecast, string, error) {
	if p.Hours <= 0 {
		return nil, "", fmt.Errorf("%w: got %v", ErrInvalidHours, p.Hours)
	}

	date := calendar.DateOnly(p.Date)
	existing, err := s.store.FindForecastByKey(ctx, p.CollaboratorID, p.ProjectID, p.TaskID, date)
	if err != nil {
		return nil, "", fmt.Errorf("find forecast: %w", err)
	}
	if existing != nil {
		existing.Hours = p.Hours
		existing.Description = p.Description
		if err := s.store.UpdateForecast(ctx, existing); err != nil {
			return nil, "", fmt.Errorf("update forecast: %w", err)
		}
		return existing, "updated", nil
	}

	row := &store.Forecast{
		ID:             fmt.Sprintf("fc-%d", s.now().UnixNano()),
		CollaboratorID: p.CollaboratorID,
		ProjectID:      p.ProjectID,
		TaskID:         p.TaskID,
		Date:           date,
		Hours:          p.Hours,
		Description:    p.Description,
		CreatedBy:      p.CreatedBy,
	}
	if err := s.store.InsertForecast(ctx, row); err != nil {
		return nil, "", fmt.Errorf("insert forecast: %w", err)
	}
	return row, "created", nil
}

// UpdateHours rewrites the hours and description of an existing row.
func (s *Service) UpdateHours(ctx context.Context, id string, hours float64, description string) (*store.Forecast, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidHours, hours)
	}
	row, err := s.store.GetForecast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get forecast: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("forecast %s: %w", id, ErrNotFound)
	}
	row.Hours = hours
	row.Description = description
	if err := s.store.UpdateForecast(ctx, row); err != nil {
		return nil, fmt.Errorf("update forecast: %w", err)
	}
	return row, nil
}

// Delete removes one forecast row.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.DeleteForecasts(ctx, []string{id})
	if err != nil {
		return fmt.Errorf("delete forecast: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("forecast %s: %w", id, ErrNotFound)
	}
	return nil
}

// =============================================================================
// BATCH WRITER
// =============================================================================

// BatchParams spreads one allocation over a date range.
type BatchParams struct {
	CollaboratorID string
	ProjectID      string
	TaskID         *string
	StartDate      time.Time
	EndDate        time.Time
	HoursPerDay    float64
	Description    string
	CreatedBy      string
}

// BatchResult reports what the batch writer did.
type BatchResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	TotalDays int `json:"total_days"`
}

// CreateBatch enumerates the days of [StartDate, EndDate], skips weekends
// and holidays, and upserts one row per remaining day on the natural key.
func (s *Service) CreateBatch(ctx context.Context, p BatchParams) (BatchResult, error) {
	var res BatchResult
	if p.HoursPerDay <= 0 {
		return res, fmt.Errorf("%w: got %v", ErrInvalidHours, p.HoursPerDay)
	}
	start := calendar.DateOnly(p.StartDate)
	end := calendar.DateOnly(p.EndDate)
	if start.After(end) {
		return res, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !calendar.IsWorkingDay(d, s.holidays) {
			continue
		}
		_, action, err := s.Upsert(ctx, UpsertParams{
			CollaboratorID: p.CollaboratorID,
			ProjectID:      p.ProjectID,
			TaskID:         p.TaskID,
			Date:           d,
			Hours:          p.HoursPerDay,
			Description:    p.Description,
			CreatedBy:      p.CreatedBy,
		})
		if err != nil {
			return res, err
		}
		if action == "created" {
			res.Created++
		} else {
			res.Updated++
		}
		res.TotalDays++
	}

	log.Printf("[Forecast] Batch for %s on %s: created=%d updated=%d days=%d",
		p.CollaboratorID, p.ProjectID, res.Created, res.Updated, res.TotalDays)
	return res, nil
}

// =============================================================================
// GROUP RECONSTRUCTION
// =============================================================================

// Group is the reconstructed batch around one reference row.
type Group struct {
	ForecastIDs    []string  `json:"forecast_ids"`
	CollaboratorID string    `json:"collaborator_id"`
	ProjectID      string    `json:"project_id"`
	ProjectName    string    `json:"project_name,omitempty"`
	TaskID         *string   `json:"task_id"`
	TaskName       string    `json:"task_name,omitempty"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	HoursPerDay    float64   `json:"hours_per_day"`
	Description    string    `json:"description,omitempty"`
	TotalDays      int       `json:"total_days"`
}

// Group finds the rows written together with forecastID. Membership is
// same collaborator, project, task, hours and description, with CreatedAt
// within GroupWindow of the reference row.
func (s *Service) Group(ctx context.Context, forecastID string) (Group, error) {
	ref, err := s.store.GetForecast(ctx, forecastID)
	if err != nil {
		return Group{}, fmt.Errorf("get forecast: %w", err)
	}
	if ref == nil {
		return Group{}, fmt.Errorf("forecast %s: %w", forecastID, ErrNotFound)
	}

	candidates, err := s.store.ListForecastsByCollaboratorProject(ctx, ref.CollaboratorID, ref.ProjectID)
	if err != nil {
		return Group{}, fmt.Errorf("list forecasts: %w", err)
	}

	g := Group{
		CollaboratorID: ref.CollaboratorID,
		ProjectID:      ref.ProjectID,
		TaskID:         ref.TaskID,
		HoursPerDay:    ref.Hours,
		Description:    ref.Description,
	}
	for _, f := range candidates {
		if !sameBatch(ref, f) {
			continue
		}
		g.ForecastIDs = append(g.ForecastIDs, f.ID)
		if g.TotalDays == 0 || f.Date.Before(g.StartDate) {
			g.StartDate = f.Date
		}
		if g.TotalDays == 0 || f.Date.After(g.EndDate) {
			g.EndDate = f.Date
		}
		g.TotalDays++
	}

	if proj, err := s.store.GetProjectByID(ctx, ref.ProjectID); err == nil && proj != nil {
		g.ProjectName = proj.Name
	}
	if ref.TaskID != nil {
		if task, err := s.store.GetTaskByID(ctx, *ref.TaskID); err == nil && task != nil {
			g.TaskName = task.Name
		}
	}
	return g, nil
}

// DeleteGroup removes every row of the reconstructed batch and returns how
// many rows went away.
func (s *Service) DeleteGroup(ctx context.Context, forecastID string) (int, error) {
	g, err := s.Group(ctx, forecastID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteForecasts(ctx, g.ForecastIDs)
	if err != nil {
		return 0, fmt.Errorf("delete forecasts: %w", err)
	}
	return n, nil
}

func sameBatch(ref *store.Forecast, f store.Forecast) bool {
	if f.CollaboratorID != ref.CollaboratorID || f.ProjectID != ref.ProjectID {
		return false
	}
	if !sameTask(ref.TaskID, f.TaskID) {
		return false
	}
	if f.Hours != ref.Hours || f.Description != ref.Description {
		return false
	}
	delta := f.CreatedAt.Sub(ref.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= GroupWindow
}

func sameTask(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// =============================================================================
// MONTH LISTING
// =============================================================================

// Entry is one forecast row projected for the UI.
type Entry struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	ProjectCode *string `json:"project_code"`
	TaskID      *string `json:"task_id"`
	TaskName    string  `json:"task_name,omitempty"`
	Hours       float64 `json:"hours"`
	Description string  `json:"description,omitempty"`
}

// CollaboratorForecasts groups a collaborator's month by day.
type CollaboratorForecasts struct {
	CollaboratorID   string             `json:"collaborator_id"`
	CollaboratorName string             `json:"collaborator_name"`
	Forecasts        map[string][]Entry `json:"forecasts"`
}

// MonthForecasts is the whole month's forecast view.
type MonthForecasts struct {
	Year          int                     `json:"year"`
	Month         int                     `json:"month"`
	StartDate     string                  `json:"start_date"`
	EndDate       string                  `json:"end_date"`
	Collaborators []CollaboratorForecasts `json:"collaborators"`
}

// Month lists forecasts for (year, month), optionally narrowed to one
// collaborator.
func (s *Service) Month(ctx context.Context, year int, month time.Month, collaboratorID string) (MonthForecasts, error) {
	if month < time.January || month > time.December {
		return MonthForecasts{}, fmt.Errorf("%w: got %d", calendar.ErrInvalidMonth, int(month))
	}
	first, last := calendar.MonthBounds(year, month)

	rows, err := s.store.ListForecastsInRange(ctx, first, last)
	if err != nil {
		return MonthForecasts{}, fmt.Errorf("list forecasts: %w", err)
	}

	projects, tasks := s.lookupNames(ctx, rows)

	out := MonthForecasts{
		Year:          year,
		Month:         int(month),
		StartDate:     first.Format("2006-01-02"),
		EndDate:       last.Format("2006-01-02"),
		Collaborators: []CollaboratorForecasts{},
	}
	byCollab := map[string]*CollaboratorForecasts{}
	for _, f := range rows {
		if collaboratorID != "" && f.CollaboratorID != collaboratorID {
			continue
		}
		cf, ok := byCollab[f.CollaboratorID]
		if !ok {
			name := f.CollaboratorID
			if c, err := s.store.GetCollaboratorByID(ctx, f.CollaboratorID); err == nil && c != nil {
				name = collaboratorName(*c)
			}
			cf = &CollaboratorForecasts{
				CollaboratorID:   f.CollaboratorID,
				CollaboratorName: name,
				Forecasts:        map[string][]Entry{},
			}
			byCollab[f.CollaboratorID] = cf
		}
		e := Entry{
			ID:          f.ID,
			ProjectID:   f.ProjectID,
			TaskID:      f.TaskID,
			Hours:       f.Hours,
			Description: f.Description,
		}
		if p, ok := projects[f.ProjectID]; ok {
			e.ProjectName = p.Name
			e.ProjectCode = p.Code
		}
		if f.TaskID != nil {
			if t, ok := tasks[*f.TaskID]; ok {
				e.TaskName = t.Name
			}
		}
		day := f.Date.Format("2006-01-02")
		cf.Forecasts[day] = append(cf.Forecasts[day], e)
	}

	for _, cf := range byCollab {
		out.Collaborators = append(out.Collaborators, *cf)
	}
	sort.Slice(out.Collaborators, func(i, j int) bool {
		return strings.ToLower(out.Collaborators[i].CollaboratorName) < strings.ToLower(out.Collaborators[j].CollaboratorName)
	})
	return out, nil
}

// lookupNames resolves the project and task names referenced by rows once,
// instead of per entry.
func (s *Service) lookupNames(ctx context.Context, rows []store.Forecast) (map[string]store.Project, map[string]store.Task) {
	projects := map[string]store.Project{}
	tasks := map[string]store.Task{}
	for _, f := range rows {
		if _, ok := projects[f.ProjectID]; !ok {
			if p, err := s.store.GetProjectByID(ctx, f.ProjectID); err == nil && p != nil {
				projects[f.ProjectID] = *p
			}
		}
		if f.TaskID != nil {
			if _, ok := tasks[*f.TaskID]; !ok {
				if t, err := s.store.GetTaskByID(ctx, *f.TaskID); err == nil && t != nil {
					tasks[*f.TaskID] = *t
				}
			}
		}
	}
	return projects, tasks
}

func collaboratorName(c store.Collaborator) string {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name == "" {
		name = c.Email
	}
	return name
}

// TotalHours sums a collaborator's month with decimal arithmetic so
// quarter-hour bookings do not drift.
func (mf MonthForecasts) TotalHours(collaboratorID string) decimal.Decimal {
	total := decimal.Zero
	for _, cf := range mf.Collaborators {
		if cf.CollaboratorID != collaboratorID {
			continue
		}
		for _, entries := range cf.Forecasts {
			for _, e := range entries {
				total = total.Add(decimal.NewFromFloat(e.Hours))
			}
		}
	}
	return total
}
