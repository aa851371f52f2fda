package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/plancharge/engine/store"
)

// =============================================================================
// ELIGIBILITY OVERRIDES
// =============================================================================

const overrideCols = `id, collaborator_id, email, is_eligible, reason,
	modified_by, created_at, updated_at`

func scanOverride(row interface{ Scan(...any) error }) (*store.EligibilityOverride, error) {
	var o store.EligibilityOverride
	var createdAt, updatedAt string
	err := row.Scan(
		&o.ID, &o.CollaboratorID, &o.Email, &o.IsEligible, &o.Reason,
		&o.ModifiedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func (s *Store) ListOverrides(ctx context.Context) ([]store.EligibilityOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+overrideCols+` FROM tr_overrides ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.EligibilityOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) GetOverrideByEmail(ctx context.Context, email string) (*store.EligibilityOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+overrideCols+` FROM tr_overrides WHERE email = ?`,
		strings.ToLower(email))
	o, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (s *Store) UpsertOverride(ctx context.Context, o *store.EligibilityOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.Email = strings.ToLower(o.Email)
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tr_overrides
		(id, collaborator_id, email, is_eligible, reason, modified_by,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			collaborator_id = excluded.collaborator_id,
			is_eligible = excluded.is_eligible,
			reason = excluded.reason,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at`,
		o.ID, o.CollaboratorID, o.Email, o.IsEligible, o.Reason, o.ModifiedBy,
		fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt),
	)
	return err
}

func (s *Store) DeleteOverrideByEmail(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tr_overrides WHERE email = ?`, strings.ToLower(email))
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

// =============================================================================
// FORECASTS
// =============================================================================

const forecastCols = `id, collaborator_id, project_id, task_id, date, hours,
	description, created_by, created_at, updated_at`

func scanForecast(row interface{ Scan(...any) error }) (*store.Forecast, error) {
	var f store.Forecast
	var taskID sql.NullString
	var date, createdAt, updatedAt string
	err := row.Scan(
		&f.ID, &f.CollaboratorID, &f.ProjectID, &taskID, &date, &f.Hours,
		&f.Description, &f.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TaskID = strPtr(taskID)
	f.Date = parseDate(date)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func (s *Store) GetForecast(ctx context.Context, id string) (*store.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+forecastCols+` FROM forecasts WHERE id = ?`, id)
	f, err := scanForecast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (s *Store) FindForecastByKey(ctx context.Context, collaboratorID, projectID string, taskID *string, date time.Time) (*store.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+forecastCols+` FROM forecasts
		 WHERE collaborator_id = ? AND project_id = ?
		   AND IFNULL(task_id, '') = ? AND date = ?`,
		collaboratorID, projectID, derefOrEmpty(taskID), fmtDate(date))
	f, err := scanForecast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (s *Store) InsertForecast(ctx context.Context, f *store.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&f.CreatedAt, &f.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forecasts
		(id, collaborator_id, project_id, task_id, date, hours, description,
		 created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CollaboratorID, f.ProjectID, nullStr(f.TaskID), fmtDate(f.Date),
		f.Hours, f.Description, f.CreatedBy, fmtTime(f.CreatedAt), fmtTime(f.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateForecast(ctx context.Context, f *store.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE forecasts SET
			collaborator_id = ?, project_id = ?, task_id = ?, date = ?,
			hours = ?, description = ?, created_by = ?, updated_at = ?
		WHERE id = ?`,
		f.CollaboratorID, f.ProjectID, nullStr(f.TaskID), fmtDate(f.Date),
		f.Hours, f.Description, f.CreatedBy, fmtTime(f.UpdatedAt), f.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListForecastsInRange(ctx context.Context, from, to time.Time) ([]store.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+forecastCols+` FROM forecasts
		 WHERE date >= ? AND date <= ? ORDER BY date, id`,
		fmtDate(from), fmtDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForecasts(rows)
}

func (s *Store) ListForecastsByCollaboratorProject(ctx context.Context, collaboratorID, projectID string) ([]store.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+forecastCols+` FROM forecasts
		 WHERE collaborator_id = ? AND project_id = ? ORDER BY date`,
		collaboratorID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectForecasts(rows)
}

func (s *Store) DeleteForecasts(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `DELETE FROM forecasts WHERE id = ?`, id)
		if err != nil {
			return deleted, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}

func collectForecasts(rows *sql.Rows) ([]store.Forecast, error) {
	var out []store.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func derefOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// =============================================================================
// SYNC RUNS
// =============================================================================

func (s *Store) InsertSyncRun(ctx context.Context, r *store.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(id, source, sync_type, status, started_at, completed_at,
		 duration_seconds, records_created, records_updated, records_failed,
		 error_message, triggered_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Source), r.SyncType, r.Status, fmtTime(r.StartedAt),
		fmtTimePtr(r.CompletedAt), r.DurationSeconds,
		r.RecordsCreated, r.RecordsUpdated, r.RecordsFailed,
		r.ErrorMessage, r.TriggeredBy,
	)
	return err
}

func (s *Store) FinalizeSyncRun(ctx context.Context, r *store.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET
			status = ?, completed_at = ?, duration_seconds = ?,
			records_created = ?, records_updated = ?, records_failed = ?,
			error_message = ?
		WHERE id = ?`,
		r.Status, fmtTimePtr(r.CompletedAt), r.DurationSeconds,
		r.RecordsCreated, r.RecordsUpdated, r.RecordsFailed,
		r.ErrorMessage, r.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) LatestSyncRun(ctx context.Context, source store.SourceSystem) (*store.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r store.SyncRun
	var src, startedAt string
	var completedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, sync_type, status, started_at, completed_at,
		       duration_seconds, records_created, records_updated,
		       records_failed, error_message, triggered_by
		FROM sync_runs WHERE source = ?
		ORDER BY started_at DESC, id DESC LIMIT 1`,
		string(source)).Scan(
		&r.ID, &src, &r.SyncType, &r.Status, &startedAt, &completedAt,
		&r.DurationSeconds, &r.RecordsCreated, &r.RecordsUpdated,
		&r.RecordsFailed, &r.ErrorMessage, &r.TriggeredBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Source = store.SourceSystem(src)
	r.StartedAt = parseTime(startedAt)
	r.CompletedAt = parseTimePtr(completedAt)
	return &r, nil
}
