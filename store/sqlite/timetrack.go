package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/plancharge/engine/store"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

const collaboratorCols = `id, external_id, email, first_name, last_name,
	matricule, department, position, is_active, is_admin, local_user_id,
	last_synced_at, created_at, updated_at`

func scanCollaborator(row interface{ Scan(...any) error }) (*store.Collaborator, error) {
	var c store.Collaborator
	var matricule, lastSynced, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.Email, &c.FirstName, &c.LastName,
		&matricule, &c.Department, &c.Position, &c.IsActive, &c.IsAdmin,
		&c.LocalUserID, &lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Matricule = strPtr(matricule)
	c.LastSyncedAt = parseTime(lastSynced.String)
	c.CreatedAt = parseTime(createdAt.String)
	c.UpdatedAt = parseTime(updatedAt.String)
	return &c, nil
}

func (s *Store) GetCollaboratorByExternalID(ctx context.Context, externalID string) (*store.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collaboratorCols+` FROM collaborators WHERE external_id = ?`, externalID)
	c, err := scanCollaborator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) GetCollaboratorByID(ctx context.Context, id string) (*store.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collaboratorCols+` FROM collaborators WHERE id = ?`, id)
	c, err := scanCollaborator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) FindCollaboratorByEmail(ctx context.Context, email string) (*store.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collaboratorCols+` FROM collaborators
		 WHERE email = ? COLLATE NOCASE ORDER BY id LIMIT 1`, email)
	c, err := scanCollaborator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) InsertCollaborator(ctx context.Context, c *store.Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&c.CreatedAt, &c.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborators
		(id, external_id, email, first_name, last_name, matricule, department,
		 position, is_active, is_admin, local_user_id, last_synced_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExternalID, c.Email, c.FirstName, c.LastName, nullStr(c.Matricule),
		c.Department, c.Position, c.IsActive, c.IsAdmin, c.LocalUserID,
		fmtTime(c.LastSyncedAt), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateCollaborator(ctx context.Context, c *store.Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE collaborators SET
			email = ?, first_name = ?, last_name = ?, matricule = ?,
			department = ?, position = ?, is_active = ?, is_admin = ?,
			local_user_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Email, c.FirstName, c.LastName, nullStr(c.Matricule),
		c.Department, c.Position, c.IsActive, c.IsAdmin,
		c.LocalUserID, fmtTime(c.LastSyncedAt), fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListCollaborators(ctx context.Context, activeOnly bool) ([]store.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + collaboratorCols + ` FROM collaborators`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// =============================================================================
// PROJECTS
// =============================================================================

const projectCols = `id, external_id, name, code, description, client_name,
	start_date, end_date, is_active, is_billable, last_synced_at,
	created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*store.Project, error) {
	var p store.Project
	var code, startDate, endDate, lastSynced, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.Name, &code, &p.Description, &p.ClientName,
		&startDate, &endDate, &p.IsActive, &p.IsBillable,
		&lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Code = strPtr(code)
	p.StartDate = parseDatePtr(startDate)
	p.EndDate = parseDatePtr(endDate)
	p.LastSyncedAt = parseTime(lastSynced.String)
	p.CreatedAt = parseTime(createdAt.String)
	p.UpdatedAt = parseTime(updatedAt.String)
	return &p, nil
}

func (s *Store) GetProjectByExternalID(ctx context.Context, externalID string) (*store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE external_id = ?`, externalID)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *Store) GetProjectByID(ctx context.Context, id string) (*store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *Store) InsertProject(ctx context.Context, p *store.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&p.CreatedAt, &p.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects
		(id, external_id, name, code, description, client_name, start_date,
		 end_date, is_active, is_billable, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ExternalID, p.Name, nullStr(p.Code), p.Description, p.ClientName,
		fmtDatePtr(p.StartDate), fmtDatePtr(p.EndDate), p.IsActive, p.IsBillable,
		fmtTime(p.LastSyncedAt), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateProject(ctx context.Context, p *store.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			name = ?, code = ?, description = ?, client_name = ?, start_date = ?,
			end_date = ?, is_active = ?, is_billable = ?, last_synced_at = ?,
			updated_at = ?
		WHERE id = ?`,
		p.Name, nullStr(p.Code), p.Description, p.ClientName,
		fmtDatePtr(p.StartDate), fmtDatePtr(p.EndDate), p.IsActive, p.IsBillable,
		fmtTime(p.LastSyncedAt), fmtTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListProjects(ctx context.Context, activeOnly bool) ([]store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + projectCols + ` FROM projects`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// =============================================================================
// TASKS
// =============================================================================

const taskCols = `id, external_id, project_id, name, code, is_active,
	is_billable, last_synced_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*store.Task, error) {
	var t store.Task
	var code, lastSynced, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&t.ID, &t.ExternalID, &t.ProjectID, &t.Name, &code,
		&t.IsActive, &t.IsBillable, &lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Code = strPtr(code)
	t.LastSyncedAt = parseTime(lastSynced.String)
	t.CreatedAt = parseTime(createdAt.String)
	t.UpdatedAt = parseTime(updatedAt.String)
	return &t, nil
}

func (s *Store) GetTaskByExternalID(ctx context.Context, externalID string) (*store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE external_id = ?`, externalID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Store) GetTaskByID(ctx context.Context, id string) (*store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Store) InsertTask(ctx context.Context, t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&t.CreatedAt, &t.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(id, external_id, project_id, name, code, is_active, is_billable,
		 last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExternalID, t.ProjectID, t.Name, nullStr(t.Code),
		t.IsActive, t.IsBillable, fmtTime(t.LastSyncedAt),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateTask(ctx context.Context, t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			project_id = ?, name = ?, code = ?, is_active = ?, is_billable = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		t.ProjectID, t.Name, nullStr(t.Code), t.IsActive, t.IsBillable,
		fmtTime(t.LastSyncedAt), fmtTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// =============================================================================
// DECLARATIONS
// =============================================================================

const declarationCols = `id, external_id, collaborator_id, project_id, task_id,
	date, duration_hours, description, status, is_billable,
	last_synced_at, created_at, updated_at`

func scanDeclaration(row interface{ Scan(...any) error }) (*store.Declaration, error) {
	var d store.Declaration
	var taskID, lastSynced, createdAt, updatedAt sql.NullString
	var date string
	err := row.Scan(
		&d.ID, &d.ExternalID, &d.CollaboratorID, &d.ProjectID, &taskID,
		&date, &d.DurationHours, &d.Description, &d.Status, &d.IsBillable,
		&lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.TaskID = strPtr(taskID)
	d.Date = parseDate(date)
	d.LastSyncedAt = parseTime(lastSynced.String)
	d.CreatedAt = parseTime(createdAt.String)
	d.UpdatedAt = parseTime(updatedAt.String)
	return &d, nil
}

func (s *Store) GetDeclarationByExternalID(ctx context.Context, externalID string) (*store.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+declarationCols+` FROM declarations WHERE external_id = ?`, externalID)
	d, err := scanDeclaration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *Store) InsertDeclaration(ctx context.Context, d *store.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&d.CreatedAt, &d.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO declarations
		(id, external_id, collaborator_id, project_id, task_id, date,
		 duration_hours, description, status, is_billable, last_synced_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ExternalID, d.CollaboratorID, d.ProjectID, nullStr(d.TaskID),
		fmtDate(d.Date), d.DurationHours, d.Description, d.Status, d.IsBillable,
		fmtTime(d.LastSyncedAt), fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateDeclaration(ctx context.Context, d *store.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE declarations SET
			collaborator_id = ?, project_id = ?, task_id = ?, date = ?,
			duration_hours = ?, description = ?, status = ?, is_billable = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		d.CollaboratorID, d.ProjectID, nullStr(d.TaskID), fmtDate(d.Date),
		d.DurationHours, d.Description, d.Status, d.IsBillable,
		fmtTime(d.LastSyncedAt), fmtTime(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListDeclarationsInRange(ctx context.Context, from, to time.Time) ([]store.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+declarationCols+` FROM declarations
		 WHERE date >= ? AND date <= ? ORDER BY date, id`,
		fmtDate(from), fmtDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) TimetrackCounts(ctx context.Context) (int, int, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var collaborators, projects, tasks, declarations int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collaborators`).Scan(&collaborators); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&projects); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&tasks); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM declarations`).Scan(&declarations); err != nil {
		return 0, 0, 0, 0, err
	}
	return collaborators, projects, tasks, declarations, nil
}
