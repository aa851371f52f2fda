package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/plancharge/engine/store"
)

// =============================================================================
// PAYROLL EMPLOYEES
// =============================================================================

const payrollEmployeeCols = `id, external_id, email, first_name, last_name,
	registration_number, department, position, hire_date, termination_date,
	is_active, local_user_id, last_synced_at, created_at, updated_at`

func scanPayrollEmployee(row interface{ Scan(...any) error }) (*store.PayrollEmployee, error) {
	var e store.PayrollEmployee
	var regNum, hireDate, termDate, lastSynced, createdAt, updatedAt sql.NullString
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.Email, &e.FirstName, &e.LastName,
		&regNum, &e.Department, &e.Position, &hireDate, &termDate,
		&e.IsActive, &e.LocalUserID, &lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.RegistrationNumber = strPtr(regNum)
	e.HireDate = parseDatePtr(hireDate)
	e.TerminationDate = parseDatePtr(termDate)
	e.LastSyncedAt = parseTime(lastSynced.String)
	e.CreatedAt = parseTime(createdAt.String)
	e.UpdatedAt = parseTime(updatedAt.String)
	return &e, nil
}

func (s *Store) GetPayrollEmployeeByExternalID(ctx context.Context, externalID string) (*store.PayrollEmployee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollEmployeeCols+` FROM payroll_employees WHERE external_id = ?`, externalID)
	e, err := scanPayrollEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *Store) GetPayrollEmployeeByID(ctx context.Context, id string) (*store.PayrollEmployee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollEmployeeCols+` FROM payroll_employees WHERE id = ?`, id)
	e, err := scanPayrollEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *Store) FindPayrollEmployeeByEmail(ctx context.Context, email string) (*store.PayrollEmployee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollEmployeeCols+` FROM payroll_employees
		 WHERE email = ? COLLATE NOCASE ORDER BY created_at, id LIMIT 1`, email)
	e, err := scanPayrollEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *Store) InsertPayrollEmployee(ctx context.Context, e *store.PayrollEmployee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&e.CreatedAt, &e.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_employees
		(id, external_id, email, first_name, last_name, registration_number,
		 department, position, hire_date, termination_date, is_active,
		 local_user_id, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ExternalID, e.Email, e.FirstName, e.LastName,
		nullStr(e.RegistrationNumber), e.Department, e.Position,
		fmtDatePtr(e.HireDate), fmtDatePtr(e.TerminationDate), e.IsActive,
		e.LocalUserID, fmtTime(e.LastSyncedAt), fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdatePayrollEmployee(ctx context.Context, e *store.PayrollEmployee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE payroll_employees SET
			email = ?, first_name = ?, last_name = ?, registration_number = ?,
			department = ?, position = ?, hire_date = ?, termination_date = ?,
			is_active = ?, local_user_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		e.Email, e.FirstName, e.LastName, nullStr(e.RegistrationNumber),
		e.Department, e.Position, fmtDatePtr(e.HireDate), fmtDatePtr(e.TerminationDate),
		e.IsActive, e.LocalUserID, fmtTime(e.LastSyncedAt), fmtTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListPayrollEmployees(ctx context.Context, activeOnly bool) ([]store.PayrollEmployee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + payrollEmployeeCols + ` FROM payroll_employees`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PayrollEmployee
	for rows.Next() {
		e, err := scanPayrollEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL CONTRACTS
// =============================================================================

const payrollContractCols = `id, external_id, employee_external_id, contract_type,
	job_title, start_date, end_date, weekly_hours, is_active,
	last_synced_at, created_at, updated_at`

func scanPayrollContract(row interface{ Scan(...any) error }) (*store.PayrollContract, error) {
	var c store.PayrollContract
	var startDate string
	var endDate, lastSynced, createdAt, updatedAt sql.NullString
	var weeklyHours sql.NullFloat64
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.EmployeeExternalID, &c.ContractType,
		&c.JobTitle, &startDate, &endDate, &weeklyHours, &c.IsActive,
		&lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartDate = parseDate(startDate)
	c.EndDate = parseDatePtr(endDate)
	c.WeeklyHours = floatPtr(weeklyHours)
	c.LastSyncedAt = parseTime(lastSynced.String)
	c.CreatedAt = parseTime(createdAt.String)
	c.UpdatedAt = parseTime(updatedAt.String)
	return &c, nil
}

func (s *Store) GetPayrollContractByExternalID(ctx context.Context, externalID string) (*store.PayrollContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollContractCols+` FROM payroll_contracts WHERE external_id = ?`, externalID)
	c, err := scanPayrollContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) InsertPayrollContract(ctx context.Context, c *store.PayrollContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&c.CreatedAt, &c.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_contracts
		(id, external_id, employee_external_id, contract_type, job_title,
		 start_date, end_date, weekly_hours, is_active, last_synced_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExternalID, c.EmployeeExternalID, c.ContractType, c.JobTitle,
		fmtDate(c.StartDate), fmtDatePtr(c.EndDate), nullFloat(c.WeeklyHours),
		c.IsActive, fmtTime(c.LastSyncedAt), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdatePayrollContract(ctx context.Context, c *store.PayrollContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE payroll_contracts SET
			employee_external_id = ?, contract_type = ?, job_title = ?,
			start_date = ?, end_date = ?, weekly_hours = ?, is_active = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		c.EmployeeExternalID, c.ContractType, c.JobTitle,
		fmtDate(c.StartDate), fmtDatePtr(c.EndDate), nullFloat(c.WeeklyHours),
		c.IsActive, fmtTime(c.LastSyncedAt), fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListPayrollContracts(ctx context.Context) ([]store.PayrollContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+payrollContractCols+` FROM payroll_contracts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PayrollContract
	for rows.Next() {
		c, err := scanPayrollContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL ABSENCES
// =============================================================================

const payrollAbsenceCols = `id, external_id, employee_external_id, absence_type,
	absence_code, start_date, end_date, duration_days, status,
	last_synced_at, created_at, updated_at`

func scanPayrollAbsence(row interface{ Scan(...any) error }) (*store.PayrollAbsence, error) {
	var a store.PayrollAbsence
	var startDate, endDate string
	var code, lastSynced, createdAt, updatedAt sql.NullString
	var duration sql.NullFloat64
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.EmployeeExternalID, &a.AbsenceType,
		&code, &startDate, &endDate, &duration, &a.Status,
		&lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AbsenceCode = strPtr(code)
	a.StartDate = parseDate(startDate)
	a.EndDate = parseDate(endDate)
	a.DurationDays = floatPtr(duration)
	a.LastSyncedAt = parseTime(lastSynced.String)
	a.CreatedAt = parseTime(createdAt.String)
	a.UpdatedAt = parseTime(updatedAt.String)
	return &a, nil
}

func (s *Store) GetPayrollAbsenceByExternalID(ctx context.Context, externalID string) (*store.PayrollAbsence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollAbsenceCols+` FROM payroll_absences WHERE external_id = ?`, externalID)
	a, err := scanPayrollAbsence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *Store) InsertPayrollAbsence(ctx context.Context, a *store.PayrollAbsence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touch(&a.CreatedAt, &a.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_absences
		(id, external_id, employee_external_id, absence_type, absence_code,
		 start_date, end_date, duration_days, status, last_synced_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExternalID, a.EmployeeExternalID, a.AbsenceType, nullStr(a.AbsenceCode),
		fmtDate(a.StartDate), fmtDate(a.EndDate), nullFloat(a.DurationDays),
		a.Status, fmtTime(a.LastSyncedAt), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) UpdatePayrollAbsence(ctx context.Context, a *store.PayrollAbsence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE payroll_absences SET
			employee_external_id = ?, absence_type = ?, absence_code = ?,
			start_date = ?, end_date = ?, duration_days = ?, status = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		a.EmployeeExternalID, a.AbsenceType, nullStr(a.AbsenceCode),
		fmtDate(a.StartDate), fmtDate(a.EndDate), nullFloat(a.DurationDays),
		a.Status, fmtTime(a.LastSyncedAt), fmtTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Store) ListPayrollAbsencesOverlapping(ctx context.Context, employeeExternalID string, from, to time.Time, statuses []string) ([]store.PayrollAbsence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + payrollAbsenceCols + ` FROM payroll_absences
		WHERE end_date >= ? AND start_date <= ?`
	args := []any{fmtDate(from), fmtDate(to)}

	if employeeExternalID != "" {
		query += ` AND employee_external_id = ?`
		args = append(args, employeeExternalID)
	}
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += fmt.Sprintf(` AND status IN (%s)`, placeholders)
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PayrollAbsence
	for rows.Next() {
		a, err := scanPayrollAbsence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) PayrollCounts(ctx context.Context) (int, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var employees, contracts, absences int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payroll_employees`).Scan(&employees); err != nil {
		return 0, 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payroll_contracts`).Scan(&contracts); err != nil {
		return 0, 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payroll_absences`).Scan(&absences); err != nil {
		return 0, 0, 0, err
	}
	return employees, contracts, absences, nil
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
