/*
Package sqlite provides the SQLite-backed implementation of store.Store.

PURPOSE:
  Persists the staging tables synced from the two external HR systems plus
  the locally-owned rows (overrides, forecasts, sync runs, users). In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  payroll_employees:     staged employees from the payroll system
  payroll_contracts:     staged contracts, keyed by employee external ID
  payroll_absences:      staged absences, inclusive date ranges
  collaborators:         staged people from the time-tracking system
  projects, tasks:       staged project structure
  declarations:          staged time entries (one per person/project/day)
  tr_overrides:          explicit meal-voucher eligibility pins, one per email
  forecasts:             planned days, unique on the natural key
  sync_runs:             append-only audit rows bracketing each sync
  users:                 internal accounts staged records link to

INDEXES:
  - unique external_id per staging table: re-syncing never duplicates rows
  - idx_unique_forecast_key: one forecast per (collaborator, project, task, day)
  - absence and declaration date indexes: the plan-de-charge hot path

DATE STORAGE:
  Timestamps are stored as RFC3339 TEXT; date-only columns as YYYY-MM-DD,
  which compares correctly as text in range queries.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode.

USAGE:
  st, err := sqlite.New("./data/plancharge.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - store/store.go: interface contracts
  - store/memory: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/plancharge/engine/store"
)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Payroll staging (source A)
	CREATE TABLE IF NOT EXISTS payroll_employees (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		registration_number TEXT,
		department TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		hire_date TEXT,
		termination_date TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		local_user_id TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_employees_email
		ON payroll_employees(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS payroll_contracts (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		employee_external_id TEXT NOT NULL,
		contract_type TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT,
		weekly_hours REAL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_contracts_employee
		ON payroll_contracts(employee_external_id);

	CREATE TABLE IF NOT EXISTS payroll_absences (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		employee_external_id TEXT NOT NULL,
		absence_type TEXT NOT NULL DEFAULT '',
		absence_code TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration_days REAL,
		status TEXT NOT NULL DEFAULT 'pending',
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: absence overlap lookups for the entitlement computation
	CREATE INDEX IF NOT EXISTS idx_payroll_absences_employee_dates
		ON payroll_absences(employee_external_id, start_date, end_date);

	-- Time-tracking staging (source B)
	CREATE TABLE IF NOT EXISTS collaborators (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		matricule TEXT,
		department TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		local_user_id TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collaborators_email
		ON collaborators(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		code TEXT,
		description TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_billable BOOLEAN NOT NULL DEFAULT FALSE,
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		code TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_billable BOOLEAN NOT NULL DEFAULT FALSE,
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project
		ON tasks(project_id);

	CREATE TABLE IF NOT EXISTS declarations (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		collaborator_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		task_id TEXT,
		date TEXT NOT NULL,
		duration_hours REAL NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		is_billable BOOLEAN NOT NULL DEFAULT FALSE,
		last_synced_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: plan-de-charge month assembly
	CREATE INDEX IF NOT EXISTS idx_declarations_date
		ON declarations(date);
	CREATE INDEX IF NOT EXISTS idx_declarations_collaborator
		ON declarations(collaborator_id, date);

	-- Locally-owned rows
	CREATE TABLE IF NOT EXISTS tr_overrides (
		id TEXT PRIMARY KEY,
		collaborator_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		is_eligible BOOLEAN NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		modified_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forecasts (
		id TEXT PRIMARY KEY,
		collaborator_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		task_id TEXT,
		date TEXT NOT NULL,
		hours REAL NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One forecast per collaborator/project/task/day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_forecast_key
		ON forecasts(collaborator_id, project_id, IFNULL(task_id, ''), date);
	CREATE INDEX IF NOT EXISTS idx_forecasts_date
		ON forecasts(date);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		sync_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		records_failed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		triggered_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_source
		ON sync_runs(source, started_at);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AddUser inserts an internal account row.
func (s *Store) AddUser(ctx context.Context, u store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, fmtTime(u.CreatedAt))
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

// FindUserByEmail matches case-insensitively; returns (nil, nil) on a miss.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var u store.User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, created_at FROM users WHERE email = ? COLLATE NOCASE`,
		email).Scan(&u.ID, &u.Email, &u.FullName, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func fmtDate(t time.Time) string {
	return t.Format(dateLayout)
}

func fmtDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtDate(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseDatePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseDate(ns.String)
	return &t
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// touch stamps created/updated timestamps for an insert.
func touch(createdAt *time.Time, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
