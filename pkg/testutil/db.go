// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteSchema mirrors the tables the engine reads and writes.
const SQLiteSchema = `
CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL,
	action TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	role_type TEXT NOT NULL,
	hospital_id INTEGER,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_by INTEGER,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE role_permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	role_id INTEGER NOT NULL REFERENCES roles(id),
	permission_id INTEGER NOT NULL REFERENCES permissions(id),
	created_at TIMESTAMP NOT NULL,
	UNIQUE(role_id, permission_id)
);

CREATE TABLE role_assignments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	role_id INTEGER NOT NULL REFERENCES roles(id),
	project_id INTEGER,
	assigned_by INTEGER,
	assigned_at TIMESTAMP NOT NULL
);

CREATE TABLE seed_markers (
	key TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	seeded_at TIMESTAMP NOT NULL
);

CREATE TABLE access_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_type TEXT NOT NULL,
	resource_key TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	allowed_roles TEXT NOT NULL DEFAULT '[]',
	denied_roles TEXT NOT NULL DEFAULT '[]',
	restriction_message TEXT NOT NULL DEFAULT '',
	hospital_id INTEGER,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'consultant',
	access_status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE hospital_staff (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE,
	hospital_id INTEGER NOT NULL,
	is_leadership BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hospital_id INTEGER NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL
);

CREATE TABLE schedule_assignments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	schedule_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL
);

CREATE TABLE project_team_assignments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL
);

CREATE TABLE invitations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	invited_by_user_id INTEGER NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	accepted_by_user_id INTEGER,
	accepted_at TIMESTAMP,
	revoked_by INTEGER,
	revoked_at TIMESTAMP,
	revoke_reason TEXT NOT NULL DEFAULT '',
	last_sent_at TIMESTAMP,
	send_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX invitations_one_pending_per_email ON invitations (email) WHERE status = 'pending';

CREATE TABLE audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	actor_id INTEGER,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	correlation_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// PostgresSchema is the same schema in PostgreSQL dialect, for integration tests.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS permissions (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL,
	action TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	role_type TEXT NOT NULL CHECK (role_type IN ('base', 'custom')),
	hospital_id BIGINT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_by BIGINT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS role_permissions (
	id BIGSERIAL PRIMARY KEY,
	role_id BIGINT NOT NULL REFERENCES roles(id),
	permission_id BIGINT NOT NULL REFERENCES permissions(id),
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS role_assignments (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	role_id BIGINT NOT NULL REFERENCES roles(id),
	project_id BIGINT,
	assigned_by BIGINT,
	assigned_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS seed_markers (
	key TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	seeded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS invitations (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	invited_by_user_id BIGINT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	accepted_by_user_id BIGINT,
	accepted_at TIMESTAMPTZ,
	revoked_by BIGINT,
	revoked_at TIMESTAMPTZ,
	revoke_reason TEXT NOT NULL DEFAULT '',
	last_sent_at TIMESTAMPTZ,
	send_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS invitations_one_pending_per_email ON invitations (email) WHERE status = 'pending';
`

// NewSQLiteDB opens an in-memory SQLite database with SQLiteSchema applied.
// The pool is pinned to one connection so every query sees the same memory database.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// RequirePostgres connects to TEST_POSTGRES_PRIMARY or skips the test.
func RequirePostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// InsertUser inserts a user row and returns its id
func InsertUser(t *testing.T, db *sql.DB, email, role, accessStatus string) int64 {
	t.Helper()
	now := time.Now().UTC()
	return insert(t, db,
		`INSERT INTO users (email, full_name, role, access_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		email, email, role, accessStatus, now)
}

// InsertHospitalStaff links a user to a hospital
func InsertHospitalStaff(t *testing.T, db *sql.DB, userID, hospitalID int64, isLeadership bool) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO hospital_staff (user_id, hospital_id, is_leadership) VALUES ($1, $2, $3) RETURNING id`,
		userID, hospitalID, isLeadership)
}

// InsertProject inserts a project for a hospital
func InsertProject(t *testing.T, db *sql.DB, hospitalID int64, name string) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO projects (hospital_id, name) VALUES ($1, $2) RETURNING id`,
		hospitalID, name)
}

// ScheduleUser assigns a user to a project through a new schedule
func ScheduleUser(t *testing.T, db *sql.DB, projectID, userID int64) {
	t.Helper()
	scheduleID := insert(t, db, `INSERT INTO schedules (project_id) VALUES ($1) RETURNING id`, projectID)
	insert(t, db, `INSERT INTO schedule_assignments (schedule_id, user_id) VALUES ($1, $2) RETURNING id`, scheduleID, userID)
}

// AddTeamMember assigns a user to a project team
func AddTeamMember(t *testing.T, db *sql.DB, projectID, userID int64) {
	t.Helper()
	insert(t, db, `INSERT INTO project_team_assignments (project_id, user_id) VALUES ($1, $2) RETURNING id`, projectID, userID)
}

func insert(t *testing.T, db *sql.DB, query string, args ...interface{}) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(query, args...).Scan(&id); err != nil {
		t.Fatalf("Failed to insert fixture: %v", err)
	}
	return id
}
