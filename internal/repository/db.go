package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds so stored timestamps
// sort lexically, which ORDER BY on TEXT columns relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	// Writers queue instead of failing fast when the single write lock is held.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			payer_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			external_authorization_id TEXT NOT NULL DEFAULT '',
			external_transaction_id TEXT NOT NULL DEFAULT '',
			commission INTEGER,
			net_amount INTEGER,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			failure_reason TEXT NOT NULL DEFAULT '',
			refund_reason TEXT NOT NULL DEFAULT '',
			provider_metadata TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			authorized_at DATETIME,
			processed_at DATETIME,
			last_attempt_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_job ON payments(job_id, job_type)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_payee ON payments(payee_id)`,
		// At most one COMPLETED payment may ever exist per job.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_completed
			ON payments(job_id, job_type) WHERE status = 'COMPLETED'`,
		// At most one in-flight attempt per job: concurrent authorizations
		// race on the insert instead of on a read-then-write check.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_inflight
			ON payments(job_id, job_type)
			WHERE status IN ('PENDING','AUTHORIZED','PROCESSING')`,

		`CREATE TABLE IF NOT EXISTS visits (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS service_jobs (
			id TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS maintenance_jobs (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			broker_id TEXT NOT NULL DEFAULT '',
			contractor_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS payees (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			payout_verified INTEGER NOT NULL DEFAULT 0,
			earnings INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
