package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_reconcile_indexes",
		Up:      migration002AddReconcileIndexes,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_cursors (
			budget_id TEXT PRIMARY KEY,
			server_knowledge INTEGER NOT NULL DEFAULT 0,
			schema_version INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS detail_states (
			transaction_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bank_transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			bank_transaction_id TEXT NOT NULL,
			post_date TEXT NOT NULL,
			amount_mills INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			UNIQUE(account_id, bank_transaction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS merchant_orders (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			order_date TEXT NOT NULL,
			amount_mills INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			UNIQUE(merchant_id, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS app_transactions (
			id TEXT PRIMARY KEY,
			application_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			ledger_transaction_id TEXT NOT NULL DEFAULT '',
			app_account_id TEXT NOT NULL,
			app_transaction_id TEXT NOT NULL UNIQUE,
			merchant_transaction_id TEXT NOT NULL DEFAULT '',
			post_date TEXT NOT NULL,
			amount_mills INTEGER NOT NULL,
			sync_state TEXT NOT NULL,
			schema_version INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration002AddReconcileIndexes(tx *sql.Tx) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_merchant_orders_date ON merchant_orders(order_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_transactions_account ON bank_transactions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_app_transactions_state ON app_transactions(sync_state)`,
		`CREATE INDEX IF NOT EXISTS idx_detail_states_state ON detail_states(state)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
