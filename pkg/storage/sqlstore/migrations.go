package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/grantor/pkg/observability"
)

// Migration is one versioned schema change. Statements run in order inside a
// single transaction.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// GetMigrations returns every schema migration, oldest first
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions and roles tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS grantor_permissions (
					id VARCHAR(36) PRIMARY KEY,
					operation VARCHAR(255) NOT NULL,
					class VARCHAR(255) NOT NULL DEFAULT '',
					field VARCHAR(255) NOT NULL DEFAULT '',
					contexts TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_grantor_permissions_class_field ON grantor_permissions(class, field)`,
				`CREATE TABLE IF NOT EXISTS grantor_roles (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					type VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS grantor_role_permissions (
					role_id VARCHAR(36) NOT NULL REFERENCES grantor_roles(id) ON DELETE CASCADE,
					permission_id VARCHAR(36) NOT NULL REFERENCES grantor_permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_grantor_role_permissions_permission_id ON grantor_role_permissions(permission_id)`,
			},
		},
		{
			Version:     2,
			Description: "Create role hierarchy table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS grantor_role_children (
					parent_id VARCHAR(36) NOT NULL REFERENCES grantor_roles(id) ON DELETE CASCADE,
					child_id VARCHAR(36) NOT NULL REFERENCES grantor_roles(id) ON DELETE CASCADE,
					PRIMARY KEY (parent_id, child_id)
				)`,
			},
		},
		{
			Version:     3,
			Description: "Create sharing tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS grantor_sharings (
					id VARCHAR(36) PRIMARY KEY,
					subject_class VARCHAR(255) NOT NULL,
					subject_id VARCHAR(255) NOT NULL,
					identity_class VARCHAR(255) NOT NULL,
					identity_name VARCHAR(255) NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					started_at TIMESTAMP NULL,
					ended_at TIMESTAMP NULL,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_grantor_sharings_subject ON grantor_sharings(subject_class, subject_id)`,
				`CREATE INDEX IF NOT EXISTS idx_grantor_sharings_identity ON grantor_sharings(identity_class, identity_name)`,
				`CREATE TABLE IF NOT EXISTS grantor_sharing_roles (
					sharing_id VARCHAR(36) NOT NULL REFERENCES grantor_sharings(id) ON DELETE CASCADE,
					role_id VARCHAR(36) NOT NULL REFERENCES grantor_roles(id) ON DELETE CASCADE,
					PRIMARY KEY (sharing_id, role_id)
				)`,
				`CREATE TABLE IF NOT EXISTS grantor_sharing_permissions (
					sharing_id VARCHAR(36) NOT NULL REFERENCES grantor_sharings(id) ON DELETE CASCADE,
					permission_id VARCHAR(36) NOT NULL REFERENCES grantor_permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (sharing_id, permission_id)
				)`,
			},
		},
	}
}

// RunMigrations applies every pending migration, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grantor_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}
		if err := applyMigration(ctx, db, migration); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applied migration")
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM grantor_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	for _, statement := range migration.Statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO grantor_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
		migration.Version, migration.Description, time.Now().UTC(),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
