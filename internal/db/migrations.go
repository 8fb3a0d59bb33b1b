package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// MigratableTable is implemented by each table that owns schema DDL. Migrate
// applies every step with a version greater than fromVersion, up to and
// including toVersion, inside the supplied transaction.
type MigratableTable interface {
	Name() string
	LatestVersion() int
	Migrate(tx *sql.Tx, fromVersion, toVersion int) error
}

const schemaVersionsDDL = `CREATE TABLE IF NOT EXISTS schema_versions (
    table_name TEXT PRIMARY KEY,
    version INT NOT NULL
)`

// MigrateAll walks each table forward from its stored schema version to its
// latest. The version bump and the DDL for a table are committed in one
// transaction so a partial migration never records a version it did not reach.
func (p *Postgres) MigrateAll(ctx context.Context, tables ...MigratableTable) error {
	if _, err := p.DB.ExecContext(ctx, schemaVersionsDDL); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, table := range tables {
		if err := p.migrateTable(ctx, table); err != nil {
			return fmt.Errorf("migrate %s: %w", table.Name(), err)
		}
	}
	return nil
}

func (p *Postgres) migrateTable(ctx context.Context, table MigratableTable) error {
	var stored int
	err := p.DB.QueryRowContext(ctx,
		`SELECT version FROM schema_versions WHERE table_name = $1`, table.Name()).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read stored version: %w", err)
	}

	target := table.LatestVersion()
	if stored >= target {
		return nil
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := table.Migrate(tx, stored, target); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_versions (table_name, version) VALUES ($1, $2)
         ON CONFLICT (table_name) DO UPDATE SET version = EXCLUDED.version`,
		table.Name(), target); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	zap.L().Info("table migrated",
		zap.String("table", table.Name()),
		zap.Int("from", stored),
		zap.Int("to", target))
	return nil
}
