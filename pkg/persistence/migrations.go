package persistence

import (
	"context"
	"database/sql"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/common"
)

var migLogger = logging.GetLogger("persistence.migrations")

// Migration is one forward schema step, identified by a monotonic
// version number and tracked in schema_migrations.
type Migration struct {
	Version     int
	Description string
	PostgresSQL string
	SQLiteSQL   string
}

// GetMigrations returns the ordered migration set for the ACS schema
// of spec §6: entities, entity_edges, permissions, audit_log.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "entities and hierarchy edges",
			PostgresSQL: `
				CREATE TABLE IF NOT EXISTS entities (
					id BIGINT NOT NULL,
					tenant_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (tenant_id, id)
				);
				CREATE TABLE IF NOT EXISTS entity_edges (
					tenant_id TEXT NOT NULL,
					parent_id BIGINT NOT NULL,
					child_id BIGINT NOT NULL,
					PRIMARY KEY (tenant_id, parent_id, child_id)
				);`,
			SQLiteSQL: `
				CREATE TABLE IF NOT EXISTS entities (
					id INTEGER NOT NULL,
					tenant_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (tenant_id, id)
				);
				CREATE TABLE IF NOT EXISTS entity_edges (
					tenant_id TEXT NOT NULL,
					parent_id INTEGER NOT NULL,
					child_id INTEGER NOT NULL,
					PRIMARY KEY (tenant_id, parent_id, child_id)
				);`,
		},
		{
			Version:     2,
			Description: "permissions",
			PostgresSQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					owner_entity_id BIGINT NOT NULL,
					uri TEXT NOT NULL,
					verb TEXT NOT NULL,
					effect TEXT NOT NULL,
					scheme TEXT NOT NULL,
					expires_at TIMESTAMPTZ,
					metadata_json JSONB
				);
				CREATE INDEX IF NOT EXISTS idx_permissions_owner ON permissions(tenant_id, owner_entity_id);`,
			SQLiteSQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					owner_entity_id INTEGER NOT NULL,
					uri TEXT NOT NULL,
					verb TEXT NOT NULL,
					effect TEXT NOT NULL,
					scheme TEXT NOT NULL,
					expires_at DATETIME,
					metadata_json TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_permissions_owner ON permissions(tenant_id, owner_entity_id);`,
		},
		{
			Version:     3,
			Description: "audit log",
			PostgresSQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id BIGINT NOT NULL,
					change_type TEXT NOT NULL,
					changed_by TEXT NOT NULL,
					change_date TIMESTAMPTZ NOT NULL,
					change_details_json JSONB,
					correlation_id TEXT NOT NULL,
					hash TEXT NOT NULL,
					prev_hash TEXT NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_audit_tenant_date ON audit_log(tenant_id, change_date);`,
			SQLiteSQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id INTEGER NOT NULL,
					change_type TEXT NOT NULL,
					changed_by TEXT NOT NULL,
					change_date DATETIME NOT NULL,
					change_details_json TEXT,
					correlation_id TEXT NOT NULL,
					hash TEXT NOT NULL,
					prev_hash TEXT NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_audit_tenant_date ON audit_log(tenant_id, change_date);`,
		},
	}
}

// Migrator applies GetMigrations against a database, tracking progress
// in schema_migrations so Init is safe to call on every process start.
type Migrator struct {
	db     *sql.DB
	driver string
}

// NewMigrator wraps db for driver ("postgres" or "sqlite").
func NewMigrator(db *sql.DB, driver string) *Migrator {
	return &Migrator{db: db, driver: driver}
}

// Init creates schema_migrations if needed and applies any migration
// newer than the current recorded version, in order.
func (m *Migrator) Init(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "creating schema_migrations")
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return common.Wrap(common.KindPersistenceError, err, "reading current schema version")
	}

	for _, mig := range GetMigrations() {
		if mig.Version <= current {
			continue
		}

		migLogger.SysInfof("applying migration %d: %s", mig.Version, mig.Description)

		sqlText := mig.PostgresSQL
		if m.driver == "sqlite" {
			sqlText = mig.SQLiteSQL
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return common.Wrap(common.KindPersistenceError, err, "beginning migration transaction")
		}
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			_ = tx.Rollback()
			return common.Wrap(common.KindPersistenceError, err, "applying migration "+mig.Description)
		}
		if _, err := tx.ExecContext(ctx, m.insertVersionSQL(), mig.Version); err != nil {
			_ = tx.Rollback()
			return common.Wrap(common.KindPersistenceError, err, "recording migration version")
		}
		if err := tx.Commit(); err != nil {
			return common.Wrap(common.KindPersistenceError, err, "committing migration")
		}
	}

	return nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (m *Migrator) insertVersionSQL() string {
	if m.driver == "postgres" {
		return `INSERT INTO schema_migrations (version) VALUES ($1)`
	}
	return `INSERT INTO schema_migrations (version) VALUES (?)`
}
