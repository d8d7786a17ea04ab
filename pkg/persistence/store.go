package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/graph"
)

var logger = logging.GetLogger("persistence")

// Store is the durable backing for one tenant's authorization state.
// All methods are safe for concurrent use; Apply is expected to be
// called by a single writer per tenant (the command buffer's consumer).
type Store interface {
	// Apply commits one command's writes and its audit row(s)
	// atomically, or none of them (spec §4.3 Apply, §7).
	Apply(ctx context.Context, tenantID string, m Mutation) error

	// Load returns the full snapshot used by graph.Graph.Load.
	Load(ctx context.Context, tenantID string) (graph.Snapshot, error)

	// GetAuditTrail returns matching audit rows, newest first.
	GetAuditTrail(ctx context.Context, tenantID string, filter AuditFilter) ([]AuditRow, error)

	// PurgeAuditOlderThan deletes rows older than olderThan, skipping
	// any row for which except returns true, and reports how many rows
	// were removed.
	PurgeAuditOlderThan(ctx context.Context, tenantID string, olderThan time.Time, except func(AuditRow) bool) (int, error)

	// ValidateIntegrity recomputes the hash chain over [fromID, toID]
	// (inclusive, 0 meaning unbounded) and reports any mismatches.
	ValidateIntegrity(ctx context.Context, tenantID string, fromID, toID int64) (IntegrityReport, error)

	// Close releases the underlying connection pool.
	Close() error
}

// SQLStore implements Store over database/sql, supporting both
// PostgreSQL (lib/pq, "$n" placeholders) and the pure-Go sqlite driver
// used for local development and tests ("?" placeholders).
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore wraps an already-open *sql.DB. driver must be "postgres"
// or "sqlite", matching how db was opened.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Open opens a new connection pool for driver ("postgres" or "sqlite")
// against dsn and wraps it in a SQLStore.
func Open(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, common.Wrap(common.KindPersistenceError, err, "opening database")
	}
	return NewSQLStore(db, driver), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection pool for callers that need to
// run schema migrations (pkg/persistence.Migrator) against it directly.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// placeholder returns the positional parameter marker for this store's
// driver: "$n" for postgres, "?" for sqlite.
func (s *SQLStore) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) execTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.Wrap(common.KindPersistenceError, err, "beginning transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.SysErrorf("rollback after error failed: %+v", rbErr)
			}
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
