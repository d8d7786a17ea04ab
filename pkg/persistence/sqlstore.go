package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/graph"
	"github.com/lattice-acs/acs/pkg/metrics"
)

// observeQuery times a single store operation for DBQueryDuration
// (spec §6), labeled by tenant and operation name.
func observeQuery(tenantID, op string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(tenantID, op).Observe(float64(time.Since(start).Milliseconds()))
}

// Apply commits every staged write in m inside one transaction,
// appending the audit rows last so their hash chain reflects the
// committed state (spec §4.3 Apply, §7 atomic application rule).
func (s *SQLStore) Apply(ctx context.Context, tenantID string, m Mutation) error {
	defer observeQuery(tenantID, "Apply", time.Now())
	return s.execTx(ctx, func(tx *sql.Tx) error {
		for _, e := range m.UpsertEntities {
			if err := s.upsertEntity(ctx, tx, tenantID, e); err != nil {
				return err
			}
		}

		for _, id := range m.DeleteEntityIDs {
			if err := s.deleteEntity(ctx, tx, tenantID, id); err != nil {
				return err
			}
		}

		for _, edge := range m.AddEdges {
			if err := s.addEdge(ctx, tx, tenantID, edge); err != nil {
				return err
			}
		}

		for _, edge := range m.RemoveEdges {
			if err := s.removeEdge(ctx, tx, tenantID, edge); err != nil {
				return err
			}
		}

		for _, p := range m.AddPermissions {
			if err := s.addPermission(ctx, tx, tenantID, p); err != nil {
				return err
			}
		}

		for _, p := range m.RemovePermissions {
			if err := s.removePermission(ctx, tx, tenantID, p); err != nil {
				return err
			}
		}

		return s.appendAuditRows(ctx, tx, tenantID, m.AuditRows)
	})
}

func (s *SQLStore) upsertEntity(ctx context.Context, tx *sql.Tx, tenantID string, e EntityRecord) error {
	updateQ := fmt.Sprintf(
		`UPDATE entities SET kind=%s, name=%s, updated_at=%s WHERE tenant_id=%s AND id=%s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))

	res, err := tx.ExecContext(ctx, updateQ, e.Kind, e.Name, e.UpdatedAt, tenantID, e.ID)
	if err != nil {
		return common.Wrap(common.KindPersistenceError, err, "updating entity")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	insertQ := fmt.Sprintf(
		`INSERT INTO entities (tenant_id, id, kind, name, created_at, updated_at) VALUES (%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6))

	if _, err := tx.ExecContext(ctx, insertQ, tenantID, e.ID, e.Kind, e.Name, e.CreatedAt, e.UpdatedAt); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "inserting entity")
	}
	return nil
}

func (s *SQLStore) deleteEntity(ctx context.Context, tx *sql.Tx, tenantID string, id int64) error {
	stmts := []string{
		fmt.Sprintf(`DELETE FROM permissions WHERE tenant_id=%s AND owner_entity_id=%s`, s.placeholder(1), s.placeholder(2)),
		fmt.Sprintf(`DELETE FROM entity_edges WHERE tenant_id=%s AND (parent_id=%s OR child_id=%s)`, s.placeholder(1), s.placeholder(2), s.placeholder(2)),
		fmt.Sprintf(`DELETE FROM entities WHERE tenant_id=%s AND id=%s`, s.placeholder(1), s.placeholder(2)),
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, tenantID, id); err != nil {
			return common.Wrap(common.KindPersistenceError, err, "deleting entity")
		}
	}
	return nil
}

func (s *SQLStore) addEdge(ctx context.Context, tx *sql.Tx, tenantID string, e graph.EdgeRecord) error {
	q := fmt.Sprintf(
		`INSERT INTO entity_edges (tenant_id, parent_id, child_id) VALUES (%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, q, tenantID, e.ParentID, e.ChildID); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "inserting edge")
	}
	return nil
}

func (s *SQLStore) removeEdge(ctx context.Context, tx *sql.Tx, tenantID string, e graph.EdgeRecord) error {
	q := fmt.Sprintf(
		`DELETE FROM entity_edges WHERE tenant_id=%s AND parent_id=%s AND child_id=%s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, q, tenantID, e.ParentID, e.ChildID); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "removing edge")
	}
	return nil
}

func (s *SQLStore) addPermission(ctx context.Context, tx *sql.Tx, tenantID string, p PermissionRecord) error {
	q := fmt.Sprintf(
		`INSERT INTO permissions (tenant_id, owner_entity_id, uri, verb, effect, scheme, expires_at, metadata_json)
		 VALUES (%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8))

	if _, err := tx.ExecContext(ctx, q, tenantID, p.OwnerID, p.URI, p.Verb, p.Effect, p.Scheme, p.ExpiresAt, string(p.MetadataJSON)); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "inserting permission")
	}
	return nil
}

func (s *SQLStore) removePermission(ctx context.Context, tx *sql.Tx, tenantID string, p PermissionRecord) error {
	q := fmt.Sprintf(
		`DELETE FROM permissions WHERE tenant_id=%s AND owner_entity_id=%s AND uri=%s AND verb=%s AND effect=%s AND scheme=%s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6))
	if _, err := tx.ExecContext(ctx, q, tenantID, p.OwnerID, p.URI, p.Verb, p.Effect, p.Scheme); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "removing permission")
	}
	return nil
}

func (s *SQLStore) lastHash(ctx context.Context, tx *sql.Tx, tenantID string) (string, error) {
	q := fmt.Sprintf(`SELECT hash FROM audit_log WHERE tenant_id=%s ORDER BY id DESC LIMIT 1`, s.placeholder(1))
	var hash string
	err := tx.QueryRowContext(ctx, q, tenantID).Scan(&hash)
	if err == sql.ErrNoRows {
		return genesisHash, nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *SQLStore) appendAuditRows(ctx context.Context, tx *sql.Tx, tenantID string, rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	prev, err := s.lastHash(ctx, tx, tenantID)
	if err != nil {
		return common.Wrap(common.KindPersistenceError, err, "reading audit chain head")
	}

	q := fmt.Sprintf(
		`INSERT INTO audit_log (tenant_id, entity_type, entity_id, change_type, changed_by, change_date, change_details_json, correlation_id, hash, prev_hash)
		 VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10))

	for _, row := range rows {
		row.PrevHash = prev
		row.Hash = chainHash(prev, row)

		if _, err := tx.ExecContext(ctx, q,
			tenantID, row.EntityType, row.EntityID, string(row.ChangeType), row.ChangedBy,
			row.ChangeDate, string(row.ChangeDetailsRaw), row.CorrelationID, row.Hash, row.PrevHash,
		); err != nil {
			return common.Wrap(common.KindPersistenceError, err, "appending audit row")
		}
		prev = row.Hash
	}
	return nil
}

// Load returns every entity and edge for tenantID, in the shape
// graph.Graph.Load expects.
func (s *SQLStore) Load(ctx context.Context, tenantID string) (graph.Snapshot, error) {
	defer observeQuery(tenantID, "Load", time.Now())
	snapshot := graph.Snapshot{}

	entityQ := fmt.Sprintf(`SELECT id, kind, name, created_at, updated_at FROM entities WHERE tenant_id=%s`, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, entityQ, tenantID)
	if err != nil {
		return snapshot, common.Wrap(common.KindPersistenceError, err, "loading entities")
	}

	byID := make(map[int64]*domain.Entity)
	for rows.Next() {
		var e domain.Entity
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return snapshot, common.Wrap(common.KindPersistenceError, err, "scanning entity")
		}
		e.Kind = domain.Kind(kind)
		stored := e
		byID[e.ID] = &stored
	}
	rows.Close()

	permQ := fmt.Sprintf(
		`SELECT owner_entity_id, uri, verb, effect, scheme, expires_at, metadata_json FROM permissions WHERE tenant_id=%s`,
		s.placeholder(1))
	permRows, err := s.db.QueryContext(ctx, permQ, tenantID)
	if err != nil {
		return snapshot, common.Wrap(common.KindPersistenceError, err, "loading permissions")
	}
	for permRows.Next() {
		var ownerID int64
		var uri, verb, effect, scheme string
		var expiresAt sql.NullTime
		var metaJSON sql.NullString

		if err := permRows.Scan(&ownerID, &uri, &verb, &effect, &scheme, &expiresAt, &metaJSON); err != nil {
			permRows.Close()
			return snapshot, common.Wrap(common.KindPersistenceError, err, "scanning permission")
		}

		perm := domain.Permission{
			URI:    uri,
			Verb:   domain.Verb(verb),
			Effect: domain.Effect(effect),
			Scheme: scheme,
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			perm.ExpiresAt = &t
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta map[string]domain.MetaValue
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				perm.Metadata = meta
			}
		}

		if e, ok := byID[ownerID]; ok {
			e.Permissions = append(e.Permissions, perm)
		}
	}
	permRows.Close()

	for _, e := range byID {
		snapshot.Entities = append(snapshot.Entities, *e)
	}

	edgeQ := fmt.Sprintf(`SELECT parent_id, child_id FROM entity_edges WHERE tenant_id=%s`, s.placeholder(1))
	edgeRows, err := s.db.QueryContext(ctx, edgeQ, tenantID)
	if err != nil {
		return snapshot, common.Wrap(common.KindPersistenceError, err, "loading edges")
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var edge graph.EdgeRecord
		if err := edgeRows.Scan(&edge.ParentID, &edge.ChildID); err != nil {
			return snapshot, common.Wrap(common.KindPersistenceError, err, "scanning edge")
		}
		snapshot.Edges = append(snapshot.Edges, edge)
	}

	return snapshot, nil
}

// GetAuditTrail returns matching rows newest first, bounded by filter.Limit.
func (s *SQLStore) GetAuditTrail(ctx context.Context, tenantID string, filter AuditFilter) ([]AuditRow, error) {
	defer observeQuery(tenantID, "GetAuditTrail", time.Now())
	query := fmt.Sprintf(`SELECT id, entity_type, entity_id, change_type, changed_by, change_date, change_details_json, correlation_id, hash, prev_hash
		FROM audit_log WHERE tenant_id=%s`, s.placeholder(1))
	args := []interface{}{tenantID}
	n := 2

	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type=%s", s.placeholder(n))
		args = append(args, filter.EntityType)
		n++
	}
	if filter.EntityID != nil {
		query += fmt.Sprintf(" AND entity_id=%s", s.placeholder(n))
		args = append(args, *filter.EntityID)
		n++
	}
	if filter.ChangeType != "" {
		query += fmt.Sprintf(" AND change_type=%s", s.placeholder(n))
		args = append(args, string(filter.ChangeType))
		n++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND change_date >= %s", s.placeholder(n))
		args = append(args, *filter.Since)
		n++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND change_date <= %s", s.placeholder(n))
		args = append(args, *filter.Until)
		n++
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.Wrap(common.KindPersistenceError, err, "querying audit trail")
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var row AuditRow
		var changeType, details string
		if err := rows.Scan(&row.ID, &row.EntityType, &row.EntityID, &changeType, &row.ChangedBy,
			&row.ChangeDate, &details, &row.CorrelationID, &row.Hash, &row.PrevHash); err != nil {
			return nil, common.Wrap(common.KindPersistenceError, err, "scanning audit row")
		}
		row.ChangeType = ChangeType(changeType)
		row.ChangeDetailsRaw = json.RawMessage(details)
		out = append(out, row)
	}
	return out, nil
}

// PurgeAuditOlderThan deletes rows older than olderThan that except
// does not protect, reporting the number removed (spec §4.3
// PurgeAuditOlderThan). except is evaluated in Go because the
// protected-row predicate can be arbitrary application logic (e.g.
// "keep one row per day"), not expressible as a single SQL clause.
func (s *SQLStore) PurgeAuditOlderThan(ctx context.Context, tenantID string, olderThan time.Time, except func(AuditRow) bool) (int, error) {
	defer observeQuery(tenantID, "PurgeAuditOlderThan", time.Now())
	candidates, err := s.GetAuditTrail(ctx, tenantID, AuditFilter{Until: &olderThan})
	if err != nil {
		return 0, err
	}

	deleteQ := fmt.Sprintf(`DELETE FROM audit_log WHERE tenant_id=%s AND id=%s`, s.placeholder(1), s.placeholder(2))

	removed := 0
	for _, row := range candidates {
		if !row.ChangeDate.Before(olderThan) {
			continue
		}
		if except != nil && except(row) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, deleteQ, tenantID, row.ID); err != nil {
			return removed, common.Wrap(common.KindPersistenceError, err, "purging audit row")
		}
		removed++
	}
	return removed, nil
}

// ValidateIntegrity recomputes the hash chain over [fromID, toID] and
// reports mismatches (spec §4.3 Integrity, §8 invariant 10).
func (s *SQLStore) ValidateIntegrity(ctx context.Context, tenantID string, fromID, toID int64) (IntegrityReport, error) {
	defer observeQuery(tenantID, "ValidateIntegrity", time.Now())
	query := fmt.Sprintf(`SELECT id, entity_type, entity_id, change_type, changed_by, change_date, change_details_json, correlation_id, hash, prev_hash
		FROM audit_log WHERE tenant_id=%s`, s.placeholder(1))
	args := []interface{}{tenantID}
	n := 2

	if fromID > 0 {
		query += fmt.Sprintf(" AND id >= %s", s.placeholder(n))
		args = append(args, fromID)
		n++
	}
	if toID > 0 {
		query += fmt.Sprintf(" AND id <= %s", s.placeholder(n))
		args = append(args, toID)
		n++
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return IntegrityReport{}, common.Wrap(common.KindPersistenceError, err, "querying audit chain")
	}
	defer rows.Close()

	report := IntegrityReport{IsValid: true}
	expectedPrev := ""
	haveExpected := false

	for rows.Next() {
		var row AuditRow
		var changeType, details string
		if err := rows.Scan(&row.ID, &row.EntityType, &row.EntityID, &changeType, &row.ChangedBy,
			&row.ChangeDate, &details, &row.CorrelationID, &row.Hash, &row.PrevHash); err != nil {
			return report, common.Wrap(common.KindPersistenceError, err, "scanning audit row")
		}
		row.ChangeType = ChangeType(changeType)
		row.ChangeDetailsRaw = json.RawMessage(details)
		report.RecordsChecked++

		if haveExpected && row.PrevHash != expectedPrev {
			report.IsValid = false
			report.Issues = append(report.Issues, fmt.Sprintf("row %d: prev_hash does not chain from prior row", row.ID))
		}

		recomputed := chainHash(row.PrevHash, row)
		if recomputed != row.Hash {
			report.IsValid = false
			report.Issues = append(report.Issues, fmt.Sprintf("row %d: hash mismatch, possible tampering", row.ID))
		}

		expectedPrev = row.Hash
		haveExpected = true
	}

	return report, nil
}
