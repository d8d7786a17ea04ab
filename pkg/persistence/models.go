// Package persistence is the durable store for a tenant's entities,
// edges, permissions, and audit log (spec C3). SQLStore backs it with
// database/sql against either PostgreSQL (github.com/lib/pq) or the
// pure-Go modernc.org/sqlite driver, mirroring the dual-purpose
// production/test store the teacher's pkg/rbac demonstrates.
package persistence

import (
	"encoding/json"
	"time"

	"github.com/lattice-acs/acs/pkg/graph"
)

// ChangeType enumerates the audit_log.change_type values of spec §6.
type ChangeType string

const (
	ChangeCreate            ChangeType = "Create"
	ChangeUpdate            ChangeType = "Update"
	ChangeDelete            ChangeType = "Delete"
	ChangeGrantPermission   ChangeType = "GrantPermission"
	ChangeRevokePermission  ChangeType = "RevokePermission"
	ChangeAddEdge           ChangeType = "AddEdge"
	ChangeRemoveEdge        ChangeType = "RemoveEdge"
	ChangeSecurityViolation ChangeType = "SecurityViolation"
	ChangeBulkUpdate        ChangeType = "BulkPermissionUpdate"
)

// EntityRecord is the persisted row shape of entities(...) (spec §6).
type EntityRecord struct {
	ID        int64
	Kind      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PermissionRecord is the persisted row shape of permissions(...).
type PermissionRecord struct {
	ID           int64
	OwnerID      int64
	URI          string
	Verb         string
	Effect       string
	Scheme       string
	ExpiresAt    *time.Time
	MetadataJSON json.RawMessage
}

// AuditRow is one append-only audit_log(...) row (spec §4.3, §6).
type AuditRow struct {
	ID              int64
	EntityType      string
	EntityID        int64
	ChangeType       ChangeType
	ChangedBy        string
	ChangeDate       time.Time
	ChangeDetailsRaw json.RawMessage
	CorrelationID    string
	Hash             string
	PrevHash         string
}

// Mutation is everything one logical command stages for a single
// atomic commit: entity/edge/permission writes plus the audit rows
// that describe them (spec §4.3 Apply, §7 atomic application rule).
type Mutation struct {
	UpsertEntities  []EntityRecord
	DeleteEntityIDs []int64
	AddEdges        []graph.EdgeRecord
	RemoveEdges     []graph.EdgeRecord
	AddPermissions  []PermissionRecord

	// RemovePermissions identifies rows to delete by owner and rule
	// shape (uri, verb, effect, scheme) rather than by numeric id: the
	// domain model never surfaces the persistence-assigned id back to
	// callers, so revocation matches on the same fields
	// domain.Permission.Equal compares.
	RemovePermissions []PermissionRecord

	AuditRows []AuditRow
}

// AuditFilter narrows GetAuditTrail queries.
type AuditFilter struct {
	EntityType string
	EntityID   *int64
	ChangeType ChangeType
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// IntegrityReport is ValidateIntegrity's result (spec §4.3 Integrity).
type IntegrityReport struct {
	RecordsChecked int
	IsValid        bool
	Issues         []string
}
