package handlers

import (
	"time"

	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// Command is the marker interface every mutating command implements.
// Mutating commands are the only ones that flow through pkg/buffer;
// queries (below) bypass it entirely (spec §4.4).
type Command interface{ isCommand() }

// CreateEntityCmd creates a User, Group, or Role (spec §4.5
// CreateUser/Group/Role, unified since they differ only in Kind).
type CreateEntityCmd struct {
	ID   int64
	Kind domain.Kind
	Name string
}

func (CreateEntityCmd) isCommand() {}

// DeleteEntityCmd removes an entity, its edges, and its permissions.
type DeleteEntityCmd struct {
	ID int64
}

func (DeleteEntityCmd) isCommand() {}

// AddEdgeCmd covers AddUserToGroup / AddGroupToGroup / AddRoleToGroup /
// AddUserToRole: the legal-kind check lives in pkg/graph, so one
// command type serves all four spec-named variants.
type AddEdgeCmd struct {
	ParentID int64
	ChildID  int64
}

func (AddEdgeCmd) isCommand() {}

// RemoveEdgeCmd covers the RemoveX counterparts of AddEdgeCmd.
type RemoveEdgeCmd struct {
	ParentID int64
	ChildID  int64
}

func (RemoveEdgeCmd) isCommand() {}

// GrantPermissionCmd attaches a permission to an owner entity.
type GrantPermissionCmd struct {
	OwnerID    int64
	Permission domain.Permission
}

func (GrantPermissionCmd) isCommand() {}

// RevokePermissionCmd removes a permission, optionally cascading to
// every descendant holding the identical rule.
type RevokePermissionCmd struct {
	OwnerID    int64
	Permission domain.Permission
	Cascade    bool
}

func (RevokePermissionCmd) isCommand() {}

// BulkOpKind enumerates the per-operation kinds inside a bulk update.
type BulkOpKind string

const (
	BulkOpGrant  BulkOpKind = "Grant"
	BulkOpRevoke BulkOpKind = "Revoke"
	BulkOpUpdate BulkOpKind = "Update"
)

// BulkOp is one operation inside a BulkPermissionUpdateCmd.
type BulkOp struct {
	Kind       BulkOpKind
	EntityID   int64
	Permission domain.Permission
	Metadata   map[string]interface{}
}

// BulkPermissionUpdateCmd is the input to the algorithm of spec §4.5.1.
type BulkPermissionUpdateCmd struct {
	Ops                     []BulkOp
	ValidateBeforeExecution bool
	StopOnFirstError        bool
	ExecuteInTransaction    bool
}

func (BulkPermissionUpdateCmd) isCommand() {}

// RecordAuditEventCmd appends a structurally-valid audit row directly,
// for callers outside the normal command flow (e.g. security tooling).
type RecordAuditEventCmd struct {
	EntityType    string
	EntityID      int64
	ChangeType    persistence.ChangeType
	ChangeDetails map[string]interface{}
}

func (RecordAuditEventCmd) isCommand() {}

// PurgeOldAuditDataCmd bounds a retention sweep.
type PurgeOldAuditDataCmd struct {
	OlderThan time.Time
	Except    func(persistence.AuditRow) bool
}

func (PurgeOldAuditDataCmd) isCommand() {}

// Severity is the AccessViolation alert level.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// AccessViolationCmd records a security event, optionally flagging the
// offending request for blocking (spec §4.5 AccessViolation).
type AccessViolationCmd struct {
	UserID     int64
	ResourceID string
	Severity   Severity
	Action     string
}

func (AccessViolationCmd) isCommand() {}

// ValidatePermissionStructureCmd inspects (and optionally repairs) an
// entity's permission set, e.g. dropping malformed URIs.
type ValidatePermissionStructureCmd struct {
	EntityID int64
	Fix      bool
}

func (ValidatePermissionStructureCmd) isCommand() {}
