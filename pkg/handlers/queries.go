package handlers

import (
	"time"

	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// Query is the marker interface every read-only operation implements.
// Queries never touch pkg/buffer; they execute immediately against the
// graph under its reader lock (spec §4.4).
type Query interface{ isQuery() }

// CheckPermissionQuery answers "may entity do verb on uri", evaluated
// at instant At (defaulting to now).
type CheckPermissionQuery struct {
	EntityID int64
	URI      string
	Verb     domain.Verb
	At       *time.Time
}

func (CheckPermissionQuery) isQuery() {}

// GetEntityPermissionsQuery lists an entity's permissions, optionally
// including those inherited from ancestors.
type GetEntityPermissionsQuery struct {
	EntityID         int64
	IncludeInherited bool
}

func (GetEntityPermissionsQuery) isQuery() {}

// GetEffectivePermissionsQuery reports, for each of ResourceURIs, the
// resolved decision for EntityID, optionally explaining which rule won.
type GetEffectivePermissionsQuery struct {
	EntityID        int64
	ResourceURIs    []string
	Verb            domain.Verb
	ResolveConflicts bool
}

func (GetEffectivePermissionsQuery) isQuery() {}

// GetAuditTrailQuery is a pass-through to persistence.Store.GetAuditTrail.
type GetAuditTrailQuery struct {
	Filter persistence.AuditFilter
}

func (GetAuditTrailQuery) isQuery() {}

// GetComplianceReportQuery summarises audit activity over a window,
// bucketed by change type, for compliance dashboards.
type GetComplianceReportQuery struct {
	Since time.Time
	Until time.Time
}

func (GetComplianceReportQuery) isQuery() {}

// ValidateAuditIntegrityQuery is a pass-through to
// persistence.Store.ValidateIntegrity.
type ValidateAuditIntegrityQuery struct {
	FromID int64
	ToID   int64
}

func (ValidateAuditIntegrityQuery) isQuery() {}

// PermissionImpactAnalysisQuery asks "if we changed this permission on
// resourceURI, who would be affected, down to depth levels".
type PermissionImpactAnalysisQuery struct {
	ResourceURI string
	Verb        domain.Verb
	Depth       int
}

func (PermissionImpactAnalysisQuery) isQuery() {}
