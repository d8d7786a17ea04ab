// Package translation maps the wire-shaped request bodies the RPC edge
// decodes JSON into onto the strongly-typed domain commands and queries
// pkg/handlers consumes (spec C6). It performs no business logic: field
// and enum validation only, surfaced as TranslationError. Grounded on
// the teacher's pkg/decisionpoint/generic/api.Server pattern of one thin
// method per request kind, generalized here to one function per
// command/query kind instead of a single Decision call.
package translation

import (
	"time"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/handlers"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// OpKind classifies a translated operation as Mutation (goes through
// pkg/buffer) or Query (executes directly against the graph), per spec
// §4.6.
type OpKind string

const (
	OpMutation OpKind = "Mutation"
	OpQuery    OpKind = "Query"
)

// Classify reports whether cmd is a Command (Mutation) or Query.
func Classify(op interface{}) (OpKind, error) {
	switch op.(type) {
	case handlers.Command:
		return OpMutation, nil
	case handlers.Query:
		return OpQuery, nil
	default:
		return "", common.Newf(common.KindTranslationError, "unrecognised operation type %T", op)
	}
}

// PermissionDTO is the wire shape of a Permission, as the RPC edge
// decodes it from JSON.
type PermissionDTO struct {
	URI       string                 `json:"uri"`
	Verb      string                 `json:"verb"`
	Effect    string                 `json:"effect"`
	Scheme    string                 `json:"scheme,omitempty"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func toVerb(s string) (domain.Verb, error) {
	v := domain.Verb(s)
	switch v {
	case domain.VerbGet, domain.VerbPost, domain.VerbPut, domain.VerbPatch, domain.VerbDelete,
		domain.VerbHead, domain.VerbOptions, domain.VerbConnect, domain.VerbTrace:
		return v, nil
	default:
		return "", common.Newf(common.KindTranslationError, "unrecognised verb %q", s)
	}
}

func toEffect(s string) (domain.Effect, error) {
	e := domain.Effect(s)
	switch e {
	case domain.EffectGrant, domain.EffectDeny:
		return e, nil
	default:
		return "", common.Newf(common.KindTranslationError, "unrecognised effect %q", s)
	}
}

func toKind(s string) (domain.Kind, error) {
	k := domain.Kind(s)
	switch k {
	case domain.KindUser, domain.KindGroup, domain.KindRole:
		return k, nil
	default:
		return "", common.Newf(common.KindTranslationError, "unrecognised entity kind %q", s)
	}
}

// ToPermission maps a PermissionDTO into a domain.Permission.
func ToPermission(dto PermissionDTO) (domain.Permission, error) {
	verb, err := toVerb(dto.Verb)
	if err != nil {
		return domain.Permission{}, err
	}
	effect, err := toEffect(dto.Effect)
	if err != nil {
		return domain.Permission{}, err
	}
	return domain.Permission{
		URI: dto.URI, Verb: verb, Effect: effect, Scheme: dto.Scheme,
		ExpiresAt: dto.ExpiresAt, Metadata: dto.Metadata,
	}, nil
}

// CreateEntityRequest is the wire shape of CreateUser/Group/Role.
type CreateEntityRequest struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ToCommand maps a CreateEntityRequest to handlers.CreateEntityCmd.
func (r CreateEntityRequest) ToCommand() (handlers.CreateEntityCmd, error) {
	kind, err := toKind(r.Kind)
	if err != nil {
		return handlers.CreateEntityCmd{}, err
	}
	if r.Name == "" {
		return handlers.CreateEntityCmd{}, common.New(common.KindNameEmpty, "name must be non-empty")
	}
	return handlers.CreateEntityCmd{ID: r.ID, Kind: kind, Name: r.Name}, nil
}

// DeleteEntityRequest is the wire shape of DeleteEntity.
type DeleteEntityRequest struct {
	ID int64 `json:"id"`
}

func (r DeleteEntityRequest) ToCommand() handlers.DeleteEntityCmd {
	return handlers.DeleteEntityCmd{ID: r.ID}
}

// EdgeRequest is the wire shape shared by AddUserToGroup / AddGroupToGroup
// / AddRoleToGroup / AddUserToRole and their Remove counterparts.
type EdgeRequest struct {
	ParentID int64 `json:"parentId"`
	ChildID  int64 `json:"childId"`
}

func (r EdgeRequest) ToAddCommand() handlers.AddEdgeCmd {
	return handlers.AddEdgeCmd{ParentID: r.ParentID, ChildID: r.ChildID}
}

func (r EdgeRequest) ToRemoveCommand() handlers.RemoveEdgeCmd {
	return handlers.RemoveEdgeCmd{ParentID: r.ParentID, ChildID: r.ChildID}
}

// GrantPermissionRequest is the wire shape of GrantPermission.
type GrantPermissionRequest struct {
	OwnerID    int64         `json:"ownerId"`
	Permission PermissionDTO `json:"permission"`
}

func (r GrantPermissionRequest) ToCommand() (handlers.GrantPermissionCmd, error) {
	perm, err := ToPermission(r.Permission)
	if err != nil {
		return handlers.GrantPermissionCmd{}, err
	}
	return handlers.GrantPermissionCmd{OwnerID: r.OwnerID, Permission: perm}, nil
}

// RevokePermissionRequest is the wire shape of RevokePermission.
type RevokePermissionRequest struct {
	OwnerID    int64         `json:"ownerId"`
	Permission PermissionDTO `json:"permission"`
	Cascade    bool          `json:"cascade,omitempty"`
}

func (r RevokePermissionRequest) ToCommand() (handlers.RevokePermissionCmd, error) {
	perm, err := ToPermission(r.Permission)
	if err != nil {
		return handlers.RevokePermissionCmd{}, err
	}
	return handlers.RevokePermissionCmd{OwnerID: r.OwnerID, Permission: perm, Cascade: r.Cascade}, nil
}

// BulkOpRequest is one operation inside a BulkPermissionUpdateRequest.
type BulkOpRequest struct {
	Kind       string                 `json:"kind"`
	EntityID   int64                  `json:"entityId"`
	Permission PermissionDTO          `json:"permission"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// BulkPermissionUpdateRequest is the wire shape of BulkPermissionUpdate.
type BulkPermissionUpdateRequest struct {
	Ops                     []BulkOpRequest `json:"ops"`
	ValidateBeforeExecution bool            `json:"validateBeforeExecution"`
	StopOnFirstError        bool            `json:"stopOnFirstError"`
	ExecuteInTransaction    bool            `json:"executeInTransaction"`
}

func toBulkOpKind(s string) (handlers.BulkOpKind, error) {
	k := handlers.BulkOpKind(s)
	switch k {
	case handlers.BulkOpGrant, handlers.BulkOpRevoke, handlers.BulkOpUpdate:
		return k, nil
	default:
		return "", common.Newf(common.KindTranslationError, "unrecognised bulk op kind %q", s)
	}
}

func (r BulkPermissionUpdateRequest) ToCommand() (handlers.BulkPermissionUpdateCmd, error) {
	ops := make([]handlers.BulkOp, 0, len(r.Ops))
	for _, o := range r.Ops {
		kind, err := toBulkOpKind(o.Kind)
		if err != nil {
			return handlers.BulkPermissionUpdateCmd{}, err
		}
		perm, err := ToPermission(o.Permission)
		if err != nil {
			return handlers.BulkPermissionUpdateCmd{}, err
		}
		ops = append(ops, handlers.BulkOp{Kind: kind, EntityID: o.EntityID, Permission: perm, Metadata: o.Metadata})
	}
	return handlers.BulkPermissionUpdateCmd{
		Ops: ops, ValidateBeforeExecution: r.ValidateBeforeExecution,
		StopOnFirstError: r.StopOnFirstError, ExecuteInTransaction: r.ExecuteInTransaction,
	}, nil
}

// AccessViolationRequest is the wire shape of AccessViolation.
type AccessViolationRequest struct {
	UserID     int64  `json:"userId"`
	ResourceID string `json:"resourceId"`
	Severity   string `json:"severity"`
	Action     string `json:"action"`
}

func (r AccessViolationRequest) ToCommand() (handlers.AccessViolationCmd, error) {
	sev := handlers.Severity(r.Severity)
	switch sev {
	case handlers.SeverityLow, handlers.SeverityMedium, handlers.SeverityHigh, handlers.SeverityCritical:
	default:
		return handlers.AccessViolationCmd{}, common.Newf(common.KindTranslationError, "unrecognised severity %q", r.Severity)
	}
	return handlers.AccessViolationCmd{UserID: r.UserID, ResourceID: r.ResourceID, Severity: sev, Action: r.Action}, nil
}

// ValidatePermissionStructureRequest is the wire shape of
// ValidatePermissionStructure.
type ValidatePermissionStructureRequest struct {
	EntityID int64 `json:"entityId"`
	Fix      bool  `json:"fix,omitempty"`
}

func (r ValidatePermissionStructureRequest) ToCommand() handlers.ValidatePermissionStructureCmd {
	return handlers.ValidatePermissionStructureCmd{EntityID: r.EntityID, Fix: r.Fix}
}

// CheckPermissionRequest is the wire shape of CheckPermission.
type CheckPermissionRequest struct {
	EntityID int64      `json:"entityId"`
	URI      string     `json:"uri"`
	Verb     string     `json:"verb"`
	At       *time.Time `json:"at,omitempty"`
}

func (r CheckPermissionRequest) ToQuery() (handlers.CheckPermissionQuery, error) {
	verb, err := toVerb(r.Verb)
	if err != nil {
		return handlers.CheckPermissionQuery{}, err
	}
	return handlers.CheckPermissionQuery{EntityID: r.EntityID, URI: r.URI, Verb: verb, At: r.At}, nil
}

// GetEntityPermissionsRequest is the wire shape of GetEntityPermissions.
type GetEntityPermissionsRequest struct {
	EntityID         int64 `json:"entityId"`
	IncludeInherited bool  `json:"includeInherited,omitempty"`
}

func (r GetEntityPermissionsRequest) ToQuery() handlers.GetEntityPermissionsQuery {
	return handlers.GetEntityPermissionsQuery{EntityID: r.EntityID, IncludeInherited: r.IncludeInherited}
}

// GetEffectivePermissionsRequest is the wire shape of
// GetEffectivePermissions.
type GetEffectivePermissionsRequest struct {
	EntityID         int64    `json:"entityId"`
	ResourceURIs     []string `json:"resourceUris"`
	Verb             string   `json:"verb"`
	ResolveConflicts bool     `json:"resolveConflicts,omitempty"`
}

func (r GetEffectivePermissionsRequest) ToQuery() (handlers.GetEffectivePermissionsQuery, error) {
	verb, err := toVerb(r.Verb)
	if err != nil {
		return handlers.GetEffectivePermissionsQuery{}, err
	}
	return handlers.GetEffectivePermissionsQuery{
		EntityID: r.EntityID, ResourceURIs: r.ResourceURIs, Verb: verb, ResolveConflicts: r.ResolveConflicts,
	}, nil
}

// GetAuditTrailRequest is the wire shape of GetAuditTrail.
type GetAuditTrailRequest struct {
	EntityType string     `json:"entityType,omitempty"`
	EntityID   *int64     `json:"entityId,omitempty"`
	ChangeType string     `json:"changeType,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func (r GetAuditTrailRequest) ToQuery() handlers.GetAuditTrailQuery {
	return handlers.GetAuditTrailQuery{Filter: persistence.AuditFilter{
		EntityType: r.EntityType, EntityID: r.EntityID, ChangeType: persistence.ChangeType(r.ChangeType),
		Since: r.Since, Until: r.Until, Limit: r.Limit,
	}}
}

// GetComplianceReportRequest is the wire shape of GetComplianceReport.
type GetComplianceReportRequest struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

func (r GetComplianceReportRequest) ToQuery() handlers.GetComplianceReportQuery {
	return handlers.GetComplianceReportQuery{Since: r.Since, Until: r.Until}
}

// ValidateAuditIntegrityRequest is the wire shape of
// ValidateAuditIntegrity.
type ValidateAuditIntegrityRequest struct {
	FromID int64 `json:"fromId,omitempty"`
	ToID   int64 `json:"toId,omitempty"`
}

func (r ValidateAuditIntegrityRequest) ToQuery() handlers.ValidateAuditIntegrityQuery {
	return handlers.ValidateAuditIntegrityQuery{FromID: r.FromID, ToID: r.ToID}
}

// PermissionImpactAnalysisRequest is the wire shape of
// PermissionImpactAnalysis.
type PermissionImpactAnalysisRequest struct {
	ResourceURI string `json:"resourceUri"`
	Verb        string `json:"verb"`
	Depth       int    `json:"depth,omitempty"`
}

func (r PermissionImpactAnalysisRequest) ToQuery() (handlers.PermissionImpactAnalysisQuery, error) {
	verb, err := toVerb(r.Verb)
	if err != nil {
		return handlers.PermissionImpactAnalysisQuery{}, err
	}
	return handlers.PermissionImpactAnalysisQuery{ResourceURI: r.ResourceURI, Verb: verb, Depth: r.Depth}, nil
}
