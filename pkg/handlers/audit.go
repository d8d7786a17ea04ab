package handlers

import (
	"context"
	"encoding/json"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// HandleRecordAuditEvent appends a structurally-valid audit row outside
// the normal entity-mutating flow (spec §4.5 RecordAuditEvent).
func HandleRecordAuditEvent(ctx context.Context, h *HandlerContext, cmd RecordAuditEventCmd) error {
	if cmd.EntityType == "" || cmd.ChangeType == "" {
		return common.New(common.KindAuditInvalid, "entityType and changeType are required")
	}

	details, err := json.Marshal(cmd.ChangeDetails)
	if err != nil {
		return common.Wrap(common.KindAuditInvalid, err, "marshalling change details")
	}

	mutation := persistence.Mutation{
		AuditRows: []persistence.AuditRow{{
			EntityType: cmd.EntityType, EntityID: cmd.EntityID, ChangeType: cmd.ChangeType,
			ChangedBy: h.actor(), ChangeDate: h.now(), ChangeDetailsRaw: details, CorrelationID: h.CorrelationID,
		}},
	}
	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "recording audit event")
	}
	return nil
}

// HandlePurgeOldAuditData implements PurgeOldAuditData (spec §4.5): a
// bounded deletion subject to the caller-supplied retention exception.
func HandlePurgeOldAuditData(ctx context.Context, h *HandlerContext, cmd PurgeOldAuditDataCmd) (int, error) {
	if cmd.OlderThan.After(h.now()) {
		return 0, common.New(common.KindInvalidArgument, "olderThan must not be in the future")
	}

	removed, err := h.Store.PurgeAuditOlderThan(ctx, h.TenantID, cmd.OlderThan, cmd.Except)
	if err != nil {
		return 0, common.Wrap(common.KindPersistenceError, err, "purging audit data")
	}
	return removed, nil
}

// HandleAccessViolation implements AccessViolation (spec §4.5): it
// always writes an audit row, and reports whether the request should
// be blocked based on severity.
func HandleAccessViolation(ctx context.Context, h *HandlerContext, cmd AccessViolationCmd) (bool, error) {
	details, _ := json.Marshal(map[string]interface{}{
		"resourceId": cmd.ResourceID, "severity": cmd.Severity, "action": cmd.Action,
	})

	mutation := persistence.Mutation{
		AuditRows: []persistence.AuditRow{{
			EntityType: "User", EntityID: cmd.UserID, ChangeType: persistence.ChangeSecurityViolation,
			ChangedBy: h.actor(), ChangeDate: h.now(), ChangeDetailsRaw: details, CorrelationID: h.CorrelationID,
		}},
	}
	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		return false, common.Wrap(common.KindPersistenceError, err, "recording access violation")
	}

	block := cmd.Severity == SeverityHigh || cmd.Severity == SeverityCritical
	return block, nil
}

// ValidationIssue is one problem ValidatePermissionStructure found.
type ValidationIssue struct {
	Permission domain.Permission
	Reason     string
}

// HandleValidatePermissionStructure implements
// ValidatePermissionStructure (spec §4.5): it reports malformed
// permissions (empty URI, unknown verb) and, if Fix is set, removes
// them.
func HandleValidatePermissionStructure(ctx context.Context, h *HandlerContext, cmd ValidatePermissionStructureCmd) ([]ValidationIssue, error) {
	entity, ok := h.Graph.GetEntity(cmd.EntityID)
	if !ok {
		return nil, common.Newf(common.KindNotFound, "entity %d not found", cmd.EntityID)
	}

	var issues []ValidationIssue
	for _, p := range entity.Permissions {
		if p.URI == "" {
			issues = append(issues, ValidationIssue{Permission: p, Reason: "empty uri"})
			continue
		}
		if !validVerb(p.Verb) {
			issues = append(issues, ValidationIssue{Permission: p, Reason: "unrecognised verb"})
		}
	}

	if cmd.Fix {
		for _, issue := range issues {
			if err := h.Graph.RemovePermission(cmd.EntityID, issue.Permission, false); err != nil {
				logger.SysErrorf("failed to auto-fix permission on entity %d: %+v", cmd.EntityID, err)
			}
		}
	}
	return issues, nil
}

func validVerb(v domain.Verb) bool {
	switch v {
	case domain.VerbGet, domain.VerbPost, domain.VerbPut, domain.VerbPatch, domain.VerbDelete,
		domain.VerbHead, domain.VerbOptions, domain.VerbConnect, domain.VerbTrace:
		return true
	default:
		return false
	}
}
