package handlers

import (
	"context"
	"encoding/json"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// BulkResult is BulkPermissionUpdateCmd's outcome (spec §4.5.1).
type BulkResult struct {
	Total         int
	Successful    int
	Failed        int
	Errors        []string
	CorrelationID string
}

// applyBulkOpToGraph performs one op's graph-level effect, returning an
// error if its precondition fails. It never touches persistence.
func applyBulkOpToGraph(h *HandlerContext, op BulkOp) error {
	switch op.Kind {
	case BulkOpGrant, BulkOpUpdate:
		if _, ok := h.Graph.GetEntity(op.EntityID); !ok {
			return common.Newf(common.KindNotFound, "entity %d not found", op.EntityID)
		}
		if op.Permission.URI == "" {
			return common.New(common.KindPermInvalid, "permission uri must be non-empty")
		}
		if op.Kind == BulkOpUpdate {
			// Update replaces any existing rule with the same key
			// fields before adding the new one, since domain.Permission
			// carries no separate identity to update in place.
			_ = h.Graph.RemovePermission(op.EntityID, op.Permission, false)
		}
		return h.Graph.AddPermission(op.EntityID, op.Permission)
	case BulkOpRevoke:
		if _, ok := h.Graph.GetEntity(op.EntityID); !ok {
			return common.Newf(common.KindNotFound, "entity %d not found", op.EntityID)
		}
		return h.Graph.RemovePermission(op.EntityID, op.Permission, false)
	default:
		return common.Newf(common.KindInvalidArgument, "unknown bulk op kind %q", op.Kind)
	}
}

// undoBulkOpInGraph reverses applyBulkOpToGraph's effect, used when a
// transactional batch must be rolled back after a later op fails.
func undoBulkOpInGraph(h *HandlerContext, op BulkOp) {
	var err error
	switch op.Kind {
	case BulkOpGrant, BulkOpUpdate:
		err = h.Graph.RemovePermission(op.EntityID, op.Permission, false)
	case BulkOpRevoke:
		err = h.Graph.AddPermission(op.EntityID, op.Permission)
	}
	if err != nil {
		logger.SysErrorf("failed undoing bulk op %+v during rollback: %+v", op, err)
	}
}

func validateBulkOp(h *HandlerContext, op BulkOp) error {
	if _, ok := h.Graph.GetEntity(op.EntityID); !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", op.EntityID)
	}
	if (op.Kind == BulkOpGrant || op.Kind == BulkOpUpdate) && op.Permission.URI == "" {
		return common.New(common.KindPermInvalid, "permission uri must be non-empty")
	}
	return nil
}

// HandleBulkPermissionUpdate implements the algorithm of spec §4.5.1.
func HandleBulkPermissionUpdate(ctx context.Context, h *HandlerContext, cmd BulkPermissionUpdateCmd) (BulkResult, error) {
	total := len(cmd.Ops)

	if cmd.ValidateBeforeExecution {
		var errMsgs []string
		for _, op := range cmd.Ops {
			if err := validateBulkOp(h, op); err != nil {
				errMsgs = append(errMsgs, err.Error())
			}
		}
		if len(errMsgs) > 0 {
			result := BulkResult{Total: total, Successful: 0, Failed: total, Errors: errMsgs, CorrelationID: h.CorrelationID}
			h.writeBulkAggregateAudit(ctx, result, false)
			return result, nil
		}
	}

	var appliedOps []BulkOp
	var addPerms []persistence.PermissionRecord
	var removePerms []persistence.PermissionRecord
	var errMsgs []string
	successCount := 0

	for _, op := range cmd.Ops {
		if err := applyBulkOpToGraph(h, op); err != nil {
			errMsgs = append(errMsgs, err.Error())
			if cmd.StopOnFirstError {
				break
			}
			continue
		}

		appliedOps = append(appliedOps, op)
		successCount++

		record := persistence.PermissionRecord{
			OwnerID: op.EntityID, URI: op.Permission.URI, Verb: string(op.Permission.Verb),
			Effect: string(op.Permission.Effect), Scheme: op.Permission.Scheme, ExpiresAt: op.Permission.ExpiresAt,
		}
		switch op.Kind {
		case BulkOpGrant, BulkOpUpdate:
			addPerms = append(addPerms, record)
		case BulkOpRevoke:
			removePerms = append(removePerms, record)
		}
	}

	anyFailure := len(errMsgs) > 0

	if cmd.ExecuteInTransaction && anyFailure {
		for _, op := range appliedOps {
			undoBulkOpInGraph(h, op)
		}
		result := BulkResult{Total: total, Successful: 0, Failed: total, Errors: errMsgs, CorrelationID: h.CorrelationID}
		h.writeBulkAggregateAudit(ctx, result, false)
		return result, nil
	}

	mutation := persistence.Mutation{
		AddPermissions:    addPerms,
		RemovePermissions: removePerms,
	}

	now := h.now()
	for _, op := range appliedOps {
		details, _ := json.Marshal(map[string]interface{}{"kind": op.Kind, "uri": op.Permission.URI, "verb": op.Permission.Verb})
		mutation.AuditRows = append(mutation.AuditRows, persistence.AuditRow{
			EntityID: op.EntityID, ChangeType: bulkOpChangeType(op.Kind), ChangedBy: h.actor(),
			ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID,
		})
	}

	failed := total - successCount
	aggregateDetails, _ := json.Marshal(map[string]interface{}{
		"total": total, "successful": successCount, "failed": failed, "errors": errMsgs, "success": failed == 0,
	})
	mutation.AuditRows = append(mutation.AuditRows, persistence.AuditRow{
		EntityType: "Bulk", ChangeType: persistence.ChangeBulkUpdate, ChangedBy: h.actor(),
		ChangeDate: now, ChangeDetailsRaw: aggregateDetails, CorrelationID: h.CorrelationID,
	})

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		for _, op := range appliedOps {
			undoBulkOpInGraph(h, op)
		}
		return BulkResult{Total: total, Successful: 0, Failed: total, Errors: append(errMsgs, err.Error()), CorrelationID: h.CorrelationID},
			common.Wrap(common.KindPersistenceError, err, "committing bulk permission update")
	}

	return BulkResult{Total: total, Successful: successCount, Failed: failed, Errors: errMsgs, CorrelationID: h.CorrelationID}, nil
}

func bulkOpChangeType(kind BulkOpKind) persistence.ChangeType {
	if kind == BulkOpRevoke {
		return persistence.ChangeRevokePermission
	}
	return persistence.ChangeGrantPermission
}

// writeBulkAggregateAudit records a bulk failure that leaves the graph
// unchanged (validation-pass failure, or a transactional batch whose
// applied ops were undone), so only the summary row is written.
func (h *HandlerContext) writeBulkAggregateAudit(ctx context.Context, result BulkResult, success bool) {
	details, _ := json.Marshal(map[string]interface{}{
		"total": result.Total, "successful": result.Successful, "failed": result.Failed,
		"errors": result.Errors, "success": success,
	})
	mutation := persistence.Mutation{
		AuditRows: []persistence.AuditRow{{
			EntityType: "Bulk", ChangeType: persistence.ChangeBulkUpdate, ChangedBy: h.actor(),
			ChangeDate: h.now(), ChangeDetailsRaw: details, CorrelationID: h.CorrelationID,
		}},
	}
	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		logger.SysErrorf("failed writing bulk-update aggregate audit row: %+v", err)
	}
}
