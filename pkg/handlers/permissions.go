package handlers

import (
	"context"
	"encoding/json"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// HandleGrantPermission implements GrantPermission (spec §4.5).
func HandleGrantPermission(ctx context.Context, h *HandlerContext, cmd GrantPermissionCmd) error {
	entity, ok := h.Graph.GetEntity(cmd.OwnerID)
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.OwnerID)
	}
	if cmd.Permission.URI == "" {
		return common.New(common.KindPermInvalid, "permission uri must be non-empty")
	}

	if err := h.Graph.AddPermission(cmd.OwnerID, cmd.Permission); err != nil {
		return err
	}

	now := h.now()
	metaJSON, _ := json.Marshal(cmd.Permission.Metadata)
	details, _ := json.Marshal(map[string]interface{}{
		"uri": cmd.Permission.URI, "verb": cmd.Permission.Verb, "effect": cmd.Permission.Effect,
	})

	mutation := persistence.Mutation{
		AddPermissions: []persistence.PermissionRecord{{
			OwnerID: cmd.OwnerID, URI: cmd.Permission.URI, Verb: string(cmd.Permission.Verb),
			Effect: string(cmd.Permission.Effect), Scheme: cmd.Permission.Scheme,
			ExpiresAt: cmd.Permission.ExpiresAt, MetadataJSON: metaJSON,
		}},
		AuditRows: []persistence.AuditRow{
			{EntityType: string(entity.Kind), EntityID: cmd.OwnerID, ChangeType: persistence.ChangeGrantPermission,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		if undoErr := h.Graph.RemovePermission(cmd.OwnerID, cmd.Permission, false); undoErr != nil {
			logger.SysErrorf("failed reverting granted permission after commit failure: %+v", undoErr)
		}
		return common.Wrap(common.KindPersistenceError, err, "committing permission grant")
	}
	return nil
}

// HandleRevokePermission implements RevokePermission, including the
// cascade-to-descendants flag (spec §4.5).
func HandleRevokePermission(ctx context.Context, h *HandlerContext, cmd RevokePermissionCmd) error {
	entity, ok := h.Graph.GetEntity(cmd.OwnerID)
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.OwnerID)
	}

	if err := h.Graph.RemovePermission(cmd.OwnerID, cmd.Permission, cmd.Cascade); err != nil {
		return err
	}

	now := h.now()
	details, _ := json.Marshal(map[string]interface{}{
		"uri": cmd.Permission.URI, "verb": cmd.Permission.Verb, "effect": cmd.Permission.Effect, "cascade": cmd.Cascade,
	})

	removals := []persistence.PermissionRecord{{
		OwnerID: cmd.OwnerID, URI: cmd.Permission.URI, Verb: string(cmd.Permission.Verb),
		Effect: string(cmd.Permission.Effect), Scheme: cmd.Permission.Scheme,
	}}
	if cmd.Cascade {
		// the graph has already removed the rule from every descendant
		// that held it; issue a matching delete scoped to that same
		// subtree so persistence cannot retain a stale copy. Deletes for
		// descendants that never held the rule are harmless no-ops.
		for _, id := range h.Graph.Descendants(cmd.OwnerID) {
			removals = append(removals, persistence.PermissionRecord{
				OwnerID: id, URI: cmd.Permission.URI, Verb: string(cmd.Permission.Verb),
				Effect: string(cmd.Permission.Effect), Scheme: cmd.Permission.Scheme,
			})
		}
	}

	mutation := persistence.Mutation{
		RemovePermissions: removals,
		AuditRows: []persistence.AuditRow{
			{EntityType: string(entity.Kind), EntityID: cmd.OwnerID, ChangeType: persistence.ChangeRevokePermission,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		// the permission is already gone from the graph; re-adding it
		// would reintroduce a revoked rule, so this surfaces as a
		// PersistenceError stating that graph and store disagree, for an
		// operator to reconcile, rather than silently re-granting access.
		return common.Wrap(common.KindPersistenceError, err, "committing permission revocation; graph and store now disagree")
	}
	return nil
}
