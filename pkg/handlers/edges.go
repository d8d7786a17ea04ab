package handlers

import (
	"context"
	"encoding/json"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/graph"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// HandleAddEdge implements AddUserToGroup / AddGroupToGroup /
// AddRoleToGroup / AddUserToRole (spec §4.5): the graph validates kind
// legality and, for Group→Group edges, acyclicity, before anything is
// persisted, so a rejected edge never reaches the audit log.
func HandleAddEdge(ctx context.Context, h *HandlerContext, cmd AddEdgeCmd) error {
	parent, ok := h.Graph.GetEntity(cmd.ParentID)
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.ParentID)
	}
	if _, ok := h.Graph.GetEntity(cmd.ChildID); !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.ChildID)
	}

	// a trial graph isn't used here: AddEdge itself does not mutate on
	// failure, so we can validate by attempting it, roll back on any
	// error, and only persist once it actually succeeded.
	if err := h.Graph.AddEdge(cmd.ParentID, cmd.ChildID); err != nil {
		return err
	}

	now := h.now()
	details, _ := json.Marshal(map[string]interface{}{"parentId": cmd.ParentID, "childId": cmd.ChildID})

	mutation := persistence.Mutation{
		AddEdges: []graph.EdgeRecord{{ParentID: cmd.ParentID, ChildID: cmd.ChildID}},
		AuditRows: []persistence.AuditRow{
			{EntityType: string(parent.Kind), EntityID: cmd.ParentID, ChangeType: persistence.ChangeAddEdge,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		// persistence failed after the graph was already mutated: undo
		// the in-memory edge to preserve the atomic application rule.
		if undoErr := h.Graph.RemoveEdge(cmd.ParentID, cmd.ChildID); undoErr != nil {
			logger.SysErrorf("failed reverting graph edge %d->%d after commit failure: %+v", cmd.ParentID, cmd.ChildID, undoErr)
		}
		return common.Wrap(common.KindPersistenceError, err, "committing edge addition")
	}
	return nil
}

// HandleRemoveEdge implements the RemoveX counterparts of AddEdgeCmd.
func HandleRemoveEdge(ctx context.Context, h *HandlerContext, cmd RemoveEdgeCmd) error {
	parent, ok := h.Graph.GetEntity(cmd.ParentID)
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.ParentID)
	}

	if err := h.Graph.RemoveEdge(cmd.ParentID, cmd.ChildID); err != nil {
		return err
	}

	now := h.now()
	details, _ := json.Marshal(map[string]interface{}{"parentId": cmd.ParentID, "childId": cmd.ChildID})

	mutation := persistence.Mutation{
		RemoveEdges: []graph.EdgeRecord{{ParentID: cmd.ParentID, ChildID: cmd.ChildID}},
		AuditRows: []persistence.AuditRow{
			{EntityType: string(parent.Kind), EntityID: cmd.ParentID, ChangeType: persistence.ChangeRemoveEdge,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		if undoErr := h.Graph.AddEdge(cmd.ParentID, cmd.ChildID); undoErr != nil {
			logger.SysErrorf("failed restoring graph edge %d->%d after commit failure: %+v", cmd.ParentID, cmd.ChildID, undoErr)
		}
		return common.Wrap(common.KindPersistenceError, err, "committing edge removal")
	}
	return nil
}
