package handlers

import (
	"context"
	"encoding/json"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// HandleCreateEntity implements CreateUser/Group/Role (spec §4.5): it
// stages the persistence write, commits, and only then mutates the
// graph, per the atomic application rule of spec §7.
func HandleCreateEntity(ctx context.Context, h *HandlerContext, cmd CreateEntityCmd) (domain.Entity, error) {
	if cmd.Name == "" {
		return domain.Entity{}, common.New(common.KindNameEmpty, "entity name must be non-empty")
	}
	if _, exists := h.Graph.GetEntity(cmd.ID); exists {
		return domain.Entity{}, common.Newf(common.KindIdConflict, "entity %d already exists", cmd.ID)
	}

	now := h.now()
	details, _ := json.Marshal(map[string]interface{}{"id": cmd.ID, "kind": cmd.Kind, "name": cmd.Name})

	mutation := persistence.Mutation{
		UpsertEntities: []persistence.EntityRecord{
			{ID: cmd.ID, Kind: string(cmd.Kind), Name: cmd.Name, CreatedAt: now, UpdatedAt: now},
		},
		AuditRows: []persistence.AuditRow{
			{EntityType: string(cmd.Kind), EntityID: cmd.ID, ChangeType: persistence.ChangeCreate,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		return domain.Entity{}, common.Wrap(common.KindPersistenceError, err, "committing entity creation")
	}

	if err := h.Graph.AddEntity(domain.Entity{ID: cmd.ID, Kind: cmd.Kind, Name: cmd.Name}); err != nil {
		logger.SysErrorf("persisted entity %d but graph.AddEntity failed: %+v", cmd.ID, err)
		return domain.Entity{}, common.Wrap(common.KindInternal, err, "graph out of sync with persistence")
	}

	entity, _ := h.Graph.GetEntity(cmd.ID)
	return entity, nil
}

// HandleDeleteEntity implements DeleteEntity (spec §4.5): detaches
// every edge, drops owned permissions, and removes the entity.
func HandleDeleteEntity(ctx context.Context, h *HandlerContext, cmd DeleteEntityCmd) error {
	entity, ok := h.Graph.GetEntity(cmd.ID)
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", cmd.ID)
	}

	now := h.now()
	details, _ := json.Marshal(map[string]interface{}{"id": cmd.ID, "kind": entity.Kind, "name": entity.Name})

	mutation := persistence.Mutation{
		DeleteEntityIDs: []int64{cmd.ID},
		AuditRows: []persistence.AuditRow{
			{EntityType: string(entity.Kind), EntityID: cmd.ID, ChangeType: persistence.ChangeDelete,
				ChangedBy: h.actor(), ChangeDate: now, ChangeDetailsRaw: details, CorrelationID: h.CorrelationID},
		},
	}

	if err := h.Store.Apply(ctx, h.TenantID, mutation); err != nil {
		return common.Wrap(common.KindPersistenceError, err, "committing entity deletion")
	}

	if err := h.Graph.RemoveEntity(cmd.ID); err != nil {
		logger.SysErrorf("persisted deletion of %d but graph.RemoveEntity failed: %+v", cmd.ID, err)
		return common.Wrap(common.KindInternal, err, "graph out of sync with persistence")
	}
	return nil
}
