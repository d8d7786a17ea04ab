package handlers

import (
	"context"

	"github.com/lattice-acs/acs/pkg/common"
)

// Dispatch routes a Command to its handler, returning whatever result
// type that handler produces. This is the function wired into
// pkg/buffer.CommandBuffer as its Handler, so the buffer's consumer
// loop never needs to know about individual command shapes.
func Dispatch(ctx context.Context, h *HandlerContext, cmd Command) (interface{}, error) {
	switch c := cmd.(type) {
	case CreateEntityCmd:
		return HandleCreateEntity(ctx, h, c)
	case DeleteEntityCmd:
		return nil, HandleDeleteEntity(ctx, h, c)
	case AddEdgeCmd:
		return nil, HandleAddEdge(ctx, h, c)
	case RemoveEdgeCmd:
		return nil, HandleRemoveEdge(ctx, h, c)
	case GrantPermissionCmd:
		return nil, HandleGrantPermission(ctx, h, c)
	case RevokePermissionCmd:
		return nil, HandleRevokePermission(ctx, h, c)
	case BulkPermissionUpdateCmd:
		return HandleBulkPermissionUpdate(ctx, h, c)
	case RecordAuditEventCmd:
		return nil, HandleRecordAuditEvent(ctx, h, c)
	case PurgeOldAuditDataCmd:
		return HandlePurgeOldAuditData(ctx, h, c)
	case AccessViolationCmd:
		return HandleAccessViolation(ctx, h, c)
	case ValidatePermissionStructureCmd:
		return HandleValidatePermissionStructure(ctx, h, c)
	default:
		return nil, common.Newf(common.KindInvalidArgument, "unknown command type %T", cmd)
	}
}
