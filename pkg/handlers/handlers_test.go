package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-acs/acs/pkg/cache"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/graph"
	"github.com/lattice-acs/acs/pkg/persistence"
)

func newTestHandlerContext(t *testing.T) *HandlerContext {
	t.Helper()

	store, err := persistence.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, persistence.NewMigrator(store.DB(), "sqlite").Init(context.Background()))

	return NewHandlerContext(graph.New("tenant-a"), store, "tenant-a", "tester", "")
}

// TestInheritedGrantViaGroup is spec §8 scenario S1.
func TestInheritedGrantViaGroup(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"})
	require.NoError(t, err)
	_, err = HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 10, Kind: domain.KindGroup, Name: "devs"})
	require.NoError(t, err)
	require.NoError(t, HandleAddEdge(ctx, h, AddEdgeCmd{ParentID: 10, ChildID: 1}))
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    10,
		Permission: domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant},
	}))

	allowed, err := ExecuteCheckPermission(h, CheckPermissionQuery{EntityID: 1, URI: "/api/projects", Verb: domain.VerbGet})
	require.NoError(t, err)
	require.True(t, allowed)
}

// TestDenyOverridesInheritedGrant is spec §8 scenario S2.
func TestDenyOverridesInheritedGrant(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"})
	require.NoError(t, err)
	_, err = HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 10, Kind: domain.KindGroup, Name: "devs"})
	require.NoError(t, err)
	require.NoError(t, HandleAddEdge(ctx, h, AddEdgeCmd{ParentID: 10, ChildID: 1}))
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    10,
		Permission: domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant},
	}))
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    1,
		Permission: domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectDeny},
	}))

	allowed, err := ExecuteCheckPermission(h, CheckPermissionQuery{EntityID: 1, URI: "/api/projects", Verb: domain.VerbGet})
	require.NoError(t, err)
	require.False(t, allowed)
}

// TestWildcardSpecificity is spec §8 scenario S4.
func TestWildcardSpecificity(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"})
	require.NoError(t, err)
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    1,
		Permission: domain.Permission{URI: "/api/*", Verb: domain.VerbGet, Effect: domain.EffectGrant},
	}))
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    1,
		Permission: domain.Permission{URI: "/api/secret", Verb: domain.VerbGet, Effect: domain.EffectDeny},
	}))

	denied, err := ExecuteCheckPermission(h, CheckPermissionQuery{EntityID: 1, URI: "/api/secret", Verb: domain.VerbGet})
	require.NoError(t, err)
	require.False(t, denied)

	allowed, err := ExecuteCheckPermission(h, CheckPermissionQuery{EntityID: 1, URI: "/api/public", Verb: domain.VerbGet})
	require.NoError(t, err)
	require.True(t, allowed)
}

// TestBulkPermissionUpdateTransactionalPartialFailure is spec §8 scenario S5.
func TestBulkPermissionUpdateTransactionalPartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"})
	require.NoError(t, err)

	result, err := HandleBulkPermissionUpdate(ctx, h, BulkPermissionUpdateCmd{
		Ops: []BulkOp{
			{Kind: BulkOpGrant, EntityID: 1, Permission: domain.Permission{URI: "/api/a", Verb: domain.VerbGet, Effect: domain.EffectGrant}},
			{Kind: BulkOpGrant, EntityID: 999, Permission: domain.Permission{URI: "/api/b", Verb: domain.VerbGet, Effect: domain.EffectGrant}},
		},
		StopOnFirstError:     false,
		ExecuteInTransaction: true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Successful)
	require.Equal(t, 2, result.Failed)

	perms, err := ExecuteGetEntityPermissions(h, GetEntityPermissionsQuery{EntityID: 1})
	require.NoError(t, err)
	require.Empty(t, perms)
}

// TestAddEdgeRejectsCycleLeavesGraphUnchanged is spec §8 scenario S3 at
// the handler layer (pkg/graph has its own lower-level cycle test).
func TestAddEdgeRejectsCycleLeavesGraphUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 20, Kind: domain.KindGroup, Name: "a"})
	require.NoError(t, err)
	_, err = HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 21, Kind: domain.KindGroup, Name: "b"})
	require.NoError(t, err)

	require.NoError(t, HandleAddEdge(ctx, h, AddEdgeCmd{ParentID: 20, ChildID: 21}))
	err = HandleAddEdge(ctx, h, AddEdgeCmd{ParentID: 21, ChildID: 20})
	require.Error(t, err)

	require.Contains(t, h.Graph.Ancestors(21), int64(20))
	require.NotContains(t, h.Graph.Ancestors(20), int64(21))
}

// TestCheckPermissionReadsThroughCache confirms ExecuteCheckPermission
// actually consults the C7 cache (spec §4.7) rather than only writing
// to it: the call records a miss and populates the cache, and the
// test's own lookup that follows is a hit, so the statistics show one
// miss and one hit.
func TestCheckPermissionReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlerContext(t)
	h.Cache = cache.NewMemoryCache("tenant-a", cache.DefaultEntityTTL, cache.DefaultPermissionTTL)

	_, err := HandleCreateEntity(ctx, h, CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"})
	require.NoError(t, err)
	require.NoError(t, HandleGrantPermission(ctx, h, GrantPermissionCmd{
		OwnerID:    1,
		Permission: domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant},
	}))

	allowed, err := ExecuteCheckPermission(h, CheckPermissionQuery{EntityID: 1, URI: "/api/projects", Verb: domain.VerbGet})
	require.NoError(t, err)
	require.True(t, allowed)

	cached, ok := h.Cache.GetEntityPermissions(1)
	require.True(t, ok, "ExecuteCheckPermission must populate the cache on miss")
	require.Len(t, cached, 1)

	stats := h.Cache.Statistics()
	require.Equal(t, uint64(1), stats.TotalHits)
	require.Equal(t, uint64(1), stats.TotalMisses)
}
