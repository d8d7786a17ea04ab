package graph

import (
	"testing"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	return New("tenant-test")
}

func mustAddEntity(t *testing.T, g *Graph, id int64, kind domain.Kind, name string) {
	t.Helper()
	require.NoError(t, g.AddEntity(domain.Entity{ID: id, Kind: kind, Name: name}))
}

func TestAddEntityRejectsDuplicateID(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 1, domain.KindUser, "alice")

	err := g.AddEntity(domain.Entity{ID: 1, Kind: domain.KindUser, Name: "alice2"})
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindIdConflict, "")))
}

func TestAddEntityRejectsEmptyName(t *testing.T) {
	g := newTestGraph(t)
	err := g.AddEntity(domain.Entity{ID: 1, Kind: domain.KindUser, Name: ""})
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindNameEmpty, "")))
}

func TestAddEdgeIsMutual(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 1, domain.KindUser, "alice")

	require.NoError(t, g.AddEdge(10, 1))

	ancestors := g.Ancestors(1)
	assert.Contains(t, ancestors, int64(10))
}

func TestAddEdgeRejectsIllegalKindPair(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	mustAddEntity(t, g, 2, domain.KindUser, "bob")

	err := g.AddEdge(1, 2)
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindEdgeKindError, "")))
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	// mirrors scenario S3.
	g := newTestGraph(t)
	mustAddEntity(t, g, 20, domain.KindGroup, "a")
	mustAddEntity(t, g, 21, domain.KindGroup, "b")

	require.NoError(t, g.AddEdge(20, 21))

	err := g.AddEdge(21, 20)
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindCycleError, "")))

	// graph unchanged: 20 must not be a child of 21.
	assert.NotContains(t, g.Ancestors(20), int64(21))
}

func TestRemoveEdgeIsMutual(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	require.NoError(t, g.AddEdge(10, 1))

	require.NoError(t, g.RemoveEdge(10, 1))
	assert.NotContains(t, g.Ancestors(1), int64(10))
}

func TestRemoveEntityDetachesEdges(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	require.NoError(t, g.AddEdge(10, 1))

	require.NoError(t, g.RemoveEntity(10))

	_, ok := g.GetGroup(10)
	assert.False(t, ok)
	assert.Empty(t, g.Ancestors(1))
}

func TestAncestorsTransitive(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 20, domain.KindGroup, "engineering")
	require.NoError(t, g.AddEdge(10, 1))
	require.NoError(t, g.AddEdge(20, 10))

	ancestors := g.Ancestors(1)
	assert.ElementsMatch(t, []int64{10, 20}, ancestors)
}

func TestCandidatePermissionsIncludesAncestors(t *testing.T) {
	// mirrors scenario S1.
	g := newTestGraph(t)
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	require.NoError(t, g.AddEdge(10, 1))
	require.NoError(t, g.AddPermission(10, domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant}))

	perms, err := g.CandidatePermissions(1)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "/api/projects", perms[0].URI)
}

func TestAddPermissionRejectsDuplicate(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	perm := domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant}
	require.NoError(t, g.AddPermission(1, perm))

	err := g.AddPermission(1, perm)
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindAlreadyAssigned, "")))
}

func TestRemovePermissionCascadeScopedToDescendants(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	mustAddEntity(t, g, 2, domain.KindUser, "bob")
	require.NoError(t, g.AddEdge(10, 1))

	perm := domain.Permission{URI: "/api/projects", Verb: domain.VerbGet, Effect: domain.EffectGrant}
	require.NoError(t, g.AddPermission(10, perm))
	require.NoError(t, g.AddPermission(1, perm))
	require.NoError(t, g.AddPermission(2, perm))

	require.NoError(t, g.RemovePermission(10, perm, true))

	e1, _ := g.GetEntity(1)
	assert.Empty(t, e1.Permissions, "alice is devs' descendant; cascade must strip her copy")

	e2, _ := g.GetEntity(2)
	assert.NotEmpty(t, e2.Permissions, "bob has no edge to devs; cascade must not touch him")
}

func TestDescendantsTransitive(t *testing.T) {
	g := newTestGraph(t)
	mustAddEntity(t, g, 20, domain.KindGroup, "engineering")
	mustAddEntity(t, g, 10, domain.KindGroup, "devs")
	mustAddEntity(t, g, 1, domain.KindUser, "alice")
	require.NoError(t, g.AddEdge(20, 10))
	require.NoError(t, g.AddEdge(10, 1))

	assert.ElementsMatch(t, []int64{10, 1}, g.Descendants(20))
	assert.ElementsMatch(t, []int64{1}, g.Descendants(10))
	assert.Empty(t, g.Descendants(1))
}

func TestLoadPopulatesGraphAndReportsPhases(t *testing.T) {
	g := newTestGraph(t)
	snap := Snapshot{
		Entities: []domain.Entity{
			{ID: 1, Kind: domain.KindUser, Name: "alice"},
			{ID: 10, Kind: domain.KindGroup, Name: "devs"},
		},
		Edges: []EdgeRecord{{ParentID: 10, ChildID: 1}},
	}

	stats := g.Load(snap)
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Contains(t, stats.PhaseDurations, PhaseBulkEntityLoading)
	assert.Contains(t, stats.PhaseDurations, PhaseRelationshipBuild)

	assert.Contains(t, g.Ancestors(1), int64(10))
}
