// Package graph implements the in-memory entity graph (spec C2): the
// sole owner of a tenant's entities, their hierarchy edges, and their
// directly-owned permissions. Every other component holds only ids and
// looks entities up through a Graph.
package graph

import (
	"sync"
	"time"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
)

var logger = logging.GetLogger("graph")

// Graph holds one tenant's entity population and hierarchy indices. The
// zero value is not usable; construct with New.
type Graph struct {
	mu       sync.RWMutex
	tenantID string

	entities map[int64]*domain.Entity

	// parents[child] is the set of ids that directly parent child;
	// children[parent] is its mirror, maintained in lockstep (spec
	// invariant 1).
	parents  map[int64]map[int64]struct{}
	children map[int64]map[int64]struct{}
}

// New returns an empty Graph for the given tenant.
func New(tenantID string) *Graph {
	return &Graph{
		tenantID: tenantID,
		entities: make(map[int64]*domain.Entity),
		parents:  make(map[int64]map[int64]struct{}),
		children: make(map[int64]map[int64]struct{}),
	}
}

// AddEntity inserts a new entity. Fails with IdConflict if the id is
// already present (spec §4.5 CreateUser/Group/Role precondition).
func (g *Graph) AddEntity(e domain.Entity) error {
	if e.Name == "" {
		return common.New(common.KindNameEmpty, "entity name must be non-empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.entities[e.ID]; exists {
		return common.Newf(common.KindIdConflict, "entity %d already exists", e.ID)
	}

	stored := e.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	g.entities[e.ID] = &stored
	g.parents[e.ID] = make(map[int64]struct{})
	g.children[e.ID] = make(map[int64]struct{})
	return nil
}

// RemoveEntity deletes an entity, detaching every edge it participates
// in and dropping its owned permissions (spec §4.5 DeleteEntity).
func (g *Graph) RemoveEntity(id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[id]; !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", id)
	}

	for parentID := range g.parents[id] {
		delete(g.children[parentID], id)
	}
	for childID := range g.children[id] {
		delete(g.parents[childID], id)
	}

	delete(g.parents, id)
	delete(g.children, id)
	delete(g.entities, id)
	return nil
}

// GetEntity returns a cloned snapshot of the entity, or false if absent.
func (g *Graph) GetEntity(id int64) (domain.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[id]
	if !ok {
		return domain.Entity{}, false
	}
	return e.Clone(), true
}

// GetUser returns the entity if present and of Kind User.
func (g *Graph) GetUser(id int64) (domain.Entity, bool) { return g.getKind(id, domain.KindUser) }

// GetGroup returns the entity if present and of Kind Group.
func (g *Graph) GetGroup(id int64) (domain.Entity, bool) { return g.getKind(id, domain.KindGroup) }

// GetRole returns the entity if present and of Kind Role.
func (g *Graph) GetRole(id int64) (domain.Entity, bool) { return g.getKind(id, domain.KindRole) }

func (g *Graph) getKind(id int64, kind domain.Kind) (domain.Entity, bool) {
	e, ok := g.GetEntity(id)
	if !ok || e.Kind != kind {
		return domain.Entity{}, false
	}
	return e, true
}

// Users returns a snapshot of every User entity.
func (g *Graph) Users() []domain.Entity { return g.byKind(domain.KindUser) }

// Groups returns a snapshot of every Group entity.
func (g *Graph) Groups() []domain.Entity { return g.byKind(domain.KindGroup) }

// Roles returns a snapshot of every Role entity.
func (g *Graph) Roles() []domain.Entity { return g.byKind(domain.KindRole) }

func (g *Graph) byKind(kind domain.Kind) []domain.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		if e.Kind == kind {
			out = append(out, e.Clone())
		}
	}
	return out
}

// EntityCount returns the total number of entities held, for the
// acs.graph.entity_count gauge (spec §6).
func (g *Graph) EntityCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// Ancestors returns every id transitively reachable from id via
// parents edges (spec §4.2 Ancestors). The result has no particular
// order and contains no duplicates.
func (g *Graph) Ancestors(id int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ancestorsLocked(id)
}

func (g *Graph) ancestorsLocked(id int64) []int64 {
	visited := make(map[int64]struct{})
	var out []int64

	var walk func(cur int64)
	walk = func(cur int64) {
		for p := range g.parents[cur] {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			out = append(out, p)
			walk(p)
		}
	}
	walk(id)
	return out
}

// Descendants returns every id transitively reachable from id via
// children edges (the downward mirror of Ancestors), for cascade
// operations that must touch only id's subtree (spec §4.5
// RevokePermission cascade flag).
func (g *Graph) Descendants(id int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.descendantsLocked(id)
}

func (g *Graph) descendantsLocked(id int64) []int64 {
	visited := make(map[int64]struct{})
	var out []int64

	var walk func(cur int64)
	walk = func(cur int64) {
		for c := range g.children[cur] {
			if _, seen := visited[c]; seen {
				continue
			}
			visited[c] = struct{}{}
			out = append(out, c)
			walk(c)
		}
	}
	walk(id)
	return out
}

// CandidatePermissions collects every permission owned by id and by its
// transitive ancestors, for domain.Resolve to filter and judge (spec
// §4.1 step 1).
func (g *Graph) CandidatePermissions(id int64) ([]domain.Permission, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[id]
	if !ok {
		return nil, common.Newf(common.KindNotFound, "entity %d not found", id)
	}

	var perms []domain.Permission
	perms = append(perms, e.Permissions...)

	for _, ancestorID := range g.ancestorsLocked(id) {
		if a, ok := g.entities[ancestorID]; ok {
			perms = append(perms, a.Permissions...)
		}
	}
	return perms, nil
}

// AddPermission appends a permission to an entity's owned set (spec
// §4.5 GrantPermission).
func (g *Graph) AddPermission(ownerID int64, perm domain.Permission) error {
	if perm.URI == "" {
		return common.New(common.KindPermInvalid, "permission uri must be non-empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[ownerID]
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", ownerID)
	}

	for _, existing := range e.Permissions {
		if existing.Equal(perm) {
			return common.New(common.KindAlreadyAssigned, "permission already granted")
		}
	}

	e.Permissions = append(e.Permissions, perm)
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// RemovePermission removes a matching permission from owner's set,
// optionally cascading to every descendant that holds the identical
// rule (spec §4.5 RevokePermission cascade flag).
func (g *Graph) RemovePermission(ownerID int64, perm domain.Permission, cascade bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.removeOwnPermissionLocked(ownerID, perm); err != nil {
		return err
	}

	if !cascade {
		return nil
	}

	for _, id := range g.descendantsLocked(ownerID) {
		_ = g.removeOwnPermissionLocked(id, perm)
	}
	return nil
}

func (g *Graph) removeOwnPermissionLocked(ownerID int64, perm domain.Permission) error {
	e, ok := g.entities[ownerID]
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", ownerID)
	}

	idx := -1
	for i, existing := range e.Permissions {
		if existing.Equal(perm) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return common.New(common.KindNotFound, "permission not present")
	}

	e.Permissions = append(e.Permissions[:idx], e.Permissions[idx+1:]...)
	e.UpdatedAt = time.Now().UTC()
	return nil
}
