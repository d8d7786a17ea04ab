package graph

import (
	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
)

// AddEdge links parentID over childID, validating kind legality and, for
// Group→Group edges, acyclicity (spec §4.2 AddEdge). Both sides of the
// index are mutated together so the mutuality invariant always holds.
func (g *Graph) AddEdge(parentID, childID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.entities[parentID]
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", parentID)
	}
	child, ok := g.entities[childID]
	if !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", childID)
	}

	if !domain.LegalEdgeKind(parent.Kind, child.Kind) {
		return common.Newf(common.KindEdgeKindError, "%s cannot parent %s", parent.Kind, child.Kind)
	}

	if _, already := g.parents[childID][parentID]; already {
		return common.New(common.KindAlreadyAssigned, "edge already present")
	}

	if domain.CyclePossible(parent.Kind, child.Kind) && g.reachableLocked(childID, parentID) {
		return common.Newf(common.KindCycleError, "adding edge %d->%d would create a cycle", parentID, childID)
	}

	g.parents[childID][parentID] = struct{}{}
	g.children[parentID][childID] = struct{}{}
	return nil
}

// RemoveEdge detaches childID from parentID on both sides of the index.
func (g *Graph) RemoveEdge(parentID, childID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[parentID]; !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", parentID)
	}
	if _, ok := g.entities[childID]; !ok {
		return common.Newf(common.KindNotFound, "entity %d not found", childID)
	}

	if _, present := g.parents[childID][parentID]; !present {
		return common.New(common.KindNotFound, "edge not present")
	}

	delete(g.parents[childID], parentID)
	delete(g.children[parentID], childID)
	return nil
}

// reachableLocked performs a DFS from start upward through parents
// edges, reporting whether target is reachable. Used to detect that
// adding parentID->childID would close a cycle: called as
// reachableLocked(childID, parentID), i.e. "can we already walk from
// the prospective child back up to the prospective parent". Caller
// must hold g.mu.
func (g *Graph) reachableLocked(start, target int64) bool {
	if start == target {
		return true
	}

	visited := make(map[int64]struct{})
	stack := []int64{start}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}

		for p := range g.parents[cur] {
			if p == target {
				return true
			}
			stack = append(stack, p)
		}
	}
	return false
}
