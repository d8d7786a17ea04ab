// Package handlers implements one function per command/query kind
// named in spec §4.5: validate, execute against the entity graph, and
// commit through persistence. Handlers are stateless; all state lives
// in the HandlerContext passed to each call.
package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/cache"
	"github.com/lattice-acs/acs/pkg/graph"
	"github.com/lattice-acs/acs/pkg/persistence"
)

var logger = logging.GetLogger("handlers")

// HandlerContext bundles everything a handler needs, mirroring the
// teacher's pattern of passing a small request-scoped struct into each
// evaluation phase rather than reaching for package-level globals.
type HandlerContext struct {
	Graph    *graph.Graph
	Store    persistence.Store
	TenantID string

	// Cache is the optional C7 read-through cache (spec §4.7). Query
	// execution consults it before the graph and populates it on miss;
	// nil means queries go straight to the graph, as in a tenant worker
	// with caching disabled.
	Cache cache.EntityCache

	// Clock is overridable in tests; defaults to time.Now in
	// NewHandlerContext.
	Clock func() time.Time

	ActorID       string
	CorrelationID string
}

// NewHandlerContext builds a HandlerContext with a real clock and a
// generated correlation id if the caller didn't supply one.
func NewHandlerContext(g *graph.Graph, store persistence.Store, tenantID, actorID, correlationID string) *HandlerContext {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &HandlerContext{
		Graph:         g,
		Store:         store,
		TenantID:      tenantID,
		Clock:         func() time.Time { return time.Now().UTC() },
		ActorID:       actorID,
		CorrelationID: correlationID,
	}
}

func (h *HandlerContext) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}

func (h *HandlerContext) actor() string {
	if h.ActorID == "" {
		return "system"
	}
	return h.ActorID
}
