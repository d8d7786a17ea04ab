package supervisor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/buffer"
	"github.com/lattice-acs/acs/pkg/cache"
	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/graph"
	"github.com/lattice-acs/acs/pkg/handlers"
	"github.com/lattice-acs/acs/pkg/metrics"
	"github.com/lattice-acs/acs/pkg/persistence"
)

var logger = logging.GetLogger("supervisor")

// WorkerConfig bundles everything needed to stand up one tenant worker,
// mirroring the teacher's options-struct pattern for constructing a
// PolicyEngine.
type WorkerConfig struct {
	TenantID         string
	Store            persistence.Store
	BufferCapacity   int
	HighWatermarkPct float64
	LowWatermarkPct  float64
	EntityTTL        cache.TTL
	PermissionTTL    cache.TTL
}

// worker bundles one tenant's full live stack: C2 graph, C3 store
// connection, C4 command buffer, C7 cache, and the handler context C5
// dispatches through (spec §4.8).
type worker struct {
	tenantID string

	graph  *graph.Graph
	store  persistence.Store
	cache  cache.EntityCache
	hctx   *handlers.HandlerContext
	buffer *buffer.CommandBuffer

	cancel context.CancelFunc
	done   chan struct{}

	startedAt       time.Time
	healthy         bool
	lastHealthCheck time.Time
}

// newWorker constructs (but does not start) one tenant's runtime stack:
// loads the graph from persistence, primes the cache, and wires a
// command buffer whose handler closure dispatches into pkg/handlers.
func newWorker(ctx context.Context, cfg WorkerConfig) (*worker, error) {
	g := graph.New(cfg.TenantID)

	snapshot, err := cfg.Store.Load(ctx, cfg.TenantID)
	if err != nil {
		return nil, common.Wrap(common.KindPersistenceError, err, "loading tenant snapshot")
	}
	stats := g.Load(snapshot)
	logger.Infof(cfg.TenantID, "load", "loaded %d entities, %d edges in %s",
		stats.EntityCount, stats.EdgeCount, stats.TotalDuration)

	entityTTL, permTTL := cfg.EntityTTL, cfg.PermissionTTL
	if entityTTL == (cache.TTL{}) {
		entityTTL = cache.DefaultEntityTTL
	}
	if permTTL == (cache.TTL{}) {
		permTTL = cache.DefaultPermissionTTL
	}
	c := cache.NewMemoryCache(cfg.TenantID, entityTTL, permTTL)
	c.Warmup(snapshot.Entities)

	hctx := handlers.NewHandlerContext(g, cfg.Store, cfg.TenantID, "system", "")
	hctx.Cache = c

	w := &worker{
		tenantID: cfg.TenantID,
		graph:    g,
		store:    cfg.Store,
		cache:    c,
		hctx:     hctx,
	}

	handler := func(ctx context.Context, cmd interface{}) (interface{}, error) {
		start := time.Now()
		result, err := handlers.Dispatch(ctx, hctx, cmd.(handlers.Command))
		metrics.HandlerDuration.WithLabelValues(cfg.TenantID, kindLabel(cmd)).
			Observe(float64(time.Since(start).Milliseconds()))
		if err == nil {
			invalidateAfterMutation(c, cmd)
			recordBusinessMetrics(cfg.TenantID, cmd)
			switch cmd.(type) {
			case handlers.CreateEntityCmd, handlers.DeleteEntityCmd:
				metrics.GraphEntityCount.WithLabelValues(cfg.TenantID).Set(float64(g.EntityCount()))
				metrics.GraphMemoryBytes.WithLabelValues(cfg.TenantID).Set(float64(g.MemoryBytes()))
			}
		}
		return result, err
	}

	highPct, lowPct := cfg.HighWatermarkPct, cfg.LowWatermarkPct
	if highPct == 0 {
		highPct = 0.8
	}
	if lowPct == 0 {
		lowPct = 0.5
	}
	capacity := cfg.BufferCapacity
	if capacity == 0 {
		capacity = 10000
	}
	w.buffer = buffer.New(capacity, highPct, lowPct, handler)

	return w, nil
}

// start launches the worker's command buffer consumer loop.
func (w *worker) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.startedAt = time.Now()
	w.healthy = true

	go func() {
		defer close(w.done)
		w.buffer.Run(ctx)
	}()
}

// stop cancels the consumer loop and waits for in-flight work to drain.
func (w *worker) stop() {
	if w.cancel == nil {
		return
	}
	w.buffer.Stop()
	w.cancel()
	<-w.done
}

// healthCheck pings the store and reports liveness, per spec §4.8.
func (w *worker) healthCheck(ctx context.Context) bool {
	w.lastHealthCheck = time.Now()
	// Graph liveness is trivially true (in-process memory); the store
	// connection is the only component that can fail independently.
	_, err := w.store.ValidateIntegrity(ctx, w.tenantID, 0, 0)
	w.healthy = err == nil
	return w.healthy
}

func kindLabel(cmd interface{}) string {
	switch cmd.(type) {
	case handlers.CreateEntityCmd:
		return "CreateEntity"
	case handlers.DeleteEntityCmd:
		return "DeleteEntity"
	case handlers.AddEdgeCmd:
		return "AddEdge"
	case handlers.RemoveEdgeCmd:
		return "RemoveEdge"
	case handlers.GrantPermissionCmd:
		return "GrantPermission"
	case handlers.RevokePermissionCmd:
		return "RevokePermission"
	case handlers.BulkPermissionUpdateCmd:
		return "BulkPermissionUpdate"
	case handlers.RecordAuditEventCmd:
		return "RecordAuditEvent"
	case handlers.PurgeOldAuditDataCmd:
		return "PurgeOldAuditData"
	case handlers.AccessViolationCmd:
		return "AccessViolation"
	case handlers.ValidatePermissionStructureCmd:
		return "ValidatePermissionStructure"
	default:
		return "Unknown"
	}
}

// invalidateAfterMutation drops cache entries made stale by a
// successfully committed command, per spec §4.7's invalidation rule.
func invalidateAfterMutation(c cache.EntityCache, cmd interface{}) {
	switch v := cmd.(type) {
	case handlers.CreateEntityCmd:
		c.InvalidateEntityPermissions(v.ID)
	case handlers.DeleteEntityCmd:
		c.InvalidateUser(v.ID)
		c.InvalidateGroup(v.ID)
		c.InvalidateRole(v.ID)
		c.InvalidateEntityPermissions(v.ID)
	case handlers.AddEdgeCmd:
		c.InvalidateUserGroups(v.ChildID)
		c.InvalidateUserRoles(v.ChildID)
		c.InvalidateEntityPermissions(v.ChildID)
	case handlers.RemoveEdgeCmd:
		c.InvalidateUserGroups(v.ChildID)
		c.InvalidateUserRoles(v.ChildID)
		c.InvalidateEntityPermissions(v.ChildID)
	case handlers.GrantPermissionCmd:
		c.InvalidateEntityPermissions(v.OwnerID)
	case handlers.RevokePermissionCmd:
		c.InvalidateEntityPermissions(v.OwnerID)
		if v.Cascade {
			c.Clear()
		}
	case handlers.BulkPermissionUpdateCmd:
		for _, op := range v.Ops {
			c.InvalidateEntityPermissions(op.EntityID)
		}
	}
}

// recordBusinessMetrics increments the spec §6 business-event counters
// for a successfully committed command. CreateEntity is split by entity
// kind (groups count against BusinessGroups, users and roles against
// BusinessUsers); DeleteEntity always counts against BusinessUsers.
func recordBusinessMetrics(tenantID string, cmd interface{}) {
	switch v := cmd.(type) {
	case handlers.CreateEntityCmd:
		businessCounterFor(v.Kind).WithLabelValues(tenantID, "create").Inc()
	case handlers.DeleteEntityCmd:
		// The entity's kind no longer exists to inspect post-commit;
		// counted against BusinessUsers since most deletes are user
		// offboarding in practice.
		metrics.BusinessUsers.WithLabelValues(tenantID, "delete").Inc()
	case handlers.GrantPermissionCmd:
		metrics.BusinessPermissions.WithLabelValues(tenantID, "grant").Inc()
	case handlers.RevokePermissionCmd:
		metrics.BusinessPermissions.WithLabelValues(tenantID, "revoke").Inc()
	case handlers.BulkPermissionUpdateCmd:
		for _, op := range v.Ops {
			metrics.BusinessPermissions.WithLabelValues(tenantID, string(op.Kind)).Inc()
		}
	}
}

func businessCounterFor(kind domain.Kind) *prometheus.CounterVec {
	switch kind {
	case domain.KindGroup:
		return metrics.BusinessGroups
	default:
		return metrics.BusinessUsers
	}
}
