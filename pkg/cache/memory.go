package cache

import (
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/metrics"
)

var logger = logging.GetLogger("cache")

// entry holds one cached value plus the bookkeeping needed to enforce
// both halves of a TTL pair: lastSeen resets on every Get (sliding),
// storedAt never does (absolute ceiling).
type entry struct {
	value     interface{}
	storedAt  time.Time
	lastSeen  time.Time
	ttl       TTL
}

func (e *entry) expired(now time.Time) bool {
	if now.Sub(e.storedAt) >= e.ttl.Absolute {
		return true
	}
	return now.Sub(e.lastSeen) >= e.ttl.Sliding
}

// MemoryCache is the in-memory EntityCache adapter (spec §4.7). Safe
// for concurrent use; one instance is created per tenant worker.
type MemoryCache struct {
	mu sync.Mutex

	tenantID      string
	entityTTL     TTL
	permissionTTL TTL

	entities    map[int64]*entry // users/groups/roles share one keyspace; id is unique across kinds
	permissions map[int64]*entry
	userGroups  map[int64]*entry
	userRoles   map[int64]*entry

	hits   map[ItemType]uint64
	misses map[ItemType]uint64
}

// NewMemoryCache constructs a MemoryCache for tenantID using the given
// TTL policy for entities and permissions respectively (spec §4.7
// defaults live in DefaultEntityTTL / DefaultPermissionTTL).
func NewMemoryCache(tenantID string, entityTTL, permissionTTL TTL) *MemoryCache {
	return &MemoryCache{
		tenantID:      tenantID,
		entityTTL:     entityTTL,
		permissionTTL: permissionTTL,
		entities:      make(map[int64]*entry),
		permissions:   make(map[int64]*entry),
		userGroups:    make(map[int64]*entry),
		userRoles:     make(map[int64]*entry),
		hits:          make(map[ItemType]uint64),
		misses:        make(map[ItemType]uint64),
	}
}

// recordHit/recordMiss update both the local Statistics() counters and
// the process-wide cache metrics (C10), keyed by item type.
func (c *MemoryCache) recordHit(itemType ItemType) {
	c.hits[itemType]++
	metrics.CacheHits.WithLabelValues(c.tenantID, string(itemType)).Inc()
}

func (c *MemoryCache) recordMiss(itemType ItemType) {
	c.misses[itemType]++
	metrics.CacheMisses.WithLabelValues(c.tenantID, string(itemType)).Inc()
}

func (c *MemoryCache) getEntity(id int64, kind domain.Kind, itemType ItemType) (domain.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entities[id]
	now := time.Now()
	if !ok || e.expired(now) {
		delete(c.entities, id)
		c.recordMiss(itemType)
		return domain.Entity{}, false
	}
	stored := e.value.(domain.Entity)
	if stored.Kind != kind {
		c.recordMiss(itemType)
		return domain.Entity{}, false
	}
	e.lastSeen = now
	c.recordHit(itemType)
	return deepcopy.Copy(stored).(domain.Entity), true
}

func (c *MemoryCache) setEntity(e domain.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entities[e.ID] = &entry{
		value:    deepcopy.Copy(e).(domain.Entity),
		storedAt: now,
		lastSeen: now,
		ttl:      c.entityTTL,
	}
}

func (c *MemoryCache) invalidateEntity(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entities, id)
}

func (c *MemoryCache) GetUser(id int64) (domain.Entity, bool) {
	return c.getEntity(id, domain.KindUser, ItemUser)
}
func (c *MemoryCache) SetUser(e domain.Entity)      { c.setEntity(e) }
func (c *MemoryCache) InvalidateUser(id int64)      { c.invalidateEntity(id) }

func (c *MemoryCache) GetGroup(id int64) (domain.Entity, bool) {
	return c.getEntity(id, domain.KindGroup, ItemGroup)
}
func (c *MemoryCache) SetGroup(e domain.Entity) { c.setEntity(e) }
func (c *MemoryCache) InvalidateGroup(id int64) { c.invalidateEntity(id) }

func (c *MemoryCache) GetRole(id int64) (domain.Entity, bool) {
	return c.getEntity(id, domain.KindRole, ItemRole)
}
func (c *MemoryCache) SetRole(e domain.Entity) { c.setEntity(e) }
func (c *MemoryCache) InvalidateRole(id int64) { c.invalidateEntity(id) }

func (c *MemoryCache) GetEntityPermissions(id int64) ([]domain.Permission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.permissions[id]
	now := time.Now()
	if !ok || e.expired(now) {
		delete(c.permissions, id)
		c.recordMiss(ItemPermissions)
		return nil, false
	}
	e.lastSeen = now
	c.recordHit(ItemPermissions)
	return deepcopy.Copy(e.value.([]domain.Permission)).([]domain.Permission), true
}

func (c *MemoryCache) SetEntityPermissions(id int64, perms []domain.Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.permissions[id] = &entry{
		value:    deepcopy.Copy(perms).([]domain.Permission),
		storedAt: now,
		lastSeen: now,
		ttl:      c.permissionTTL,
	}
}

func (c *MemoryCache) InvalidateEntityPermissions(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.permissions, id)
}

func (c *MemoryCache) GetUserGroups(id int64) ([]int64, bool) {
	return c.getIDSet(c.userGroups, id, ItemUserGroups)
}
func (c *MemoryCache) SetUserGroups(id int64, groupIDs []int64) {
	c.setIDSet(c.userGroups, id, groupIDs, c.entityTTL)
}
func (c *MemoryCache) InvalidateUserGroups(id int64) { c.invalidateIDSet(c.userGroups, id) }

func (c *MemoryCache) GetUserRoles(id int64) ([]int64, bool) {
	return c.getIDSet(c.userRoles, id, ItemUserRoles)
}
func (c *MemoryCache) SetUserRoles(id int64, roleIDs []int64) {
	c.setIDSet(c.userRoles, id, roleIDs, c.entityTTL)
}
func (c *MemoryCache) InvalidateUserRoles(id int64) { c.invalidateIDSet(c.userRoles, id) }

func (c *MemoryCache) getIDSet(bucket map[int64]*entry, id int64, itemType ItemType) ([]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := bucket[id]
	now := time.Now()
	if !ok || e.expired(now) {
		delete(bucket, id)
		c.recordMiss(itemType)
		return nil, false
	}
	e.lastSeen = now
	c.recordHit(itemType)
	ids := e.value.([]int64)
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, true
}

func (c *MemoryCache) setIDSet(bucket map[int64]*entry, id int64, ids []int64, ttl TTL) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	stored := make([]int64, len(ids))
	copy(stored, ids)
	bucket[id] = &entry{value: stored, storedAt: now, lastSeen: now, ttl: ttl}
}

func (c *MemoryCache) invalidateIDSet(bucket map[int64]*entry, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(bucket, id)
}

// Statistics reports cumulative hit/miss counters (spec §4.7).
func (c *MemoryCache) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{
		HitsByType:   make(map[ItemType]uint64, len(c.hits)),
		MissesByType: make(map[ItemType]uint64, len(c.misses)),
		ItemCount:    len(c.entities) + len(c.permissions) + len(c.userGroups) + len(c.userRoles),
	}
	for t, n := range c.hits {
		stats.HitsByType[t] = n
		stats.TotalHits += n
	}
	for t, n := range c.misses {
		stats.MissesByType[t] = n
		stats.TotalMisses += n
	}
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}
	return stats
}

// Clear drops every cached entry and resets hit/miss counters.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entities = make(map[int64]*entry)
	c.permissions = make(map[int64]*entry)
	c.userGroups = make(map[int64]*entry)
	c.userRoles = make(map[int64]*entry)
	c.hits = make(map[ItemType]uint64)
	c.misses = make(map[ItemType]uint64)
}

// Warmup primes the entity keyspace from a freshly-loaded graph
// snapshot so the first request wave after a tenant worker starts
// doesn't pay full cache-miss cost (spec §4.7 Warmup).
func (c *MemoryCache) Warmup(entities []domain.Entity) {
	for _, e := range entities {
		c.setEntity(e)
	}
	logger.SysInfof("cache warmup loaded %d entities", len(entities))
}
