// Package cache defines the read-through entity cache contract of spec
// §4.7 (C7) and ships one in-memory reference adapter. Distributed
// backends are external, per spec §1's scope note; the core only needs
// one implementation to exercise the interface and to let handlers
// invalidate on every successful mutation.
package cache

import (
	"time"

	"github.com/lattice-acs/acs/pkg/domain"
)

// TTL pairs a sliding expiration (reset on every access) with an
// absolute ceiling, matching spec §4.7's TTL policy table.
type TTL struct {
	Sliding  time.Duration
	Absolute time.Duration
}

// DefaultEntityTTL and DefaultPermissionTTL are spec §4.7's literal
// defaults: entities live longer than the permission projections
// derived from them, since permission evaluation changes more often
// than entity identity does.
var (
	DefaultEntityTTL     = TTL{Sliding: 5 * time.Minute, Absolute: 30 * time.Minute}
	DefaultPermissionTTL = TTL{Sliding: 2 * time.Minute, Absolute: 10 * time.Minute}
)

// ItemType labels cache entries for per-type hit/miss accounting.
type ItemType string

const (
	ItemUser        ItemType = "User"
	ItemGroup       ItemType = "Group"
	ItemRole        ItemType = "Role"
	ItemPermissions ItemType = "Permissions"
	ItemUserGroups  ItemType = "UserGroups"
	ItemUserRoles   ItemType = "UserRoles"
)

// Statistics is the snapshot returned by EntityCache.Statistics.
type Statistics struct {
	TotalHits   uint64
	TotalMisses uint64
	HitRate     float64
	HitsByType  map[ItemType]uint64
	MissesByType map[ItemType]uint64
	ItemCount    int
	MemoryBytes  int64
}

// EntityCache is the read-through cache contract of spec §4.7. Every
// Get/Set pair operates on a tenant-scoped cache instance; the
// supervisor constructs one per tenant worker.
type EntityCache interface {
	GetUser(id int64) (domain.Entity, bool)
	SetUser(e domain.Entity)
	InvalidateUser(id int64)

	GetGroup(id int64) (domain.Entity, bool)
	SetGroup(e domain.Entity)
	InvalidateGroup(id int64)

	GetRole(id int64) (domain.Entity, bool)
	SetRole(e domain.Entity)
	InvalidateRole(id int64)

	GetEntityPermissions(id int64) ([]domain.Permission, bool)
	SetEntityPermissions(id int64, perms []domain.Permission)
	InvalidateEntityPermissions(id int64)

	GetUserGroups(id int64) ([]int64, bool)
	SetUserGroups(id int64, groupIDs []int64)
	InvalidateUserGroups(id int64)

	GetUserRoles(id int64) ([]int64, bool)
	SetUserRoles(id int64, roleIDs []int64)
	InvalidateUserRoles(id int64)

	Statistics() Statistics
	Clear()
	// Warmup primes the cache from the given entities, used right after
	// graph.Load so the first request wave doesn't start cold.
	Warmup(entities []domain.Entity)
}

// InvalidateEntity drops the entries held for entity id itself: the
// entry in its kind's bucket and its permission projection. It does not
// touch any user's group/role membership projections. The tenant
// worker's post-commit invalidation (spec §4.7) calls the per-bucket
// Invalidate methods directly rather than this helper.
func InvalidateEntity(c EntityCache, kind domain.Kind, id int64) {
	switch kind {
	case domain.KindUser:
		c.InvalidateUser(id)
	case domain.KindGroup:
		c.InvalidateGroup(id)
	case domain.KindRole:
		c.InvalidateRole(id)
	}
	c.InvalidateEntityPermissions(id)
}
