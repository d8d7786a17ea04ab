package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-acs/acs/pkg/domain"
)

func TestMemoryCache_SetGetUser(t *testing.T) {
	c := NewMemoryCache("test-tenant", DefaultEntityTTL, DefaultPermissionTTL)

	_, ok := c.GetUser(1)
	require.False(t, ok)

	c.SetUser(domain.Entity{ID: 1, Kind: domain.KindUser, Name: "alice"})
	got, ok := c.GetUser(1)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)

	stats := c.Statistics()
	assert.EqualValues(t, 1, stats.TotalHits)
	assert.EqualValues(t, 1, stats.TotalMisses)
}

func TestMemoryCache_GetReturnsIndependentCopy(t *testing.T) {
	c := NewMemoryCache("test-tenant", DefaultEntityTTL, DefaultPermissionTTL)
	c.SetUser(domain.Entity{ID: 1, Kind: domain.KindUser, Name: "alice", Permissions: []domain.Permission{{URI: "/a", Verb: domain.VerbGet}}})

	got, ok := c.GetUser(1)
	require.True(t, ok)
	got.Permissions[0].URI = "/mutated"

	again, ok := c.GetUser(1)
	require.True(t, ok)
	assert.Equal(t, "/a", again.Permissions[0].URI)
}

func TestMemoryCache_AbsoluteTTLExpires(t *testing.T) {
	c := NewMemoryCache("test-tenant", TTL{Sliding: time.Hour, Absolute: time.Millisecond}, DefaultPermissionTTL)
	c.SetUser(domain.Entity{ID: 1, Kind: domain.KindUser, Name: "alice"})

	time.Sleep(5 * time.Millisecond)

	_, ok := c.GetUser(1)
	assert.False(t, ok)
}

func TestMemoryCache_InvalidateEntity(t *testing.T) {
	c := NewMemoryCache("test-tenant", DefaultEntityTTL, DefaultPermissionTTL)
	c.SetGroup(domain.Entity{ID: 10, Kind: domain.KindGroup, Name: "devs"})
	c.SetEntityPermissions(10, []domain.Permission{{URI: "/api", Verb: domain.VerbGet}})

	InvalidateEntity(c, domain.KindGroup, 10)

	_, ok := c.GetGroup(10)
	assert.False(t, ok)
	_, ok = c.GetEntityPermissions(10)
	assert.False(t, ok)
}

func TestMemoryCache_UserGroupsRoundTrip(t *testing.T) {
	c := NewMemoryCache("test-tenant", DefaultEntityTTL, DefaultPermissionTTL)
	c.SetUserGroups(1, []int64{10, 11})

	got, ok := c.GetUserGroups(1)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{10, 11}, got)

	c.InvalidateUserGroups(1)
	_, ok = c.GetUserGroups(1)
	assert.False(t, ok)
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache("test-tenant", DefaultEntityTTL, DefaultPermissionTTL)
	c.SetUser(domain.Entity{ID: 1, Kind: domain.KindUser, Name: "alice"})
	c.Clear()

	_, ok := c.GetUser(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Statistics().ItemCount)
}
