package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/handlers"
	"github.com/lattice-acs/acs/pkg/persistence"
)

func sqliteOpener(t *testing.T) StoreOpener {
	t.Helper()
	return func(driver, dsn string) (persistence.Store, error) {
		store, err := persistence.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		if err := persistence.NewMigrator(store.DB(), "sqlite").Init(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}
}

func TestSupervisor_StartRouteStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := New(sqliteOpener(t))
	tenants := []TenantDescriptor{
		{TenantID: "tenant-a", DSN: "file:" + t.Name() + "a?mode=memory&cache=shared", Driver: "sqlite"},
	}

	require.NoError(t, sup.Start(ctx, tenants, 100, 0.8, 0.5))
	defer sup.Stop()

	deadline := time.Now().Add(time.Second)
	result, err := sup.EnqueueCommand(ctx, "tenant-a",
		handlers.CreateEntityCmd{ID: 1, Kind: domain.KindUser, Name: "alice"},
		"corr-1", deadline)
	require.NoError(t, err)
	entity := result.(domain.Entity)
	require.Equal(t, "alice", entity.Name)

	hctx, _, ok := sup.Tenant("tenant-a")
	require.True(t, ok)
	got, ok := hctx.Graph.GetUser(1)
	require.True(t, ok)
	require.Equal(t, "alice", got.Name)
}

func TestSupervisor_UnknownTenantRejected(t *testing.T) {
	sup := New(sqliteOpener(t))
	_, err := sup.EnqueueCommand(context.Background(), "ghost", handlers.DeleteEntityCmd{ID: 1}, "c", time.Time{})
	require.Error(t, err)
}
