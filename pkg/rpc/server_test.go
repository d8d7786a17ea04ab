package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-acs/acs/pkg/persistence"
	"github.com/lattice-acs/acs/pkg/supervisor"
)

func sqliteOpener(t *testing.T) supervisor.StoreOpener {
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sup := supervisor.New(sqliteOpener(t))
	tenants := []supervisor.TenantDescriptor{
		{TenantID: "tenant-a", DSN: "file:" + t.Name() + "?mode=memory&cache=shared", Driver: "sqlite"},
	}
	require.NoError(t, sup.Start(context.Background(), tenants, 100, 0.8, 0.5))
	t.Cleanup(sup.Stop)

	cfg := DefaultConfig(":0")
	return NewServer(sup, cfg)
}

func (s *Server) serveHTTP(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateEntityAndCheckPermission(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{"id": 1, "kind": "User", "name": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/v1/tenants/tenant-a/entities", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := s.serveHTTP(req)
	require.Equal(t, http.StatusOK, rec.Code)

	grantBody, _ := json.Marshal(map[string]interface{}{
		"ownerId": 1,
		"permission": map[string]interface{}{
			"uri": "/docs/*", "verb": "GET", "effect": "Grant",
		},
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/tenants/tenant-a/permissions/grant", bytes.NewReader(grantBody))
	req.Header.Set("Content-Type", "application/json")
	rec = s.serveHTTP(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	checkBody, _ := json.Marshal(map[string]interface{}{"entityId": 1, "uri": "/docs/readme.md", "verb": "GET"})
	req = httptest.NewRequest(http.MethodPost, "/v1/tenants/tenant-a/queries/check-permission", bytes.NewReader(checkBody))
	req.Header.Set("Content-Type", "application/json")
	rec = s.serveHTTP(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result["allowed"])
}

func TestServer_UnknownTenantReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/ghost/audit/integrity", nil)
	rec := s.serveHTTP(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_IdempotentRetryReusesResult(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{"id": 2, "kind": "User", "name": "bob"})
	makeReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/tenants/tenant-a/entities", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Correlation-Id", "fixed-correlation-id")
		return req
	}

	rec1 := s.serveHTTP(makeReq())
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := s.serveHTTP(makeReq())
	require.Equal(t, http.StatusOK, rec2.Code)
	require.JSONEq(t, rec1.Body.String(), rec2.Body.String())
}

func TestDedupCache_ExpiresAfterWindow(t *testing.T) {
	c := newDedupCache(10 * time.Millisecond)
	c.store("t", "corr-1", "value", nil)

	_, _, ok := c.lookup("t", "corr-1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, _, ok = c.lookup("t", "corr-1")
	require.False(t, ok)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := s.serveHTTP(req)
	require.Equal(t, http.StatusOK, rec.Code)
}
