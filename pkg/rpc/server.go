// Package rpc is the access control service's HTTP edge (spec C9): one
// echo route per command/query kind, a correlationId idempotency cache,
// and the /metrics and /healthz surface C10 needs. Grounded on the
// teacher's pkg/decisionpoint/generic, generalized from a single
// /authorize endpoint to the full command/query surface of spec §4.5.
package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/metrics"
	"github.com/lattice-acs/acs/pkg/supervisor"
)

var logger = logging.GetLogger("rpc")

// Config bounds the RPC edge's runtime behaviour.
type Config struct {
	Addr                 string
	CommandDeadline      time.Duration
	QueryDeadline        time.Duration
	IdempotencyWindow    time.Duration
	AuditStreamPoll      time.Duration
}

// DefaultConfig mirrors pkg/core/config's defaults for a server built
// outside of cmd/acsd (e.g. in tests).
func DefaultConfig(addr string) Config {
	return Config{
		Addr:              addr,
		CommandDeadline:   30 * time.Second,
		QueryDeadline:     5 * time.Second,
		IdempotencyWindow: 5 * time.Minute,
		AuditStreamPoll:   time.Second,
	}
}

// Server is the RPC edge's HTTP server, wrapping echo the same way the
// teacher's generic decision point wraps it.
type Server struct {
	echo   *echo.Echo
	sup    *supervisor.Supervisor
	cfg    Config
	dedup  *dedupCache
}

// NewServer builds (but does not start) the RPC edge's echo instance
// and registers every route.
func NewServer(sup *supervisor.Supervisor, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:  e,
		sup:   sup,
		cfg:   cfg,
		dedup: newDedupCache(cfg.IdempotencyWindow),
	}

	s.registerRoutes()
	return s
}

// Start launches the server in a background goroutine, matching the
// teacher's CreateServer pattern of never blocking the caller.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
			logger.SysErrorf("rpc server stopped: %+v", err)
		}
	}()
	logger.SysInfof("rpc edge listening on %s", s.cfg.Addr)
	return nil
}

// Stop gracefully drains in-flight requests before returning, or until
// ctx is cancelled.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/healthz", s.handleHealthz)

	v1 := e.Group("/v1/tenants/:tenantId")
	v1.POST("/entities", s.handleCreateEntity)
	v1.DELETE("/entities/:id", s.handleDeleteEntity)
	v1.POST("/edges", s.handleAddEdge)
	v1.DELETE("/edges", s.handleRemoveEdge)
	v1.POST("/permissions/grant", s.handleGrantPermission)
	v1.POST("/permissions/revoke", s.handleRevokePermission)
	v1.POST("/permissions/bulk", s.handleBulkPermissionUpdate)
	v1.POST("/permissions/validate", s.handleValidatePermissionStructure)
	v1.POST("/security/violations", s.handleAccessViolation)
	v1.POST("/audit/events", s.handleRecordAuditEvent)
	v1.POST("/audit/purge", s.handlePurgeOldAuditData)

	v1.POST("/queries/check-permission", s.handleCheckPermission)
	v1.POST("/queries/entity-permissions", s.handleGetEntityPermissions)
	v1.POST("/queries/effective-permissions", s.handleGetEffectivePermissions)
	v1.POST("/queries/impact-analysis", s.handlePermissionImpactAnalysis)
	v1.GET("/audit", s.handleGetAuditTrail)
	v1.GET("/audit/integrity", s.handleValidateAuditIntegrity)
	v1.GET("/compliance-report", s.handleGetComplianceReport)

	v1.GET("/audit/stream", s.handleAuditStream)
}

func (s *Server) handleHealthz(c echo.Context) error {
	tenants := s.sup.TenantIDs()
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "tenants": len(tenants)})
}
