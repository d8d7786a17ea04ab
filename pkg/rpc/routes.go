package rpc

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/handlers"
	"github.com/lattice-acs/acs/pkg/metrics"
	"github.com/lattice-acs/acs/pkg/persistence"
	"github.com/lattice-acs/acs/pkg/translation"
)

// correlationID returns the caller-supplied X-Correlation-Id, or mints
// one so every mutation has a stable idempotency key even if the
// caller didn't ask for dedup.
func correlationID(c echo.Context) string {
	if v := c.Request().Header.Get("X-Correlation-Id"); v != "" {
		return v
	}
	return uuid.NewString()
}

// mutate translates an already-decoded request into a Command via
// toCommand and enqueues it on tenantId's worker, applying idempotency
// dedup and recording request metrics the way every route below needs
// to. Decoding the body is left to each route.
func (s *Server) mutate(c echo.Context, toCommand func() (handlers.Command, error)) error {
	tenantID := c.Param("tenantId")
	corrID := correlationID(c)
	method := c.Request().Method + " " + c.Path()

	start := time.Now()
	metrics.APIActiveRequests.WithLabelValues(tenantID).Inc()
	defer metrics.APIActiveRequests.WithLabelValues(tenantID).Dec()

	if result, err, ok := s.dedup.lookup(tenantID, corrID); ok {
		return s.respond(c, tenantID, method, start, result, err)
	}

	cmd, err := toCommand()
	if err != nil {
		metrics.APIRequestErrors.WithLabelValues(tenantID, method, string(common.AsACSError(err).Kind)).Inc()
		return httpError(err)
	}

	deadline := time.Now().Add(s.cfg.CommandDeadline)
	result, err := s.sup.EnqueueCommand(c.Request().Context(), tenantID, cmd, corrID, deadline)
	s.dedup.store(tenantID, corrID, result, err)
	return s.respond(c, tenantID, method, start, result, err)
}

func (s *Server) respond(c echo.Context, tenantID, method string, start time.Time, result interface{}, err error) error {
	metrics.APIRequestDuration.WithLabelValues(tenantID, method).Observe(float64(time.Since(start).Milliseconds()))
	metrics.APIRequestCount.WithLabelValues(tenantID, method).Inc()
	if err != nil {
		metrics.APIRequestErrors.WithLabelValues(tenantID, method, string(common.AsACSError(err).Kind)).Inc()
		return httpError(err)
	}
	if result == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) tenantContext(c echo.Context) (*handlers.HandlerContext, error) {
	hctx, _, ok := s.sup.Tenant(c.Param("tenantId"))
	if !ok {
		return nil, common.Newf(common.KindNotFound, "unknown tenant %q", c.Param("tenantId"))
	}
	return hctx, nil
}

func (s *Server) handleCreateEntity(c echo.Context) error {
	var req translation.CreateEntityRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand() })
}

func (s *Server) handleDeleteEntity(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "parsing entity id"))
	}
	req := translation.DeleteEntityRequest{ID: id}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand(), nil })
}

func (s *Server) handleAddEdge(c echo.Context) error {
	var req translation.EdgeRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToAddCommand(), nil })
}

func (s *Server) handleRemoveEdge(c echo.Context) error {
	var req translation.EdgeRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToRemoveCommand(), nil })
}

func (s *Server) handleGrantPermission(c echo.Context) error {
	var req translation.GrantPermissionRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand() })
}

func (s *Server) handleRevokePermission(c echo.Context) error {
	var req translation.RevokePermissionRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand() })
}

func (s *Server) handleBulkPermissionUpdate(c echo.Context) error {
	var req translation.BulkPermissionUpdateRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand() })
}

func (s *Server) handleValidatePermissionStructure(c echo.Context) error {
	var req translation.ValidatePermissionStructureRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand(), nil })
}

func (s *Server) handleAccessViolation(c echo.Context) error {
	var req translation.AccessViolationRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) { return req.ToCommand() })
}

func (s *Server) handleRecordAuditEvent(c echo.Context) error {
	var req struct {
		EntityType    string                 `json:"entityType"`
		EntityID      int64                  `json:"entityId"`
		ChangeType    string                 `json:"changeType"`
		ChangeDetails map[string]interface{} `json:"changeDetails,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) {
		return handlers.RecordAuditEventCmd{
			EntityType: req.EntityType, EntityID: req.EntityID,
			ChangeType: persistence.ChangeType(req.ChangeType), ChangeDetails: req.ChangeDetails,
		}, nil
	})
}

func (s *Server) handlePurgeOldAuditData(c echo.Context) error {
	var req struct {
		OlderThan time.Time `json:"olderThan"`
	}
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.mutate(c, func() (handlers.Command, error) {
		return handlers.PurgeOldAuditDataCmd{OlderThan: req.OlderThan}, nil
	})
}

// --- queries: executed directly against the tenant's graph/store,
// bypassing the command buffer entirely (spec §4.4). ---

func (s *Server) query(c echo.Context, fn func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error)) error {
	tenantID := c.Param("tenantId")
	method := c.Request().Method + " " + c.Path()
	start := time.Now()

	hctx, err := s.tenantContext(c)
	if err != nil {
		return httpError(err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.QueryDeadline)
	defer cancel()

	result, err := fn(ctx, hctx)
	return s.respond(c, tenantID, method, start, result, err)
}

func (s *Server) handleCheckPermission(c echo.Context) error {
	var req translation.CheckPermissionRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		tenantID := c.Param("tenantId")
		metrics.LoginAttempts.WithLabelValues(tenantID).Inc()

		q, err := req.ToQuery()
		if err != nil {
			return nil, err
		}
		allowed, err := handlers.ExecuteCheckPermission(hctx, q)
		if err != nil {
			return nil, err
		}
		if allowed {
			metrics.LoginSuccess.WithLabelValues(tenantID).Inc()
		} else {
			metrics.LoginFailure.WithLabelValues(tenantID).Inc()
		}
		return echo.Map{"allowed": allowed}, nil
	})
}

func (s *Server) handleGetEntityPermissions(c echo.Context) error {
	var req translation.GetEntityPermissionsRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		return handlers.ExecuteGetEntityPermissions(hctx, req.ToQuery())
	})
}

func (s *Server) handleGetEffectivePermissions(c echo.Context) error {
	var req translation.GetEffectivePermissionsRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		q, err := req.ToQuery()
		if err != nil {
			return nil, err
		}
		return handlers.ExecuteGetEffectivePermissions(hctx, q)
	})
}

func (s *Server) handlePermissionImpactAnalysis(c echo.Context) error {
	var req translation.PermissionImpactAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "decoding request body"))
	}
	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		q, err := req.ToQuery()
		if err != nil {
			return nil, err
		}
		return handlers.ExecutePermissionImpactAnalysis(hctx, q), nil
	})
}

func (s *Server) handleGetAuditTrail(c echo.Context) error {
	req := translation.GetAuditTrailRequest{
		EntityType: c.QueryParam("entityType"),
		ChangeType: c.QueryParam("changeType"),
	}
	if v := c.QueryParam("entityId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return httpError(common.Wrap(common.KindTranslationError, err, "parsing entityId"))
		}
		req.EntityID = &id
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return httpError(common.Wrap(common.KindTranslationError, err, "parsing limit"))
		}
		req.Limit = limit
	}

	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		return handlers.ExecuteGetAuditTrail(ctx, hctx, req.ToQuery())
	})
}

func (s *Server) handleGetComplianceReport(c echo.Context) error {
	since, err := time.Parse(time.RFC3339, c.QueryParam("since"))
	if err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "parsing since"))
	}
	until, err := time.Parse(time.RFC3339, c.QueryParam("until"))
	if err != nil {
		return httpError(common.Wrap(common.KindTranslationError, err, "parsing until"))
	}

	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		return handlers.ExecuteGetComplianceReport(ctx, hctx, handlers.GetComplianceReportQuery{Since: since, Until: until})
	})
}

func (s *Server) handleValidateAuditIntegrity(c echo.Context) error {
	var fromID, toID int64
	if v := c.QueryParam("fromId"); v != "" {
		fromID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := c.QueryParam("toId"); v != "" {
		toID, _ = strconv.ParseInt(v, 10, 64)
	}

	return s.query(c, func(ctx context.Context, hctx *handlers.HandlerContext) (interface{}, error) {
		return handlers.ExecuteValidateAuditIntegrity(ctx, hctx, handlers.ValidateAuditIntegrityQuery{FromID: fromID, ToID: toID})
	})
}
