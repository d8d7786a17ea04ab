package handlers

import (
	"context"
	"time"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/lattice-acs/acs/pkg/domain"
	"github.com/lattice-acs/acs/pkg/persistence"
)

// ExecuteCheckPermission implements CheckPermission (spec §4.5, §8
// invariants 3-5): a read-through-cached read over the graph, never
// touching persistence, so it can run concurrently with every other
// query.
func ExecuteCheckPermission(h *HandlerContext, q CheckPermissionQuery) (bool, error) {
	candidates, err := cachedCandidatePermissions(h, q.EntityID)
	if err != nil {
		return false, err
	}

	at := h.now()
	if q.At != nil {
		at = *q.At
	}

	decision := domain.Resolve(candidates, q.URI, q.Verb, at)
	return decision.Allowed, nil
}

// ExecuteGetEntityPermissions implements GetEntityPermissions.
func ExecuteGetEntityPermissions(h *HandlerContext, q GetEntityPermissionsQuery) ([]domain.Permission, error) {
	entity, ok := cachedEntity(h, q.EntityID)
	if !ok {
		return nil, common.Newf(common.KindNotFound, "entity %d not found", q.EntityID)
	}

	if !q.IncludeInherited {
		return entity.Permissions, nil
	}
	return cachedCandidatePermissions(h, q.EntityID)
}

// cachedEntity is the C7 read-through path for single-entity lookups
// (spec §4.7): it consults the cache's per-kind bucket before falling
// back to the graph, and populates the matching bucket on miss.
func cachedEntity(h *HandlerContext, id int64) (domain.Entity, bool) {
	if h.Cache != nil {
		if e, ok := h.Cache.GetUser(id); ok {
			return e, true
		}
		if e, ok := h.Cache.GetGroup(id); ok {
			return e, true
		}
		if e, ok := h.Cache.GetRole(id); ok {
			return e, true
		}
	}

	e, ok := h.Graph.GetEntity(id)
	if ok && h.Cache != nil {
		switch e.Kind {
		case domain.KindUser:
			h.Cache.SetUser(e)
		case domain.KindGroup:
			h.Cache.SetGroup(e)
		case domain.KindRole:
			h.Cache.SetRole(e)
		}
	}
	return e, ok
}

// cachedCandidatePermissions is the C7 read-through path for the
// ancestor-inclusive permission set CheckPermission/GetEffectivePermissions
// evaluate against: the hottest query in the system, and exactly what
// spec §4.7's EntityPermissions cache bucket is sized (TTL-wise) for.
func cachedCandidatePermissions(h *HandlerContext, entityID int64) ([]domain.Permission, error) {
	if h.Cache != nil {
		if perms, ok := h.Cache.GetEntityPermissions(entityID); ok {
			return perms, nil
		}
	}

	perms, err := h.Graph.CandidatePermissions(entityID)
	if err != nil {
		return nil, err
	}
	if h.Cache != nil {
		h.Cache.SetEntityPermissions(entityID, perms)
	}
	return perms, nil
}

// EffectivePermissionResult is one resource's resolved decision.
type EffectivePermissionResult struct {
	URI            string
	Allowed        bool
	DecidingEffect domain.Effect
	DecidingRule   *domain.Permission
}

// ExecuteGetEffectivePermissions implements GetEffectivePermissions.
func ExecuteGetEffectivePermissions(h *HandlerContext, q GetEffectivePermissionsQuery) ([]EffectivePermissionResult, error) {
	candidates, err := cachedCandidatePermissions(h, q.EntityID)
	if err != nil {
		return nil, err
	}

	at := h.now()
	results := make([]EffectivePermissionResult, 0, len(q.ResourceURIs))
	for _, uri := range q.ResourceURIs {
		decision := domain.Resolve(candidates, uri, q.Verb, at)
		r := EffectivePermissionResult{URI: uri, Allowed: decision.Allowed, DecidingEffect: decision.Effect}
		if q.ResolveConflicts {
			if winner, ok := domain.MostSpecific(decision.Matched, uri); ok {
				r.DecidingRule = &winner
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// ExecuteGetAuditTrail implements GetAuditTrail.
func ExecuteGetAuditTrail(ctx context.Context, h *HandlerContext, q GetAuditTrailQuery) ([]persistence.AuditRow, error) {
	rows, err := h.Store.GetAuditTrail(ctx, h.TenantID, q.Filter)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ComplianceReport summarises audit activity over a window.
type ComplianceReport struct {
	Since       time.Time
	Until       time.Time
	TotalEvents int
	ByChange    map[persistence.ChangeType]int
}

// ExecuteGetComplianceReport implements GetComplianceReport.
func ExecuteGetComplianceReport(ctx context.Context, h *HandlerContext, q GetComplianceReportQuery) (ComplianceReport, error) {
	rows, err := h.Store.GetAuditTrail(ctx, h.TenantID, persistence.AuditFilter{Since: &q.Since, Until: &q.Until})
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{Since: q.Since, Until: q.Until, ByChange: make(map[persistence.ChangeType]int)}
	for _, row := range rows {
		report.TotalEvents++
		report.ByChange[row.ChangeType]++
	}
	return report, nil
}

// ExecuteValidateAuditIntegrity implements ValidateAuditIntegrity (spec
// §8 invariant 10).
func ExecuteValidateAuditIntegrity(ctx context.Context, h *HandlerContext, q ValidateAuditIntegrityQuery) (persistence.IntegrityReport, error) {
	return h.Store.ValidateIntegrity(ctx, h.TenantID, q.FromID, q.ToID)
}

// ImpactedEntity is one entity PermissionImpactAnalysis would affect.
type ImpactedEntity struct {
	EntityID int64
	Depth    int
}

// ExecutePermissionImpactAnalysis implements PermissionImpactAnalysis:
// it walks every user's ancestors looking for ones within Depth that
// would match ResourceURI/Verb, i.e. whose permission set decides the
// outcome for that entity today.
func ExecutePermissionImpactAnalysis(h *HandlerContext, q PermissionImpactAnalysisQuery) []ImpactedEntity {
	var impacted []ImpactedEntity

	for _, e := range h.Graph.Users() {
		depth := -1
		if matchesOwnPermission(e, q) {
			depth = 0
		} else {
			for i, ancestorID := range h.Graph.Ancestors(e.ID) {
				if q.Depth > 0 && i >= q.Depth {
					break
				}
				ancestor, ok := cachedEntity(h, ancestorID)
				if ok && matchesOwnPermission(ancestor, q) {
					depth = i + 1
					break
				}
			}
		}
		if depth >= 0 {
			impacted = append(impacted, ImpactedEntity{EntityID: e.ID, Depth: depth})
		}
	}
	return impacted
}

func matchesOwnPermission(e domain.Entity, q PermissionImpactAnalysisQuery) bool {
	for _, p := range e.Permissions {
		if p.Verb != q.Verb {
			continue
		}
		if ok, _ := domain.MatchURI(p.URI, q.ResourceURI); ok {
			return true
		}
	}
	return false
}
