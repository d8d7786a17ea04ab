package domain

import (
	"testing"
	"time"
)

func TestResolveDefaultDeny(t *testing.T) {
	d := Resolve(nil, "/api/projects", VerbGet, time.Now())
	if d.Allowed {
		t.Fatal("expected default-deny with no candidates")
	}
}

func TestResolveGrantViaInheritance(t *testing.T) {
	// mirrors S1: a single Grant from an ancestor is enough.
	candidates := []Permission{
		{URI: "/api/projects", Verb: VerbGet, Effect: EffectGrant},
	}
	d := Resolve(candidates, "/api/projects", VerbGet, time.Now())
	if !d.Allowed {
		t.Fatal("expected grant to be allowed")
	}
}

func TestResolveDenyOverridesGrant(t *testing.T) {
	// mirrors S2: a direct Deny on top of an inherited Grant wins.
	candidates := []Permission{
		{URI: "/api/projects", Verb: VerbGet, Effect: EffectGrant},
		{URI: "/api/projects", Verb: VerbGet, Effect: EffectDeny},
	}
	d := Resolve(candidates, "/api/projects", VerbGet, time.Now())
	if d.Allowed {
		t.Fatal("expected deny to dominate grant")
	}
}

func TestResolveWildcardSpecificity(t *testing.T) {
	// mirrors S4: a general Grant plus a specific Deny.
	candidates := []Permission{
		{URI: "/api/*", Verb: VerbGet, Effect: EffectGrant},
		{URI: "/api/secret", Verb: VerbGet, Effect: EffectDeny},
	}

	secret := Resolve(candidates, "/api/secret", VerbGet, time.Now())
	if secret.Allowed {
		t.Fatal("expected specific deny to win over general grant")
	}

	public := Resolve(candidates, "/api/public", VerbGet, time.Now())
	if !public.Allowed {
		t.Fatal("expected general grant to apply where no deny matches")
	}
}

func TestResolveIgnoresExpiredPermission(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	candidates := []Permission{
		{URI: "/api/projects", Verb: VerbGet, Effect: EffectGrant, ExpiresAt: &past},
	}
	d := Resolve(candidates, "/api/projects", VerbGet, time.Now())
	if d.Allowed {
		t.Fatal("expired permission must not grant access")
	}
}

func TestResolveVerbMismatchIgnored(t *testing.T) {
	candidates := []Permission{
		{URI: "/api/projects", Verb: VerbPost, Effect: EffectGrant},
	}
	d := Resolve(candidates, "/api/projects", VerbGet, time.Now())
	if d.Allowed {
		t.Fatal("a permission for a different verb must not match")
	}
}
