package domain

import "testing"

func TestMatchURILiteral(t *testing.T) {
	ok, _ := MatchURI("/api/projects", "/api/projects")
	if !ok {
		t.Fatal("expected literal match")
	}

	ok, _ = MatchURI("/api/projects", "/api/other")
	if ok {
		t.Fatal("expected no match")
	}
}

func TestMatchURISingleWildcard(t *testing.T) {
	ok, _ := MatchURI("/api/*", "/api/secret")
	if !ok {
		t.Fatal("expected single-segment wildcard match")
	}

	ok, _ = MatchURI("/api/*", "/api/secret/nested")
	if ok {
		t.Fatal("single-segment wildcard must not match deeper paths")
	}
}

func TestMatchURIDoubleStarSuffix(t *testing.T) {
	ok, _ := MatchURI("/api/**", "/api/a/b/c")
	if !ok {
		t.Fatal("expected ** to match arbitrary suffix")
	}

	ok, _ = MatchURI("/api/**", "/api")
	if !ok {
		t.Fatal("expected ** to match zero-length suffix")
	}
}

func TestMatchURINamedParam(t *testing.T) {
	ok, _ := MatchURI("/api/projects/{id}", "/api/projects/42")
	if !ok {
		t.Fatal("expected named param to match a single segment")
	}

	ok, _ = MatchURI("/api/projects/{id}", "/api/projects/42/extra")
	if ok {
		t.Fatal("named param must not match across segment boundary")
	}
}

func TestMatchURITrailingSlashNormalised(t *testing.T) {
	ok, _ := MatchURI("/api/projects/", "/api/projects")
	if !ok {
		t.Fatal("expected trailing slash to be normalised away")
	}
}

func TestSpecificityPrefersLiteralOverWildcard(t *testing.T) {
	_, literalScore := MatchURI("/api/secret", "/api/secret")
	_, wildcardScore := MatchURI("/api/*", "/api/secret")

	if !literalScore.MoreSpecificThan(wildcardScore) {
		t.Fatal("literal match should be more specific than wildcard match")
	}
}
