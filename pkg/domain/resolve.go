package domain

import "time"

// Decision is the outcome of resolving a (uri, verb) request against a
// set of candidate permissions, per spec §4.1's decision function.
type Decision struct {
	Allowed    bool
	Effect     Effect
	Matched    []Permission
	DenyCount  int
	GrantCount int
}

// Resolve applies the effect-resolution algorithm of spec §4.1 to the
// permissions owned directly by an entity plus those collected from its
// ancestors. Callers (pkg/graph) do the ancestor walk; this function is
// pure and only needs the flattened candidate set.
func Resolve(candidates []Permission, uri string, verb Verb, at time.Time) Decision {
	var matched []Permission
	denies, grants := 0, 0

	for _, p := range candidates {
		if p.Verb != verb {
			continue
		}
		if p.Expired(at) {
			continue
		}
		if ok, _ := MatchURI(p.URI, uri); !ok {
			continue
		}
		matched = append(matched, p)
		if p.Effect == EffectDeny {
			denies++
		} else {
			grants++
		}
	}

	d := Decision{Matched: matched, DenyCount: denies, GrantCount: grants}
	switch {
	case denies > 0:
		d.Allowed = false
		d.Effect = EffectDeny
	case grants > 0:
		d.Allowed = true
		d.Effect = EffectGrant
	default:
		d.Allowed = false
		d.Effect = EffectDeny
	}
	return d
}

// MostSpecific returns the permission in perms with the strongest
// specificity score against uri, used by GetEffectivePermissions when
// resolveConflicts is requested to explain which rule decided the
// outcome. Returns false if perms is empty.
func MostSpecific(perms []Permission, uri string) (Permission, bool) {
	var best Permission
	var bestScore specificityScore
	found := false

	for _, p := range perms {
		ok, score := MatchURI(p.URI, uri)
		if !ok {
			continue
		}
		if !found || score.MoreSpecificThan(bestScore) {
			best = p
			bestScore = score
			found = true
		}
	}
	return best, found
}
