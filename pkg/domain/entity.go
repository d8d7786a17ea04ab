// Package domain holds the access control service's pure data model:
// entity kinds, permission records, and the side-effect-free functions
// that decide edge legality and access outcomes (spec C1). Nothing in
// this package performs I/O or takes a lock; pkg/graph is the stateful
// owner that uses these functions.
package domain

import "time"

// Kind enumerates the three entity kinds the graph can hold.
type Kind string

const (
	KindUser  Kind = "User"
	KindGroup Kind = "Group"
	KindRole  Kind = "Role"
)

// Verb is one of the HTTP-shaped verbs a Permission may gate.
type Verb string

const (
	VerbGet     Verb = "GET"
	VerbPost    Verb = "POST"
	VerbPut     Verb = "PUT"
	VerbPatch   Verb = "PATCH"
	VerbDelete  Verb = "DELETE"
	VerbHead    Verb = "HEAD"
	VerbOptions Verb = "OPTIONS"
	VerbConnect Verb = "CONNECT"
	VerbTrace   Verb = "TRACE"
)

// Effect is the outcome a matching Permission contributes to resolution.
type Effect string

const (
	EffectGrant Effect = "Grant"
	EffectDeny  Effect = "Deny"
)

// MetaValue is the allowed value shape for Permission.Metadata, kept
// narrow so that persistence can serialise it as plain JSON.
type MetaValue = interface{}

// Permission is a single access rule owned by exactly one entity.
type Permission struct {
	URI       string
	Verb      Verb
	Effect    Effect
	Scheme    string
	ExpiresAt *time.Time
	Metadata  map[string]MetaValue
}

// Expired reports whether the permission is no longer in force at instant at.
func (p Permission) Expired(at time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(at)
}

// Equal compares the fields that make two Permission records the same
// rule, for RevokePermission lookups (metadata is excluded deliberately
// so callers can revoke without restating it).
func (p Permission) Equal(other Permission) bool {
	return p.URI == other.URI && p.Verb == other.Verb && p.Effect == other.Effect && p.Scheme == other.Scheme
}

// Entity is one User, Group, or Role. The graph is the sole owner of
// Entity values; everything else holds only an id (spec §3 ownership
// rule). Parents/Children are stored as edge sets in the graph's
// indices, not as pointers here, so Entity carries none.
type Entity struct {
	ID          int64
	Kind        Kind
	Name        string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy sufficient for safe hand-off across the
// reader-lock boundary (no shared permission slice backing array).
func (e Entity) Clone() Entity {
	out := e
	out.Permissions = make([]Permission, len(e.Permissions))
	copy(out.Permissions, e.Permissions)
	return out
}
