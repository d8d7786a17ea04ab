package domain

import "testing"

func TestLegalEdgeKind(t *testing.T) {
	cases := []struct {
		parent, child Kind
		legal         bool
	}{
		{KindGroup, KindUser, true},
		{KindGroup, KindGroup, true},
		{KindGroup, KindRole, true},
		{KindRole, KindUser, true},
		{KindRole, KindRole, false},
		{KindRole, KindGroup, false},
		{KindUser, KindUser, false},
		{KindUser, KindGroup, false},
	}

	for _, c := range cases {
		if got := LegalEdgeKind(c.parent, c.child); got != c.legal {
			t.Errorf("LegalEdgeKind(%s, %s) = %v, want %v", c.parent, c.child, got, c.legal)
		}
	}
}

func TestCyclePossibleOnlyGroupToGroup(t *testing.T) {
	if !CyclePossible(KindGroup, KindGroup) {
		t.Fatal("group-to-group edges can participate in cycles")
	}
	if CyclePossible(KindRole, KindUser) {
		t.Fatal("role-to-user edges cannot participate in cycles")
	}
}
