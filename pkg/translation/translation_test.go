package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-acs/acs/pkg/domain"
)

func TestCreateEntityRequest_ToCommand(t *testing.T) {
	cmd, err := CreateEntityRequest{ID: 1, Kind: "User", Name: "alice"}.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, int64(1), cmd.ID)
	assert.Equal(t, domain.KindUser, cmd.Kind)

	kind, err := Classify(cmd)
	require.NoError(t, err)
	assert.Equal(t, OpMutation, kind)
}

func TestCreateEntityRequest_RejectsUnknownKind(t *testing.T) {
	_, err := CreateEntityRequest{ID: 1, Kind: "Robot", Name: "x"}.ToCommand()
	require.Error(t, err)
}

func TestCreateEntityRequest_RejectsEmptyName(t *testing.T) {
	_, err := CreateEntityRequest{ID: 1, Kind: "User", Name: ""}.ToCommand()
	require.Error(t, err)
}

func TestGrantPermissionRequest_ToCommand(t *testing.T) {
	req := GrantPermissionRequest{OwnerID: 10, Permission: PermissionDTO{URI: "/api", Verb: "GET", Effect: "Grant"}}
	cmd, err := req.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, domain.VerbGet, cmd.Permission.Verb)
	assert.Equal(t, domain.EffectGrant, cmd.Permission.Effect)
}

func TestGrantPermissionRequest_RejectsBadVerb(t *testing.T) {
	req := GrantPermissionRequest{OwnerID: 10, Permission: PermissionDTO{URI: "/api", Verb: "FETCH", Effect: "Grant"}}
	_, err := req.ToCommand()
	require.Error(t, err)
}

func TestCheckPermissionRequest_ToQuery(t *testing.T) {
	q, err := CheckPermissionRequest{EntityID: 1, URI: "/api", Verb: "GET"}.ToQuery()
	require.NoError(t, err)

	kind, err := Classify(q)
	require.NoError(t, err)
	assert.Equal(t, OpQuery, kind)
}

func TestBulkPermissionUpdateRequest_ToCommand(t *testing.T) {
	req := BulkPermissionUpdateRequest{
		Ops: []BulkOpRequest{
			{Kind: "Grant", EntityID: 1, Permission: PermissionDTO{URI: "/a", Verb: "GET", Effect: "Grant"}},
		},
		StopOnFirstError: true,
	}
	cmd, err := req.ToCommand()
	require.NoError(t, err)
	require.Len(t, cmd.Ops, 1)
	assert.Equal(t, "Grant", string(cmd.Ops[0].Kind))
}

func TestBulkPermissionUpdateRequest_RejectsUnknownOpKind(t *testing.T) {
	req := BulkPermissionUpdateRequest{Ops: []BulkOpRequest{{Kind: "Destroy", EntityID: 1}}}
	_, err := req.ToCommand()
	require.Error(t, err)
}
