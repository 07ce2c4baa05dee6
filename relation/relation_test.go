package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
)

func buildTwoEntities(t *testing.T) (*entity.Registry, *entity.Entity, *entity.Entity) {
	reg := entity.NewRegistry()

	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	user := entity.New("", "user")
	require.NoError(t, user.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, user.AddAttribute(entity.NewField("org_id", field.Int{})))
	return reg, org, user
}

func TestOne_JoinConditionReferencesBothAliases(t *testing.T) {
	reg, org, user := buildTwoEntities(t)
	rel := NewOne("organization", org, "org_id", "id")
	require.NoError(t, user.AddAttribute(rel))
	require.NoError(t, entity.Finalize(reg, user))

	cond := rel.JoinCondition("u", "o").(*expr.Binary)
	assert.Equal(t, expr.OpEq, cond.Op)
	left := cond.Left.(*expr.FieldRef)
	assert.Equal(t, "u", left.Entity)
	assert.Equal(t, "org_id", left.Column)
}

func TestOne_DependsOnRemoteEntity(t *testing.T) {
	_, org, _ := buildTwoEntities(t)
	rel := NewOne("organization", org, "org_id", "id")
	deps := rel.DependsOn()
	require.Len(t, deps, 1)
	assert.Equal(t, org.Qualified, deps[0].Name)
}

func TestMany_LoadKindIsArrayAgg(t *testing.T) {
	_, _, user := buildTwoEntities(t)
	rel := NewMany("users", user, "id", "org_id")
	assert.Equal(t, LoadArrayAgg, rel.LoadKind())
}

func TestManyAcross_SynthesizesBothJoinConditions(t *testing.T) {
	reg, org, user := buildTwoEntities(t)
	role := entity.New("", "role")
	require.NoError(t, role.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, role))

	userRole := entity.New("", "user_role")
	require.NoError(t, userRole.AddAttribute(entity.NewField("user_id", field.Int{})))
	require.NoError(t, userRole.AddAttribute(entity.NewField("role_id", field.Int{})))
	require.NoError(t, entity.Finalize(reg, userRole))

	rel := NewManyAcross("roles", role, userRole, "id", "user_id", "id", "role_id")
	require.NoError(t, user.AddAttribute(rel))
	require.NoError(t, entity.Finalize(reg, user))

	ownerCond := rel.OwnerJoinCondition("u", "ur").(*expr.Binary)
	assert.Equal(t, "ur", ownerCond.Left.(*expr.FieldRef).Entity)

	remoteCond := rel.RemoteJoinCondition("ur", "r").(*expr.Binary)
	assert.Equal(t, "r", remoteCond.Right.(*expr.FieldRef).Entity)

	_ = org
}
