package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
)

func userEntity(t *testing.T) *entity.Entity {
	reg := entity.NewRegistry()
	u := entity.New("", "user")
	require.NoError(t, u.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, u.AddAttribute(entity.NewField("email", field.String{})))
	require.NoError(t, entity.Finalize(reg, u))
	return u
}

func TestQuery_WithMethodsReturnNewImmutableCopies(t *testing.T) {
	u := userEntity(t)
	base := New(Source{Entity: u, Alias: "u"})
	withWhere := base.Where(expr.Eq(expr.NewField("user", "id"), expr.NewConst(1)))

	assert.Nil(t, base.WhereExpr())
	assert.NotNil(t, withWhere.WhereExpr())
}

func TestQuery_WhereChainsWithAnd(t *testing.T) {
	u := userEntity(t)
	q := New(Source{Entity: u, Alias: "u"}).
		Where(expr.Eq(expr.NewField("user", "id"), expr.NewConst(1))).
		Where(expr.Eq(expr.NewField("user", "email"), expr.NewConst("a@b.com")))

	b, ok := q.WhereExpr().(*expr.Binary)
	require.True(t, ok)
	assert.Equal(t, expr.OpAnd, b.Op)
}

func TestQuery_LimitOffsetAreIndependentlyCloned(t *testing.T) {
	u := userEntity(t)
	base := New(Source{Entity: u, Alias: "u"}).Limit(10)
	paged := base.Offset(20)

	assert.Nil(t, base.OffsetN())
	require.NotNil(t, paged.LimitN())
	assert.Equal(t, 10, *paged.LimitN())
	require.NotNil(t, paged.OffsetN())
	assert.Equal(t, 20, *paged.OffsetN())
}
