package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
	"github.com/entropydb/entity/relation"
)

func orgUserWithRelation(t *testing.T) (*entity.Entity, *entity.Entity) {
	t.Helper()
	reg := entity.NewRegistry()

	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	user := entity.New("", "user")
	require.NoError(t, user.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, user.AddAttribute(entity.NewField("org_id", field.Int{})))
	require.NoError(t, user.AddAttribute(relation.NewOne("organization", org, "org_id", "id")))
	require.NoError(t, entity.Finalize(reg, user))
	return user, org
}

func TestExpand_ForeignFieldInjectsInnerJoin(t *testing.T) {
	user, org := orgUserWithRelation(t)

	q := New(Source{Entity: user, Alias: "u"}).
		Where(expr.Eq(expr.NewField("organization", "id"), expr.NewConst(1)))

	expanded, err := Expand(q)
	require.NoError(t, err)
	require.Len(t, expanded.Joins(), 1)
	assert.Equal(t, JoinInner, expanded.Joins()[0].Kind)
	assert.Same(t, org, expanded.Joins()[0].Source.Entity)
}

func TestExpand_ReferenceInsideOrInjectsLeftJoin(t *testing.T) {
	user, _ := orgUserWithRelation(t)

	q := New(Source{Entity: user, Alias: "u"}).
		Where(expr.Or(
			expr.Eq(expr.NewField("organization", "id"), expr.NewConst(1)),
			expr.Eq(expr.NewField("user", "id"), expr.NewConst(2)),
		))

	expanded, err := Expand(q)
	require.NoError(t, err)
	require.Len(t, expanded.Joins(), 1)
	assert.Equal(t, JoinLeft, expanded.Joins()[0].Kind)
}

func TestExpand_ExistingSourceAddsNoJoin(t *testing.T) {
	user, _ := orgUserWithRelation(t)

	q := New(Source{Entity: user, Alias: "u"}).
		Where(expr.Eq(expr.NewField("user", "id"), expr.NewConst(1)))

	expanded, err := Expand(q)
	require.NoError(t, err)
	assert.Empty(t, expanded.Joins())
}

func TestExpand_RelationPathRewritesToJoinedField(t *testing.T) {
	user, org := orgUserWithRelation(t)

	path := expr.NewPath(
		expr.NewField("user", "organization"),
		expr.PathSegment{Kind: expr.SegmentRelation, Name: "id"},
	)
	q := New(Source{Entity: user, Alias: "u"}).
		Where(expr.Eq(path, expr.NewConst(1)))

	expanded, err := Expand(q)
	require.NoError(t, err)
	require.Len(t, expanded.Joins(), 1)
	assert.Same(t, org, expanded.Joins()[0].Source.Entity)

	where := expanded.WhereExpr().(*expr.Binary)
	ref := where.Left.(*expr.FieldRef)
	assert.Equal(t, "organization", ref.Entity)
	assert.Equal(t, "id", ref.Column)
}

func TestExpand_LeavesOriginalQueryUntouched(t *testing.T) {
	user, _ := orgUserWithRelation(t)

	q := New(Source{Entity: user, Alias: "u"}).
		Where(expr.Eq(expr.NewField("organization", "id"), expr.NewConst(1)))

	_, err := Expand(q)
	require.NoError(t, err)
	assert.Empty(t, q.Joins(), "Expand must clone, not mutate, the immutable query")
}

func TestCompileCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCompileCache(2)
	c.Set("a", CompiledQuery{SQL: "A"})
	c.Set("b", CompiledQuery{SQL: "B"})

	_, ok := c.Get("a") // touch a so b is the eviction candidate
	require.True(t, ok)

	c.Set("c", CompiledQuery{SQL: "C"})
	_, ok = c.Get("b")
	assert.False(t, ok)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", got.SQL)
}
