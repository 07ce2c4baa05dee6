package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
	"github.com/entropydb/entity/query"
)

func userAndOrgEntities(t *testing.T) (*entity.Entity, *entity.Entity) {
	reg := entity.NewRegistry()
	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	u := entity.New("", "user")
	require.NoError(t, u.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, u.AddAttribute(entity.NewField("org_id", field.Int{})))
	require.NoError(t, entity.Finalize(reg, u))
	return u, org
}

func TestCompile_SimpleWhereProducesPositionalParam(t *testing.T) {
	u, _ := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).
		Where(expr.Eq(expr.NewField("user", "id"), expr.NewConst(1)))

	sql, params, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "u"."id" = $1`)
	assert.Equal(t, []interface{}{1}, params)
}

func TestCompile_JoinResolvesBothAliases(t *testing.T) {
	u, org := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).
		Join(query.Join{
			Kind:   query.JoinInner,
			Source: query.Source{Entity: org, Alias: "o"},
			On:     expr.Eq(expr.NewField("user", "org_id"), expr.NewField("organization", "id")),
		})

	sql, _, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, `JOIN "organization" "o" ON "u"."org_id" = "o"."id"`)
}

func TestCompile_UnresolvedFieldErrors(t *testing.T) {
	u, _ := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).
		Where(expr.Eq(expr.NewField("organization", "id"), expr.NewConst(1)))

	_, _, err := Compile(q)
	assert.Error(t, err)
}

func TestCompile_InListExpandsSliceConst(t *testing.T) {
	u, _ := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).
		Where(expr.NewBinary(expr.OpIn, expr.NewField("user", "id"), expr.NewConst([]int{1, 2, 3})))

	sql, params, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, `"u"."id" IN ($1, $2, $3)`)
	assert.Equal(t, []interface{}{1, 2, 3}, params)
}

func TestCompile_InversionLawProducesIdenticalSQL(t *testing.T) {
	u, _ := userAndOrgEntities(t)
	e := expr.Eq(expr.NewField("user", "id"), expr.NewConst(1))
	twice := expr.Invert(expr.Invert(e))

	q1 := query.New(query.Source{Entity: u, Alias: "u"}).Where(e)
	q2 := query.New(query.Source{Entity: u, Alias: "u"}).Where(twice)

	sql1, _, err := Compile(q1)
	require.NoError(t, err)
	sql2, _, err := Compile(q2)
	require.NoError(t, err)
	assert.Equal(t, sql1, sql2)
}

func TestCompile_LockForUpdateNowait(t *testing.T) {
	u, _ := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).Lock(query.LockForUpdate, true)
	sql, _, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "FOR UPDATE NOWAIT")
}

func TestCompile_ScalarLoadSpecCompilesSubquery(t *testing.T) {
	u, org := userAndOrgEntities(t)
	q := query.New(query.Source{Entity: u, Alias: "u"}).
		WithLoad(query.LoadSpec{
			Alias:     "organization",
			Kind:      query.LoadScalar,
			Remote:    query.Source{Entity: org, Alias: "o"},
			JoinOwner: expr.Eq(expr.NewField("user", "org_id"), expr.NewField("organization", "id")),
		})

	sql, _, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, `(SELECT row_to_json("o".*) FROM "organization" "o" WHERE "u"."org_id" = "o"."id" LIMIT 1) AS "organization"`)
}

func TestCompile_SchemaQualifiedTableNames(t *testing.T) {
	reg := entity.NewRegistry()
	account := entity.New("crm", "account")
	require.NoError(t, account.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, account))

	contact := entity.New("crm", "contact")
	require.NoError(t, contact.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, contact.AddAttribute(entity.NewField("account_id", field.Int{})))
	require.NoError(t, entity.Finalize(reg, contact))

	q := query.New(query.Source{Entity: contact, Alias: "c"}).
		Join(query.Join{
			Kind:   query.JoinInner,
			Source: query.Source{Entity: account, Alias: "a"},
			On:     expr.Eq(expr.NewField("crm.contact", "account_id"), expr.NewField("crm.account", "id")),
		}).
		WithLoad(query.LoadSpec{
			Alias:     "account",
			Kind:      query.LoadScalar,
			Remote:    query.Source{Entity: account, Alias: "la"},
			JoinOwner: expr.Eq(expr.NewField("crm.contact", "account_id"), expr.NewField("crm.account", "id")),
		})

	sql, _, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "crm"."contact" "c"`)
	assert.Contains(t, sql, `JOIN "crm"."account" "a" ON`)
	assert.Contains(t, sql, `FROM "crm"."account" "la"`)
}
