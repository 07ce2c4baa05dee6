package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
)

func TestCreateTable_InlinesSingleColumnPrimaryKey(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "user")
	require.NoError(t, e.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("email", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))

	stmt := CreateTable(e)
	assert.Contains(t, stmt.SQL, `"id" INT4 NOT NULL PRIMARY KEY`)
	assert.Contains(t, stmt.SQL, `"email" TEXT NOT NULL`)
}

func TestCreateTable_CompositePrimaryKeyIsTableLevel(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "product_category")
	require.NoError(t, e.AddAttribute(entity.NewField("product_id", field.Int{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("category_id", field.Int{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, e))

	stmt := CreateTable(e)
	assert.Contains(t, stmt.SQL, `PRIMARY KEY ("product_id", "category_id")`)
}

func TestForeignKeyConstraintName_SynthesizesConventionalName(t *testing.T) {
	reg := entity.NewRegistry()
	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	user := entity.New("", "user")
	fk := &entity.ForeignKey{Ref: org.Qualified, RefColumn: "id"}
	f := entity.NewField("org_id", field.Int{}, fk)
	require.NoError(t, user.AddAttribute(f))
	require.NoError(t, entity.Finalize(reg, user))

	name := ForeignKeyConstraintName(user, f, fk)
	assert.Equal(t, "fk_user__org_id-organization__id", name)
}

func TestAddForeignKey_EmitsOnDeleteClause(t *testing.T) {
	reg := entity.NewRegistry()
	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	user := entity.New("", "user")
	fk := &entity.ForeignKey{Ref: org.Qualified, RefColumn: "id", OnDelete: entity.ActionCascade}
	f := entity.NewField("org_id", field.Int{}, fk)
	require.NoError(t, user.AddAttribute(f))
	require.NoError(t, entity.Finalize(reg, user))

	stmt := AddForeignKey(user, f, fk)
	assert.Contains(t, stmt.SQL, "ON DELETE CASCADE")
}

func TestCreateCheck_EmitsConstraintAndRecoveryComment(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	f := entity.NewField("balance", field.Numeric{}, &entity.Check{Expr: expr.Gte(expr.NewField("account", "balance"), expr.NewConst(0))})
	require.NoError(t, e.AddAttribute(f))
	require.NoError(t, entity.Finalize(reg, e))

	stmts, err := CreateCheck(e, e.Checks()[0], "account")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0].SQL, "CHECK (")
	assert.Contains(t, stmts[1].SQL, "COMMENT ON CONSTRAINT")
	assert.Contains(t, stmts[1].SQL, `"hash"`)
}

func TestTriggerName_StableForSameWhenAndBody(t *testing.T) {
	a := TriggerName("user", "audit", "BEFORE UPDATE", "BEGIN RETURN NEW; END;")
	b := TriggerName("user", "audit", "BEFORE UPDATE", "BEGIN RETURN NEW; END;")
	assert.Equal(t, a, b)

	c := TriggerName("user", "audit", "BEFORE UPDATE", "BEGIN RETURN OLD; END;")
	assert.NotEqual(t, a, c)
}

func TestAlterColumnDefaultAction_SetAndDrop(t *testing.T) {
	withDefault := entity.NewField("created_at", field.DateTimeTz{}).
		WithDefault(field.Default{SQL: "now()"})
	assert.Equal(t, `ALTER COLUMN "created_at" SET DEFAULT now()`, AlterColumnDefaultAction(withDefault))

	plain := entity.NewField("name", field.String{})
	assert.Equal(t, `ALTER COLUMN "name" DROP DEFAULT`, AlterColumnDefaultAction(plain))
}
