package sync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/diff"
	"github.com/entropydb/entity/field"
	reflectpkg "github.com/entropydb/entity/reflect"
)

func TestOrder_NoChangesProducesEmptyScript(t *testing.T) {
	reg := entity.NewRegistry()
	script, err := Order(reg, nil)
	require.NoError(t, err)
	assert.True(t, script.Empty())
	assert.Equal(t, "", script.SQL())
}

func TestOrder_CreatesFollowDependencyOrder(t *testing.T) {
	reg := entity.NewRegistry()
	org := entity.New("", "organization")
	require.NoError(t, org.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, org))

	user := entity.New("", "user")
	fk := &entity.ForeignKey{Ref: org.Qualified, RefColumn: "id"}
	require.NoError(t, user.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, user.AddAttribute(entity.NewField("org_id", field.Int{}, fk)))
	require.NoError(t, entity.Finalize(reg, user))

	changes := []diff.Change{
		diff.CreateEntity{Entity: user},
		diff.AddForeignKey{Entity: user, Field: mustField(user, "org_id"), FK: fk},
		diff.CreateEntity{Entity: org},
	}

	script, err := Order(reg, changes)
	require.NoError(t, err)

	orgIdx := indexOfSubstring(t, script, `CREATE TABLE "organization"`)
	userIdx := indexOfSubstring(t, script, `CREATE TABLE "user"`)
	fkIdx := indexOfSubstring(t, script, "ADD CONSTRAINT")
	assert.Less(t, orgIdx, userIdx, "organization must be created before user, which depends on it")
	assert.Less(t, userIdx, fkIdx, "the foreign key is only added once every table exists")
}

func TestOrder_GroupsColumnChangesIntoOneAlterTable(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	idField := entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})
	require.NoError(t, e.AddAttribute(idField))
	require.NoError(t, entity.Finalize(reg, e))

	newField := entity.NewField("nickname", field.String{})
	changes := []diff.Change{
		diff.AddField{Entity: e, Field: newField},
		diff.AlterField{Entity: e, Field: idField, Prop: "nullable"},
		diff.DropField{Entity: e.Qualified, Column: "legacy_flag"},
	}

	script, err := Order(reg, changes)
	require.NoError(t, err)
	require.Len(t, script.Statements, 1)
	sql := script.Statements[0].SQL
	assert.Contains(t, sql, "ALTER TABLE")
	assert.Contains(t, sql, "ADD COLUMN")
	assert.Contains(t, sql, "DROP COLUMN")
	assert.Contains(t, sql, "SET NOT NULL")
}

func TestOrder_FixtureInsertUsesOnConflictDoNothing(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "status")
	require.NoError(t, e.AddAttribute(entity.NewField("code", field.String{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("label", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))

	entry := entity.FixEntry{PK: []interface{}{"active"}, Values: map[string]interface{}{"label": "Active"}}
	script, err := Order(reg, []diff.Change{diff.AddFixture{Entity: e, Entry: entry}})
	require.NoError(t, err)
	require.Len(t, script.Statements, 1)
	sql := script.Statements[0].SQL
	assert.Contains(t, sql, "INSERT INTO")
	assert.Contains(t, sql, "ON CONFLICT")
	assert.Contains(t, sql, "DO NOTHING")
}

func TestOrder_FixtureUpdateEmitsPlainUpdate(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "status")
	require.NoError(t, e.AddAttribute(entity.NewField("code", field.String{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("label", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))

	entry := entity.FixEntry{PK: []interface{}{"active"}, Values: map[string]interface{}{"label": "Now Active"}}
	script, err := Order(reg, []diff.Change{diff.UpdateFixture{Entity: e, Entry: entry}})
	require.NoError(t, err)
	require.Len(t, script.Statements, 1)
	sql := script.Statements[0].SQL
	assert.Contains(t, sql, "UPDATE")
	assert.Contains(t, sql, `"code" = 'active'`)
	assert.NotContains(t, sql, "INSERT")
}

func TestOrder_DropsPrecedeCreatesInOutput(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	require.NoError(t, e.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, entity.Finalize(reg, e))

	changes := []diff.Change{
		diff.CreateEntity{Entity: e},
		diff.DropEntity{Entity: entity.QualifiedName{Name: "legacy_table"}},
	}
	script, err := Order(reg, changes)
	require.NoError(t, err)

	dropIdx := indexOfSubstring(t, script, `DROP TABLE "legacy_table"`)
	createIdx := indexOfSubstring(t, script, `CREATE TABLE "account"`)
	assert.Less(t, dropIdx, createIdx)
}

func TestPositionsMatch_DetectsReorderedColumns(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	require.NoError(t, e.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("email", field.String{})))
	require.NoError(t, e.AddAttribute(entity.NewField("name", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))

	inOrder := &reflectpkg.Table{Columns: []reflectpkg.Column{{Name: "id"}, {Name: "email"}, {Name: "name"}}}
	assert.True(t, PositionsMatch(e, inOrder))

	reordered := &reflectpkg.Table{Columns: []reflectpkg.Column{{Name: "id"}, {Name: "name"}, {Name: "email"}}}
	assert.False(t, PositionsMatch(e, reordered))
}

func TestOrderWithRecreate_UsesShadowTableForFlaggedEntity(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	idField := entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})
	require.NoError(t, e.AddAttribute(idField))
	require.NoError(t, entity.Finalize(reg, e))

	changes := []diff.Change{
		diff.AlterField{Entity: e, Field: idField, Prop: "nullable"},
	}
	script, err := OrderWithRecreate(reg, changes, map[string]bool{"account": true})
	require.NoError(t, err)

	var sawCreateTmp, sawInsertSelect, sawDrop, sawRename bool
	for _, stmt := range script.Statements {
		switch {
		case strings.Contains(stmt.SQL, `CREATE TABLE "account_tmp"`):
			sawCreateTmp = true
		case strings.Contains(stmt.SQL, `INSERT INTO "account_tmp"`) && strings.Contains(stmt.SQL, "SELECT"):
			sawInsertSelect = true
		case strings.Contains(stmt.SQL, `DROP TABLE "account"`):
			sawDrop = true
		case strings.Contains(stmt.SQL, `RENAME TO "account"`):
			sawRename = true
		}
	}
	assert.True(t, sawCreateTmp)
	assert.True(t, sawInsertSelect)
	assert.True(t, sawDrop)
	assert.True(t, sawRename)
}

func mustField(e *entity.Entity, name string) *entity.Field {
	a, ok := e.Attribute(name)
	if !ok {
		panic("field not found: " + name)
	}
	return a.(*entity.Field)
}

func indexOfSubstring(t *testing.T, script *Script, needle string) int {
	t.Helper()
	for i, stmt := range script.Statements {
		if strings.Contains(stmt.SQL, needle) {
			return i
		}
	}
	t.Fatalf("statement containing %q not found in script:\n%s", needle, script.SQL())
	return -1
}

func TestOrder_AlterFieldDefaultEmitsSetDefault(t *testing.T) {
	reg := entity.NewRegistry()
	account := entity.New("", "account")
	require.NoError(t, account.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, account.AddAttribute(entity.NewField("created_at", field.DateTimeTz{}).
		WithDefault(field.Default{SQL: "now()"})))
	require.NoError(t, entity.Finalize(reg, account))

	changes := []diff.Change{
		diff.AlterField{Entity: account, Field: mustField(account, "created_at"), Prop: "default"},
	}
	script, err := Order(reg, changes)
	require.NoError(t, err)
	assert.Contains(t, script.SQL(), `ALTER TABLE "account"`)
	assert.Contains(t, script.SQL(), `ALTER COLUMN "created_at" SET DEFAULT now()`)
}
