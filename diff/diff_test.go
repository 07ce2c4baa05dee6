package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/field"
	reflectpkg "github.com/entropydb/entity/reflect"
)

func mustEntity(t *testing.T, reg *entity.Registry, name string, fields ...*entity.Field) *entity.Entity {
	t.Helper()
	e := entity.New("", name)
	for _, f := range fields {
		require.NoError(t, e.AddAttribute(f))
	}
	require.NoError(t, entity.Finalize(reg, e))
	return e
}

func TestDiff_CreatesMissingEntityAndDropsUndeclaredLiveTable(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account", entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}))

	live := &reflectpkg.Schema{Tables: []reflectpkg.Table{{Name: "legacy"}}}
	changes := New(reg, live).Diff()

	var sawCreate, sawDropLegacy bool
	for _, c := range changes {
		if ce, ok := c.(CreateEntity); ok && ce.Entity.Qualified.Name == "account" {
			sawCreate = true
		}
		if de, ok := c.(DropEntity); ok && de.Entity.Name == "legacy" {
			sawDropLegacy = true
		}
	}
	assert.True(t, sawCreate, "declared entity missing from the live schema should produce CreateEntity")
	assert.True(t, sawDropLegacy, "live table absent from the registry should produce DropEntity")
}

func TestDiff_AddAndDropField(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("email", field.String{}))

	live := &reflectpkg.Schema{Tables: []reflectpkg.Table{{
		Name: "account",
		Columns: []reflectpkg.Column{
			{Name: "id", UDTName: "int4"},
			{Name: "legacy_flag", UDTName: "bool"},
		},
	}}}

	changes := New(reg, live).Diff()
	var sawAddEmail, sawDropLegacy bool
	for _, c := range changes {
		if af, ok := c.(AddField); ok && af.Field.Name() == "email" {
			sawAddEmail = true
		}
		if df, ok := c.(DropField); ok && df.Column == "legacy_flag" {
			sawDropLegacy = true
		}
	}
	assert.True(t, sawAddEmail)
	assert.True(t, sawDropLegacy)
}

func TestDiff_AlterFieldDetectsTypeAndNullabilityDrift(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("balance", field.Numeric{}))

	live := &reflectpkg.Schema{Tables: []reflectpkg.Table{{
		Name: "account",
		Columns: []reflectpkg.Column{
			{Name: "id", UDTName: "int4"},
			{Name: "balance", UDTName: "text", Nullable: true},
		},
	}}}

	changes := New(reg, live).Diff()
	var sawType, sawNullable bool
	for _, c := range changes {
		af, ok := c.(AlterField)
		if !ok || af.Field.Name() != "balance" {
			continue
		}
		if af.Prop == "type" {
			sawType = true
		}
		if af.Prop == "nullable" {
			sawNullable = true
		}
	}
	assert.True(t, sawType)
	assert.True(t, sawNullable)
}

func TestDiff_NewEntityEmitsConstraintsIndexesAndTriggers(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.New("", "account")
	require.NoError(t, e.AddAttribute(entity.NewField("id", field.Serial{}, &entity.PrimaryKey{})))
	require.NoError(t, e.AddAttribute(entity.NewField("email", field.String{}, &entity.Unique{Name: "uq_account_email"})))
	require.NoError(t, e.AddAttribute(entity.NewField("balance", field.Numeric{},
		&entity.Check{Name: "ck_balance_nonneg", Expr: expr.Gte(expr.NewField("account", "balance"), expr.NewConst(0))})))
	require.NoError(t, e.AddAttribute(entity.NewField("org_id", field.Int{}, &entity.Index{Name: "ix_account_org"})))
	e.AddTrigger(entity.Trigger{Name: "audit", When: "BEFORE UPDATE", Body: "BEGIN RETURN NEW; END;"})
	require.NoError(t, entity.Finalize(reg, e))

	live := &reflectpkg.Schema{}
	changes := New(reg, live).Diff()

	var kinds []ChangeKind
	for _, c := range changes {
		kinds = append(kinds, c.Kind())
	}
	assert.Contains(t, kinds, KindCreateEntity)
	assert.Contains(t, kinds, KindAddConstraint)
	assert.Contains(t, kinds, KindAddIndex)
	assert.Contains(t, kinds, KindAddTrigger)
}

func TestDiff_DropConstraintIndexAndTriggerForLiveOnlyObjects(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account", entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}))

	live := &reflectpkg.Schema{Tables: []reflectpkg.Table{{
		Name:        "account",
		Columns:     []reflectpkg.Column{{Name: "id", UDTName: "int4"}},
		Constraints: []reflectpkg.Constraint{{Name: "uq_old", Kind: "u"}},
		Indexes:     []reflectpkg.Index{{Name: "ix_old"}},
		Triggers:    []reflectpkg.Trigger{{Name: "trg_old"}},
	}}}

	changes := New(reg, live).Diff()
	var sawDropConstraint, sawDropIndex, sawDropTrigger bool
	for _, c := range changes {
		switch v := c.(type) {
		case DropConstraint:
			if v.Name == "uq_old" {
				sawDropConstraint = true
			}
		case DropIndex:
			if v.Name == "ix_old" {
				sawDropIndex = true
			}
		case DropTrigger:
			if v.Trigger.Name == "trg_old" {
				sawDropTrigger = true
			}
		}
	}
	assert.True(t, sawDropConstraint)
	assert.True(t, sawDropIndex)
	assert.True(t, sawDropTrigger)
}

func TestDiff_SequenceCreateAndDropAreSymmetric(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account", entity.NewField("id", field.Serial{},
		&entity.PrimaryKey{}, &entity.AutoIncrement{Sequence: "account_id_seq"}))

	live := &reflectpkg.Schema{Sequences: []string{"orphan_seq"}}
	changes := New(reg, live).Diff()

	var sawCreate, sawDrop bool
	for _, c := range changes {
		if cs, ok := c.(CreateSequence); ok && cs.Name.Name == "account_id_seq" {
			sawCreate = true
		}
		if ds, ok := c.(DropSequence); ok && ds.Name.Name == "orphan_seq" {
			sawDrop = true
		}
	}
	assert.True(t, sawCreate)
	assert.True(t, sawDrop)
}

func TestDiff_CompositeTypeDropAndRecreateOnShapeMismatch(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.NewVirtual("", "address")
	require.NoError(t, e.AddAttribute(entity.NewField("street", field.String{})))
	require.NoError(t, e.AddAttribute(entity.NewField("city", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))
	mustEntity(t, reg, "person",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("addr", field.Composite{TypeName: "address"}))

	live := &reflectpkg.Schema{
		Tables: []reflectpkg.Table{{
			Name: "person",
			Columns: []reflectpkg.Column{
				{Name: "id", UDTName: "int4"},
				{Name: "addr", UDTName: "address"},
			},
		}},
		CompositeTypes: []reflectpkg.CompositeType{{
			Name:    "address",
			Columns: []reflectpkg.Column{{Name: "street"}},
		}},
	}

	changes := New(reg, live).Diff()
	require.Len(t, changes, 2)
	_, isDrop := changes[0].(DropCompositeType)
	_, isCreate := changes[1].(CreateCompositeType)
	assert.True(t, isDrop)
	assert.True(t, isCreate)
}

func TestDiff_CompositeTypeUnchangedProducesNoChange(t *testing.T) {
	reg := entity.NewRegistry()
	e := entity.NewVirtual("", "address")
	require.NoError(t, e.AddAttribute(entity.NewField("street", field.String{})))
	require.NoError(t, entity.Finalize(reg, e))
	mustEntity(t, reg, "person",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("addr", field.Composite{TypeName: "address"}))

	live := &reflectpkg.Schema{
		Tables: []reflectpkg.Table{{
			Name: "person",
			Columns: []reflectpkg.Column{
				{Name: "id", UDTName: "int4"},
				{Name: "addr", UDTName: "address"},
			},
		}},
		CompositeTypes: []reflectpkg.CompositeType{{
			Name:    "address",
			Columns: []reflectpkg.Column{{Name: "street"}},
		}},
	}

	changes := New(reg, live).Diff()
	assert.Empty(t, changes)
}

func TestDiff_JsonNestedEntityCreatesNoCompositeType(t *testing.T) {
	reg := entity.NewRegistry()
	meta := entity.NewVirtual("", "metadata")
	require.NoError(t, meta.AddAttribute(entity.NewField("source", field.String{})))
	require.NoError(t, entity.Finalize(reg, meta))
	doc := mustEntity(t, reg, "document",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("meta", field.Json{TypeName: "metadata"}))

	changes := New(reg, &reflectpkg.Schema{}).Diff()
	for _, c := range changes {
		_, isCreateType := c.(CreateCompositeType)
		assert.False(t, isCreateType, "a Json-nested entity must not produce a composite type")
	}

	deps := reg.DependencyList(doc)
	var sawMeta bool
	for _, n := range deps[:len(deps)-1] {
		if n.Name.Name == "metadata" {
			sawMeta = true
		}
	}
	assert.True(t, sawMeta, "the Json-nested entity joins the owner's dependency list")
}

func TestDiff_AlterFieldDetectsDefaultDrift(t *testing.T) {
	reg := entity.NewRegistry()
	mustEntity(t, reg, "account",
		entity.NewField("id", field.Serial{}, &entity.PrimaryKey{}),
		entity.NewField("created_at", field.DateTimeTz{}).WithDefault(field.Default{SQL: "now()"}))

	live := &reflectpkg.Schema{Tables: []reflectpkg.Table{{
		Name: "account",
		Columns: []reflectpkg.Column{
			{Name: "id", UDTName: "int4"},
			{Name: "created_at", UDTName: "timestamptz"},
		},
	}}}

	changes := New(reg, live).Diff()
	var sawDefault bool
	for _, c := range changes {
		if af, ok := c.(AlterField); ok && af.Field.Name() == "created_at" && af.Prop == "default" {
			sawDefault = true
		}
	}
	assert.True(t, sawDefault, "a declared server default missing live must surface as default drift")
}

func TestDefaultsEqual_NormalizesReflectedClauses(t *testing.T) {
	assert.True(t, defaultsEqual("nextval('User_id_seq')", `nextval('"User_id_seq"'::regclass)`))
	assert.True(t, defaultsEqual("now()", "now()"))
	assert.True(t, defaultsEqual("", ""))
	assert.True(t, defaultsEqual("'x'", "'x'::character varying"))
	assert.False(t, defaultsEqual("now()", ""))
	assert.False(t, defaultsEqual("'a'", "'b'::text"))
}

func TestFixtureChanges_AddUpdateAndDeleteScenarios(t *testing.T) {
	reg := entity.NewRegistry()
	e := mustEntity(t, reg, "status",
		entity.NewField("code", field.String{}, &entity.PrimaryKey{}),
		entity.NewField("label", field.String{}))
	e.FixEntries = []entity.FixEntry{
		{PK: []interface{}{"active"}, Values: map[string]interface{}{"label": "Active"}},
		{PK: []interface{}{"pending"}, Values: map[string]interface{}{"label": "Still Pending"}},
	}

	liveRows := []FixtureRow{
		{PK: []interface{}{"pending"}, Values: map[string]interface{}{"label": "Pending"}},
		{PK: []interface{}{"archived"}, Values: map[string]interface{}{"label": "Archived"}},
	}

	d := New(reg, &reflectpkg.Schema{})
	changes := d.FixtureChanges(e, liveRows)

	var sawAdd, sawUpdate, sawDelete bool
	for _, c := range changes {
		switch v := c.(type) {
		case AddFixture:
			if pkKey(v.Entry.PK) == pkKey([]interface{}{"active"}) {
				sawAdd = true
			}
		case UpdateFixture:
			if pkKey(v.Entry.PK) == pkKey([]interface{}{"pending"}) {
				sawUpdate = true
			}
		case DeleteFixture:
			if pkKey(v.PK) == pkKey([]interface{}{"archived"}) {
				sawDelete = true
			}
		}
	}
	assert.True(t, sawAdd, "a declared row missing live should be added")
	assert.True(t, sawUpdate, "a declared row whose values drifted should be updated")
	assert.True(t, sawDelete, "a live row no longer declared should be deleted")
}
