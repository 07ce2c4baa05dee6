package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropydb/entity/field"
)

func TestEntity_DuplicateAttributeRejected(t *testing.T) {
	e := New("", "user")
	require.NoError(t, e.AddAttribute(NewField("id", field.Serial{})))
	err := e.AddAttribute(NewField("id", field.String{}))
	assert.Error(t, err)
}

func TestEntity_IndexesAssignedInDeclarationOrder(t *testing.T) {
	e := New("", "user")
	require.NoError(t, e.AddAttribute(NewField("id", field.Serial{})))
	require.NoError(t, e.AddAttribute(NewField("email", field.String{})))
	fields := e.Fields()
	assert.Equal(t, 0, fields[0].Index())
	assert.Equal(t, 1, fields[1].Index())
}

func TestRegistry_DependencyListOrdersFKBeforeDependent(t *testing.T) {
	reg := NewRegistry()

	org := New("", "organization")
	require.NoError(t, org.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, Finalize(reg, org))

	user := New("", "user")
	require.NoError(t, user.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, user.AddAttribute(NewField("org_id", field.Int{}, &ForeignKey{Ref: org.Qualified, RefColumn: "id"})))
	require.NoError(t, Finalize(reg, user))

	list := reg.DependencyList(user)
	require.Len(t, list, 2)
	assert.Equal(t, org.Qualified, list[0].Name)
	assert.Equal(t, user.Qualified, list[len(list)-1].Name)
}

func TestRegistry_DependencyListTeleratesSelfReference(t *testing.T) {
	reg := NewRegistry()
	node := New("", "node")
	require.NoError(t, node.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, node.AddAttribute(NewField("parent_id", field.Int{}, &ForeignKey{Ref: node.Qualified, RefColumn: "id"})))
	require.NoError(t, Finalize(reg, node))

	assert.NotPanics(t, func() { reg.DependencyList(node) })
}

func TestPolymorph_DescendantPKCascadesToParent(t *testing.T) {
	reg := NewRegistry()
	employee := New("", "employee")
	employee.Polymorph = "kind"
	require.NoError(t, employee.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, Finalize(reg, employee))

	worker := New("", "worker")
	require.NoError(t, worker.AddAttribute(DescendantPK(employee, "id", field.Int{})))
	AddDescendant(employee, worker, "worker")
	require.NoError(t, Finalize(reg, worker))

	assert.True(t, worker.IsDescendantOf(employee))
	assert.Equal(t, employee, worker.Root())
	assert.Len(t, employee.PolymorphChildren, 1)

	fk, ok := worker.Fields()[0].Extension("foreign_key")
	require.True(t, ok)
	assert.Equal(t, ActionCascade, fk.(*ForeignKey).OnDelete)
}

func TestMixin_AppliesFreshAttributesPerEntity(t *testing.T) {
	audit := NewMixin(func() []Attribute {
		return []Attribute{
			NewField("created_at", field.DateTimeTz{}),
			NewField("updated_at", field.DateTimeTz{}),
		}
	})

	a := New("", "a")
	b := New("", "b")
	require.NoError(t, audit.ApplyTo(a))
	require.NoError(t, audit.ApplyTo(b))

	af, _ := a.Attribute("created_at")
	bf, _ := b.Attribute("created_at")
	assert.NotSame(t, af, bf)
}

func TestEntity_AliasSharesAttributesWithDistinctName(t *testing.T) {
	e := New("", "user")
	require.NoError(t, e.AddAttribute(NewField("id", field.Serial{})))
	alias := e.Alias("u2")
	assert.Equal(t, "u2", alias.AliasName())
	assert.Equal(t, e, alias.AliasOf())
	_, ok := alias.Attribute("id")
	assert.True(t, ok)
}

func TestUniqueGroups_GroupsByConstraintName(t *testing.T) {
	e := New("", "membership")
	require.NoError(t, e.AddAttribute(NewField("org_id", field.Int{}, &Unique{Name: "uq_org_user"})))
	require.NoError(t, e.AddAttribute(NewField("user_id", field.Int{}, &Unique{Name: "uq_org_user"})))
	groups := e.UniqueGroups()
	assert.Len(t, groups["uq_org_user"], 2)
}

func TestPolymorph_ChildDeleteCascadesViaTrigger(t *testing.T) {
	reg := NewRegistry()
	employee := New("", "employee")
	employee.Polymorph = "kind"
	require.NoError(t, employee.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, Finalize(reg, employee))

	worker := New("", "worker")
	require.NoError(t, worker.AddAttribute(DescendantPK(employee, "id", field.Int{})))
	AddDescendant(employee, worker, "worker")
	require.NoError(t, Finalize(reg, worker))

	require.Len(t, worker.Triggers(), 1)
	trg := worker.Triggers()[0]
	assert.Equal(t, "AFTER DELETE", trg.When)
	assert.Contains(t, trg.Body, `DELETE FROM "employee"`)
	assert.Contains(t, trg.Name, "YT-worker-cascade-")
}

func TestForeignKeyList_RegistersFourTriggers(t *testing.T) {
	reg := NewRegistry()
	tag := New("", "tag")
	require.NoError(t, tag.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, Finalize(reg, tag))

	article := New("", "article")
	require.NoError(t, article.AddAttribute(NewField("id", field.Serial{}, &PrimaryKey{})))
	require.NoError(t, article.AddAttribute(NewField("tag_ids", field.Array{Item: field.Int{}},
		&ForeignKeyList{Ref: tag.Qualified, RefColumn: "id"})))
	require.NoError(t, Finalize(reg, article))

	trgs := article.Triggers()
	require.Len(t, trgs, 4)
	assert.Equal(t, "BEFORE INSERT", trgs[0].When)
	assert.Equal(t, "BEFORE UPDATE", trgs[1].When)
	assert.Nil(t, trgs[0].On, "validation triggers run on the referrer itself")

	require.NotNil(t, trgs[2].On, "propagation triggers run on the referent")
	assert.Equal(t, tag.Qualified, *trgs[2].On)
	assert.Equal(t, "AFTER UPDATE", trgs[2].When)
	assert.Equal(t, "AFTER DELETE", trgs[3].When)
	assert.Contains(t, trgs[3].Body, "array_remove")
}

func TestAddTrigger_NameEmbedsWhenAndBodyHashes(t *testing.T) {
	a := New("", "a")
	a.AddTrigger(Trigger{Name: "audit", When: "BEFORE UPDATE", Body: "BEGIN RETURN NEW; END;"})
	b := New("", "a")
	b.AddTrigger(Trigger{Name: "audit", When: "BEFORE UPDATE", Body: "BEGIN RETURN OLD; END;"})

	assert.NotEqual(t, a.Triggers()[0].Name, b.Triggers()[0].Name)
	assert.Contains(t, a.Triggers()[0].Name, "YT-a-audit-")
}

func TestField_JsonNestedEntityJoinsDependencyList(t *testing.T) {
	f := NewField("meta", field.Json{TypeName: "metadata"})
	deps := f.DependsOn()
	require.Len(t, deps, 1)
	assert.Equal(t, DepEntity, deps[0].Kind)
	assert.Equal(t, "metadata", deps[0].Name.Name)

	arr := NewField("log", field.JsonArray{Schema: "audit", TypeName: "event"})
	deps = arr.DependsOn()
	require.Len(t, deps, 1)
	assert.Equal(t, QualifiedName{Schema: "audit", Name: "event"}, deps[0].Name)

	free := NewField("blob", field.Json{})
	assert.Empty(t, free.DependsOn())
}
