// Package entity implements the declarative metamodel: entity types,
// attributes (fields, relations, virtuals), extensions, polymorphism,
// mixins, and the registry that orders them by dependency. Entity
// construction is a builder invoked once per declaration.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/entropydb/entity/dberrors"
)

// QualifiedName is a {schema?, name} pair identifying an entity,
// sequence, or composite type.
type QualifiedName struct {
	Schema string
	Name   string
}

func (q QualifiedName) String() string {
	if q.Schema == "" {
		return q.Name
	}
	return q.Schema + "." + q.Name
}

// AttributeKind distinguishes the three disjoint attribute kinds.
type AttributeKind int

const (
	AttrField AttributeKind = iota
	AttrRelation
	AttrVirtual
)

// Attribute is the common interface every entity member satisfies.
// Field and VirtualAttribute implement it directly in this package;
// package relation's One/Many/ManyAcross implement it by embedding
// AttrBase.
type Attribute interface {
	Name() string
	Index() int
	AttrKind() AttributeKind
	// DependsOn lists entities/sequences/composite types this attribute
	// requires to already exist, feeding Registry.DependencyList.
	DependsOn() []Dep
}

// DepKind distinguishes the three kinds of dependency node tracked by
// the registry's dependency list.
type DepKind int

const (
	DepEntity DepKind = iota
	DepSequence
	DepComposite
)

// Dep is one dependency-list node.
type Dep struct {
	Kind DepKind
	Name QualifiedName
}

// AttrBase provides the declaration-order bookkeeping every Attribute
// implementation embeds: a stable, monotonically increasing `_index_`
// assigned by Entity.AddAttribute, and the symbolic `_key_` name.
type AttrBase struct {
	name  string
	index int
}

// NewAttrBase starts an attribute with an unassigned index (-1 until the
// owning entity binds it).
func NewAttrBase(name string) AttrBase { return AttrBase{name: name, index: -1} }

func (a *AttrBase) Name() string   { return a.name }
func (a *AttrBase) Index() int     { return a.index }
func (a *AttrBase) SetIndex(i int) { a.index = i }

// Entity is a declarative schema binding a unique qualified name to an
// ordered, deduplicated sequence of attributes.
type Entity struct {
	Qualified QualifiedName
	Registry  *Registry

	// Virtual marks a composite/json nested entity that never owns a
	// table: it participates in the dependency list (so its composite
	// type precedes referring tables) but is excluded from table
	// creation.
	Virtual bool

	// Polymorph, set on a base entity, names the discriminator column.
	Polymorph string
	// PolymorphID, set on a descendant, is its discriminator literal.
	PolymorphID interface{}
	// PolymorphParent, set on a descendant, is the ancestor entity.
	PolymorphParent *Entity
	// PolymorphChildren lists descendants in declaration order, filled
	// in as each descendant registers.
	PolymorphChildren []*Entity

	// FixEntries are declarative seed rows persisted by sync.
	FixEntries []FixEntry

	attrs       []Attribute
	byName      map[string]Attribute
	triggers    []Trigger
	aliasOf     *Entity
	aliasName   string
	finalized   bool
}

// FixEntry is one seed row, keyed by the entity's declared primary-key
// column order.
type FixEntry struct {
	PK     []interface{}
	Values map[string]interface{}
}

// Trigger describes a database trigger owned by an entity, usually
// registered as a side effect of an extension's Bind hook.
type Trigger struct {
	Name string
	When string // e.g. "BEFORE UPDATE"
	Body string // function body SQL
	// On overrides the table the trigger is created on; nil means the
	// owning entity's own table. ForeignKeyList's referent-side
	// propagation triggers live on the referenced table, not the
	// declaring one.
	On *QualifiedName
}

// New starts an entity declaration. Call Field/AddAttribute to populate
// it, then Finalize to run extension binding and registration.
func New(schema, name string) *Entity {
	return &Entity{
		Qualified: QualifiedName{Schema: schema, Name: name},
		byName:    make(map[string]Attribute),
	}
}

// NewVirtual starts a composite/json nested entity declaration (no table).
func NewVirtual(schema, name string) *Entity {
	e := New(schema, name)
	e.Virtual = true
	return e
}

// AddAttribute appends an attribute, assigning it the next declaration
// index. Duplicate names within one entity (including across mixins) are
// rejected.
func (e *Entity) AddAttribute(a Attribute) error {
	if _, exists := e.byName[a.Name()]; exists {
		return &dberrors.SchemaError{Entity: e.Qualified.String(), Field: a.Name(), Message: "duplicate attribute"}
	}
	if setter, ok := a.(indexSetter); ok {
		setter.SetIndex(len(e.attrs))
	}
	e.attrs = append(e.attrs, a)
	e.byName[a.Name()] = a
	return nil
}

type indexSetter interface {
	SetIndex(int)
}

// Attributes returns every attribute in declaration order.
func (e *Entity) Attributes() []Attribute { return e.attrs }

// Attribute looks up an attribute by name.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	a, ok := e.byName[name]
	return a, ok
}

// Fields returns only the Field-kind attributes of e itself, in
// declaration order; fields of polymorphic ancestors or descendants are
// not included (see AllFieldsWithDescendants).
func (e *Entity) Fields() []*Field {
	var out []*Field
	for _, a := range e.attrs {
		if f, ok := a.(*Field); ok {
			out = append(out, f)
		}
	}
	return out
}

// AllFieldsWithDescendants returns this entity's own fields followed by
// each polymorphic descendant's own fields, in child-declaration order —
// the column set a wide polymorph SELECT * projects.
func (e *Entity) AllFieldsWithDescendants() []*Field {
	out := append([]*Field{}, e.Fields()...)
	for _, child := range e.PolymorphChildren {
		out = append(out, child.AllFieldsWithDescendants()...)
	}
	return out
}

// Relations returns only the Relation-kind attributes.
func (e *Entity) Relations() []Attribute {
	var out []Attribute
	for _, a := range e.attrs {
		if a.AttrKind() == AttrRelation {
			out = append(out, a)
		}
	}
	return out
}

// Virtuals returns only the Virtual-kind attributes.
func (e *Entity) Virtuals() []*VirtualAttribute {
	var out []*VirtualAttribute
	for _, a := range e.attrs {
		if v, ok := a.(*VirtualAttribute); ok {
			out = append(out, v)
		}
	}
	return out
}

// PrimaryKey returns the fields carrying a PrimaryKey extension, in
// declaration order — composite when more than one.
func (e *Entity) PrimaryKey() []*Field {
	var pk []*Field
	for _, f := range e.Fields() {
		for _, ext := range f.Extensions {
			if _, ok := ext.(*PrimaryKey); ok {
				pk = append(pk, f)
				break
			}
		}
	}
	if e.PolymorphParent != nil {
		return e.PolymorphParent.PrimaryKey()
	}
	return pk
}

// AddTrigger registers a trigger as a side effect of extension binding.
// The stored name embeds hashes of When and Body, so changing either
// yields a differently named trigger and the differ emits a
// drop+recreate of both function and trigger.
func (e *Entity) AddTrigger(t Trigger) {
	t.Name = TriggerFullName(e.Qualified.Name, t)
	e.triggers = append(e.triggers, t)
}

// TriggerFullName synthesizes `YT-<Table>-<trigger>-<whenHash>-<bodyHash>`.
func TriggerFullName(table string, t Trigger) string {
	whenSum := sha256.Sum256([]byte(t.When))
	bodySum := sha256.Sum256([]byte(t.Body))
	return fmt.Sprintf("YT-%s-%s-%s-%s", table, t.Name,
		hex.EncodeToString(whenSum[:])[:8], hex.EncodeToString(bodySum[:])[:8])
}

// Triggers returns every trigger owned by this entity.
func (e *Entity) Triggers() []Trigger { return e.triggers }

// Alias returns a proxy entity sharing the same attributes but with a
// distinct qualified alias; field references through the alias carry the
// alias in compiled SQL.
func (e *Entity) Alias(name string) *Entity {
	return &Entity{
		Qualified: e.Qualified,
		Registry:  e.Registry,
		Virtual:   e.Virtual,
		attrs:     e.attrs,
		byName:    e.byName,
		aliasOf:   e,
		aliasName: name,
	}
}

// AliasName returns the SQL alias this entity should be referenced by in
// a compiled query: the explicit alias if this is an Alias() proxy,
// otherwise its own table name.
func (e *Entity) AliasName() string {
	if e.aliasName != "" {
		return e.aliasName
	}
	return e.Qualified.Name
}

// AliasOf returns the entity this is an alias proxy for, or nil.
func (e *Entity) AliasOf() *Entity { return e.aliasOf }

// Renamed returns a shallow copy of e under a different qualified name,
// sharing the same attributes — unlike Alias, this changes the table
// name DDL compiles against, not just the query alias. Used by the sync
// planner's shadow-table recreate path, which needs a CREATE TABLE statement for a temporary
// table with identical columns to the one it is replacing.
func (e *Entity) Renamed(q QualifiedName) *Entity {
	cp := *e
	cp.Qualified = q
	cp.aliasOf = nil
	cp.aliasName = ""
	return &cp
}

// DependsOn computes this entity's own dependency set: FK/composite/json
// targets from every field, plus its polymorph parent.
func (e *Entity) DependsOn() []Dep {
	var deps []Dep
	for _, a := range e.attrs {
		deps = append(deps, a.DependsOn()...)
	}
	if e.PolymorphParent != nil {
		deps = append(deps, Dep{Kind: DepEntity, Name: e.PolymorphParent.Qualified})
	}
	return deps
}
