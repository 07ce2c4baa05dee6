// Package relation implements the relation engine: One, Many, and
// ManyAcross associations between entities, synthesizing the join
// predicates and aggregate load expressions the query compiler needs.
package relation

import (
	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
)

// LoadMode controls whether a relation is fetched eagerly alongside its
// owner or only on explicit request.
type LoadMode int

const (
	Lazy LoadMode = iota
	Eager
)

// Cascade controls what happens to this relation's local reference when
// the remote row it points at is removed.
type Cascade int

const (
	// CascadeNone leaves the reference untouched (the FK constraint, if
	// any, governs — typically RESTRICT).
	CascadeNone Cascade = iota
	// CascadeSetNull clears the local FK to NULL; relation removal does
	// not cascade-delete by default.
	CascadeSetNull
	// CascadeDelete removes the owning row along with the remote one.
	CascadeDelete
)

// LoadKind distinguishes how the query compiler materializes a relation
// as a load expression: a scalar-subquery for a single related row, or
// an ARRAY_AGG for a collection.
type LoadKind int

const (
	LoadScalar LoadKind = iota
	LoadArrayAgg
)

// One is a to-one relation: the owner's LocalColumn references the
// remote entity's RemoteColumn (usually its primary key).
type One struct {
	entity.AttrBase

	Owner  *entity.Entity
	Remote *entity.Entity

	LocalColumn  string
	RemoteColumn string

	Mode     LoadMode
	OnRemove Cascade
}

// NewOne declares a to-one relation attribute.
func NewOne(name string, remote *entity.Entity, localColumn, remoteColumn string) *One {
	return &One{
		AttrBase:     entity.NewAttrBase(name),
		Remote:       remote,
		LocalColumn:  localColumn,
		RemoteColumn: remoteColumn,
	}
}

func (o *One) AttrKind() entity.AttributeKind { return entity.AttrRelation }

func (o *One) DependsOn() []entity.Dep {
	return []entity.Dep{{Kind: entity.DepEntity, Name: o.Remote.Qualified}}
}

// Bind records the owning entity — the entity.Binder hook run during
// entity.Finalize.
func (o *One) Bind(e *entity.Entity) error {
	o.Owner = e
	return nil
}

// JoinCondition synthesizes `ownerAlias.LocalColumn = remoteAlias.RemoteColumn`.
func (o *One) JoinCondition(ownerAlias, remoteAlias string) expr.Node {
	return expr.Eq(expr.NewField(ownerAlias, o.LocalColumn), expr.NewField(remoteAlias, o.RemoteColumn))
}

// LoadKind reports how this relation is materialized in a projection —
// always a scalar subquery, since at most one remote row can match.
func (o *One) LoadKind() LoadKind { return LoadScalar }

// Many is a to-many relation: the remote entity's RemoteColumn (a
// foreign key) references the owner's LocalColumn (usually its primary
// key).
type Many struct {
	entity.AttrBase

	Owner  *entity.Entity
	Remote *entity.Entity

	LocalColumn  string
	RemoteColumn string

	Mode LoadMode
}

// NewMany declares a to-many relation attribute.
func NewMany(name string, remote *entity.Entity, localColumn, remoteColumn string) *Many {
	return &Many{
		AttrBase:     entity.NewAttrBase(name),
		Remote:       remote,
		LocalColumn:  localColumn,
		RemoteColumn: remoteColumn,
	}
}

func (m *Many) AttrKind() entity.AttributeKind { return entity.AttrRelation }

func (m *Many) DependsOn() []entity.Dep {
	return []entity.Dep{{Kind: entity.DepEntity, Name: m.Remote.Qualified}}
}

func (m *Many) Bind(e *entity.Entity) error {
	m.Owner = e
	return nil
}

// JoinCondition synthesizes `remoteAlias.RemoteColumn = ownerAlias.LocalColumn`.
func (m *Many) JoinCondition(ownerAlias, remoteAlias string) expr.Node {
	return expr.Eq(expr.NewField(remoteAlias, m.RemoteColumn), expr.NewField(ownerAlias, m.LocalColumn))
}

func (m *Many) LoadKind() LoadKind { return LoadArrayAgg }

// ManyAcross is a many-to-many relation mediated by a join (through)
// entity, e.g. user <-> role via user_role.
type ManyAcross struct {
	entity.AttrBase

	Owner   *entity.Entity
	Remote  *entity.Entity
	Through *entity.Entity

	OwnerColumn        string // owner's key, usually its PK
	OwnerThroughColumn string // through's FK column referencing Owner
	RemoteColumn       string // remote's key, usually its PK
	RemoteThroughColumn string // through's FK column referencing Remote

	Mode LoadMode
}

// NewManyAcross declares a many-to-many relation attribute.
func NewManyAcross(name string, remote, through *entity.Entity, ownerCol, ownerThroughCol, remoteCol, remoteThroughCol string) *ManyAcross {
	return &ManyAcross{
		AttrBase:            entity.NewAttrBase(name),
		Remote:              remote,
		Through:             through,
		OwnerColumn:         ownerCol,
		OwnerThroughColumn:  ownerThroughCol,
		RemoteColumn:        remoteCol,
		RemoteThroughColumn: remoteThroughCol,
	}
}

func (ma *ManyAcross) AttrKind() entity.AttributeKind { return entity.AttrRelation }

func (ma *ManyAcross) DependsOn() []entity.Dep {
	return []entity.Dep{
		{Kind: entity.DepEntity, Name: ma.Through.Qualified},
		{Kind: entity.DepEntity, Name: ma.Remote.Qualified},
	}
}

func (ma *ManyAcross) Bind(e *entity.Entity) error {
	ma.Owner = e
	return nil
}

// OwnerJoinCondition synthesizes the owner-to-through join predicate.
func (ma *ManyAcross) OwnerJoinCondition(ownerAlias, throughAlias string) expr.Node {
	return expr.Eq(expr.NewField(throughAlias, ma.OwnerThroughColumn), expr.NewField(ownerAlias, ma.OwnerColumn))
}

// RemoteJoinCondition synthesizes the through-to-remote join predicate.
func (ma *ManyAcross) RemoteJoinCondition(throughAlias, remoteAlias string) expr.Node {
	return expr.Eq(expr.NewField(throughAlias, ma.RemoteThroughColumn), expr.NewField(remoteAlias, ma.RemoteColumn))
}

func (ma *ManyAcross) LoadKind() LoadKind { return LoadArrayAgg }
