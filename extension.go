package entity

import (
	"fmt"

	"github.com/entropydb/entity/expr"
)

// Extension attaches schema-level semantics to a Field: primary key,
// auto-increment, foreign key, uniqueness, indexing, check constraints.
// Bind runs once, at registration time, and may register triggers on the
// owning entity as a side effect.
type Extension interface {
	Kind() string
	Bind(e *Entity, f *Field) error
	DependsOn() []Dep
}

// PrimaryKey marks a field as (part of) the entity's primary key.
type PrimaryKey struct{}

func (*PrimaryKey) Kind() string                    { return "primary_key" }
func (*PrimaryKey) Bind(*Entity, *Field) error       { return nil }
func (*PrimaryKey) DependsOn() []Dep                 { return nil }

// AutoIncrement binds a field to a PostgreSQL sequence. Sequence, if
// empty, defaults to "<table>_<column>_seq" at bind time, matching
// Postgres's own SERIAL naming convention.
type AutoIncrement struct {
	Sequence string
}

func (*AutoIncrement) Kind() string { return "auto_increment" }

func (a *AutoIncrement) Bind(e *Entity, f *Field) error {
	if a.Sequence == "" {
		a.Sequence = e.Qualified.Name + "_" + f.Name() + "_seq"
	}
	return nil
}

func (a *AutoIncrement) DependsOn() []Dep {
	if a.Sequence == "" {
		return nil
	}
	return []Dep{{Kind: DepSequence, Name: QualifiedName{Name: a.Sequence}}}
}

// ReferentialAction enumerates ON UPDATE/ON DELETE clauses.
type ReferentialAction string

const (
	ActionNoAction   ReferentialAction = "NO ACTION"
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionCascade    ReferentialAction = "CASCADE"
	ActionSetNull    ReferentialAction = "SET NULL"
	ActionSetDefault ReferentialAction = "SET DEFAULT"
)

// ForeignKey declares a single-column foreign key. ConstraintName, if
// empty, is synthesized by the ddl compiler as
// `fk_<Self>__<col>-<Ref>__<col>`.
type ForeignKey struct {
	Ref            QualifiedName
	RefColumn      string
	OnUpdate       ReferentialAction
	OnDelete       ReferentialAction
	ConstraintName string
}

func (*ForeignKey) Kind() string              { return "foreign_key" }
func (*ForeignKey) Bind(*Entity, *Field) error { return nil }

func (f *ForeignKey) DependsOn() []Dep {
	return []Dep{{Kind: DepEntity, Name: f.Ref}}
}

// ForeignKeyList declares a field holding an array of foreign keys to
// Ref, maintained consistent via the four triggers Bind registers
// (BEFORE INSERT and BEFORE UPDATE on the declaring table, AFTER UPDATE
// and AFTER DELETE on Ref's table), each named
// `YT-<Table>-<trigger>-<whenHash>-<bodyHash>`.
type ForeignKeyList struct {
	Ref       QualifiedName
	RefColumn string
}

func (*ForeignKeyList) Kind() string { return "foreign_key_list" }

// Bind registers the four maintenance triggers for one (referrer,
// referent) pair: BEFORE INSERT / BEFORE UPDATE on the referrer
// validate uniqueness and existence of every listed id, AFTER UPDATE /
// AFTER DELETE on the referent propagate key changes and removals into
// the arrays pointing at it.
func (fk *ForeignKeyList) Bind(e *Entity, f *Field) error {
	col := quoteTrig(f.Name())
	self := quoteTrigName(e.Qualified)
	ref := quoteTrigName(fk.Ref)
	refCol := quoteTrig(fk.RefColumn)
	base := f.Name()

	validate := fmt.Sprintf(
		"BEGIN "+
			"IF (SELECT COUNT(v) FROM unnest(NEW.%[1]s) AS v) <> (SELECT COUNT(DISTINCT v) FROM unnest(NEW.%[1]s) AS v) THEN "+
			"RAISE EXCEPTION 'duplicate id in %[2]s'; END IF; "+
			"IF EXISTS (SELECT 1 FROM unnest(NEW.%[1]s) AS v WHERE NOT EXISTS (SELECT 1 FROM %[3]s WHERE %[4]s = v)) THEN "+
			"RAISE EXCEPTION 'unknown id in %[2]s'; END IF; "+
			"RETURN NEW; END;",
		col, base, ref, refCol)
	e.AddTrigger(Trigger{Name: base + "-ins", When: "BEFORE INSERT", Body: validate})
	e.AddTrigger(Trigger{Name: base + "-upd", When: "BEFORE UPDATE", Body: validate})

	propagateUpdate := fmt.Sprintf(
		"BEGIN IF NEW.%[1]s <> OLD.%[1]s THEN "+
			"UPDATE %[2]s SET %[3]s = array_replace(%[3]s, OLD.%[1]s, NEW.%[1]s) WHERE OLD.%[1]s = ANY(%[3]s); "+
			"END IF; RETURN NEW; END;",
		refCol, self, col)
	propagateDelete := fmt.Sprintf(
		"BEGIN UPDATE %[2]s SET %[3]s = array_remove(%[3]s, OLD.%[1]s) WHERE OLD.%[1]s = ANY(%[3]s); RETURN OLD; END;",
		refCol, self, col)
	refTable := fk.Ref
	e.AddTrigger(Trigger{Name: base + "-refupd", When: "AFTER UPDATE", Body: propagateUpdate, On: &refTable})
	e.AddTrigger(Trigger{Name: base + "-refdel", When: "AFTER DELETE", Body: propagateDelete, On: &refTable})
	return nil
}

func quoteTrig(s string) string { return `"` + s + `"` }

func quoteTrigName(q QualifiedName) string {
	if q.Schema == "" {
		return quoteTrig(q.Name)
	}
	return quoteTrig(q.Schema) + "." + quoteTrig(q.Name)
}

func (fk *ForeignKeyList) DependsOn() []Dep {
	return []Dep{{Kind: DepEntity, Name: fk.Ref}}
}

// Unique groups fields sharing the same Name into one multi-column
// UNIQUE constraint; an empty Name means "this column alone".
type Unique struct {
	Name string
}

func (*Unique) Kind() string              { return "unique" }
func (*Unique) Bind(*Entity, *Field) error { return nil }
func (*Unique) DependsOn() []Dep          { return nil }

// Index groups fields sharing the same Name into one multi-column index.
type Index struct {
	Name   string
	Method string // "btree" (default), "gin", "gist", "hash"
	Unique bool
	Collate string
}

func (*Index) Kind() string              { return "index" }
func (*Index) Bind(*Entity, *Field) error { return nil }
func (*Index) DependsOn() []Dep          { return nil }

// Check attaches a row-level CHECK constraint expressed in the
// expression algebra. Name, if empty, is synthesized by the ddl compiler
// from a hash of the compiled expression.
type Check struct {
	Name string
	Expr expr.Node
}

func (*Check) Kind() string              { return "check" }
func (*Check) Bind(*Entity, *Field) error { return nil }
func (*Check) DependsOn() []Dep          { return nil }

// UniqueGroups partitions every Unique extension across this entity's
// fields by constraint name: fields sharing a Name form one multi-column
// constraint; an empty Name is its own singleton group keyed by column.
func (e *Entity) UniqueGroups() map[string][]*Field {
	groups := make(map[string][]*Field)
	for _, f := range e.Fields() {
		for _, ext := range f.Extensions {
			u, ok := ext.(*Unique)
			if !ok {
				continue
			}
			key := u.Name
			if key == "" {
				key = "uq_" + e.Qualified.Name + "_" + f.Name()
			}
			groups[key] = append(groups[key], f)
		}
	}
	return groups
}

// IndexGroups partitions every Index extension the same way UniqueGroups
// does for Unique.
func (e *Entity) IndexGroups() map[string][]*Field {
	groups := make(map[string][]*Field)
	for _, f := range e.Fields() {
		for _, ext := range f.Extensions {
			if _, ok := ext.(*Index); ok {
				idx := ext.(*Index)
				key := idx.Name
				if key == "" {
					key = "ix_" + e.Qualified.Name + "_" + f.Name()
				}
				groups[key] = append(groups[key], f)
			}
		}
	}
	return groups
}

// Checks collects every Check extension attached to any field.
func (e *Entity) Checks() []*Check {
	var out []*Check
	for _, f := range e.Fields() {
		for _, ext := range f.Extensions {
			if c, ok := ext.(*Check); ok {
				out = append(out, c)
			}
		}
	}
	return out
}
