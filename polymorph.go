package entity

import (
	"strings"

	"github.com/entropydb/entity/field"
)

// AddDescendant wires child as a polymorphic descendant of parent:
// each descendant has its own table whose primary key is also an FK to
// parent's table. child's primary key is declared with DescendantPK so
// it doubles as the cascading FK back to parent.
func AddDescendant(parent, child *Entity, discriminatorValue interface{}) {
	child.PolymorphParent = parent
	child.PolymorphID = discriminatorValue
	parent.PolymorphChildren = append(parent.PolymorphChildren, child)

	// Deleting the concrete row removes its ancestor rows too, so no
	// orphaned parent survives a child delete.
	var conds []string
	for _, f := range parent.PrimaryKey() {
		conds = append(conds, quoteTrig(f.Name())+" = OLD."+quoteTrig(f.Name()))
	}
	if len(conds) > 0 {
		body := "BEGIN DELETE FROM " + quoteTrigName(parent.Qualified) +
			" WHERE " + strings.Join(conds, " AND ") + "; RETURN OLD; END;"
		child.AddTrigger(Trigger{Name: "cascade", When: "AFTER DELETE", Body: body})
	}
}

// DescendantPK builds the primary-key field a polymorphic descendant
// declares: it is simultaneously the table's PK and a cascading FK to
// the parent's own PK column of the same name, so deleting the parent
// row cascades to every descendant table.
func DescendantPK(parent *Entity, name string, impl field.Impl) *Field {
	return NewField(name, impl,
		&PrimaryKey{},
		&ForeignKey{Ref: parent.Qualified, RefColumn: name, OnDelete: ActionCascade, OnUpdate: ActionCascade},
	)
}

// IsDescendantOf reports whether e is (transitively) a polymorphic
// descendant of ancestor.
func (e *Entity) IsDescendantOf(ancestor *Entity) bool {
	for p := e.PolymorphParent; p != nil; p = p.PolymorphParent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// Root walks up PolymorphParent links to the base entity of a
// polymorphic hierarchy (itself, if it has no parent).
func (e *Entity) Root() *Entity {
	root := e
	for root.PolymorphParent != nil {
		root = root.PolymorphParent
	}
	return root
}
