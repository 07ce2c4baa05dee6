package entity

import "github.com/entropydb/entity/expr"

// VirtualAttribute is a computed, non-stored column: its Value hook
// compiles to a SQL expression (often a Case) and its optional Compare
// hook lets it participate in WHERE/ORDER BY by expanding comparisons
// back onto real columns.
type VirtualAttribute struct {
	AttrBase

	entity *Entity

	// Value builds the SELECT-list expression for this virtual column.
	Value func(e *Entity) expr.Node

	// Compare, if set, rewrites `virtual <op> rhs` into a real-column
	// expression so the attribute can appear in Query.Where. Nil means
	// the attribute can only be projected, never filtered/ordered on.
	Compare func(e *Entity, op expr.BinaryOp, rhs expr.Node) expr.Node

	// Order, if set, builds the ORDER BY expression used when sorting on
	// this attribute; falls back to Value when nil.
	Order func(e *Entity) expr.Node

	// Depends names the stored fields this attribute reads, so loading
	// the attribute pulls them into the projection.
	Depends []string
}

// NewVirtual declares a virtual attribute.
func NewVirtualAttribute(name string, value func(e *Entity) expr.Node) *VirtualAttribute {
	return &VirtualAttribute{AttrBase: NewAttrBase(name), Value: value}
}

func (v *VirtualAttribute) AttrKind() AttributeKind { return AttrVirtual }
func (v *VirtualAttribute) DependsOn() []Dep         { return nil }
func (v *VirtualAttribute) Entity() *Entity          { return v.entity }

// WithCompare attaches the comparison-expansion hook and returns the
// attribute for chaining.
func (v *VirtualAttribute) WithCompare(fn func(e *Entity, op expr.BinaryOp, rhs expr.Node) expr.Node) *VirtualAttribute {
	v.Compare = fn
	return v
}

// WithOrder attaches the ordering rewrite.
func (v *VirtualAttribute) WithOrder(fn func(e *Entity) expr.Node) *VirtualAttribute {
	v.Order = fn
	return v
}

// WithDepends records the stored fields this attribute reads.
func (v *VirtualAttribute) WithDepends(fields ...string) *VirtualAttribute {
	v.Depends = append(v.Depends, fields...)
	return v
}

// CompareExpr rewrites `attr op rhs` through the Compare hook, so a
// predicate on a virtual attribute lands on real columns; without a
// hook the comparison applies to the Value expression directly.
func (v *VirtualAttribute) CompareExpr(op expr.BinaryOp, rhs expr.Node) expr.Node {
	if v.Compare != nil {
		return v.Compare(v.entity, op, rhs)
	}
	return expr.NewBinary(op, v.Value(v.entity), rhs)
}

// OrderExpr resolves the expression to sort by: the Order hook when
// present, the Value expression otherwise.
func (v *VirtualAttribute) OrderExpr(e *Entity) expr.Node {
	if v.Order != nil {
		return v.Order(e)
	}
	return v.Value(e)
}

func (v *VirtualAttribute) Bind(e *Entity) error {
	v.entity = e
	return nil
}
