package query

import (
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/relation"
)

// Expand resolves a query's implicit structure before dialect
// compilation:
//
//   - a field reference to an entity that is not yet a source injects a
//     join — INNER for a plain predicate, LEFT when the reference sits
//     inside an OR branch (so non-matching rows are not filtered out),
//     and LEFT for a polymorph descendant reached through its parent;
//   - a PathExpr chain is rewritten segment by segment: relation hops
//     become joins, composite hops become `(col)."sub"` accessors, JSON
//     hops become `jsonb_extract_path(col, 'k', …)`.
//
// Unresolvable references are left in place for the compiler to reject
// with a CompileError.
func Expand(q *Query) (*Query, error) {
	x := &expander{q: q, sources: make(map[string]Source)}
	x.addSource(q.From)
	for _, j := range q.joins {
		x.addSource(j.Source)
	}

	c := q.clone()
	var err error
	if c.where, err = x.rewrite(c.where, false); err != nil {
		return nil, err
	}
	if c.having, err = x.rewrite(c.having, false); err != nil {
		return nil, err
	}
	for i, g := range c.groupBy {
		if c.groupBy[i], err = x.rewrite(g, false); err != nil {
			return nil, err
		}
	}
	if len(c.orderBy) > 0 {
		terms := append([]expr.OrderTerm{}, c.orderBy...)
		for i := range terms {
			if terms[i].Expr, err = x.rewrite(terms[i].Expr, false); err != nil {
				return nil, err
			}
		}
		c.orderBy = terms
	}
	c.joins = append(append([]Join{}, c.joins...), x.added...)
	return c, nil
}

type expander struct {
	q       *Query
	sources map[string]Source // qualified name -> source
	added   []Join
}

func (x *expander) addSource(s Source) {
	x.sources[s.Entity.Qualified.String()] = s
}

func (x *expander) addJoin(kind JoinKind, e *entity.Entity, on expr.Node) {
	src := Source{Entity: e, Alias: e.AliasName()}
	x.added = append(x.added, Join{Kind: kind, Source: src, On: on})
	x.addSource(src)
}

// rewrite walks n, returning a structurally rewritten copy where any
// node changed; inOr tracks whether the walk descended through an OR.
func (x *expander) rewrite(n expr.Node, inOr bool) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	switch node := n.(type) {
	case *expr.FieldRef:
		return node, x.resolveFieldRef(node, inOr)
	case *expr.PathExpr:
		return x.expandPath(node, inOr)
	case *expr.Binary:
		childInOr := inOr || node.Op == expr.OpOr
		l, err := x.rewrite(node.Left, childInOr)
		if err != nil {
			return nil, err
		}
		r, err := x.rewrite(node.Right, childInOr)
		if err != nil {
			return nil, err
		}
		if l == node.Left && r == node.Right {
			return node, nil
		}
		return expr.NewBinary(node.Op, l, r), nil
	case *expr.Unary:
		inner, err := x.rewrite(node.Expr, inOr)
		if err != nil {
			return nil, err
		}
		if inner == node.Expr {
			return node, nil
		}
		return expr.NewUnary(node.Op, inner), nil
	case *expr.Call:
		args, changed, err := x.rewriteAll(node.Args, inOr)
		if err != nil {
			return nil, err
		}
		if !changed {
			return node, nil
		}
		return expr.NewCall(node.Name, args...), nil
	case *expr.Alias:
		inner, err := x.rewrite(node.Expr, inOr)
		if err != nil {
			return nil, err
		}
		if inner == node.Expr {
			return node, nil
		}
		return expr.As(inner, node.Name), nil
	case *expr.Cast:
		inner, err := x.rewrite(node.Expr, inOr)
		if err != nil {
			return nil, err
		}
		if inner == node.Expr {
			return node, nil
		}
		return expr.NewCast(inner, node.TypeName), nil
	default:
		return n, nil
	}
}

func (x *expander) rewriteAll(nodes []expr.Node, inOr bool) ([]expr.Node, bool, error) {
	out := make([]expr.Node, len(nodes))
	changed := false
	for i, n := range nodes {
		rn, err := x.rewrite(n, inOr)
		if err != nil {
			return nil, false, err
		}
		out[i] = rn
		changed = changed || rn != n
	}
	return out, changed, nil
}

// resolveFieldRef injects a join when ref names an entity that is not
// yet a source but is reachable from one — through a declared relation,
// or as a polymorph ancestor/descendant sharing the primary key.
func (x *expander) resolveFieldRef(ref *expr.FieldRef, inOr bool) error {
	if _, ok := x.sources[ref.Entity]; ok {
		return nil
	}
	for _, src := range x.sourceList() {
		for _, a := range src.Entity.Relations() {
			switch rel := a.(type) {
			case *relation.One:
				if rel.Remote.Qualified.String() != ref.Entity {
					continue
				}
				x.addJoin(joinKind(inOr), rel.Remote,
					rel.JoinCondition(src.Entity.Qualified.String(), ref.Entity))
				return nil
			case *relation.Many:
				if rel.Remote.Qualified.String() != ref.Entity {
					continue
				}
				x.addJoin(joinKind(inOr), rel.Remote,
					rel.JoinCondition(src.Entity.Qualified.String(), ref.Entity))
				return nil
			case *relation.ManyAcross:
				if rel.Remote.Qualified.String() != ref.Entity {
					continue
				}
				through := rel.Through.Qualified.String()
				x.addJoin(joinKind(inOr), rel.Through,
					rel.OwnerJoinCondition(src.Entity.Qualified.String(), through))
				x.addJoin(joinKind(inOr), rel.Remote,
					rel.RemoteJoinCondition(through, ref.Entity))
				return nil
			}
		}
		if target, ok := x.polymorphRelative(src.Entity, ref.Entity); ok {
			// Descendant joins are LEFT: a parent row need not have a
			// row in every child table.
			x.addJoin(JoinLeft, target, pkJoin(src.Entity, target))
			return nil
		}
	}
	// Leave unresolved: the dialect compiler reports the CompileError
	// with the failing field attached.
	return nil
}

// sourceList returns sources deterministically: From first, then joins
// in declaration order, then expander-added joins.
func (x *expander) sourceList() []Source {
	out := []Source{x.q.From}
	for _, j := range x.q.joins {
		out = append(out, j.Source)
	}
	for _, j := range x.added {
		out = append(out, j.Source)
	}
	return out
}

// polymorphRelative resolves name against src's polymorph tree:
// an ancestor or descendant table sharing src's primary key space.
func (x *expander) polymorphRelative(src *entity.Entity, name string) (*entity.Entity, bool) {
	reg := src.Registry
	if reg == nil {
		return nil, false
	}
	target, ok := reg.Get(parseQualified(name))
	if !ok {
		return nil, false
	}
	if target.IsDescendantOf(src) || src.IsDescendantOf(target) {
		return target, true
	}
	return nil, false
}

func pkJoin(a, b *entity.Entity) expr.Node {
	var on expr.Node
	for _, f := range a.Root().PrimaryKey() {
		cond := expr.Eq(
			expr.NewField(a.Qualified.String(), f.Name()),
			expr.NewField(b.Qualified.String(), f.Name()))
		if on == nil {
			on = cond
		} else {
			on = expr.And(on, cond)
		}
	}
	return on
}

func joinKind(inOr bool) JoinKind {
	if inOr {
		return JoinLeft
	}
	return JoinInner
}

func parseQualified(s string) entity.QualifiedName {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return entity.QualifiedName{Schema: s[:i], Name: s[i+1:]}
	}
	return entity.QualifiedName{Name: s}
}

// expandPath rewrites one PathExpr chain. The walk starts at the
// root FieldRef's column and consumes segments left to right: relation
// hops move the current entity (joining as needed), composite and JSON
// hops wrap the accumulated column accessor.
func (x *expander) expandPath(p *expr.PathExpr, inOr bool) (expr.Node, error) {
	root, ok := p.Root.(*expr.FieldRef)
	if !ok {
		return p, nil
	}
	curEntity, ok := x.entityByName(root.Entity)
	if !ok {
		return p, nil
	}
	curName := root.Column

	var acc expr.Node // non-nil once a composite/JSON accessor started
	var jsonKeys []string

	flushJSON := func() {
		if len(jsonKeys) == 0 {
			return
		}
		frags := []interface{}{"jsonb_extract_path(", acc}
		for _, k := range jsonKeys {
			frags = append(frags, ", '"+k+"'")
		}
		frags = append(frags, ")")
		acc = expr.NewRaw(frags)
		jsonKeys = nil
	}

	for _, seg := range p.Segments {
		switch seg.Kind {
		case expr.SegmentRelation:
			next, err := x.traverseRelation(curEntity, curName, inOr)
			if err != nil {
				return nil, err
			}
			if next == nil {
				return p, nil
			}
			curEntity = next
			curName = seg.Name
		case expr.SegmentComposite:
			if acc == nil {
				acc = expr.NewField(curEntity.Qualified.String(), curName)
			}
			flushJSON()
			acc = expr.NewRaw([]interface{}{"(", acc, `)."` + seg.Name + `"`})
		case expr.SegmentJSON:
			if acc == nil {
				acc = expr.NewField(curEntity.Qualified.String(), curName)
			}
			jsonKeys = append(jsonKeys, seg.Name)
		}
	}
	flushJSON()
	if acc != nil {
		return acc, nil
	}
	return expr.NewField(curEntity.Qualified.String(), curName), nil
}

// traverseRelation joins curEntity's relation attribute name and
// returns the remote entity, or nil when name is not a relation.
func (x *expander) traverseRelation(curEntity *entity.Entity, name string, inOr bool) (*entity.Entity, error) {
	a, ok := curEntity.Attribute(name)
	if !ok {
		return nil, nil
	}
	owner := curEntity.Qualified.String()
	switch rel := a.(type) {
	case *relation.One:
		x.ensureJoin(joinKind(inOr), rel.Remote, rel.JoinCondition(owner, rel.Remote.Qualified.String()))
		return rel.Remote, nil
	case *relation.Many:
		x.ensureJoin(joinKind(inOr), rel.Remote, rel.JoinCondition(owner, rel.Remote.Qualified.String()))
		return rel.Remote, nil
	case *relation.ManyAcross:
		through := rel.Through.Qualified.String()
		x.ensureJoin(joinKind(inOr), rel.Through, rel.OwnerJoinCondition(owner, through))
		x.ensureJoin(joinKind(inOr), rel.Remote, rel.RemoteJoinCondition(through, rel.Remote.Qualified.String()))
		return rel.Remote, nil
	}
	return nil, nil
}

func (x *expander) ensureJoin(kind JoinKind, e *entity.Entity, on expr.Node) {
	if _, ok := x.sources[e.Qualified.String()]; ok {
		return
	}
	x.addJoin(kind, e, on)
}

func (x *expander) entityByName(name string) (*entity.Entity, bool) {
	if src, ok := x.sources[name]; ok {
		return src.Entity, true
	}
	return nil, false
}
