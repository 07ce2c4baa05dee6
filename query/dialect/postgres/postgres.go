// Package postgres implements the PostgreSQL dialect.Dialect: a
// visitor-based SQL compiler over the expression algebra producing
// `$1..$N`-parameterized text, plus the relation load-spec expansion
// (scalar subquery / ARRAY_AGG) for the query builder.
package postgres

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/dberrors"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/query"
)

// Dialect is the stateless entry point; Compile allocates a fresh
// compiler per call so concurrent compilations never share a params
// slice.
type Dialect struct{}

// New returns the PostgreSQL dialect.
func New() *Dialect { return &Dialect{} }

func (Dialect) Compile(q *query.Query) (string, []interface{}, error) {
	return Compile(q)
}

type compiler struct {
	buf           strings.Builder
	params        []interface{}
	aliasByEntity map[string]string
}

func (c *compiler) emit(n expr.Node) error {
	if n == nil {
		c.buf.WriteString("NULL")
		return nil
	}
	return n.Accept(c)
}

func (c *compiler) emitChild(parentPrec int, child expr.Node) error {
	childPrec := expr.Precedence(child)
	paren := childPrec < parentPrec
	if paren {
		c.buf.WriteString("(")
	}
	if err := c.emit(child); err != nil {
		return err
	}
	if paren {
		c.buf.WriteString(")")
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QualifiedIdent renders a schema-qualified, quoted table/type name:
// `"schema"."Entity"`, or just `"Entity"` when no schema is set. Shared
// with package ddl so query and DDL compilation quote names identically.
func QualifiedIdent(q entity.QualifiedName) string {
	if q.Schema == "" {
		return quoteIdent(q.Name)
	}
	return quoteIdent(q.Schema) + "." + quoteIdent(q.Name)
}

func (c *compiler) VisitConst(n *expr.Const) error {
	if n.Value == nil {
		c.buf.WriteString("NULL")
		return nil
	}
	if b, ok := n.Value.(bool); ok {
		if b {
			c.buf.WriteString("TRUE")
		} else {
			c.buf.WriteString("FALSE")
		}
		return nil
	}
	c.params = append(c.params, n.Value)
	fmt.Fprintf(&c.buf, "$%d", len(c.params))
	return nil
}

func (c *compiler) VisitField(f *expr.FieldRef) error {
	alias, ok := c.aliasByEntity[f.Entity]
	if !ok {
		return &dberrors.CompileError{Message: fmt.Sprintf(
			"field %s.%s references an entity with no alias in this query (missing join)", f.Entity, f.Column)}
	}
	fmt.Fprintf(&c.buf, "%s.%s", quoteIdent(alias), quoteIdent(f.Column))
	return nil
}

func (c *compiler) VisitBinary(b *expr.Binary) error {
	prec := expr.Precedence(b)
	if err := c.emitChild(prec, b.Left); err != nil {
		return err
	}
	fmt.Fprintf(&c.buf, " %s ", b.Op)
	if b.Op == expr.OpIn || b.Op == expr.OpNotIn {
		return c.emitInList(b.Right)
	}
	return c.emitChild(prec, b.Right)
}

// emitInList renders a slice-valued Const as `($1, $2, ...)`; anything
// else (a subquery Raw, a single Param) is emitted as a normal
// parenthesized child.
func (c *compiler) emitInList(n expr.Node) error {
	if cst, ok := n.(*expr.Const); ok && cst.Value != nil {
		rv := reflect.ValueOf(cst.Value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			c.buf.WriteString("(")
			for i := 0; i < rv.Len(); i++ {
				if i > 0 {
					c.buf.WriteString(", ")
				}
				if err := c.emit(expr.NewConst(rv.Index(i).Interface())); err != nil {
					return err
				}
			}
			c.buf.WriteString(")")
			return nil
		}
	}
	c.buf.WriteString("(")
	if err := c.emit(n); err != nil {
		return err
	}
	c.buf.WriteString(")")
	return nil
}

func (c *compiler) VisitUnary(u *expr.Unary) error {
	prec := expr.Precedence(u)
	switch u.Op {
	case expr.OpNot:
		c.buf.WriteString("NOT ")
	case expr.OpNeg:
		c.buf.WriteString("-")
	case expr.OpPos:
		c.buf.WriteString("+")
	case expr.OpAbs:
		c.buf.WriteString("@")
	}
	return c.emitChild(prec, u.Expr)
}

func (c *compiler) VisitCall(call *expr.Call) error {
	c.buf.WriteString(call.Name)
	c.buf.WriteString("(")
	for i, a := range call.Args {
		if i > 0 {
			c.buf.WriteString(", ")
		}
		if err := c.emit(a); err != nil {
			return err
		}
	}
	c.buf.WriteString(")")
	return nil
}

func (c *compiler) VisitRaw(r *expr.Raw) error {
	for _, frag := range r.Fragments {
		switch v := frag.(type) {
		case string:
			c.buf.WriteString(v)
		case expr.Node:
			if err := c.emit(v); err != nil {
				return err
			}
		default:
			return &dberrors.CompileError{Message: "raw fragment must be a string or expr.Node"}
		}
	}
	return nil
}

func (c *compiler) VisitAlias(a *expr.Alias) error {
	if err := c.emit(a.Expr); err != nil {
		return err
	}
	fmt.Fprintf(&c.buf, " AS %s", quoteIdent(a.Name))
	return nil
}

func (c *compiler) VisitOver(o *expr.Over) error {
	if err := c.VisitCall(o.Call); err != nil {
		return err
	}
	c.buf.WriteString(" OVER (")
	if len(o.Partition) > 0 {
		c.buf.WriteString("PARTITION BY ")
		for i, p := range o.Partition {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.emit(p); err != nil {
				return err
			}
		}
	}
	if len(o.Order) > 0 {
		if len(o.Partition) > 0 {
			c.buf.WriteString(" ")
		}
		c.buf.WriteString("ORDER BY ")
		for i, t := range o.Order {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.emit(t.Expr); err != nil {
				return err
			}
			if t.Desc {
				c.buf.WriteString(" DESC")
			}
		}
	}
	c.buf.WriteString(")")
	return nil
}

func (c *compiler) VisitCast(cast *expr.Cast) error {
	c.buf.WriteString("CAST(")
	if err := c.emit(cast.Expr); err != nil {
		return err
	}
	fmt.Fprintf(&c.buf, " AS %s)", cast.TypeName)
	return nil
}

func (c *compiler) VisitPath(*expr.PathExpr) error {
	return &dberrors.CompileError{Message: "unexpanded PathExpr reached the compiler: auto-join must rewrite it to joins+FieldRef first"}
}

func (c *compiler) VisitCase(cs *expr.Case) error {
	c.buf.WriteString("CASE")
	for _, w := range cs.Whens {
		c.buf.WriteString(" WHEN ")
		if err := c.emit(w.When); err != nil {
			return err
		}
		c.buf.WriteString(" THEN ")
		if err := c.emit(w.Then); err != nil {
			return err
		}
	}
	if cs.Else != nil {
		c.buf.WriteString(" ELSE ")
		if err := c.emit(cs.Else); err != nil {
			return err
		}
	}
	c.buf.WriteString(" END")
	return nil
}

// CompileStandalone compiles a bare expression (not part of a Query) —
// e.g. a CHECK constraint body, which references only its own table's
// columns — against an explicit alias map.
func CompileStandalone(aliasByEntity map[string]string, n expr.Node) (string, []interface{}, error) {
	c := &compiler{aliasByEntity: aliasByEntity}
	if err := c.emit(n); err != nil {
		return "", nil, err
	}
	return c.buf.String(), c.params, nil
}

func lockClause(kind query.LockKind) string {
	switch kind {
	case query.LockForUpdate:
		return " FOR UPDATE"
	case query.LockForNoKeyUpdate:
		return " FOR NO KEY UPDATE"
	case query.LockForShare:
		return " FOR SHARE"
	case query.LockForKeyShare:
		return " FOR KEY SHARE"
	}
	return ""
}

func joinSources(q *query.Query) []query.Source {
	var out []query.Source
	for _, j := range q.Joins() {
		out = append(out, j.Source)
	}
	return out
}

func buildAliasMap(q *query.Query) map[string]string {
	m := map[string]string{q.From.Entity.Qualified.String(): q.From.Alias}
	for _, j := range q.Joins() {
		m[j.Source.Entity.Qualified.String()] = j.Source.Alias
	}
	return m
}

// Compile renders q as PostgreSQL SQL text with positional `$N`
// parameters.
func Compile(q *query.Query) (string, []interface{}, error) {
	q, err := query.Expand(q)
	if err != nil {
		return "", nil, err
	}
	c := &compiler{aliasByEntity: buildAliasMap(q)}
	c.buf.WriteString("SELECT ")

	first := true
	if len(q.Columns()) == 0 {
		// Default projection: every storable field of every source
		// entity in declaration order; polymorphic descendants joined as
		// sources contribute their own fields the same way.
		sources := append([]query.Source{q.From}, joinSources(q)...)
		for _, src := range sources {
			for _, f := range src.Entity.Fields() {
				if !first {
					c.buf.WriteString(", ")
				}
				first = false
				fmt.Fprintf(&c.buf, "%s.%s", quoteIdent(src.Alias), quoteIdent(f.Name()))
			}
		}
		if first && len(q.Loads()) == 0 {
			first = false
			fmt.Fprintf(&c.buf, "%s.*", quoteIdent(q.From.Alias))
		}
	} else {
		for _, col := range q.Columns() {
			if !first {
				c.buf.WriteString(", ")
			}
			first = false
			if err := c.emit(col.Expr); err != nil {
				return "", nil, err
			}
			if col.Alias != "" {
				fmt.Fprintf(&c.buf, " AS %s", quoteIdent(col.Alias))
			}
		}
	}
	for _, load := range q.Loads() {
		if !first {
			c.buf.WriteString(", ")
		}
		first = false
		if err := c.emitLoad(load); err != nil {
			return "", nil, err
		}
	}

	fmt.Fprintf(&c.buf, " FROM %s %s", QualifiedIdent(q.From.Entity.Qualified), quoteIdent(q.From.Alias))

	for _, j := range q.Joins() {
		switch j.Kind {
		case query.JoinInner:
			c.buf.WriteString(" JOIN ")
		case query.JoinLeft:
			c.buf.WriteString(" LEFT JOIN ")
		}
		fmt.Fprintf(&c.buf, "%s %s ON ", QualifiedIdent(j.Source.Entity.Qualified), quoteIdent(j.Source.Alias))
		if err := c.emit(j.On); err != nil {
			return "", nil, err
		}
	}

	if q.WhereExpr() != nil {
		c.buf.WriteString(" WHERE ")
		if err := c.emit(q.WhereExpr()); err != nil {
			return "", nil, err
		}
	}

	if len(q.GroupByExprs()) > 0 {
		c.buf.WriteString(" GROUP BY ")
		for i, g := range q.GroupByExprs() {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.emit(g); err != nil {
				return "", nil, err
			}
		}
	}

	if q.HavingExpr() != nil {
		c.buf.WriteString(" HAVING ")
		if err := c.emit(q.HavingExpr()); err != nil {
			return "", nil, err
		}
	}

	if len(q.OrderTerms()) > 0 {
		c.buf.WriteString(" ORDER BY ")
		for i, t := range q.OrderTerms() {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.emit(t.Expr); err != nil {
				return "", nil, err
			}
			if t.Desc {
				c.buf.WriteString(" DESC")
			}
		}
	}

	if q.LimitN() != nil {
		fmt.Fprintf(&c.buf, " LIMIT %d", *q.LimitN())
	}
	if q.OffsetN() != nil {
		fmt.Fprintf(&c.buf, " OFFSET %d", *q.OffsetN())
	}

	if clause := lockClause(q.LockKind()); clause != "" {
		c.buf.WriteString(clause)
		if aliases := q.LockAliases(); len(aliases) > 0 {
			c.buf.WriteString(" OF ")
			for i, a := range aliases {
				if i > 0 {
					c.buf.WriteString(", ")
				}
				c.buf.WriteString(quoteIdent(a))
			}
		}
		switch {
		case q.SkipsLocked():
			c.buf.WriteString(" SKIP LOCKED")
		case q.NoWait():
			c.buf.WriteString(" NOWAIT")
		}
	}

	return c.buf.String(), c.params, nil
}

// emitLoad compiles one relation load spec into a correlated subquery,
// sharing the outer compiler's parameter slice so placeholder numbering
// stays contiguous across the whole statement.
func (c *compiler) emitLoad(load query.LoadSpec) error {
	sub := &compiler{aliasByEntity: map[string]string{
		load.Remote.Entity.Qualified.String(): load.Remote.Alias,
	}}
	if load.Through != nil {
		sub.aliasByEntity[load.Through.Entity.Qualified.String()] = load.Through.Alias
	}
	for k, v := range c.aliasByEntity {
		if _, exists := sub.aliasByEntity[k]; !exists {
			sub.aliasByEntity[k] = v
		}
	}
	sub.params = c.params

	switch load.Kind {
	case query.LoadScalar:
		sub.buf.WriteString("(SELECT ")
		if len(load.Columns) == 0 {
			fmt.Fprintf(&sub.buf, "row_to_json(%s.*)", quoteIdent(load.Remote.Alias))
		} else if err := sub.emitColumnList(load.Columns); err != nil {
			return err
		}
		fmt.Fprintf(&sub.buf, " FROM %s %s WHERE ", QualifiedIdent(load.Remote.Entity.Qualified), quoteIdent(load.Remote.Alias))
		if err := sub.emit(load.JoinOwner); err != nil {
			return err
		}
		sub.buf.WriteString(" LIMIT 1)")
	case query.LoadArrayAgg:
		sub.buf.WriteString("(SELECT COALESCE(ARRAY_AGG(")
		if len(load.Columns) == 0 {
			fmt.Fprintf(&sub.buf, "%s.*", quoteIdent(load.Remote.Alias))
		} else {
			sub.buf.WriteString("ROW(")
			for i, col := range load.Columns {
				if i > 0 {
					sub.buf.WriteString(", ")
				}
				if err := sub.emit(col.Expr); err != nil {
					return err
				}
			}
			sub.buf.WriteString(")")
		}
		sub.buf.WriteString("), '{}') FROM ")
		fmt.Fprintf(&sub.buf, "%s %s", QualifiedIdent(load.Remote.Entity.Qualified), quoteIdent(load.Remote.Alias))
		if load.Through != nil {
			fmt.Fprintf(&sub.buf, " JOIN %s %s ON ", QualifiedIdent(load.Through.Entity.Qualified), quoteIdent(load.Through.Alias))
			if err := sub.emit(load.JoinThrough); err != nil {
				return err
			}
		}
		sub.buf.WriteString(" WHERE ")
		if err := sub.emit(load.JoinOwner); err != nil {
			return err
		}
		sub.buf.WriteString(")")
	}

	c.params = sub.params
	c.buf.WriteString(sub.buf.String())
	fmt.Fprintf(&c.buf, " AS %s", quoteIdent(load.Alias))
	return nil
}

func (c *compiler) emitColumnList(cols []query.Column) error {
	for i, col := range cols {
		if i > 0 {
			c.buf.WriteString(", ")
		}
		if err := c.emit(col.Expr); err != nil {
			return err
		}
		if col.Alias != "" {
			fmt.Fprintf(&c.buf, " AS %s", quoteIdent(col.Alias))
		}
	}
	return nil
}
