// Package query implements the immutable query builder and auto-join/
// load-spec assembly. Query itself is dialect-agnostic; package
// query/dialect compiles it to SQL text and bound parameters.
//
// The builder is immutable in the clone-and-mutate style: every
// mutator returns a new *Query, leaving the receiver untouched, so a
// base query can be safely branched into several variants.
package query

import (
	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
)

// Source names an entity participating in the query, under a SQL alias.
type Source struct {
	Entity *entity.Entity
	Alias  string
}

// JoinKind distinguishes INNER/LEFT joins.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

// Join is one explicit or auto-synthesized join.
type Join struct {
	Kind   JoinKind
	Source Source
	On     expr.Node
}

// Column is one projected expression, optionally aliased.
type Column struct {
	Expr  expr.Node
	Alias string
}

// LoadKind mirrors relation.LoadKind without importing package relation,
// keeping query free to compile LoadSpecs built from any Attribute that
// exposes a join condition, not only the three built-in relation kinds.
type LoadKind int

const (
	LoadScalar LoadKind = iota
	LoadArrayAgg
)

// LoadSpec describes one relation materialized into the projection: a
// scalar subquery for a to-one relation, or an ARRAY_AGG subquery for a
// to-many/through relation.
type LoadSpec struct {
	Alias        string
	Kind         LoadKind
	Remote       Source
	Through      *Source // non-nil only for a ManyAcross-style load
	JoinOwner    expr.Node // predicate linking the owner row to Remote (or Through)
	JoinThrough  expr.Node // predicate linking Through to Remote, only when Through != nil
	Columns      []Column  // projected columns of Remote (nil means whole-row)
}

// LockKind enumerates row-locking clauses.
type LockKind int

const (
	LockNone LockKind = iota
	LockForUpdate
	LockForNoKeyUpdate
	LockForShare
	LockForKeyShare
)

// Query is an immutable, composable SELECT specification.
type Query struct {
	From Source

	columns []Column
	joins   []Join
	where   expr.Node
	groupBy []expr.Node
	having  expr.Node
	orderBy []expr.OrderTerm
	limit   *int
	offset  *int
	lock       LockKind
	nowait     bool
	skipLocked bool
	lockOf     []string
	loads      []LoadSpec
}

// New starts a query against from.
func New(from Source) *Query {
	return &Query{From: from}
}

func (q *Query) clone() *Query {
	c := *q
	return &c
}

// Select replaces the projection list.
func (q *Query) Select(cols ...Column) *Query {
	c := q.clone()
	c.columns = append([]Column{}, cols...)
	return c
}

// AddColumn appends one projected expression.
func (q *Query) AddColumn(col Column) *Query {
	c := q.clone()
	c.columns = append(append([]Column{}, q.columns...), col)
	return c
}

// Join appends an explicit join.
func (q *Query) Join(j Join) *Query {
	c := q.clone()
	c.joins = append(append([]Join{}, q.joins...), j)
	return c
}

// Where combines the existing predicate (if any) with expr using AND.
func (q *Query) Where(e expr.Node) *Query {
	c := q.clone()
	if c.where == nil {
		c.where = e
	} else {
		c.where = expr.And(c.where, e)
	}
	return c
}

// GroupBy replaces the GROUP BY list.
func (q *Query) GroupBy(exprs ...expr.Node) *Query {
	c := q.clone()
	c.groupBy = append([]expr.Node{}, exprs...)
	return c
}

// Having combines the existing HAVING predicate (if any) with e using AND.
func (q *Query) Having(e expr.Node) *Query {
	c := q.clone()
	if c.having == nil {
		c.having = e
	} else {
		c.having = expr.And(c.having, e)
	}
	return c
}

// OrderBy replaces the ORDER BY list.
func (q *Query) OrderBy(terms ...expr.OrderTerm) *Query {
	c := q.clone()
	c.orderBy = append([]expr.OrderTerm{}, terms...)
	return c
}

// Limit sets the row limit.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset sets the row offset.
func (q *Query) Offset(n int) *Query {
	c := q.clone()
	c.offset = &n
	return c
}

// Lock sets the FOR UPDATE/FOR SHARE-family clause.
func (q *Query) Lock(kind LockKind, nowait bool) *Query {
	c := q.clone()
	c.lock = kind
	c.nowait = nowait
	return c
}

// LockOf restricts the lock clause to the given source aliases
// (`FOR UPDATE OF "a", "b"`).
func (q *Query) LockOf(aliases ...string) *Query {
	c := q.clone()
	c.lockOf = append([]string{}, aliases...)
	return c
}

// SkipLocked sets the SKIP LOCKED modifier, mutually exclusive with
// NOWAIT in PostgreSQL; when both are set, the compiler emits SKIP
// LOCKED regardless of which was set last.
func (q *Query) SkipLocked() *Query {
	c := q.clone()
	c.skipLocked = true
	return c
}

// WithLoad appends a relation load spec.
func (q *Query) WithLoad(spec LoadSpec) *Query {
	c := q.clone()
	c.loads = append(append([]LoadSpec{}, q.loads...), spec)
	return c
}

// Columns, Joins, WhereExpr, GroupByExprs, HavingExpr, OrderTerms, LimitN,
// OffsetN, LockKind, NoWait, and Loads expose the built state to the
// dialect compiler.
func (q *Query) Columns() []Column       { return q.columns }
func (q *Query) Joins() []Join           { return q.joins }
func (q *Query) WhereExpr() expr.Node    { return q.where }
func (q *Query) GroupByExprs() []expr.Node { return q.groupBy }
func (q *Query) HavingExpr() expr.Node   { return q.having }
func (q *Query) OrderTerms() []expr.OrderTerm { return q.orderBy }
func (q *Query) LimitN() *int            { return q.limit }
func (q *Query) OffsetN() *int           { return q.offset }
func (q *Query) LockKind() LockKind      { return q.lock }
func (q *Query) NoWait() bool            { return q.nowait }
func (q *Query) SkipsLocked() bool       { return q.skipLocked }
func (q *Query) LockAliases() []string   { return q.lockOf }
func (q *Query) Loads() []LoadSpec       { return q.loads }

// ReduceChildren restricts a polymorphic-root query to rows that have a
// row in descendant's table: it appends an INNER JOIN of that table,
// aliased "<rootAlias>_<descendant name>", on equality of the root's
// primary-key columns. From is left unchanged and no predicate is
// rewritten.
func ReduceChildren(q *Query, descendant *entity.Entity, rootAlias string) *Query {
	descAlias := rootAlias + "_" + descendant.Qualified.Name
	root := descendant.Root()
	pk := root.PrimaryKey()
	var on expr.Node
	for _, f := range pk {
		cond := expr.Eq(expr.NewField(root.Qualified.String(), f.Name()), expr.NewField(descendant.Qualified.String(), f.Name()))
		if on == nil {
			on = cond
		} else {
			on = expr.And(on, cond)
		}
	}
	return q.Join(Join{
		Kind:   JoinInner,
		Source: Source{Entity: descendant, Alias: descAlias},
		On:     on,
	})
}
