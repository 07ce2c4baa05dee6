// Package expr implements the language-neutral expression algebra:
// constants, fields, binary/unary operators, calls, raw fragments,
// aliases, CASE, OVER, casts, and path expressions, walked by a
// double-dispatch Visitor that the dialect compiler (package query)
// implements.
package expr

// Node is one fragment of the expression algebra. Every node variant
// implements Accept by calling back the matching typed Visitor method.
type Node interface {
	Accept(v Visitor) error
}

// Visitor double-dispatches over every node variant. The SQL compiler and
// analysis passes (dependency collection, auto-join discovery) both
// implement this interface; each allocates its own scratch state.
type Visitor interface {
	VisitConst(*Const) error
	VisitField(*FieldRef) error
	VisitBinary(*Binary) error
	VisitUnary(*Unary) error
	VisitCall(*Call) error
	VisitRaw(*Raw) error
	VisitAlias(*Alias) error
	VisitOver(*Over) error
	VisitCast(*Cast) error
	VisitPath(*PathExpr) error
	VisitCase(*Case) error
}

// Const is a literal value. NULL/TRUE/FALSE render as SQL keywords;
// everything else becomes a positional parameter.
type Const struct {
	Value interface{}
	// TypeHint optionally names the field.Kind this constant should bind
	// as, used when the dialect needs an explicit cast for an untyped nil.
	TypeHint string
}

func (n *Const) Accept(v Visitor) error { return v.VisitConst(n) }

// NewConst builds a Const node.
func NewConst(value interface{}) *Const { return &Const{Value: value} }

// Null is the canonical NULL constant.
var Null = &Const{Value: nil}

// FieldRef is a column reference, qualified by the owning entity's alias
// at compile time (the alias itself is resolved by the query/entity
// layers, not stored here — FieldRef only carries the entity+column
// names the compiler needs to look up the current alias).
type FieldRef struct {
	Entity string // qualified entity name as declared, not the query alias
	Column string
}

func (n *FieldRef) Accept(v Visitor) error { return v.VisitField(n) }

// NewField builds a FieldRef node.
func NewField(entity, column string) *FieldRef {
	return &FieldRef{Entity: entity, Column: column}
}

// BinaryOp enumerates the supported binary operators.
type BinaryOp string

const (
	OpEq          BinaryOp = "="
	OpNeq         BinaryOp = "!="
	OpLt          BinaryOp = "<"
	OpLte         BinaryOp = "<="
	OpGt          BinaryOp = ">"
	OpGte         BinaryOp = ">="
	OpAdd         BinaryOp = "+"
	OpSub         BinaryOp = "-"
	OpMul         BinaryOp = "*"
	OpDiv         BinaryOp = "/"
	OpMod         BinaryOp = "%"
	OpPow         BinaryOp = "^"
	OpShl         BinaryOp = "<<"
	OpShr         BinaryOp = ">>"
	OpAnd         BinaryOp = "AND"
	OpOr          BinaryOp = "OR"
	OpIn          BinaryOp = "IN"
	OpNotIn       BinaryOp = "NOT IN"
	OpIs          BinaryOp = "IS"
	OpIsNot       BinaryOp = "IS NOT"
	OpILike       BinaryOp = "ILIKE"
	OpNotILike    BinaryOp = "NOT ILIKE"
)

// Binary is a two-operand expression.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
}

func (n *Binary) Accept(v Visitor) error { return v.VisitBinary(n) }

// NewBinary builds a Binary node.
func NewBinary(op BinaryOp, left, right Node) *Binary {
	return &Binary{Op: op, Left: left, Right: right}
}

// Eq, Neq, Lt, Lte, Gt, Gte are convenience constructors.
func Eq(l, r Node) *Binary  { return NewBinary(OpEq, l, r) }
func Neq(l, r Node) *Binary { return NewBinary(OpNeq, l, r) }
func Lt(l, r Node) *Binary  { return NewBinary(OpLt, l, r) }
func Lte(l, r Node) *Binary { return NewBinary(OpLte, l, r) }
func Gt(l, r Node) *Binary  { return NewBinary(OpGt, l, r) }
func Gte(l, r Node) *Binary { return NewBinary(OpGte, l, r) }

// And combines two or more expressions with AND, left-associating.
func And(exprs ...Node) Node { return foldBinary(OpAnd, exprs) }

// Or combines two or more expressions with OR, left-associating.
func Or(exprs ...Node) Node { return foldBinary(OpOr, exprs) }

func foldBinary(op BinaryOp, exprs []Node) Node {
	if len(exprs) == 0 {
		return nil
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = NewBinary(op, acc, e)
	}
	return acc
}

// StartsWith, EndsWith, Contains, Find expand string-helper calls into
// ILIKE/POSITION.
func StartsWith(field Node, s string) *Binary {
	return NewBinary(OpILike, field, NewConst(s+"%"))
}

func EndsWith(field Node, s string) *Binary {
	return NewBinary(OpILike, field, NewConst("%"+s))
}

func Contains(field Node, s string) *Binary {
	return NewBinary(OpILike, field, NewConst("%"+s+"%"))
}

// Find expands to POSITION(substr IN field) > 0.
func Find(field Node, substr string) *Binary {
	return NewBinary(OpGt, NewCall("POSITION", NewRaw(rawPositionIn(substr, field))), NewConst(0))
}

func rawPositionIn(substr string, field Node) []interface{} {
	return []interface{}{NewConst(substr), " IN ", field}
}

// UnaryOp enumerates the supported unary operators.
type UnaryOp string

const (
	OpNot UnaryOp = "NOT"
	OpNeg UnaryOp = "-"
	OpPos UnaryOp = "+"
	OpAbs UnaryOp = "@"
)

// Unary is a one-operand expression.
type Unary struct {
	Op   UnaryOp
	Expr Node
}

func (n *Unary) Accept(v Visitor) error { return v.VisitUnary(n) }

// NewUnary builds a Unary node.
func NewUnary(op UnaryOp, expr Node) *Unary { return &Unary{Op: op, Expr: expr} }

// Not builds the logical negation of expr (wrapping form, not the
// canonical-rewrite inversion — see Invert for that).
func Not(expr Node) *Unary { return NewUnary(OpNot, expr) }

// Call is a SQL function invocation.
type Call struct {
	Name string
	Args []Node
}

func (n *Call) Accept(v Visitor) error { return v.VisitCall(n) }

// NewCall builds a Call node.
func NewCall(name string, args ...Node) *Call { return &Call{Name: name, Args: args} }

// Raw is a dialect-specific escape hatch: fragments interleave literal
// SQL strings and embedded Nodes, emitted verbatim in order.
type Raw struct {
	Fragments []interface{} // each element is a string or a Node
}

func (n *Raw) Accept(v Visitor) error { return v.VisitRaw(n) }

// NewRaw builds a Raw node from interleaved string/Node fragments.
func NewRaw(fragments []interface{}) *Raw { return &Raw{Fragments: fragments} }

// Param is a trap-door parameter binding used inside Raw fragments.
type Param struct {
	Value interface{}
}

func (n *Param) Accept(v Visitor) error { return v.VisitConst(&Const{Value: n.Value}) }

// Alias renders as `expr AS "name"` in projections, and is the key later
// pipeline stages (ordering, grouping, load specs) reference downstream.
type Alias struct {
	Expr Node
	Name string
}

func (n *Alias) Accept(v Visitor) error { return v.VisitAlias(n) }

// As wraps expr in an Alias.
func As(expr Node, name string) *Alias { return &Alias{Expr: expr, Name: name} }

// OrderTerm is one entry of an ORDER BY / PARTITION BY list.
type OrderTerm struct {
	Expr Node
	Desc bool
}

// Over is a window specification wrapping a Call.
type Over struct {
	Call      *Call
	Partition []Node
	Order     []OrderTerm
}

func (n *Over) Accept(v Visitor) error { return v.VisitOver(n) }

// NewOver builds an Over node.
func NewOver(call *Call, partition []Node, order []OrderTerm) *Over {
	return &Over{Call: call, Partition: partition, Order: order}
}

// Cast renders `CAST(expr AS type_name)`.
type Cast struct {
	Expr     Node
	TypeName string
}

func (n *Cast) Accept(v Visitor) error { return v.VisitCast(n) }

// NewCast builds a Cast node.
func NewCast(expr Node, typeName string) *Cast { return &Cast{Expr: expr, TypeName: typeName} }

// WhenClause is one WHEN/THEN pair of a Case expression.
type WhenClause struct {
	When Node
	Then Node
}

// Case renders a SQL CASE expression, used by virtual-attribute value
// hooks to materialize computed columns.
type Case struct {
	Whens []WhenClause
	Else  Node
}

func (n *Case) Accept(v Visitor) error { return v.VisitCase(n) }

// PathSegment is one hop of a PathExpr: a relation traversal, a composite
// subfield access, or a JSON key access.
type PathSegment struct {
	Kind SegmentKind
	Name string
}

// SegmentKind distinguishes the three ways a PathExpr segment resolves.
type SegmentKind int

const (
	SegmentRelation SegmentKind = iota
	SegmentComposite
	SegmentJSON
)

// PathExpr is a chain `entity.relation.relation.field` or
// `composite.subfield`, resolved by rewriting each segment into joins
// (relations), `(col).sub` accessors (composite), or
// `jsonb_extract_path(col, 'k', …)` (JSON).
type PathExpr struct {
	Root     Node
	Segments []PathSegment
}

func (n *PathExpr) Accept(v Visitor) error { return v.VisitPath(n) }

// NewPath builds a PathExpr node.
func NewPath(root Node, segments ...PathSegment) *PathExpr {
	return &PathExpr{Root: root, Segments: segments}
}
