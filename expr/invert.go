package expr

// negation is the closed canonical-negation table: Invert of a Binary
// rewrites to the canonical negation rather than wrapping in NOT(...),
// so double inversion re-compiles to the identical SQL.
var negation = map[BinaryOp]BinaryOp{
	OpEq:       OpNeq,
	OpNeq:      OpEq,
	OpLt:       OpGte,
	OpGte:      OpLt,
	OpGt:       OpLte,
	OpLte:      OpGt,
	OpIn:       OpNotIn,
	OpNotIn:    OpIn,
	OpIs:       OpIsNot,
	OpIsNot:    OpIs,
	OpILike:    OpNotILike,
	OpNotILike: OpILike,
}

// Invert implements the `~expr` operator: a Binary whose operator has a
// canonical negation rewrites to that negation; a NOT(...) Unary is
// unwrapped; anything else (other Unary, Call, Raw, …) is wrapped in a
// NOT(...).
func Invert(n Node) Node {
	if b, ok := n.(*Binary); ok {
		if inv, ok := negation[b.Op]; ok {
			return &Binary{Op: inv, Left: b.Left, Right: b.Right}
		}
	}
	if u, ok := n.(*Unary); ok && u.Op == OpNot {
		// ~(NOT x) == x, so double inversion returns the original node.
		return u.Expr
	}
	return Not(n)
}
