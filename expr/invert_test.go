package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvert_CanonicalNegation(t *testing.T) {
	e := Eq(NewField("User", "id"), NewConst(1))
	inv := Invert(e)
	b, ok := inv.(*Binary)
	assert.True(t, ok)
	assert.Equal(t, OpNeq, b.Op)
}

func TestInvert_DoubleInversionRestoresOriginal(t *testing.T) {
	e := NewBinary(OpIn, NewField("User", "id"), NewConst([]int{1, 2}))
	twice := Invert(Invert(e))
	assert.Equal(t, e, twice)
}

func TestInvert_FallsBackToNot(t *testing.T) {
	e := NewCall("UPPER", NewField("User", "name"))
	inv := Invert(e)
	u, ok := inv.(*Unary)
	assert.True(t, ok)
	assert.Equal(t, OpNot, u.Op)
}

func TestPrecedence_OrLowerThanAnd(t *testing.T) {
	assert.Less(t, Precedence(NewBinary(OpOr, Null, Null)), Precedence(NewBinary(OpAnd, Null, Null)))
}
