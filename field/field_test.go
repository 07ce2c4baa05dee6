package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_SQLType(t *testing.T) {
	assert.Equal(t, "TEXT", String{}.SQLType(Size{}))
	assert.Equal(t, "VARCHAR(50)", String{}.SQLType(UpTo(50)))
	assert.Equal(t, "CHAR(5)", String{}.SQLType(Exact(5, 5)))
}

func TestNumeric_SQLType(t *testing.T) {
	assert.Equal(t, "NUMERIC(15, 2)", Numeric{}.SQLType(Exact(15, 2)))
	assert.Equal(t, "NUMERIC", Numeric{}.SQLType(Size{}))
}

func TestInt_SQLType(t *testing.T) {
	assert.Equal(t, "INT2", Int{ByteSize: 2}.SQLType(Size{}))
	assert.Equal(t, "INT4", Int{}.SQLType(Size{}))
	assert.Equal(t, "INT8", Int{ByteSize: 8}.SQLType(Size{}))
}

func TestUUID_RoundTrip(t *testing.T) {
	u := UUID{}
	db, err := u.ToDatabase("123e4567-e89b-12d3-a456-426614174000")
	require.NoError(t, err)
	back, err := u.FromDatabase(db)
	require.NoError(t, err)
	assert.True(t, u.Equal(back, "123e4567-e89b-12d3-a456-426614174000"))
}

func TestUUID_InvalidRejected(t *testing.T) {
	_, err := UUID{}.ToDatabase("not-a-uuid")
	assert.Error(t, err)
}

func TestArray_SQLType(t *testing.T) {
	a := Array{Item: String{}}
	assert.Equal(t, "TEXT[]", a.SQLType(Size{}))
}

func TestComposite_SQLType(t *testing.T) {
	c := Composite{Schema: "public", TypeName: "FullName"}
	assert.Equal(t, `"public"."FullName"`, c.SQLType(Size{}))
}

func TestBytes_Equal(t *testing.T) {
	b := Bytes{}
	assert.True(t, b.Equal([]byte("abc"), []byte("abc")))
	assert.False(t, b.Equal([]byte("abc"), []byte("abd")))
}

func TestDefault_Resolve(t *testing.T) {
	d := Default{Literal: 5}
	v, ok := d.Resolve()
	require.True(t, ok)
	assert.Equal(t, 5, v)

	sqlDefault := Default{SQL: "now()"}
	_, ok = sqlDefault.Resolve()
	assert.False(t, ok)
	assert.False(t, sqlDefault.IsZero())
}

func TestTypeIdentity(t *testing.T) {
	assert.Equal(t, "String", TypeIdentity(String{}, Size{}))
	assert.Equal(t, "Numeric(15,2)", TypeIdentity(Numeric{}, Exact(15, 2)))
}
