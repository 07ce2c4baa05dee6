// Package field implements the closed set of column type implementations
//: static typing metadata per column kind, with read/write coercion
// and a stable type identity used by the schema differ.
package field

import "fmt"

// Kind identifies one of the closed set of field implementations.
type Kind string

const (
	KindString      Kind = "String"
	KindBytes       Kind = "Bytes"
	KindBool        Kind = "Bool"
	KindDate        Kind = "Date"
	KindDateTime    Kind = "DateTime"
	KindDateTimeTz  Kind = "DateTimeTz"
	KindTime        Kind = "Time"
	KindTimeTz      Kind = "TimeTz"
	KindInt         Kind = "Int"
	KindSerial      Kind = "Serial"
	KindFloat       Kind = "Float"
	KindNumeric     Kind = "Numeric"
	KindUUID        Kind = "UUID"
	KindJson        Kind = "Json"
	KindJsonArray   Kind = "JsonArray"
	KindComposite   Kind = "Composite"
	KindArray       Kind = "Array"
	KindChoice      Kind = "Choice"
	KindPoint       Kind = "Point"
	KindAutoImpl    Kind = "AutoImpl"
)

// Size expresses a field's min/max size pair.
// The zero value means "unsized" (TEXT rather than VARCHAR(n)).
type Size struct {
	Min, Max int
	set      bool
}

// Exact builds a precise [min, max] size, used by Numeric (precision,
// scale) and by String when a fixed CHAR(n) length is wanted.
func Exact(min, max int) Size { return Size{Min: min, Max: max, set: true} }

// UpTo builds an `n` → {min:0, max:n} size, the VARCHAR(n) form.
func UpTo(max int) Size { return Size{Min: 0, Max: max, set: true} }

// IsSet reports whether a size was specified at all.
func (s Size) IsSet() bool { return s.set }

// Coercion converts between the in-memory representation and the
// database wire representation for one direction.
type Coercion func(value interface{}) (interface{}, error)

// Impl is a field implementation: SQL type name, default PostgreSQL
// representation, read/write coercions, and dirty-detection equality.
// Every member of the closed Kind set implements this interface.
type Impl interface {
	Kind() Kind
	// SQLType renders the PostgreSQL column type for the given size,
	// e.g. String{} .SQLType(UpTo(50)) -> "VARCHAR(50)".
	SQLType(size Size) string
	// ToDatabase coerces an in-memory value into the representation the
	// driver should bind as a parameter.
	ToDatabase(value interface{}) (interface{}, error)
	// FromDatabase coerces a value scanned out of the driver back into
	// the in-memory representation.
	FromDatabase(value interface{}) (interface{}, error)
	// Equal implements the dirty-detection equality predicate: two
	// in-memory values are equal iff the field is considered unchanged.
	Equal(a, b interface{}) bool
}

// TypeIdentity is the stable identity used by the differ to decide
// whether a reflected column's type matches a declared field's type
// without caring about Go-side representation details.
func TypeIdentity(impl Impl, size Size) string {
	if size.IsSet() {
		return fmt.Sprintf("%s(%d,%d)", impl.Kind(), size.Min, size.Max)
	}
	return string(impl.Kind())
}

// Default describes a field's default value: exactly one of Literal,
// Func, or SQL is set.
type Default struct {
	// Literal is a constant value assigned at insert time by this
	// process (not pushed into DDL).
	Literal interface{}
	// Func produces a literal at insert time, e.g. a UUID generator.
	Func func() interface{}
	// SQL is a server-side default fragment emitted verbatim into DDL,
	// e.g. "now()" or "gen_random_uuid()".
	SQL string
}

// IsZero reports whether no default was configured.
func (d Default) IsZero() bool {
	return d.Literal == nil && d.Func == nil && d.SQL == ""
}

// Resolve computes the value to assign at insert time for Literal/Func
// defaults. SQL defaults are never resolved client-side: they are left
// for PostgreSQL to apply, so Resolve's second return is false for them.
func (d Default) Resolve() (interface{}, bool) {
	switch {
	case d.Func != nil:
		return d.Func(), true
	case d.Literal != nil:
		return d.Literal, true
	default:
		return nil, false
	}
}
