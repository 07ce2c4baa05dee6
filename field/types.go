package field

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// String implements the TEXT/VARCHAR(n)/CHAR(n) field: no size -> TEXT,
// size=n -> VARCHAR(n), size=[n,n] -> CHAR(n).
type String struct{}

func (String) Kind() Kind { return KindString }

func (String) SQLType(size Size) string {
	if !size.IsSet() {
		return "TEXT"
	}
	if size.Min == size.Max {
		return fmt.Sprintf("CHAR(%d)", size.Max)
	}
	return fmt.Sprintf("VARCHAR(%d)", size.Max)
}

func (String) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (String) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (String) Equal(a, b interface{}) bool                     { return a == b }

// Bytes implements BYTEA.
type Bytes struct{}

func (Bytes) Kind() Kind                            { return KindBytes }
func (Bytes) SQLType(Size) string                   { return "BYTEA" }
func (Bytes) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Bytes) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Bytes) Equal(a, b interface{}) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if !aok || !bok {
		return a == nil && b == nil
	}
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

// Bool implements BOOLEAN.
type Bool struct{}

func (Bool) Kind() Kind                            { return KindBool }
func (Bool) SQLType(Size) string                   { return "BOOLEAN" }
func (Bool) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Bool) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Bool) Equal(a, b interface{}) bool                     { return a == b }

// Date implements DATE.
type Date struct{}

func (Date) Kind() Kind                            { return KindDate }
func (Date) SQLType(Size) string                   { return "DATE" }
func (Date) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Date) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Date) Equal(a, b interface{}) bool                     { return timeEqual(a, b) }

// DateTime implements TIMESTAMP (no time zone).
type DateTime struct{}

func (DateTime) Kind() Kind                            { return KindDateTime }
func (DateTime) SQLType(Size) string                   { return "TIMESTAMP" }
func (DateTime) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (DateTime) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (DateTime) Equal(a, b interface{}) bool                     { return timeEqual(a, b) }

// DateTimeTz implements TIMESTAMPTZ.
type DateTimeTz struct{}

func (DateTimeTz) Kind() Kind                            { return KindDateTimeTz }
func (DateTimeTz) SQLType(Size) string                   { return "TIMESTAMPTZ" }
func (DateTimeTz) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (DateTimeTz) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (DateTimeTz) Equal(a, b interface{}) bool                     { return timeEqual(a, b) }

// Time implements TIME.
type Time struct{}

func (Time) Kind() Kind                            { return KindTime }
func (Time) SQLType(Size) string                   { return "TIME" }
func (Time) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Time) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Time) Equal(a, b interface{}) bool                     { return timeEqual(a, b) }

// TimeTz implements TIMETZ.
type TimeTz struct{}

func (TimeTz) Kind() Kind                            { return KindTimeTz }
func (TimeTz) SQLType(Size) string                   { return "TIMETZ" }
func (TimeTz) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (TimeTz) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (TimeTz) Equal(a, b interface{}) bool                     { return timeEqual(a, b) }

func timeEqual(a, b interface{}) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if !aok || !bok {
		return a == nil && b == nil
	}
	return at.Equal(bt)
}

// Int implements INT2/INT4/INT8, keyed by byte size (2, 4, or 8).
type Int struct {
	ByteSize int
}

func (Int) Kind() Kind { return KindInt }

func (f Int) SQLType(Size) string {
	switch f.ByteSize {
	case 2:
		return "INT2"
	case 8:
		return "INT8"
	default:
		return "INT4"
	}
}
func (Int) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Int) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Int) Equal(a, b interface{}) bool                     { return a == b }

// Serial is an auto-incrementing integer backed by an owned sequence; its
// SQL type is the corresponding integer width, the DEFAULT clause is
// emitted separately by ddl from the AutoIncrement extension.
type Serial struct {
	ByteSize int
}

func (Serial) Kind() Kind { return KindSerial }

func (f Serial) SQLType(Size) string {
	switch f.ByteSize {
	case 2:
		return "INT2"
	case 8:
		return "INT8"
	default:
		return "INT4"
	}
}
func (Serial) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Serial) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Serial) Equal(a, b interface{}) bool                     { return a == b }

// Float implements FLOAT4/FLOAT8.
type Float struct {
	ByteSize int
}

func (Float) Kind() Kind { return KindFloat }

func (f Float) SQLType(Size) string {
	if f.ByteSize == 4 {
		return "FLOAT4"
	}
	return "FLOAT8"
}
func (Float) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Float) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Float) Equal(a, b interface{}) bool                     { return a == b }

// Numeric implements NUMERIC(precision,scale); size.Min is precision,
// size.Max is scale: size=[15,2] emits NUMERIC(15, 2).
type Numeric struct{}

func (Numeric) Kind() Kind { return KindNumeric }

func (Numeric) SQLType(size Size) string {
	if !size.IsSet() {
		return "NUMERIC"
	}
	return fmt.Sprintf("NUMERIC(%d, %d)", size.Min, size.Max)
}
func (Numeric) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Numeric) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Numeric) Equal(a, b interface{}) bool                     { return a == b }

// UUID implements the UUID column, coercing to/from google/uuid.UUID.
type UUID struct{}

func (UUID) Kind() Kind          { return KindUUID }
func (UUID) SQLType(Size) string { return "UUID" }

func (UUID) ToDatabase(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val.String(), nil
	case string:
		if _, err := uuid.Parse(val); err != nil {
			return nil, fmt.Errorf("field.UUID: invalid uuid %q: %w", val, err)
		}
		return val, nil
	default:
		return v, nil
	}
}

func (UUID) FromDatabase(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return uuid.Parse(val)
	case []byte:
		return uuid.Parse(string(val))
	default:
		return v, nil
	}
}

func (UUID) Equal(a, b interface{}) bool {
	au, aok := coerceUUID(a)
	bu, bok := coerceUUID(b)
	if !aok || !bok {
		return a == b
	}
	return au == bu
}

func coerceUUID(v interface{}) (uuid.UUID, bool) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, true
	case string:
		u, err := uuid.Parse(val)
		return u, err == nil
	default:
		return uuid.UUID{}, false
	}
}

// Json implements JSONB for an arbitrary nested value. Schema/TypeName
// optionally name a declared (virtual) entity describing the nested
// shape: the nested entity joins the owner's dependency list but never
// owns a table or composite type. Left empty, the column holds
// free-form JSON.
type Json struct {
	Schema   string
	TypeName string
}

func (Json) Kind() Kind          { return KindJson }
func (Json) SQLType(Size) string { return "JSONB" }
func (Json) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Json) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Json) Equal(a, b interface{}) bool                     { return deepEqual(a, b) }

// JsonArray implements a JSONB column holding an array of values, with
// the same optional nested-entity reference as Json.
type JsonArray struct {
	Schema   string
	TypeName string
}

func (JsonArray) Kind() Kind          { return KindJsonArray }
func (JsonArray) SQLType(Size) string { return "JSONB" }
func (JsonArray) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (JsonArray) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (JsonArray) Equal(a, b interface{}) bool                     { return deepEqual(a, b) }

// Composite implements a PostgreSQL composite type column
// (`"<schema>"."<TypeName>"`); unlike Json, Composite does create a
// composite-type DDL object, tracked by ddl/reflect/diff, not by field.
type Composite struct {
	Schema   string
	TypeName string
}

func (Composite) Kind() Kind { return KindComposite }

func (c Composite) SQLType(Size) string {
	if c.Schema == "" {
		return c.TypeName
	}
	return fmt.Sprintf("%q.%q", c.Schema, c.TypeName)
}
func (Composite) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Composite) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Composite) Equal(a, b interface{}) bool                     { return deepEqual(a, b) }

// Array implements `<ItemType>[]`.
type Array struct {
	Item Impl
}

func (Array) Kind() Kind { return KindArray }

func (a Array) SQLType(size Size) string {
	return a.Item.SQLType(size) + "[]"
}

// ToDatabase wraps the slice with pq.Array so the driver renders the
// PostgreSQL array literal; scalar items need no per-item coercion.
func (Array) ToDatabase(v interface{}) (interface{}, error) { return pq.Array(v), nil }
func (Array) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Array) Equal(a, b interface{}) bool                     { return deepEqual(a, b) }

// Choice implements an enum-backed column. Choice enums
// are NOT PostgreSQL enums: they are stored as the underlying key type
// with an FK to a lookup table named after the enum.
type Choice struct {
	EnumName string
	Key      Impl // underlying storage type, e.g. String{} or Int{ByteSize: 4}
}

func (Choice) Kind() Kind { return KindChoice }

func (c Choice) SQLType(size Size) string { return c.Key.SQLType(size) }
func (Choice) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Choice) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Choice) Equal(a, b interface{}) bool                     { return a == b }

// Point implements the PostgreSQL geometric POINT type.
type Point struct{}

func (Point) Kind() Kind          { return KindPoint }
func (Point) SQLType(Size) string { return "POINT" }
func (Point) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (Point) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (Point) Equal(a, b interface{}) bool                     { return a == b }

// AutoImpl defers implementation choice to entity build time, where it
// is replaced by an Impl inferred from the field's default value; it
// never reaches the DDL/query compiler directly.
type AutoImpl struct{}

func (AutoImpl) Kind() Kind          { return KindAutoImpl }
func (AutoImpl) SQLType(Size) string { return "" }
func (AutoImpl) ToDatabase(v interface{}) (interface{}, error)   { return v, nil }
func (AutoImpl) FromDatabase(v interface{}) (interface{}, error) { return v, nil }
func (AutoImpl) Equal(a, b interface{}) bool                     { return a == b }

func deepEqual(a, b interface{}) bool {
	// Composite/Json/Array values are typically maps/slices/structs;
	// reflect.DeepEqual is the only correct general predicate for them.
	return deepEqualImpl(a, b)
}
