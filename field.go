package entity

import (
	"time"

	"github.com/entropydb/entity/field"
)

// Field is a column attribute: a field.Impl paired with nullability,
// default, size, and zero or more Extensions.
type Field struct {
	AttrBase

	entity *Entity

	Impl     field.Impl
	Size     field.Size
	Nullable bool
	Default  field.Default

	Extensions []Extension
}

// NewField declares a field attribute. Attach extensions with Extend
// before calling Entity.AddAttribute, or pass them inline.
func NewField(name string, impl field.Impl, exts ...Extension) *Field {
	return &Field{
		AttrBase:   NewAttrBase(name),
		Impl:       impl,
		Extensions: exts,
	}
}

// NewChoiceField declares a Choice-typed field. Choice enums are not
// PostgreSQL enums: the column stores the underlying key type and
// references a lookup table named after the enum, so the
// FK extension is attached here rather than left to every caller.
func NewChoiceField(name string, c field.Choice, exts ...Extension) *Field {
	exts = append([]Extension{&ForeignKey{
		Ref:       QualifiedName{Name: c.EnumName},
		RefColumn: "id",
	}}, exts...)
	return NewField(name, c, exts...)
}

func (f *Field) AttrKind() AttributeKind { return AttrField }

// Entity returns the owning entity, set when Finalize calls Bind on this field.
func (f *Field) Entity() *Entity { return f.entity }

// Extend appends extensions and returns the field for chaining.
func (f *Field) Extend(exts ...Extension) *Field {
	f.Extensions = append(f.Extensions, exts...)
	return f
}

// Null marks the field nullable and returns it for chaining.
func (f *Field) Null() *Field {
	f.Nullable = true
	return f
}

// WithDefault attaches a default value resolver.
func (f *Field) WithDefault(d field.Default) *Field {
	f.Default = d
	return f
}

// WithSize attaches an explicit size constraint (varchar length,
// numeric precision/scale).
func (f *Field) WithSize(s field.Size) *Field {
	f.Size = s
	return f
}

// Extension finds the first extension of the given kind, if attached.
func (f *Field) Extension(kind string) (Extension, bool) {
	for _, e := range f.Extensions {
		if e.Kind() == kind {
			return e, true
		}
	}
	return nil, false
}

// DependsOn surfaces FK targets, composite/array-of-composite item
// types, and AutoIncrement-owned sequences as dependency nodes.
func (f *Field) DependsOn() []Dep {
	var deps []Dep
	switch impl := f.Impl.(type) {
	case field.Composite:
		deps = append(deps, Dep{Kind: DepComposite, Name: QualifiedName{Schema: impl.Schema, Name: impl.TypeName}})
	case field.Array:
		if c, ok := impl.Item.(field.Composite); ok {
			deps = append(deps, Dep{Kind: DepComposite, Name: QualifiedName{Schema: c.Schema, Name: c.TypeName}})
		}
	case field.Json:
		// A Json-nested entity joins the dependency list but owns no
		// table or composite type.
		if impl.TypeName != "" {
			deps = append(deps, Dep{Kind: DepEntity, Name: QualifiedName{Schema: impl.Schema, Name: impl.TypeName}})
		}
	case field.JsonArray:
		if impl.TypeName != "" {
			deps = append(deps, Dep{Kind: DepEntity, Name: QualifiedName{Schema: impl.Schema, Name: impl.TypeName}})
		}
	}
	for _, ext := range f.Extensions {
		deps = append(deps, ext.DependsOn()...)
	}
	return deps
}

// Bind runs every extension's Bind hook against this field, phase 2 of
// entity construction. An AutoImpl placeholder is resolved here from
// the field's default value.
func (f *Field) Bind(e *Entity) error {
	f.entity = e
	if _, auto := f.Impl.(field.AutoImpl); auto {
		f.Impl = inferImpl(f.Default)
	}
	for _, ext := range f.Extensions {
		if err := ext.Bind(e, f); err != nil {
			return err
		}
	}
	return nil
}

// inferImpl picks a concrete implementation for an AutoImpl field from
// the Go type of its default value; String when nothing better is known.
func inferImpl(d field.Default) field.Impl {
	v := d.Literal
	if d.Func != nil {
		v = d.Func()
	}
	switch v.(type) {
	case bool:
		return field.Bool{}
	case int, int32, int64:
		return field.Int{}
	case float32:
		return field.Float{ByteSize: 4}
	case float64:
		return field.Float{ByteSize: 8}
	case []byte:
		return field.Bytes{}
	case time.Time:
		return field.DateTime{}
	default:
		return field.String{}
	}
}
