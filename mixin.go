package entity

// Mixin is a reusable bundle of attributes (commonly created_at/
// updated_at-style audit fields) shared across entity declarations.
// Build must return fresh Attribute instances on every call: mixins are
// re-bound per entity, never shared, so two entities applying the same
// Mixin never collide on AttrBase state.
type Mixin struct {
	Build func() []Attribute
}

// NewMixin wraps a factory function as a Mixin.
func NewMixin(build func() []Attribute) *Mixin { return &Mixin{Build: build} }

// ApplyTo adds every attribute the mixin builds to e, in order.
func (m *Mixin) ApplyTo(e *Entity) error {
	for _, a := range m.Build() {
		if err := e.AddAttribute(a); err != nil {
			return err
		}
	}
	return nil
}
