package entity

import "github.com/entropydb/entity/dberrors"

// Binder is implemented by attributes that need a bind-time hook against
// their owning entity (Field, VirtualAttribute, and package relation's
// One/Many/ManyAcross). It is phase 2 of the three-phase construction:
// Collection, Extension binding, Registration.
type Binder interface {
	Bind(e *Entity) error
}

// Registry holds every entity declared in a program, in declaration
// order, and answers dependency-ordering queries for the sync planner
// and the save/load planner.
type Registry struct {
	entities map[QualifiedName]*Entity
	order    []QualifiedName
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[QualifiedName]*Entity)}
}

// Default is the process-wide convenience registry used when a caller
// does not pass an explicit one. Library code accepts a *Registry
// everywhere; this global exists only so small programs and the
// entityctl front door have a shared declaration target.
var Default = NewRegistry()

// Finalize runs phase 2 (extension/attribute binding) and phase 3
// (registration) for e, then adds it to reg. Call this once per entity
// declaration, after every Field/Relation/Virtual has been attached via
// Entity.AddAttribute.
func Finalize(reg *Registry, e *Entity) error {
	if e.finalized {
		return nil
	}
	for _, a := range e.attrs {
		if b, ok := a.(Binder); ok {
			if err := b.Bind(e); err != nil {
				return err
			}
		}
	}
	e.finalized = true
	e.Registry = reg
	return reg.Add(e)
}

// Add registers e directly, without running the binder phase — used for
// entities whose attributes are already bound (e.g. polymorph
// descendants assembled by the polymorph helpers).
func (r *Registry) Add(e *Entity) error {
	if _, exists := r.entities[e.Qualified]; exists {
		return &dberrors.SchemaError{Entity: e.Qualified.String(), Message: "already registered"}
	}
	r.entities[e.Qualified] = e
	r.order = append(r.order, e.Qualified)
	return nil
}

// Get looks up a registered entity by qualified name.
func (r *Registry) Get(q QualifiedName) (*Entity, bool) {
	e, ok := r.entities[q]
	return e, ok
}

// Entities returns every registered entity in declaration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, q := range r.order {
		out = append(out, r.entities[q])
	}
	return out
}

// DepNode is one node of a resolved dependency list: either a registered
// entity, a bare sequence name, or a bare composite-type name (the
// latter two have no further dependencies of their own to expand).
type DepNode struct {
	Kind   DepKind
	Name   QualifiedName
	Entity *Entity // non-nil iff Kind == DepEntity and the name resolved
}

// DependencyList returns a topologically ordered list of every entity,
// sequence, and composite type e transitively depends on, e included,
// dependencies before dependents. Self-
// references and cycles are tolerated: a node already being visited is
// skipped rather than re-entered, so cyclic schemas still produce a
// deterministic (if not uniquely correct) order.
func (r *Registry) DependencyList(e *Entity) []DepNode {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var out []DepNode

	var visit func(d Dep)
	visit = func(d Dep) {
		key := depKey(d)
		if visited[key] || visiting[key] {
			return
		}
		visiting[key] = true
		if d.Kind == DepEntity {
			if child, ok := r.entities[d.Name]; ok {
				for _, cd := range child.DependsOn() {
					visit(cd)
				}
				visiting[key] = false
				visited[key] = true
				out = append(out, DepNode{Kind: DepEntity, Name: d.Name, Entity: child})
				return
			}
		}
		visiting[key] = false
		visited[key] = true
		out = append(out, DepNode{Kind: d.Kind, Name: d.Name})
	}

	for _, d := range e.DependsOn() {
		visit(d)
	}
	visited[depKey(Dep{Kind: DepEntity, Name: e.Qualified})] = true
	out = append(out, DepNode{Kind: DepEntity, Name: e.Qualified, Entity: e})
	return out
}

// FullDependencyOrder returns every entity in the registry ordered so
// that each entity's dependencies (per DependencyList) precede it —
// the order sync creates tables in.
func (r *Registry) FullDependencyOrder() []DepNode {
	seen := make(map[string]bool)
	var out []DepNode
	for _, e := range r.Entities() {
		for _, n := range r.DependencyList(e) {
			key := depKey(Dep{Kind: n.Kind, Name: n.Name})
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, n)
		}
	}
	return out
}

func depKey(d Dep) string {
	prefix := "e:"
	switch d.Kind {
	case DepSequence:
		prefix = "s:"
	case DepComposite:
		prefix = "c:"
	}
	return prefix + d.Name.String()
}
