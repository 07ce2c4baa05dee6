// Package save implements the save/load planner: it walks an
// in-memory object graph into a dependency-ordered sequence of
// INSERT/UPDATE/DELETE/link operations and loads query results back
// into dirty-tracked instances.
package save

import (
	"reflect"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/dberrors"
	"github.com/entropydb/entity/relation"
	"github.com/entropydb/entity/state"
)

// Instance is one in-memory entity record: a schema, its dirty-tracked
// attribute values, and the related instances held through relations.
// Instances are owned by exactly one goroutine.
type Instance struct {
	Entity *entity.Entity
	State  *state.EntityState

	ones  []heldOne
	manys []heldMany
	links []heldLink
}

type heldOne struct {
	rel   *relation.One
	inner *Instance
}

type heldMany struct {
	rel   *relation.Many
	inner *Instance
}

type heldLink struct {
	rel    *relation.ManyAcross
	remote *Instance
	remove bool
}

// NewInstance constructs an empty, never-persisted instance of e.
func NewInstance(e *entity.Entity) *Instance {
	return &Instance{Entity: e, State: state.New(e.Qualified.String())}
}

// FromValues constructs a new instance pre-populated from a bag of
// attribute values, rejecting unknown names.
func FromValues(e *entity.Entity, values map[string]interface{}) (*Instance, error) {
	inst := NewInstance(e)
	for k, v := range values {
		if err := inst.Set(k, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// FromRow constructs a loaded instance whose state baseline matches the
// supplied (already coerced) row values.
func FromRow(e *entity.Entity, values map[string]interface{}) *Instance {
	return &Instance{Entity: e, State: state.FromRow(e.Qualified.String(), values)}
}

// fieldNamed resolves name to a storable field anywhere in the
// instance's polymorph chain, concrete entity first.
func (i *Instance) fieldNamed(name string) (*entity.Field, bool) {
	for e := i.Entity; e != nil; e = e.PolymorphParent {
		if a, ok := e.Attribute(name); ok {
			if f, isField := a.(*entity.Field); isField {
				return f, true
			}
		}
	}
	return nil, false
}

// Set assigns an attribute value. Unknown attribute names fail with a
// StateError: the attribute set is closed at entity build time.
func (i *Instance) Set(name string, value interface{}) error {
	if _, ok := i.fieldNamed(name); !ok {
		if _, isAttr := i.Entity.Attribute(name); !isAttr {
			return &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "unknown attribute"}
		}
	}
	i.State.Set(name, value)
	return nil
}

// Get reads an attribute's current value.
func (i *Instance) Get(name string) (interface{}, bool) {
	return i.State.Get(name)
}

// SetOne attaches (or, with a nil inner, clears) a to-one relation.
// Clearing nulls the owning FK column without touching the remote row.
func (i *Instance) SetOne(name string, inner *Instance) error {
	rel, err := i.oneNamed(name)
	if err != nil {
		return err
	}
	if inner == nil {
		i.State.Set(rel.LocalColumn, nil)
		return nil
	}
	i.ones = append(i.ones, heldOne{rel: rel, inner: inner})
	return nil
}

// AddMany attaches a new remote instance to a to-many relation; its FK
// back to this owner is populated when the owner's key is known.
func (i *Instance) AddMany(name string, inner *Instance) error {
	a, ok := i.Entity.Attribute(name)
	if !ok {
		return &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "unknown relation"}
	}
	rel, ok := a.(*relation.Many)
	if !ok {
		return &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "not a Many relation"}
	}
	i.manys = append(i.manys, heldMany{rel: rel, inner: inner})
	return nil
}

// Link marks a ManyAcross association to remote for insertion; Unlink
// marks it for removal. Both populate the owner's touched-relation set,
// consumed by the planner.
func (i *Instance) Link(name string, remote *Instance) error {
	return i.touchLink(name, remote, false)
}

// Unlink schedules removal of the link row joining this instance to remote.
func (i *Instance) Unlink(name string, remote *Instance) error {
	return i.touchLink(name, remote, true)
}

func (i *Instance) touchLink(name string, remote *Instance, remove bool) error {
	a, ok := i.Entity.Attribute(name)
	if !ok {
		return &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "unknown relation"}
	}
	rel, ok := a.(*relation.ManyAcross)
	if !ok {
		return &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "not a ManyAcross relation"}
	}
	i.links = append(i.links, heldLink{rel: rel, remote: remote, remove: remove})
	return nil
}

func (i *Instance) oneNamed(name string) (*relation.One, error) {
	a, ok := i.Entity.Attribute(name)
	if !ok {
		return nil, &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "unknown relation"}
	}
	rel, ok := a.(*relation.One)
	if !ok {
		return nil, &dberrors.StateError{Entity: i.Entity.Qualified.String(), Key: name, Message: "not a One relation"}
	}
	return rel, nil
}

// equal is the dirty-detection predicate: the field implementation's
// own equality where one exists, reflect.DeepEqual otherwise.
func (i *Instance) equal(name string, a, b interface{}) bool {
	if f, ok := i.fieldNamed(name); ok {
		return f.Impl.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Changes returns the dirty attribute set under the per-field equality.
func (i *Instance) Changes() []state.Change {
	return i.State.Changes(i.equal)
}

// IsDirty reports whether a save would write anything for this
// instance alone (held relations not considered).
func (i *Instance) IsDirty() bool {
	return i.State.IsNew() || len(i.Changes()) > 0
}

// PKEmpty reports whether any primary-key column is still unset —
// the insert-vs-update pivot for Save.
func (i *Instance) PKEmpty() bool {
	pk := i.Entity.PrimaryKey()
	if len(pk) == 0 {
		return i.State.IsNew()
	}
	for _, f := range pk {
		if v, ok := i.State.Get(f.Name()); !ok || v == nil {
			return true
		}
	}
	return false
}

// initialPK returns the primary-key values the row is stored under in
// the database right now: the pre-change baseline for dirty PK columns,
// the current value otherwise. UPDATE/DELETE target rows by these, so
// rekeying a composite-PK row updates the old row rather than a
// phantom new one.
func (i *Instance) initialPK() map[string]interface{} {
	changed := make(map[string]state.Change)
	for _, ch := range i.Changes() {
		changed[ch.Name] = ch
	}
	out := make(map[string]interface{})
	for _, f := range i.Entity.PrimaryKey() {
		if ch, ok := changed[f.Name()]; ok && ch.WasSet {
			out[f.Name()] = ch.Before
			continue
		}
		if v, ok := i.State.Get(f.Name()); ok {
			out[f.Name()] = v
		}
	}
	return out
}
