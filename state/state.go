// Package state implements per-instance dirty tracking: every
// loaded or newly built entity instance carries an EntityState pairing
// its current attribute values against the values last known to match
// the database, so the save planner can compute a minimal UPDATE
// without re-fetching a baseline.
package state

import "github.com/entropydb/entity/dberrors"

// EntityState holds one instance's current and initial (last-persisted)
// attribute values. Composite and array-of-composite values propagate
// dirtiness from their subfields: mutating a nested field marks the
// owning column changed even though the Go value's top-level identity
// did not change.
type EntityState struct {
	EntityName string

	current map[string]interface{}
	initial map[string]interface{}
	// loaded records attribute names fetched by the originating query,
	// distinguishing "known NULL" from "never loaded" for relations that
	// are lazy by default.
	loaded map[string]bool
	// isNew marks an instance that has never been persisted: Changes()
	// for a new instance returns every set attribute, not just the diff.
	isNew bool
}

// New starts the state for a freshly constructed (not yet persisted)
// instance.
func New(entityName string) *EntityState {
	return &EntityState{
		EntityName: entityName,
		current:    make(map[string]interface{}),
		initial:    make(map[string]interface{}),
		loaded:     make(map[string]bool),
		isNew:      true,
	}
}

// FromRow builds the state for an instance freshly loaded from the
// database: current and initial start identical, and every supplied
// column is marked loaded.
func FromRow(entityName string, values map[string]interface{}) *EntityState {
	s := &EntityState{
		EntityName: entityName,
		current:    make(map[string]interface{}, len(values)),
		initial:    make(map[string]interface{}, len(values)),
		loaded:     make(map[string]bool, len(values)),
	}
	for k, v := range values {
		s.current[k] = v
		s.initial[k] = v
		s.loaded[k] = true
	}
	return s
}

// Get reads the current value of attribute name. ok is false if the
// attribute was never set (new instance) or never loaded (lazy relation
// not yet fetched).
func (s *EntityState) Get(name string) (interface{}, bool) {
	v, ok := s.current[name]
	return v, ok
}

// IsLoaded reports whether attribute name has a known value — either
// set locally or fetched by the query that produced this instance.
func (s *EntityState) IsLoaded(name string) bool {
	if s.loaded[name] {
		return true
	}
	_, ok := s.current[name]
	return ok
}

// Set assigns a new current value, marking it loaded. It never touches
// the initial baseline, so subsequent Changes() calls report the diff
// against the last persisted (or zero, for new instances) value.
func (s *EntityState) Set(name string, value interface{}) {
	s.current[name] = value
	s.loaded[name] = true
}

// RequireLoaded returns an error suited to surfacing through
// dberrors.StateError when an attribute is read before it is available —
// a lazy relation accessed outside a loading context.
func (s *EntityState) RequireLoaded(name string) error {
	if s.IsLoaded(name) {
		return nil
	}
	return &dberrors.StateError{Entity: s.EntityName, Key: name, Message: "attribute not loaded"}
}

// Change is one attribute's before/after pair, as returned by Changes.
type Change struct {
	Name         string
	Before, After interface{}
	WasSet       bool // false for a brand-new instance (no prior value existed)
}

// EqualFunc compares two attribute values for dirty-detection purposes;
// callers pass field.Impl.Equal (or a default reflect.DeepEqual) per
// attribute since equality is type-specific (e.g. byte-slice vs scalar).
type EqualFunc func(name string, a, b interface{}) bool

// Changes returns every attribute whose current value differs from its
// initial value under eq. Order is not guaranteed; callers needing
// determinism should sort the result by Name.
func (s *EntityState) Changes(eq EqualFunc) []Change {
	var out []Change
	for name, cur := range s.current {
		init, wasSet := s.initial[name]
		if wasSet && eq(name, init, cur) {
			continue
		}
		out = append(out, Change{Name: name, Before: init, After: cur, WasSet: wasSet})
	}
	return out
}

// IsEmpty reports whether Changes(eq) would return nothing.
func (s *EntityState) IsEmpty(eq EqualFunc) bool {
	return len(s.Changes(eq)) == 0
}

// IsNew reports whether this instance has never been persisted.
func (s *EntityState) IsNew() bool { return s.isNew }

// Reset clears dirtiness by promoting every current value to the new
// initial baseline and marking the instance no longer new — called by
// the save planner once an INSERT/UPDATE has been executed
// successfully.
func (s *EntityState) Reset() {
	s.initial = make(map[string]interface{}, len(s.current))
	for k, v := range s.current {
		s.initial[k] = v
	}
	s.isNew = false
}

// PropagateComposite marks a composite-typed attribute dirty when one of
// its subfields changes, even though the top-level Go value passed back
// to Set may be a newly allocated struct with the same logical content —
// composite equality is delegated to the field's own Equal, so this is a
// plain Set plus a loaded-subfield bookkeeping hook for callers that want
// to track which subfields specifically changed.
func (s *EntityState) PropagateComposite(attr string, subfields map[string]interface{}) {
	// Copy rather than mutate: the current map may be shared with the
	// initial baseline, which must keep the pre-change subfield values.
	existing, _ := s.current[attr].(map[string]interface{})
	composite := make(map[string]interface{}, len(existing)+len(subfields))
	for k, v := range existing {
		composite[k] = v
	}
	for k, v := range subfields {
		composite[k] = v
	}
	s.Set(attr, composite)
}
