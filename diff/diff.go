// Package diff compares a declared entity.Registry against a reflected
// database Schema and produces an ordered list of typed Change records:
// a closed Change interface with one concrete type per change kind, so
// the sync planner gets typed access to the entity/field/constraint a
// change refers to, not just a description string.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/ddl"
	"github.com/entropydb/entity/field"
	reflectpkg "github.com/entropydb/entity/reflect"
)

// ChangeKind tags a Change for bucketing by the sync planner.
type ChangeKind string

const (
	KindAddField            ChangeKind = "AddField"
	KindDropField           ChangeKind = "DropField"
	KindAlterField          ChangeKind = "AlterField"
	KindAddConstraint       ChangeKind = "AddConstraint"
	KindDropConstraint      ChangeKind = "DropConstraint"
	KindAddIndex            ChangeKind = "AddIndex"
	KindDropIndex           ChangeKind = "DropIndex"
	KindAddTrigger          ChangeKind = "AddTrigger"
	KindDropTrigger         ChangeKind = "DropTrigger"
	KindAddFixture          ChangeKind = "AddFixture"
	KindUpdateFixture       ChangeKind = "UpdateFixture"
	KindDeleteFixture       ChangeKind = "DeleteFixture"
	KindCreateEntity        ChangeKind = "CreateEntity"
	KindDropEntity          ChangeKind = "DropEntity"
	KindCreateSequence      ChangeKind = "CreateSequence"
	KindDropSequence        ChangeKind = "DropSequence"
	KindCreateCompositeType ChangeKind = "CreateCompositeType"
	KindDropCompositeType   ChangeKind = "DropCompositeType"
)

// Change is the closed set of structured diff results. Every concrete
// type below implements it; package sync switches on Kind() to decide
// which ddl emitter to call.
type Change interface {
	Kind() ChangeKind
}

type AddField struct {
	Entity *entity.Entity
	Field  *entity.Field
}

func (AddField) Kind() ChangeKind { return KindAddField }

type DropField struct {
	Entity entity.QualifiedName
	Column string
}

func (DropField) Kind() ChangeKind { return KindDropField }

// AlterField reports a reflected column whose type, nullability, or
// default no longer matches its declaration. Prop names which property
// differs ("type", "nullable", "default"); a column with more than one
// differing property produces one AlterField per property, so sync can
// still merge them into a single ALTER TABLE statement.
type AlterField struct {
	Entity *entity.Entity
	Field  *entity.Field
	Prop   string
}

func (AlterField) Kind() ChangeKind { return KindAlterField }

type AddUnique struct {
	Entity *entity.Entity
	Name   string
	Fields []*entity.Field
}

func (AddUnique) Kind() ChangeKind { return KindAddConstraint }

type AddForeignKey struct {
	Entity *entity.Entity
	Field  *entity.Field
	FK     *entity.ForeignKey
}

func (AddForeignKey) Kind() ChangeKind { return KindAddConstraint }

type AddCheck struct {
	Entity *entity.Entity
	Check  *entity.Check
}

func (AddCheck) Kind() ChangeKind { return KindAddConstraint }

// DropConstraint removes any named table constraint (unique, foreign
// key, or check) — the three share one DROP CONSTRAINT statement shape.
type DropConstraint struct {
	Entity entity.QualifiedName
	Name   string
}

func (DropConstraint) Kind() ChangeKind { return KindDropConstraint }

type AddIndex struct {
	Entity *entity.Entity
	Name   string
	Fields []*entity.Field
	Index  *entity.Index
}

func (AddIndex) Kind() ChangeKind { return KindAddIndex }

type DropIndex struct {
	Name string
}

func (DropIndex) Kind() ChangeKind { return KindDropIndex }

type AddTrigger struct {
	Entity  *entity.Entity
	Trigger entity.Trigger
}

func (AddTrigger) Kind() ChangeKind { return KindAddTrigger }

type DropTrigger struct {
	Entity  entity.QualifiedName
	Trigger reflectpkg.Trigger
}

func (DropTrigger) Kind() ChangeKind { return KindDropTrigger }

type AddFixture struct {
	Entity *entity.Entity
	Entry  entity.FixEntry
}

func (AddFixture) Kind() ChangeKind { return KindAddFixture }

type UpdateFixture struct {
	Entity *entity.Entity
	Entry  entity.FixEntry
}

func (UpdateFixture) Kind() ChangeKind { return KindUpdateFixture }

type DeleteFixture struct {
	Entity *entity.Entity
	PK     []interface{}
}

func (DeleteFixture) Kind() ChangeKind { return KindDeleteFixture }

type CreateEntity struct {
	Entity *entity.Entity
}

func (CreateEntity) Kind() ChangeKind { return KindCreateEntity }

type DropEntity struct {
	Entity entity.QualifiedName
}

func (DropEntity) Kind() ChangeKind { return KindDropEntity }

type CreateSequence struct {
	Name entity.QualifiedName
}

func (CreateSequence) Kind() ChangeKind { return KindCreateSequence }

type DropSequence struct {
	Name entity.QualifiedName
}

func (DropSequence) Kind() ChangeKind { return KindDropSequence }

type CreateCompositeType struct {
	Entity *entity.Entity
}

func (CreateCompositeType) Kind() ChangeKind { return KindCreateCompositeType }

type DropCompositeType struct {
	Name entity.QualifiedName
}

func (DropCompositeType) Kind() ChangeKind { return KindDropCompositeType }

// Differ compares a declared registry against a reflected live schema.
type Differ struct {
	Registry *entity.Registry
	Live     *reflectpkg.Schema
}

// New builds a Differ over reg (target) and live (what Reflect.Introspect
// returned for the current database state).
func New(reg *entity.Registry, live *reflectpkg.Schema) *Differ {
	return &Differ{Registry: reg, Live: live}
}

func (d *Differ) liveTable(q entity.QualifiedName) (*reflectpkg.Table, bool) {
	for i := range d.Live.Tables {
		t := &d.Live.Tables[i]
		if t.Schema == q.Schema && t.Name == q.Name {
			return t, true
		}
	}
	return nil, false
}

func (d *Differ) liveComposite(q entity.QualifiedName) (*reflectpkg.CompositeType, bool) {
	for i := range d.Live.CompositeTypes {
		c := &d.Live.CompositeTypes[i]
		if c.Schema == q.Schema && c.Name == q.Name {
			return c, true
		}
	}
	return nil, false
}

func (d *Differ) liveSequenceNames() map[string]bool {
	out := make(map[string]bool, len(d.Live.Sequences))
	for _, s := range d.Live.Sequences {
		out[s] = true
	}
	return out
}

// Diff computes the full structured change set between the registry and
// the live schema: tables, columns, constraints, indexes, triggers,
// sequences, and composite types. Fixture rows are diffed separately by
// FixtureChanges, since obtaining a live fixture row set requires
// executing a SELECT through a Connection, which this pure comparison
// does not have access to.
func (d *Differ) Diff() []Change {
	var changes []Change

	declaredSeq := make(map[string]bool)
	declaredTables := make(map[string]bool)
	declaredComposites := make(map[string]bool)
	compositeRefs := d.compositeReferencedNames()

	for _, e := range d.Registry.Entities() {
		for _, dep := range e.DependsOn() {
			if dep.Kind == entity.DepSequence {
				declaredSeq[dep.Name.Name] = true
			}
		}
		for _, f := range e.Fields() {
			if ai, ok := f.Extension("auto_increment"); ok {
				declaredSeq[ai.(*entity.AutoIncrement).Sequence] = true
			}
		}

		if e.Virtual {
			// Only virtual entities some Composite field actually names
			// exist as composite types; a virtual entity nested purely
			// through Json fields produces no DDL object at all.
			if compositeRefs[e.Qualified.String()] {
				declaredComposites[e.Qualified.String()] = true
				changes = append(changes, d.diffComposite(e)...)
			}
			continue
		}
		declaredTables[e.Qualified.String()] = true
		changes = append(changes, d.diffTable(e)...)
	}

	live := d.liveSequenceNames()
	var seqNames []string
	for name := range declaredSeq {
		seqNames = append(seqNames, name)
	}
	sort.Strings(seqNames)
	for _, name := range seqNames {
		if !live[name] {
			changes = append(changes, CreateSequence{Name: entity.QualifiedName{Name: name}})
		}
	}
	for _, name := range d.Live.Sequences {
		if !declaredSeq[name] {
			changes = append(changes, DropSequence{Name: entity.QualifiedName{Name: name}})
		}
	}

	for _, t := range d.Live.Tables {
		q := entity.QualifiedName{Schema: t.Schema, Name: t.Name}
		if !declaredTables[q.String()] {
			changes = append(changes, DropEntity{Entity: q})
		}
	}
	for _, c := range d.Live.CompositeTypes {
		q := entity.QualifiedName{Schema: c.Schema, Name: c.Name}
		if !declaredComposites[q.String()] {
			changes = append(changes, DropCompositeType{Name: q})
		}
	}

	return changes
}

// compositeReferencedNames collects the qualified names of every
// composite type some declared field's implementation names, directly
// or as an array item.
func (d *Differ) compositeReferencedNames() map[string]bool {
	refs := make(map[string]bool)
	add := func(c field.Composite) {
		refs[entity.QualifiedName{Schema: c.Schema, Name: c.TypeName}.String()] = true
	}
	for _, e := range d.Registry.Entities() {
		for _, f := range e.Fields() {
			switch impl := f.Impl.(type) {
			case field.Composite:
				add(impl)
			case field.Array:
				if c, ok := impl.Item.(field.Composite); ok {
					add(c)
				}
			}
		}
	}
	return refs
}

func (d *Differ) diffComposite(e *entity.Entity) []Change {
	live, ok := d.liveComposite(e.Qualified)
	if !ok {
		return []Change{CreateCompositeType{Entity: e}}
	}
	// Composite-type alteration is an open question this spec does not
	// resolve in-place: a shape mismatch is reported as
	// a drop+recreate pair rather than column-level alters.
	if !sameColumnSet(e.Fields(), live.Columns) {
		return []Change{DropCompositeType{Name: e.Qualified}, CreateCompositeType{Entity: e}}
	}
	return nil
}

func sameColumnSet(fields []*entity.Field, cols []reflectpkg.Column) bool {
	if len(fields) != len(cols) {
		return false
	}
	for i, f := range fields {
		if f.Name() != cols[i].Name {
			return false
		}
	}
	return true
}

func (d *Differ) diffTable(e *entity.Entity) []Change {
	live, ok := d.liveTable(e.Qualified)
	if !ok {
		changes := []Change{CreateEntity{Entity: e}}
		for name, fields := range e.UniqueGroups() {
			changes = append(changes, AddUnique{Entity: e, Name: name, Fields: fields})
		}
		for name, fields := range e.IndexGroups() {
			changes = append(changes, AddIndex{Entity: e, Name: name, Fields: fields, Index: indexExtensionOf(fields[0])})
		}
		for _, c := range e.Checks() {
			changes = append(changes, AddCheck{Entity: e, Check: c})
		}
		for _, f := range e.Fields() {
			for _, ext := range f.Extensions {
				if fk, ok := ext.(*entity.ForeignKey); ok {
					changes = append(changes, AddForeignKey{Entity: e, Field: f, FK: fk})
				}
			}
		}
		for _, t := range e.Triggers() {
			changes = append(changes, AddTrigger{Entity: e, Trigger: t})
		}
		return changes
	}

	var changes []Change
	changes = append(changes, d.diffColumns(e, live)...)
	changes = append(changes, d.diffConstraints(e, live)...)
	changes = append(changes, d.diffIndexes(e, live)...)
	changes = append(changes, d.diffTriggers(e, live)...)
	return changes
}

func indexExtensionOf(f *entity.Field) *entity.Index {
	for _, ext := range f.Extensions {
		if ix, ok := ext.(*entity.Index); ok {
			return ix
		}
	}
	return nil
}

func liveColumn(live *reflectpkg.Table, name string) (*reflectpkg.Column, bool) {
	for i := range live.Columns {
		if live.Columns[i].Name == name {
			return &live.Columns[i], true
		}
	}
	return nil, false
}

func (d *Differ) diffColumns(e *entity.Entity, live *reflectpkg.Table) []Change {
	var changes []Change
	declared := make(map[string]bool)
	for _, f := range e.Fields() {
		declared[f.Name()] = true
		col, ok := liveColumn(live, f.Name())
		if !ok {
			changes = append(changes, AddField{Entity: e, Field: f})
			continue
		}
		if ident, known := inferTypeIdentity(*col); known && ident != fieldTypeIdentity(f) {
			changes = append(changes, AlterField{Entity: e, Field: f, Prop: "type"})
		}
		if col.Nullable != f.Nullable {
			changes = append(changes, AlterField{Entity: e, Field: f, Prop: "nullable"})
		}
		if !defaultsEqual(ddl.ColumnDefault(f), col.DefaultClause) {
			changes = append(changes, AlterField{Entity: e, Field: f, Prop: "default"})
		}
	}
	for _, c := range live.Columns {
		if !declared[c.Name] {
			changes = append(changes, DropField{Entity: e.Qualified, Column: c.Name})
		}
	}
	return changes
}

// defaultsEqual compares a declared server-side default against a
// reflected pg_get_expr default clause. PostgreSQL normalizes stored
// defaults (identifier quoting, `::type` cast suffixes, case), so both
// sides are reduced to a canonical form first — a naive string compare
// would report `nextval('User_id_seq')` vs
// `nextval('"User_id_seq"'::regclass)` as drift on every run and break
// sync idempotence.
func defaultsEqual(declared, live string) bool {
	return normalizeDefault(declared) == normalizeDefault(live)
}

func normalizeDefault(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, `"`, "")
	var b strings.Builder
	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == ':' && s[i+1] == ':' {
			// Skip the cast's type name, which may contain spaces
			// ("character varying") but never quotes or parens.
			i += 2
			for i < len(s) {
				ch := s[i]
				if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == ' ' {
					i++
					continue
				}
				break
			}
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return strings.TrimSpace(b.String())
}

func fieldTypeIdentity(f *entity.Field) string {
	kind := string(f.Impl.Kind())
	// A Choice column is stored in its key type's column type.
	if c, ok := f.Impl.(field.Choice); ok && c.Key != nil {
		kind = string(c.Key.Kind())
	}
	// A JsonArray column is JSONB, which reflects back as Json.
	if kind == string(field.KindJsonArray) {
		kind = string(field.KindJson)
	}
	// A Serial column reflects back as a plain integer; the serial-ness
	// lives in its sequence default, not in the column type.
	if kind == string(field.KindSerial) {
		kind = string(field.KindInt)
	}
	return identityOfKind(kind, f.Size.IsSet(), f.Size.Min, f.Size.Max)
}

func identityOfKind(kind string, sized bool, min, max int) string {
	if sized {
		return fmt.Sprintf("%s(%d,%d)", kind, min, max)
	}
	return kind
}

// inferTypeIdentity maps a reflected column's information_schema/
// pg_catalog representation back to the same identity string
// field.TypeIdentity produces for a declared field, so the two can be
// compared without needing to reconstruct a full field.Impl per column.
// Kinds this cannot confidently map (composite types, arrays, opaque
// user-defined types) report known=false: the differ treats "unknown" as
// "not provably different" rather than guessing, leaving a genuine
// mismatch to surface as a DiffError at a higher layer if it matters.
func inferTypeIdentity(c reflectpkg.Column) (identity string, known bool) {
	switch c.UDTName {
	case "varchar":
		if c.MaxLength != nil {
			return identityOfKind("String", true, 0, *c.MaxLength), true
		}
		return "String", true
	case "bpchar":
		if c.MaxLength != nil {
			return identityOfKind("String", true, *c.MaxLength, *c.MaxLength), true
		}
		return "String", true
	case "text":
		return "String", true
	case "bytea":
		return "Bytes", true
	case "bool":
		return "Bool", true
	case "date":
		return "Date", true
	case "timestamp":
		return "DateTime", true
	case "timestamptz":
		return "DateTimeTz", true
	case "time":
		return "Time", true
	case "timetz":
		return "TimeTz", true
	case "int2", "int4", "int8":
		return "Int", true
	case "float4":
		return "Float", true
	case "float8":
		return "Float", true
	case "numeric":
		if c.NumPrecision != nil && c.NumScale != nil {
			return identityOfKind("Numeric", true, *c.NumPrecision, *c.NumScale), true
		}
		return "Numeric", true
	case "uuid":
		return "UUID", true
	case "jsonb":
		return "Json", true
	case "point":
		return "Point", true
	default:
		return "", false
	}
}

func (d *Differ) diffConstraints(e *entity.Entity, live *reflectpkg.Table) []Change {
	var changes []Change

	liveUnique := make(map[string]*reflectpkg.Constraint)
	liveFK := make(map[string]*reflectpkg.Constraint)
	liveCheck := make(map[string]*reflectpkg.Constraint)
	for i := range live.Constraints {
		c := &live.Constraints[i]
		switch c.Kind {
		case "u":
			liveUnique[c.Name] = c
		case "f":
			liveFK[c.Name] = c
		case "c":
			liveCheck[c.Name] = c
		}
	}

	declaredUnique := make(map[string]bool)
	for name, fields := range e.UniqueGroups() {
		declaredUnique[name] = true
		if _, ok := liveUnique[name]; !ok {
			changes = append(changes, AddUnique{Entity: e, Name: name, Fields: fields})
		}
	}
	for name := range liveUnique {
		if !declaredUnique[name] {
			changes = append(changes, DropConstraint{Entity: e.Qualified, Name: name})
		}
	}

	declaredFK := make(map[string]bool)
	for _, f := range e.Fields() {
		for _, ext := range f.Extensions {
			fk, ok := ext.(*entity.ForeignKey)
			if !ok {
				continue
			}
			name := fkConstraintName(e, f, fk)
			declaredFK[name] = true
			if _, ok := liveFK[name]; !ok {
				changes = append(changes, AddForeignKey{Entity: e, Field: f, FK: fk})
			}
		}
	}
	for name := range liveFK {
		if !declaredFK[name] {
			changes = append(changes, DropConstraint{Entity: e.Qualified, Name: name})
		}
	}

	declaredCheck := make(map[string]bool)
	for _, c := range e.Checks() {
		name := c.Name
		if name != "" {
			declaredCheck[name] = true
		}
		if payloadMatchesAny(liveCheck, c) {
			continue
		}
		changes = append(changes, AddCheck{Entity: e, Check: c})
	}
	for name, c := range liveCheck {
		if recoveredName, _, ok := reflectpkg.ParseCheckPayload(c.CheckPayload); ok {
			if !declaredCheckNameKnown(e, recoveredName) {
				changes = append(changes, DropConstraint{Entity: e.Qualified, Name: name})
			}
			continue
		}
		// No recovery payload: a hand-written check this registry never
		// declared. Leave it alone rather than guess at removal.
	}

	return changes
}

func fkConstraintName(e *entity.Entity, f *entity.Field, fk *entity.ForeignKey) string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s__%s-%s__%s", e.Qualified.Name, f.Name(), fk.Ref.Name, fk.RefColumn)
}

func payloadMatchesAny(live map[string]*reflectpkg.Constraint, c *entity.Check) bool {
	for _, lc := range live {
		name, _, ok := reflectpkg.ParseCheckPayload(lc.CheckPayload)
		if ok && name == c.Name && c.Name != "" {
			return true
		}
	}
	return false
}

func declaredCheckNameKnown(e *entity.Entity, name string) bool {
	for _, c := range e.Checks() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (d *Differ) diffIndexes(e *entity.Entity, live *reflectpkg.Table) []Change {
	var changes []Change
	liveByName := make(map[string]*reflectpkg.Index)
	for i := range live.Indexes {
		liveByName[live.Indexes[i].Name] = &live.Indexes[i]
	}

	declared := make(map[string]bool)
	for name, fields := range e.IndexGroups() {
		declared[name] = true
		if _, ok := liveByName[name]; !ok {
			changes = append(changes, AddIndex{Entity: e, Name: name, Fields: fields, Index: indexExtensionOf(fields[0])})
		}
	}
	for name := range liveByName {
		if !declared[name] {
			changes = append(changes, DropIndex{Name: name})
		}
	}
	return changes
}

func (d *Differ) diffTriggers(e *entity.Entity, live *reflectpkg.Table) []Change {
	var changes []Change
	liveByName := make(map[string]reflectpkg.Trigger)
	for _, t := range live.Triggers {
		liveByName[t.Name] = t
	}
	declared := make(map[string]bool)
	for _, t := range e.Triggers() {
		declared[t.Name] = true
		if _, ok := liveByName[t.Name]; !ok {
			changes = append(changes, AddTrigger{Entity: e, Trigger: t})
		}
	}
	for name, t := range liveByName {
		if !declared[name] {
			changes = append(changes, DropTrigger{Entity: e.Qualified, Trigger: t})
		}
	}
	return changes
}

// FixtureRow is one row read back from an entity's fixture set by the
// sync planner over its Connection; this package itself runs no queries.
type FixtureRow struct {
	PK     []interface{}
	Values map[string]interface{}
}

func pkKey(pk []interface{}) string {
	parts := make([]string, len(pk))
	for i, v := range pk {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "\x00")
}

// FixtureChanges diffs e's declared FixEntries against liveRows already
// fetched from the database by primary key.
func (d *Differ) FixtureChanges(e *entity.Entity, liveRows []FixtureRow) []Change {
	liveByKey := make(map[string]FixtureRow, len(liveRows))
	for _, r := range liveRows {
		liveByKey[pkKey(r.PK)] = r
	}

	var changes []Change
	declared := make(map[string]bool)
	for _, entry := range e.FixEntries {
		key := pkKey(entry.PK)
		declared[key] = true
		live, ok := liveByKey[key]
		if !ok {
			changes = append(changes, AddFixture{Entity: e, Entry: entry})
			continue
		}
		if !valuesEqual(entry.Values, live.Values) {
			changes = append(changes, UpdateFixture{Entity: e, Entry: entry})
		}
	}
	for key, row := range liveByKey {
		if !declared[key] {
			changes = append(changes, DeleteFixture{Entity: e, PK: row.PK})
		}
	}
	return changes
}

func valuesEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
