// Package sync implements the sync planner: it reflects the live
// database, diffs it against a declared entity.Registry, and orders the
// resulting changes into one monotonic DDL+DML script a caller executes
// as a single statement or transaction. Creates follow a fixed category
// order (sequences, composite types and tables in dependency order, then
// column alters, fixtures, constraints, indexes, triggers); drops run
// first, in roughly the reverse order, so dependents clear before the
// targets they reference. No CREATE SCHEMA is emitted.
package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/conn"
	"github.com/entropydb/entity/ddl"
	"github.com/entropydb/entity/diff"
	"github.com/entropydb/entity/internal/xlog"
	reflectpkg "github.com/entropydb/entity/reflect"
)

// Script is the ordered, ready-to-execute output of a Plan call.
type Script struct {
	Statements []ddl.Statement
}

// SQL concatenates every statement into one semicolon-terminated string —
// the single monotonic string the caller executes as
// one statement or one transaction.
func (s *Script) SQL() string {
	var b strings.Builder
	for _, stmt := range s.Statements {
		b.WriteString(stmt.SQL)
		b.WriteString(";\n")
	}
	return b.String()
}

// Empty reports whether the script has nothing to do — the idempotence
// property of running sync twice in a row.
func (s *Script) Empty() bool { return len(s.Statements) == 0 }

// Planner reflects a live connection and plans a sync script against it.
type Planner struct {
	Conn       conn.Connection
	SearchPath string

	// PositionCompatible turns on the optional "Position
	// compatibility" mode: when a declared entity's column order no
	// longer matches the live table's, the entity's column changes are
	// emitted as a RecreateViaShadow block instead of a grouped ALTER
	// TABLE. Off by default, matching the spec's "optional mode" wording.
	PositionCompatible bool
}

// NewPlanner builds a Planner over an open connection.
func NewPlanner(c conn.Connection, searchPath string) *Planner {
	return &Planner{Conn: c, SearchPath: searchPath}
}

// Plan reflects the database, diffs it against reg, reads back fixture
// rows for every entity that declares FixEntries, and returns the
// complete ordered script.
func (p *Planner) Plan(ctx context.Context, reg *entity.Registry) (*Script, error) {
	introspector := reflectpkg.New(p.Conn)
	live, err := introspector.Introspect(ctx, p.SearchPath)
	if err != nil {
		return nil, fmt.Errorf("sync: reflect: %w", err)
	}

	differ := diff.New(reg, live)
	changes := differ.Diff()

	liveTables := make(map[string]bool, len(live.Tables))
	for _, t := range live.Tables {
		liveTables[entity.QualifiedName{Schema: t.Schema, Name: t.Name}.String()] = true
	}
	for _, e := range reg.Entities() {
		if e.Virtual || len(e.FixEntries) == 0 {
			continue
		}
		if !liveTables[e.Qualified.String()] {
			// The table is only being created by this very script: every
			// declared fixture row is an insert.
			for _, entry := range e.FixEntries {
				changes = append(changes, diff.AddFixture{Entity: e, Entry: entry})
			}
			continue
		}
		rows, err := fetchFixtureRows(ctx, p.Conn, e)
		if err != nil {
			return nil, fmt.Errorf("sync: fixture rows for %s: %w", e.Qualified, err)
		}
		changes = append(changes, differ.FixtureChanges(e, rows)...)
	}

	recreate := make(map[string]bool)
	if p.PositionCompatible {
		for _, t := range live.Tables {
			q := entity.QualifiedName{Schema: t.Schema, Name: t.Name}
			e, ok := reg.Get(q)
			if !ok || e.Virtual {
				continue
			}
			if !PositionsMatch(e, &t) {
				recreate[q.String()] = true
			}
		}
	}

	xlog.Debug("sync: planned changes", "entity_count", len(reg.Entities()), "change_count", len(changes))
	return OrderWithRecreate(reg, changes, recreate)
}

// fetchFixtureRows reads back every row of e's table keyed by its primary
// key, projected as (pk values, non-pk column values) pairs — the live
// side of the fixture diff.
func fetchFixtureRows(ctx context.Context, c conn.Connection, e *entity.Entity) ([]diff.FixtureRow, error) {
	pk := e.PrimaryKey()
	if len(pk) == 0 {
		return nil, nil
	}
	var cols []string
	for _, f := range pk {
		cols = append(cols, ddl.QuoteIdent(f.Name()))
	}
	var nonPK []*entity.Field
	for _, f := range e.Fields() {
		if !isPKField(f, pk) {
			nonPK = append(nonPK, f)
			cols = append(cols, ddl.QuoteIdent(f.Name()))
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), ddl.QualifiedIdent(e.Qualified))
	rows, err := c.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []diff.FixtureRow
	for rows.Next() {
		scanTargets := make([]interface{}, len(pk)+len(nonPK))
		values := make([]interface{}, len(scanTargets))
		for i := range scanTargets {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		row := diff.FixtureRow{
			PK:     append([]interface{}{}, values[:len(pk)]...),
			Values: make(map[string]interface{}, len(nonPK)),
		}
		for i, f := range nonPK {
			row.Values[f.Name()] = values[len(pk)+i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func isPKField(f *entity.Field, pk []*entity.Field) bool {
	for _, p := range pk {
		if p == f {
			return true
		}
	}
	return false
}

// Order turns an unordered change set into the fixed-category script
// the emitted script follows. It is exported separately from
// Plan so tests (and a future "plan against an already-reflected schema"
// entrypoint) can exercise ordering without a live connection.
func Order(reg *entity.Registry, changes []diff.Change) (*Script, error) {
	return OrderWithRecreate(reg, changes, nil)
}

// OrderWithRecreate is Order, plus a set of entities (keyed by qualified
// name string) whose column changes should be emitted as a
// RecreateViaShadow block instead of a grouped ALTER TABLE — the position-
// compatibility path Planner.PositionCompatible opts into.
func OrderWithRecreate(reg *entity.Registry, changes []diff.Change, recreate map[string]bool) (*Script, error) {
	var b bucket
	for _, c := range changes {
		b.add(c)
	}

	var out []ddl.Statement

	// Drops run first, roughly dependents-before-targets: triggers and
	// constraints that reference a table are dropped before the table
	// itself, which is dropped before the composite types and sequences
	// nothing depends on anymore.
	for _, t := range b.dropTriggers {
		out = append(out, ddl.DropTrigger(entityOrStub(reg, t.Entity), entity.Trigger{Name: t.Trigger.Name}))
	}
	for _, c := range sortedDropConstraints(b.dropConstraints) {
		out = append(out, ddl.DropConstraint(entityOrStub(reg, c.Entity), c.Name))
	}
	for _, name := range sortedDropIndexNames(b.dropIndexes) {
		out = append(out, ddl.DropIndex(name))
	}
	for _, q := range sortedQualifiedNames(b.dropEntityNames) {
		out = append(out, ddl.DropTable(&entity.Entity{Qualified: q}))
	}
	for _, q := range sortedQualifiedNames(b.dropCompositeNames) {
		out = append(out, ddl.DropCompositeType(&entity.Entity{Qualified: q}))
	}
	for _, q := range sortedQualifiedNames(b.dropSequenceNames) {
		out = append(out, ddl.DropSequence(q))
	}

	// Creates follow registry dependency order within each category, so a
	// composite type or sequence a table's columns reference always
	// precedes that table, and a polymorph child's table always follows
	// its parent's.
	depOrder := reg.FullDependencyOrder()
	for _, node := range depOrder {
		switch node.Kind {
		case entity.DepSequence:
			if b.createSequences[node.Name.Name] {
				out = append(out, ddl.CreateSequence(node.Name))
			}
		case entity.DepComposite:
			if e, ok := b.createComposites[node.Name.String()]; ok {
				out = append(out, ddl.CreateCompositeType(e))
			}
		case entity.DepEntity:
			if e, ok := b.createEntities[node.Name.String()]; ok {
				out = append(out, ddl.CreateTable(e))
			}
		}
	}

	// Column alters are grouped into one ALTER TABLE per entity, in registry declaration order for determinism — unless
	// position compatibility flagged the entity for a shadow recreate.
	for _, e := range reg.Entities() {
		key := e.Qualified.String()
		actions := b.alterActions[key]
		if len(actions) == 0 {
			continue
		}
		if recreate[key] {
			out = append(out, RecreateViaShadow(e)...)
			continue
		}
		out = append(out, ddl.AlterTable(e, actions))
	}

	// Fixture DML, grouped insert/update/delete per entity.
	for _, e := range reg.Entities() {
		key := e.Qualified.String()
		for _, entry := range b.fixtureAdds[key] {
			stmt, err := fixtureInsert(e, entry)
			if err != nil {
				return nil, err
			}
			out = append(out, stmt)
		}
		for _, entry := range b.fixtureUpdates[key] {
			stmt, err := fixtureUpdate(e, entry)
			if err != nil {
				return nil, err
			}
			out = append(out, stmt)
		}
		for _, pk := range b.fixtureDeletes[key] {
			stmt, err := fixtureDelete(e, pk)
			if err != nil {
				return nil, err
			}
			out = append(out, stmt)
		}
	}

	// Constraints (unique, foreign key, check) are added only after every
	// table exists, so forward references within a dependency cycle still
	// resolve.
	for _, e := range reg.Entities() {
		key := e.Qualified.String()
		for _, u := range b.addUniques[key] {
			out = append(out, ddl.CreateUnique(e, u.Name, u.Fields))
		}
		for _, fk := range b.addForeignKeys[key] {
			out = append(out, ddl.AddForeignKey(e, fk.Field, fk.FK))
		}
		for _, chk := range b.addChecks[key] {
			stmts, err := ddl.CreateCheck(e, chk, e.AliasName())
			if err != nil {
				return nil, err
			}
			out = append(out, stmts...)
		}
	}

	for _, e := range reg.Entities() {
		for _, idx := range b.addIndexes[e.Qualified.String()] {
			out = append(out, ddl.CreateIndex(e, idx.Name, idx.Fields, idx.Index))
		}
	}

	for _, e := range reg.Entities() {
		for _, t := range b.addTriggers[e.Qualified.String()] {
			out = append(out, ddl.CreateTrigger(e, t)...)
		}
	}

	return &Script{Statements: out}, nil
}

// entityOrStub returns the registered entity for name if one still
// exists, or a bare stub carrying only the qualified name — used for
// drop-side statements, where the entity may no longer be declared at
// all.
func entityOrStub(reg *entity.Registry, name entity.QualifiedName) *entity.Entity {
	if e, ok := reg.Get(name); ok {
		return e
	}
	return &entity.Entity{Qualified: name}
}

func sortedQualifiedNames(set map[string]entity.QualifiedName) []entity.QualifiedName {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entity.QualifiedName, 0, len(keys))
	for _, k := range keys {
		out = append(out, set[k])
	}
	return out
}

type dropConstraintKey struct {
	entity entity.QualifiedName
	name   string
}

func sortedDropConstraints(m map[dropConstraintKey]diff.DropConstraint) []diff.DropConstraint {
	keys := make([]string, 0, len(m))
	index := make(map[string]dropConstraintKey, len(m))
	for k := range m {
		s := k.entity.String() + "." + k.name
		keys = append(keys, s)
		index[s] = k
	}
	sort.Strings(keys)
	out := make([]diff.DropConstraint, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[index[k]])
	}
	return out
}

func sortedDropIndexNames(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
