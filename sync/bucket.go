package sync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/ddl"
	"github.com/entropydb/entity/diff"
)

// bucket partitions an unordered []diff.Change into the per-category,
// per-entity groups Order assembles into the final script.
type bucket struct {
	dropTriggers       []diff.DropTrigger
	dropConstraints    map[dropConstraintKey]diff.DropConstraint
	dropIndexes        map[string]bool
	dropEntityNames    map[string]entity.QualifiedName
	dropCompositeNames map[string]entity.QualifiedName
	dropSequenceNames  map[string]entity.QualifiedName

	createSequences  map[string]bool
	createComposites map[string]*entity.Entity
	createEntities   map[string]*entity.Entity

	alterActions map[string][]string

	fixtureAdds    map[string][]entity.FixEntry
	fixtureUpdates map[string][]entity.FixEntry
	fixtureDeletes map[string][][]interface{}

	addUniques     map[string][]diff.AddUnique
	addForeignKeys map[string][]diff.AddForeignKey
	addChecks      map[string][]*entity.Check
	addIndexes     map[string][]diff.AddIndex
	addTriggers    map[string][]entity.Trigger
}

func (b *bucket) add(c diff.Change) {
	b.lazyInit()
	switch v := c.(type) {
	case diff.AddField:
		key := v.Entity.Qualified.String()
		b.alterActions[key] = append(b.alterActions[key], ddl.AddColumnAction(v.Field))
	case diff.DropField:
		key := v.Entity.String()
		b.alterActions[key] = append(b.alterActions[key], ddl.DropColumnAction(v.Column))
	case diff.AlterField:
		key := v.Entity.Qualified.String()
		switch v.Prop {
		case "type":
			b.alterActions[key] = append(b.alterActions[key], ddl.AlterColumnTypeAction(v.Field))
		case "nullable":
			b.alterActions[key] = append(b.alterActions[key], ddl.AlterColumnNullableAction(v.Field))
		case "default":
			b.alterActions[key] = append(b.alterActions[key], ddl.AlterColumnDefaultAction(v.Field))
		}
	case diff.AddUnique:
		key := v.Entity.Qualified.String()
		b.addUniques[key] = append(b.addUniques[key], v)
	case diff.AddForeignKey:
		key := v.Entity.Qualified.String()
		b.addForeignKeys[key] = append(b.addForeignKeys[key], v)
	case diff.AddCheck:
		key := v.Entity.Qualified.String()
		b.addChecks[key] = append(b.addChecks[key], v.Check)
	case diff.DropConstraint:
		b.dropConstraints[dropConstraintKey{entity: v.Entity, name: v.Name}] = v
	case diff.AddIndex:
		key := v.Entity.Qualified.String()
		b.addIndexes[key] = append(b.addIndexes[key], v)
	case diff.DropIndex:
		b.dropIndexes[v.Name] = true
	case diff.AddTrigger:
		key := v.Entity.Qualified.String()
		b.addTriggers[key] = append(b.addTriggers[key], v.Trigger)
	case diff.DropTrigger:
		b.dropTriggers = append(b.dropTriggers, v)
	case diff.AddFixture:
		key := v.Entity.Qualified.String()
		b.fixtureAdds[key] = append(b.fixtureAdds[key], v.Entry)
	case diff.UpdateFixture:
		key := v.Entity.Qualified.String()
		b.fixtureUpdates[key] = append(b.fixtureUpdates[key], v.Entry)
	case diff.DeleteFixture:
		key := v.Entity.Qualified.String()
		b.fixtureDeletes[key] = append(b.fixtureDeletes[key], v.PK)
	case diff.CreateEntity:
		b.createEntities[v.Entity.Qualified.String()] = v.Entity
	case diff.DropEntity:
		b.dropEntityNames[v.Entity.String()] = v.Entity
	case diff.CreateSequence:
		b.createSequences[v.Name.Name] = true
	case diff.DropSequence:
		b.dropSequenceNames[v.Name.String()] = v.Name
	case diff.CreateCompositeType:
		b.createComposites[v.Entity.Qualified.String()] = v.Entity
	case diff.DropCompositeType:
		b.dropCompositeNames[v.Name.String()] = v.Name
	}
}

func (b *bucket) lazyInit() {
	if b.dropConstraints != nil {
		return
	}
	b.dropConstraints = make(map[dropConstraintKey]diff.DropConstraint)
	b.dropIndexes = make(map[string]bool)
	b.dropEntityNames = make(map[string]entity.QualifiedName)
	b.dropCompositeNames = make(map[string]entity.QualifiedName)
	b.dropSequenceNames = make(map[string]entity.QualifiedName)
	b.createSequences = make(map[string]bool)
	b.createComposites = make(map[string]*entity.Entity)
	b.createEntities = make(map[string]*entity.Entity)
	b.alterActions = make(map[string][]string)
	b.fixtureAdds = make(map[string][]entity.FixEntry)
	b.fixtureUpdates = make(map[string][]entity.FixEntry)
	b.fixtureDeletes = make(map[string][][]interface{})
	b.addUniques = make(map[string][]diff.AddUnique)
	b.addForeignKeys = make(map[string][]diff.AddForeignKey)
	b.addChecks = make(map[string][]*entity.Check)
	b.addIndexes = make(map[string][]diff.AddIndex)
	b.addTriggers = make(map[string][]entity.Trigger)
}

// fixtureInsert emits the brand-new-row case: INSERT ... ON CONFLICT (pk)
// DO NOTHING, so a row someone else already created out-of-band is left
// untouched rather than overwritten.
func fixtureInsert(e *entity.Entity, entry entity.FixEntry) (ddl.Statement, error) {
	pk := e.PrimaryKey()
	if len(pk) != len(entry.PK) {
		return ddl.Statement{}, fmt.Errorf("sync: fixture entry for %s has %d primary-key values, want %d", e.Qualified, len(entry.PK), len(pk))
	}

	var cols, vals, pkCols []string
	for i, f := range pk {
		cols = append(cols, ddl.QuoteIdent(f.Name()))
		pkCols = append(pkCols, ddl.QuoteIdent(f.Name()))
		vals = append(vals, renderLiteral(entry.PK[i]))
	}
	for _, name := range sortedKeys(entry.Values) {
		cols = append(cols, ddl.QuoteIdent(name))
		vals = append(vals, renderLiteral(entry.Values[name]))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		ddl.QualifiedIdent(e.Qualified), strings.Join(cols, ", "), strings.Join(vals, ", "), strings.Join(pkCols, ", "))
	return ddl.Statement{SQL: sql, Kind: ddl.KindFixtureDML}, nil
}

// fixtureUpdate emits a plain UPDATE for a row whose declared values no
// longer match what was last synced.
func fixtureUpdate(e *entity.Entity, entry entity.FixEntry) (ddl.Statement, error) {
	pk := e.PrimaryKey()
	if len(pk) != len(entry.PK) {
		return ddl.Statement{}, fmt.Errorf("sync: fixture entry for %s has %d primary-key values, want %d", e.Qualified, len(entry.PK), len(pk))
	}

	names := sortedKeys(entry.Values)
	if len(names) == 0 {
		return ddl.Statement{SQL: "-- no-op fixture update for " + ddl.QualifiedIdent(e.Qualified), Kind: ddl.KindFixtureDML}, nil
	}
	var sets []string
	for _, name := range names {
		sets = append(sets, fmt.Sprintf("%s = %s", ddl.QuoteIdent(name), renderLiteral(entry.Values[name])))
	}

	where := pkWhereClause(pk, entry.PK)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", ddl.QualifiedIdent(e.Qualified), strings.Join(sets, ", "), where)
	return ddl.Statement{SQL: sql, Kind: ddl.KindFixtureDML}, nil
}

// fixtureDelete removes a live row whose primary key is no longer
// declared among e's fixtures.
func fixtureDelete(e *entity.Entity, pkValues []interface{}) (ddl.Statement, error) {
	pk := e.PrimaryKey()
	if len(pk) != len(pkValues) {
		return ddl.Statement{}, fmt.Errorf("sync: fixture delete for %s has %d primary-key values, want %d", e.Qualified, len(pkValues), len(pk))
	}
	where := pkWhereClause(pk, pkValues)
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", ddl.QualifiedIdent(e.Qualified), where)
	return ddl.Statement{SQL: sql, Kind: ddl.KindFixtureDML}, nil
}

func pkWhereClause(pk []*entity.Field, values []interface{}) string {
	var clauses []string
	for i, f := range pk {
		clauses = append(clauses, fmt.Sprintf("%s = %s", ddl.QuoteIdent(f.Name()), renderLiteral(values[i])))
	}
	return strings.Join(clauses, " AND ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderLiteral renders a Go value as a PostgreSQL SQL literal for
// embedding directly into a sync script — the script is one monotonic
// string, not a parameterized statement, so fixture values
// have to be quoted inline rather than bound.
func renderLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return ddl.QuoteLiteral(t)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", t)
	case fmt.Stringer:
		return ddl.QuoteLiteral(t.String())
	default:
		return ddl.QuoteLiteral(fmt.Sprintf("%v", t))
	}
}
