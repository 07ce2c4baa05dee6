// Package ddl compiles entity declarations into PostgreSQL DDL
// statements: CREATE TABLE/TYPE/SEQUENCE, ALTER TABLE ... ADD
// CONSTRAINT for foreign keys (added after every table exists, so
// forward references within a dependency cycle still resolve), indexes,
// CHECK constraints (with a JSON recovery payload in a constraint comment so
// reflect/diff can recompute which declared Check produced it), and
// the ForeignKeyList/polymorph triggers entity.Entity.Triggers()
// collects during binding.
package ddl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/expr"
	"github.com/entropydb/entity/query/dialect/postgres"
)

// Statement is one DDL statement, tagged with a Kind the sync planner
// uses to order drops before creates before fixtures before
// constraints before triggers.
type Statement struct {
	SQL  string
	Kind Kind
}

type Kind int

const (
	KindCreateSequence Kind = iota
	KindCreateType
	KindCreateTable
	KindAddForeignKey
	KindCreateUnique
	KindCreateIndex
	KindCreateCheck
	KindCreateFunction
	KindCreateTrigger
	KindDropTable
	KindDropType
	KindDropSequence
	KindDropConstraint
	KindDropIndex
	KindDropTrigger
	KindFixtureDML
)

func quoteIdent(s string) string {
	return pq.QuoteIdentifier(s)
}

func qualifiedIdent(q entity.QualifiedName) string {
	return postgres.QualifiedIdent(q)
}

// QuoteIdent, QualifiedIdent, and QuoteLiteral expose this package's
// identifier/literal quoting to package sync, which emits fixture DML
// alongside the schema DDL this package compiles.
func QuoteIdent(s string) string                  { return quoteIdent(s) }
func QualifiedIdent(q entity.QualifiedName) string { return qualifiedIdent(q) }
func QuoteLiteral(s string) string                 { return quoteLiteral(s) }

// CreateSequence emits `CREATE SEQUENCE`, used for every AutoIncrement-
// owned sequence discovered by the registry's dependency walk.
func CreateSequence(name entity.QualifiedName) Statement {
	return Statement{
		SQL:  fmt.Sprintf("CREATE SEQUENCE %s", qualifiedIdent(name)),
		Kind: KindCreateSequence,
	}
}

func DropSequence(name entity.QualifiedName) Statement {
	return Statement{SQL: fmt.Sprintf("DROP SEQUENCE %s", qualifiedIdent(name)), Kind: KindDropSequence}
}

// columnDDL renders one column definition, including inline PRIMARY KEY
// for a single-column key (composite keys are emitted as a table-level
// constraint by CreateTable).
func columnDDL(f *entity.Field, inlinePK bool) string {
	var b strings.Builder
	b.WriteString(quoteIdent(f.Name()))
	b.WriteString(" ")
	b.WriteString(f.Impl.SQLType(f.Size))
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def := defaultClause(f); def != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}
	if inlinePK {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

// ColumnDefault renders the server-side DEFAULT expression a column
// should carry, "" when the default (if any) is applied client-side at
// insert time instead. Exported so the differ can compare it against a
// reflected column's default clause.
func ColumnDefault(f *entity.Field) string { return defaultClause(f) }

func defaultClause(f *entity.Field) string {
	for _, ext := range f.Extensions {
		if ai, ok := ext.(*entity.AutoIncrement); ok {
			return fmt.Sprintf("nextval(%s)", quoteLiteral(ai.Sequence))
		}
	}
	if f.Default.SQL != "" {
		return f.Default.SQL
	}
	return ""
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateTable emits `CREATE TABLE` for a non-virtual, non-descendant
// entity. Polymorphic descendants are created separately by
// CreateDescendantTable, since their primary key doubles as a cascading
// FK to the parent.
func CreateTable(e *entity.Entity) Statement {
	pk := e.PrimaryKey()
	var cols []string
	for _, f := range e.Fields() {
		cols = append(cols, columnDDL(f, len(pk) == 1 && pk[0] == f))
	}
	if len(pk) > 1 {
		var names []string
		for _, f := range pk {
			names = append(names, quoteIdent(f.Name()))
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(names, ", ")))
	}
	return Statement{
		SQL:  fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", qualifiedIdent(e.Qualified), strings.Join(cols, ",\n  ")),
		Kind: KindCreateTable,
	}
}

func DropTable(e *entity.Entity) Statement {
	return Statement{SQL: fmt.Sprintf("DROP TABLE %s", qualifiedIdent(e.Qualified)), Kind: KindDropTable}
}

// AddColumnAction renders one `ADD COLUMN` clause for use inside a
// combined ALTER TABLE statement.
func AddColumnAction(f *entity.Field) string {
	return "ADD COLUMN " + columnDDL(f, false)
}

// DropColumnAction renders one `DROP COLUMN` clause.
func DropColumnAction(name string) string {
	return "DROP COLUMN " + quoteIdent(name)
}

// AlterColumnTypeAction renders one `ALTER COLUMN ... TYPE` clause.
func AlterColumnTypeAction(f *entity.Field) string {
	return fmt.Sprintf("ALTER COLUMN %s TYPE %s", quoteIdent(f.Name()), f.Impl.SQLType(f.Size))
}

// AlterColumnNullableAction renders one `ALTER COLUMN ... SET/DROP NOT
// NULL` clause.
func AlterColumnNullableAction(f *entity.Field) string {
	if f.Nullable {
		return fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", quoteIdent(f.Name()))
	}
	return fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", quoteIdent(f.Name()))
}

// AlterColumnDefaultAction renders one `ALTER COLUMN ... SET/DROP
// DEFAULT` clause, converging the column onto its declared server-side
// default (DROP when none is declared).
func AlterColumnDefaultAction(f *entity.Field) string {
	if def := defaultClause(f); def != "" {
		return fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", quoteIdent(f.Name()), def)
	}
	return fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", quoteIdent(f.Name()))
}

// AlterTable joins one or more column actions into a single ALTER TABLE
// statement, in the order given.
func AlterTable(e *entity.Entity, actions []string) Statement {
	return Statement{
		SQL:  fmt.Sprintf("ALTER TABLE %s\n  %s", qualifiedIdent(e.Qualified), strings.Join(actions, ",\n  ")),
		Kind: KindCreateTable,
	}
}

// CreateCompositeType emits `CREATE TYPE ... AS (...)` for a virtual
// entity used only as a composite column type.
func CreateCompositeType(e *entity.Entity) Statement {
	var cols []string
	for _, f := range e.Fields() {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name()), f.Impl.SQLType(f.Size)))
	}
	return Statement{
		SQL:  fmt.Sprintf("CREATE TYPE %s AS (\n  %s\n)", qualifiedIdent(e.Qualified), strings.Join(cols, ",\n  ")),
		Kind: KindCreateType,
	}
}

func DropCompositeType(e *entity.Entity) Statement {
	return Statement{SQL: fmt.Sprintf("DROP TYPE %s", qualifiedIdent(e.Qualified)), Kind: KindDropType}
}

// ForeignKeyConstraintName synthesizes `fk_<Self>__<col>-<Ref>__<col>`
// when the extension did not provide one explicitly.
func ForeignKeyConstraintName(e *entity.Entity, f *entity.Field, fk *entity.ForeignKey) string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s__%s-%s__%s", e.Qualified.Name, f.Name(), fk.Ref.Name, fk.RefColumn)
}

// AddForeignKey emits an `ALTER TABLE ... ADD CONSTRAINT ... FOREIGN
// KEY` statement, applied after every table is created so that forward
// references (including self-references and cycles) always resolve.
func AddForeignKey(e *entity.Entity, f *entity.Field, fk *entity.ForeignKey) Statement {
	name := ForeignKeyConstraintName(e, f, fk)
	sql := fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		qualifiedIdent(e.Qualified), quoteIdent(name), quoteIdent(f.Name()), qualifiedIdent(fk.Ref), quoteIdent(fk.RefColumn),
	)
	if fk.OnDelete != "" {
		sql += " ON DELETE " + string(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		sql += " ON UPDATE " + string(fk.OnUpdate)
	}
	return Statement{SQL: sql, Kind: KindAddForeignKey}
}

func DropConstraint(e *entity.Entity, name string) Statement {
	return Statement{
		SQL:  fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", qualifiedIdent(e.Qualified), quoteIdent(name)),
		Kind: KindDropConstraint,
	}
}

// CreateUnique emits a multi-column UNIQUE constraint for one
// Entity.UniqueGroups() entry.
func CreateUnique(e *entity.Entity, name string, fields []*entity.Field) Statement {
	var names []string
	for _, f := range fields {
		names = append(names, quoteIdent(f.Name()))
	}
	return Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
			qualifiedIdent(e.Qualified), quoteIdent(name), strings.Join(names, ", ")),
		Kind: KindCreateUnique,
	}
}

// CreateIndex emits a multi-column index for one Entity.IndexGroups()
// entry. idx carries the shared Method/Unique/Collate settings (taken
// from the first field's Index extension in the group, since the group
// is keyed by constraint name and must agree on them).
func CreateIndex(e *entity.Entity, name string, fields []*entity.Field, idx *entity.Index) Statement {
	method := idx.Method
	if method == "" {
		method = "btree"
	}
	var names []string
	for _, f := range fields {
		col := quoteIdent(f.Name())
		if idx.Collate != "" {
			col += " COLLATE " + quoteLiteral(idx.Collate)
		}
		names = append(names, col)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return Statement{
		SQL: fmt.Sprintf("CREATE %sINDEX %s ON %s USING %s (%s)",
			unique, quoteIdent(name), qualifiedIdent(e.Qualified), method, strings.Join(names, ", ")),
		Kind: KindCreateIndex,
	}
}

func DropIndex(name string) Statement {
	return Statement{SQL: fmt.Sprintf("DROP INDEX %s", quoteIdent(name)), Kind: KindDropIndex}
}

// CheckRecoveryPayload is the JSON recovered from a CHECK constraint's
// comment: enough for the reflector to reconstruct which declared Check
// produced it without re-parsing SQL.
type CheckRecoveryPayload struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// CheckHash is the stable identity of a compiled CHECK expression: the
// first 12 hex characters of its SHA-256, short enough for a
// constraint name suffix, long enough to not collide in practice.
func CheckHash(compiledSQL string) string {
	sum := sha256.Sum256([]byte(compiledSQL))
	return hex.EncodeToString(sum[:])[:12]
}

// CreateCheck compiles check.Expr with the PostgreSQL dialect and emits
// `ALTER TABLE ... ADD CONSTRAINT ... CHECK (...)`, followed by a
// `COMMENT ON CONSTRAINT` carrying CheckRecoveryPayload as JSON.
func CreateCheck(e *entity.Entity, check *entity.Check, ownerAlias string) ([]Statement, error) {
	sql, _, err := compileStandaloneExpr(e, ownerAlias, check.Expr)
	if err != nil {
		return nil, err
	}
	hash := CheckHash(sql)
	name := check.Name
	if name == "" {
		name = fmt.Sprintf("ck_%s_%s", e.Qualified.Name, hash)
	}
	payload, err := json.Marshal(CheckRecoveryPayload{Name: name, Hash: hash})
	if err != nil {
		return nil, err
	}
	addCheck := Statement{
		SQL: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
			qualifiedIdent(e.Qualified), quoteIdent(name), sql),
		Kind: KindCreateCheck,
	}
	comment := Statement{
		SQL: fmt.Sprintf("COMMENT ON CONSTRAINT %s ON %s IS %s",
			quoteIdent(name), qualifiedIdent(e.Qualified), quoteLiteral(string(payload))),
		Kind: KindCreateCheck,
	}
	return []Statement{addCheck, comment}, nil
}

// compileStandaloneExpr compiles a bare expr.Node (not wrapped in a
// query.Query) against a single implicit table alias — used by CHECK
// constraints, which reference only their own table's columns.
func compileStandaloneExpr(e *entity.Entity, alias string, n expr.Node) (string, []interface{}, error) {
	return postgres.CompileStandalone(map[string]string{e.Qualified.String(): alias}, n)
}

// TriggerName synthesizes `YT-<Table>-<trigger>-<whenHash>-<bodyHash>`
//, so two structurally identical triggers declared on
// different tables never collide and a changed trigger body is
// detectable by name alone during diffing.
func TriggerName(table, trigger, when, body string) string {
	return entity.TriggerFullName(table, entity.Trigger{Name: trigger, When: when, Body: body})
}

// CreateTrigger emits the `CREATE FUNCTION` + `CREATE TRIGGER` pair for
// one entity.Trigger.
func CreateTrigger(e *entity.Entity, t entity.Trigger) []Statement {
	fnName := quoteIdent("fn_" + strings.ReplaceAll(t.Name, "-", "_"))
	body := t.Body
	if body == "" {
		body = "BEGIN RETURN NEW; END;"
	}
	fn := Statement{
		SQL: fmt.Sprintf(
			"CREATE FUNCTION %s() RETURNS trigger AS $$ %s $$ LANGUAGE plpgsql", fnName, body),
		Kind: KindCreateFunction,
	}
	trig := Statement{
		SQL: fmt.Sprintf(
			"CREATE TRIGGER %s %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
			quoteIdent(t.Name), t.When, qualifiedIdent(triggerTable(e, t)), fnName),
		Kind: KindCreateTrigger,
	}
	return []Statement{fn, trig}
}

func DropTrigger(e *entity.Entity, t entity.Trigger) Statement {
	return Statement{
		SQL:  fmt.Sprintf("DROP TRIGGER %s ON %s", quoteIdent(t.Name), qualifiedIdent(triggerTable(e, t))),
		Kind: KindDropTrigger,
	}
}

func triggerTable(e *entity.Entity, t entity.Trigger) entity.QualifiedName {
	if t.On != nil {
		return *t.On
	}
	return e.Qualified
}
