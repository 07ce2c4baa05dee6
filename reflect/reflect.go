// Package reflect introspects a live PostgreSQL database via
// information_schema and pg_catalog, producing a Schema snapshot the
// diff package compares against a declared entity.Registry.
package reflect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entropydb/entity/conn"
)

// Column is one reflected column.
type Column struct {
	Name          string
	DataType      string // information_schema data_type
	UDTName       string // pg_catalog base type name, e.g. "int4", a composite/enum name
	Nullable      bool
	DefaultClause string
	MaxLength     *int
	NumPrecision  *int
	NumScale      *int
}

// Constraint is one reflected table constraint.
type Constraint struct {
	Name       string
	Kind       string // "p" primary key, "f" foreign key, "u" unique, "c" check
	Columns    []string
	Definition string // pg_get_constraintdef output
	// CheckPayload is the recovered ddl.CheckRecoveryPayload JSON, set
	// only for Kind == "c" constraints carrying the comment convention.
	CheckPayload string
}

// Index is one reflected index not backing a constraint.
type Index struct {
	Name       string
	Columns    []string
	Unique     bool
	Definition string
}

// Trigger is one reflected trigger.
type Trigger struct {
	Name       string
	Definition string
}

// Table is one reflected base table.
type Table struct {
	Schema, Name string
	Columns      []Column
	Constraints  []Constraint
	Indexes      []Index
	Triggers     []Trigger
}

// CompositeType is one reflected `CREATE TYPE ... AS (...)`.
type CompositeType struct {
	Schema, Name string
	Columns      []Column
}

// Schema is the full reflected database state.
type Schema struct {
	Tables         []Table
	Sequences      []string
	CompositeTypes []CompositeType
}

// Introspector reads a Schema from a live connection.
type Introspector struct {
	conn conn.Connection
}

// New builds an Introspector over an open connection.
func New(c conn.Connection) *Introspector { return &Introspector{conn: c} }

// Introspect reads every table, sequence, and composite type visible in
// searchPath.
func (i *Introspector) Introspect(ctx context.Context, searchPath string) (*Schema, error) {
	tables, err := i.introspectTables(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("reflect: tables: %w", err)
	}
	seqs, err := i.introspectSequences(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("reflect: sequences: %w", err)
	}
	composites, err := i.introspectCompositeTypes(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("reflect: composite types: %w", err)
	}
	return &Schema{Tables: tables, Sequences: seqs, CompositeTypes: composites}, nil
}

func (i *Introspector) introspectTables(ctx context.Context, schema string) ([]Table, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var tables []Table
	for _, name := range names {
		cols, err := i.introspectColumns(ctx, schema, name)
		if err != nil {
			return nil, fmt.Errorf("columns for %s: %w", name, err)
		}
		cons, err := i.introspectConstraints(ctx, schema, name)
		if err != nil {
			return nil, fmt.Errorf("constraints for %s: %w", name, err)
		}
		idx, err := i.introspectIndexes(ctx, schema, name)
		if err != nil {
			return nil, fmt.Errorf("indexes for %s: %w", name, err)
		}
		trig, err := i.introspectTriggers(ctx, schema, name)
		if err != nil {
			return nil, fmt.Errorf("triggers for %s: %w", name, err)
		}
		tables = append(tables, Table{Schema: schema, Name: name, Columns: cols, Constraints: cons, Indexes: idx, Triggers: trig})
	}
	return tables, nil
}

func (i *Introspector) introspectColumns(ctx context.Context, schema, table string) ([]Column, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, column_default,
		       character_maximum_length, numeric_precision, numeric_scale
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var isNullable string
		var def sql.NullString
		var maxLen, precision, scale sql.NullInt64
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName, &isNullable, &def, &maxLen, &precision, &scale); err != nil {
			return nil, err
		}
		c.Nullable = isNullable == "YES"
		if def.Valid {
			c.DefaultClause = def.String
		}
		if maxLen.Valid {
			v := int(maxLen.Int64)
			c.MaxLength = &v
		}
		if precision.Valid {
			v := int(precision.Int64)
			c.NumPrecision = &v
		}
		if scale.Valid {
			v := int(scale.Int64)
			c.NumScale = &v
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (i *Introspector) introspectConstraints(ctx context.Context, schema, table string) ([]Constraint, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT c.conname, c.contype, pg_get_constraintdef(c.oid),
		       COALESCE(obj_description(c.oid, 'pg_constraint'), '')
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Constraint
	for rows.Next() {
		var con Constraint
		var comment string
		if err := rows.Scan(&con.Name, &con.Kind, &con.Definition, &comment); err != nil {
			return nil, err
		}
		if con.Kind == "c" && comment != "" {
			con.CheckPayload = comment
		}
		out = append(out, con)
	}
	return out, rows.Err()
}

func (i *Introspector) introspectIndexes(ctx context.Context, schema, table string) ([]Index, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT ic.relname, ix.indisunique, pg_get_indexdef(ix.indexrelid)
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2
		  AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = ix.indexrelid)`,
		schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Definition); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (i *Introspector) introspectTriggers(ctx context.Context, schema, table string) ([]Trigger, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT tg.tgname, pg_get_triggerdef(tg.oid)
		FROM pg_trigger tg
		JOIN pg_class t ON t.oid = tg.tgrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2 AND NOT tg.tgisinternal`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.Name, &t.Definition); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (i *Introspector) introspectSequences(ctx context.Context, schema string) ([]string, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT sequence_name FROM information_schema.sequences
		WHERE sequence_schema = $1 ORDER BY sequence_name`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (i *Introspector) introspectCompositeTypes(ctx context.Context, schema string) ([]CompositeType, error) {
	rows, err := i.conn.Fetch(ctx, `
		SELECT t.typname
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_class c ON c.oid = t.typrelid
		WHERE n.nspname = $1 AND t.typtype = 'c' AND c.relkind = 'c'
		ORDER BY t.typname`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []CompositeType
	for _, name := range names {
		cols, err := i.introspectColumns(ctx, schema, name)
		if err != nil {
			// composite type columns live in pg_attribute, not
			// information_schema.columns for types without a backing
			// relation entry; introspectColumns still finds them since
			// PostgreSQL gives every composite type a pg_class row.
			return nil, err
		}
		out = append(out, CompositeType{Schema: schema, Name: name, Columns: cols})
	}
	return out, nil
}

// ParseCheckPayload decodes a recovered CHECK-constraint comment back
// into its {name, hash} fields, tolerating constraints that predate the
// recovery-payload convention (empty input is not an error).
func ParseCheckPayload(comment string) (name, hash string, ok bool) {
	if comment == "" {
		return "", "", false
	}
	var payload struct {
		Name string `json:"name"`
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(comment)), &payload); err != nil {
		return "", "", false
	}
	return payload.Name, payload.Hash, true
}
