package save

import (
	"fmt"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/ddl"
)

// statement is one rendered DML statement with its bound parameters and
// the columns a trailing RETURNING clause will scan back.
type statement struct {
	sql       string
	params    []interface{}
	returning []*entity.Field
}

// insertStatement renders an INSERT for the given table (one table of a
// polymorph chain, or the whole entity). Columns with an in-memory
// value are bound as parameters; columns left to the server (sequence
// defaults, SQL defaults) are collected into RETURNING so the generated
// values flow back into the instance state.
func insertStatement(e *entity.Entity, inst *Instance, fields []*entity.Field) (*statement, error) {
	var (
		cols []string
		vals []interface{}
		ret  []*entity.Field
	)
	for _, f := range fields {
		v, ok := inst.State.Get(f.Name())
		if !ok {
			if dv, resolved := f.Default.Resolve(); resolved {
				inst.State.Set(f.Name(), dv)
				v, ok = dv, true
			}
		}
		if !ok {
			ret = append(ret, f)
			continue
		}
		dbv, err := coerceToDB(f, v)
		if err != nil {
			return nil, err
		}
		cols = append(cols, ddl.QuoteIdent(f.Name()))
		vals = append(vals, dbv)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", ddl.QualifiedIdent(e.Qualified))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders(1, len(cols)))
	}
	if len(ret) > 0 {
		b.WriteString(" RETURNING ")
		for i, f := range ret {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ddl.QuoteIdent(f.Name()))
		}
	}
	return &statement{sql: b.String(), params: vals, returning: ret}, nil
}

// updateStatement renders an UPDATE of the dirty subset of fields,
// targeting the row by its initial primary-key values. Returns nil when
// nothing in fields is dirty.
func updateStatement(e *entity.Entity, inst *Instance, fields []*entity.Field) (*statement, error) {
	changed := make(map[string]bool)
	for _, ch := range inst.Changes() {
		changed[ch.Name] = true
	}

	var (
		sets   []string
		params []interface{}
	)
	for _, f := range fields {
		if !changed[f.Name()] {
			continue
		}
		v, _ := inst.State.Get(f.Name())
		dbv, err := coerceToDB(f, v)
		if err != nil {
			return nil, err
		}
		params = append(params, dbv)
		sets = append(sets, fmt.Sprintf("%s = $%d", ddl.QuoteIdent(f.Name()), len(params)))
	}
	if len(sets) == 0 {
		return nil, nil
	}

	where, params, err := pkPredicate(inst, params)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		ddl.QualifiedIdent(e.Qualified), strings.Join(sets, ", "), where)
	return &statement{sql: sql, params: params}, nil
}

// deleteStatement renders a DELETE targeting the row by its initial
// primary-key values.
func deleteStatement(e *entity.Entity, inst *Instance) (*statement, error) {
	where, params, err := pkPredicate(inst, nil)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", ddl.QualifiedIdent(e.Qualified), where)
	return &statement{sql: sql, params: params}, nil
}

// insertOrUpdateStatement renders the idempotent upsert form: INSERT
// ... ON CONFLICT (pk) DO UPDATE SET <non-pk> = EXCLUDED.<non-pk>, or
// DO NOTHING when every inserted column is part of the key.
func insertOrUpdateStatement(e *entity.Entity, inst *Instance, fields []*entity.Field) (*statement, error) {
	st, err := insertStatement(e, inst, fields)
	if err != nil {
		return nil, err
	}
	pk := e.PrimaryKey()
	if len(pk) == 0 {
		return st, nil
	}
	isPK := make(map[string]bool, len(pk))
	var pkCols []string
	for _, f := range pk {
		isPK[f.Name()] = true
		pkCols = append(pkCols, ddl.QuoteIdent(f.Name()))
	}
	var sets []string
	for _, f := range fields {
		if isPK[f.Name()] {
			continue
		}
		if _, ok := inst.State.Get(f.Name()); !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ddl.QuoteIdent(f.Name()), ddl.QuoteIdent(f.Name())))
	}

	conflict := fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(pkCols, ", "))
	if len(sets) > 0 {
		conflict = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(pkCols, ", "), strings.Join(sets, ", "))
	}

	// Splice before any RETURNING clause so generated keys still flow back.
	if idx := strings.Index(st.sql, " RETURNING "); idx >= 0 {
		st.sql = st.sql[:idx] + conflict + st.sql[idx:]
	} else {
		st.sql += conflict
	}
	return st, nil
}

// linkStatement renders the link-row INSERT (idempotent) or DELETE for
// one ManyAcross pair.
func linkStatement(op *Operation) (*statement, error) {
	rel := op.Rel
	ownerKey, ok := op.Owner.State.Get(rel.OwnerColumn)
	if !ok {
		return nil, stateMissing(op.Owner, rel.OwnerColumn)
	}
	remoteKey, ok := op.Remote.State.Get(rel.RemoteColumn)
	if !ok {
		return nil, stateMissing(op.Remote, rel.RemoteColumn)
	}

	through := ddl.QualifiedIdent(rel.Through.Qualified)
	oc := ddl.QuoteIdent(rel.OwnerThroughColumn)
	rc := ddl.QuoteIdent(rel.RemoteThroughColumn)
	if op.Kind == OpUnlink {
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2", through, oc, rc)
		return &statement{sql: sql, params: []interface{}{ownerKey, remoteKey}}, nil
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING", through, oc, rc)
	return &statement{sql: sql, params: []interface{}{ownerKey, remoteKey}}, nil
}

// pkPredicate renders `"pk1" = $i AND ...` over the instance's initial
// primary-key values, appending to params.
func pkPredicate(inst *Instance, params []interface{}) (string, []interface{}, error) {
	pk := inst.Entity.PrimaryKey()
	initial := inst.initialPK()
	var conds []string
	for _, f := range pk {
		v, ok := initial[f.Name()]
		if !ok {
			return "", nil, stateMissing(inst, f.Name())
		}
		dbv, err := coerceToDB(f, v)
		if err != nil {
			return "", nil, err
		}
		params = append(params, dbv)
		conds = append(conds, fmt.Sprintf("%s = $%d", ddl.QuoteIdent(f.Name()), len(params)))
	}
	if len(conds) == 0 {
		return "", nil, stateMissing(inst, "<primary key>")
	}
	return strings.Join(conds, " AND "), params, nil
}

func coerceToDB(f *entity.Field, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return f.Impl.ToDatabase(v)
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}
