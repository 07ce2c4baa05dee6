package save

import (
	"context"
	"fmt"
	"reflect"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/dberrors"
	"github.com/entropydb/entity/query"
	"github.com/entropydb/entity/query/dialect/postgres"
	"github.com/entropydb/entity/relation"
)

// Select starts loading instances matching q. Always-loaded (eager)
// relations of the source entity are injected into the load set
// implicitly. Nothing is fetched until a terminal
// method (All, First, One, Each) runs.
func (s *Session) Select(q *query.Query) *Result {
	return &Result{session: s, q: injectEagerLoads(q)}
}

// injectEagerLoads appends a load spec for every Eager relation of the
// source entity not already listed in q's loads.
func injectEagerLoads(q *query.Query) *query.Query {
	listed := make(map[string]bool)
	for _, l := range q.Loads() {
		listed[l.Alias] = true
	}
	for _, a := range q.From.Entity.Relations() {
		if listed[a.Name()] {
			continue
		}
		// Join predicates carry qualified entity names; the compiler
		// resolves them to aliases per subquery scope.
		ownerKey := q.From.Entity.Qualified.String()
		remoteAlias := q.From.Alias + "_" + a.Name()
		switch rel := a.(type) {
		case *relation.One:
			if rel.Mode != relation.Eager {
				continue
			}
			q = q.WithLoad(query.LoadSpec{
				Alias:     a.Name(),
				Kind:      query.LoadScalar,
				Remote:    query.Source{Entity: rel.Remote, Alias: remoteAlias},
				JoinOwner: rel.JoinCondition(ownerKey, rel.Remote.Qualified.String()),
			})
		case *relation.Many:
			if rel.Mode != relation.Eager {
				continue
			}
			q = q.WithLoad(query.LoadSpec{
				Alias:     a.Name(),
				Kind:      query.LoadArrayAgg,
				Remote:    query.Source{Entity: rel.Remote, Alias: remoteAlias},
				JoinOwner: rel.JoinCondition(ownerKey, rel.Remote.Qualified.String()),
			})
		case *relation.ManyAcross:
			if rel.Mode != relation.Eager {
				continue
			}
			throughKey := rel.Through.Qualified.String()
			through := query.Source{Entity: rel.Through, Alias: q.From.Alias + "_" + a.Name() + "_link"}
			q = q.WithLoad(query.LoadSpec{
				Alias:       a.Name(),
				Kind:        query.LoadArrayAgg,
				Remote:      query.Source{Entity: rel.Remote, Alias: remoteAlias},
				Through:     &through,
				JoinOwner:   rel.OwnerJoinCondition(ownerKey, throughKey),
				JoinThrough: rel.RemoteJoinCondition(throughKey, rel.Remote.Qualified.String()),
			})
		}
	}
	return q
}

// Result is a lazily executed query over entity instances.
type Result struct {
	session *Session
	q       *query.Query
}

// All fetches every matching row as a loaded instance.
func (r *Result) All(ctx context.Context) ([]*Instance, error) {
	var out []*Instance
	err := r.Each(ctx, func(inst *Instance) error {
		out = append(out, inst)
		return nil
	})
	return out, err
}

// First fetches at most one row, nil when none matched.
func (r *Result) First(ctx context.Context) (*Instance, error) {
	all, err := (&Result{session: r.session, q: r.q.Limit(1)}).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// One fetches exactly one row, failing with MissingRowError or
// MultipleRowsError otherwise.
func (r *Result) One(ctx context.Context) (*Instance, error) {
	all, err := (&Result{session: r.session, q: r.q.Limit(2)}).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(all) {
	case 0:
		return nil, &dberrors.MissingRowError{Entity: r.q.From.Entity.Qualified.String()}
	case 1:
		return all[0], nil
	default:
		return nil, &dberrors.MultipleRowsError{Entity: r.q.From.Entity.Qualified.String(), Count: len(all)}
	}
}

// Each streams matching rows through fn without materializing the
// whole result set.
func (r *Result) Each(ctx context.Context, fn func(*Instance) error) error {
	sqlText, params, err := postgres.Compile(r.q)
	if err != nil {
		return err
	}
	rows, err := r.session.conn.Fetch(ctx, sqlText, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		dest := make([]interface{}, len(cols))
		for i := range dest {
			dest[i] = new(interface{})
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		inst, err := r.rowToInstance(cols, dest)
		if err != nil {
			return err
		}
		if err := fn(inst); err != nil {
			return err
		}
	}
	return rows.Err()
}

// rowToInstance coerces one scanned row into a loaded instance,
// dispatching polymorphic rows to the concrete entity named by the
// discriminator column.
func (r *Result) rowToInstance(cols []string, dest []interface{}) (*Instance, error) {
	root := r.q.From.Entity
	values := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		raw := *(dest[i].(*interface{}))
		f, ok := fieldInTree(root, col)
		if !ok {
			values[col] = raw
			continue
		}
		if raw == nil {
			values[col] = nil
			continue
		}
		v, err := f.Impl.FromDatabase(raw)
		if err != nil {
			return nil, err
		}
		values[col] = v
	}
	concrete := dispatchPolymorph(root, values)
	return FromRow(concrete, values), nil
}

// fieldInTree finds a field by column name on e, its polymorph
// ancestors, or its descendants.
func fieldInTree(e *entity.Entity, name string) (*entity.Field, bool) {
	for cur := e; cur != nil; cur = cur.PolymorphParent {
		if a, ok := cur.Attribute(name); ok {
			if f, isField := a.(*entity.Field); isField {
				return f, true
			}
		}
	}
	for _, child := range e.PolymorphChildren {
		if f, ok := fieldInTree(child, name); ok {
			return f, true
		}
	}
	return nil, false
}

// dispatchPolymorph picks the concrete entity for a row by matching
// the discriminator value against descendant PolymorphIDs, returning
// the queried entity itself when no descendant matches.
func dispatchPolymorph(e *entity.Entity, values map[string]interface{}) *entity.Entity {
	root := e.Root()
	if root.Polymorph == "" {
		return e
	}
	disc, ok := values[root.Polymorph]
	if !ok || disc == nil {
		return e
	}
	if match := findByDiscriminator(root, disc); match != nil {
		return match
	}
	return e
}

func findByDiscriminator(e *entity.Entity, disc interface{}) *entity.Entity {
	if e.PolymorphID != nil && discriminatorEqual(e.PolymorphID, disc) {
		return e
	}
	for _, child := range e.PolymorphChildren {
		if match := findByDiscriminator(child, disc); match != nil {
			return match
		}
	}
	return nil
}

// discriminatorEqual tolerates driver-representation drift (e.g. TEXT
// arriving as []byte) by falling back to string forms.
func discriminatorEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if raw, ok := b.([]byte); ok {
		return fmt.Sprint(a) == string(raw)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
