package save

import (
	"context"
	"database/sql"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/conn"
	"github.com/entropydb/entity/dberrors"
	"github.com/entropydb/entity/internal/xlog"
)

// Session binds the planner to a live connection: insert, update,
// delete, insert-or-update, save, select, execute, transaction.
type Session struct {
	conn conn.Connection
}

// NewSession wraps a connection (a pooled *conn.DB or an open *conn.Tx).
func NewSession(c conn.Connection) *Session { return &Session{conn: c} }

// Execute passes raw SQL through to the connection.
func (s *Session) Execute(ctx context.Context, query string, params ...interface{}) (sql.Result, error) {
	return s.conn.Execute(ctx, query, params...)
}

// Transaction runs fn against a session bound to a database
// transaction. Save itself never opens one implicitly —
// callers wanting atomicity wrap Save in this.
func (s *Session) Transaction(ctx context.Context, fn func(s *Session) error) error {
	return s.conn.Transaction(ctx, func(tx *conn.Tx) error {
		return fn(NewSession(tx))
	})
}

// Insert writes inst as a new row (or, for a polymorph descendant, one
// row per ancestor table, ancestor first). Server-
// generated columns are scanned back into the instance state, but the
// dirty baseline is not reset; Save does that after the whole batch.
func (s *Session) Insert(ctx context.Context, inst *Instance) error {
	for _, e := range polymorphChain(inst.Entity) {
		if e.Polymorph != "" && inst.Entity.PolymorphID != nil {
			inst.State.Set(e.Polymorph, inst.Entity.PolymorphID)
		}
		st, err := insertStatement(e, inst, e.Fields())
		if err != nil {
			return err
		}
		if err := s.run(ctx, inst, st); err != nil {
			return err
		}
	}
	return nil
}

// Update writes the dirty subset of inst, one UPDATE per polymorph
// chain table that owns a changed column, targeting rows by the
// initial primary-key values.
func (s *Session) Update(ctx context.Context, inst *Instance) error {
	for _, e := range polymorphChain(inst.Entity) {
		st, err := updateStatement(e, inst, e.Fields())
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}
		if err := s.run(ctx, inst, st); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes inst's row. For a polymorph descendant only the
// concrete table is targeted: the cascade trigger removes the ancestor
// rows.
func (s *Session) Delete(ctx context.Context, inst *Instance) error {
	st, err := deleteStatement(inst.Entity, inst)
	if err != nil {
		return err
	}
	return s.run(ctx, inst, st)
}

// InsertOrUpdate writes inst idempotently via ON CONFLICT on the
// primary key.
func (s *Session) InsertOrUpdate(ctx context.Context, inst *Instance) error {
	for _, e := range polymorphChain(inst.Entity) {
		if e.Polymorph != "" && inst.Entity.PolymorphID != nil {
			inst.State.Set(e.Polymorph, inst.Entity.PolymorphID)
		}
		st, err := insertOrUpdateStatement(e, inst, e.Fields())
		if err != nil {
			return err
		}
		if err := s.run(ctx, inst, st); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the whole object graph rooted at root: plan, execute
// in dependency order, then reset every touched instance's state.
// Atomicity is the caller's: wrap in Transaction.
func (s *Session) Save(ctx context.Context, root *Instance) error {
	ops, err := Operations(root)
	if err != nil {
		return err
	}
	xlog.Debug("save: planned operations", "entity", root.Entity.Qualified.String(), "op_count", len(ops))
	for _, op := range ops {
		if err := s.execOperation(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range ops {
		resetOperation(op)
	}
	return nil
}

func (s *Session) execOperation(ctx context.Context, op *Operation) error {
	for _, pull := range op.pulls {
		v, ok := pull.from.State.Get(pull.fromColumn)
		if !ok {
			return stateMissing(pull.from, pull.fromColumn)
		}
		op.Instance.State.Set(pull.column, v)
	}

	switch op.Kind {
	case OpInsert:
		return s.Insert(ctx, op.Instance)
	case OpUpdate:
		return s.Update(ctx, op.Instance)
	case OpDelete:
		return s.Delete(ctx, op.Instance)
	case OpLink, OpUnlink:
		st, err := linkStatement(op)
		if err != nil {
			return err
		}
		_, err = s.conn.Execute(ctx, st.sql, st.params...)
		return err
	}
	return nil
}

func resetOperation(op *Operation) {
	switch op.Kind {
	case OpInsert, OpUpdate:
		op.Instance.State.Reset()
		op.Instance.ones = nil
		op.Instance.manys = nil
	case OpLink, OpUnlink:
		op.Owner.links = nil
	}
}

// run executes one statement, scanning a RETURNING clause (if any)
// back into the instance state as in-memory values.
func (s *Session) run(ctx context.Context, inst *Instance, st *statement) error {
	xlog.Debug("save: exec", "sql", st.sql)
	if len(st.returning) == 0 {
		_, err := s.conn.Execute(ctx, st.sql, st.params...)
		return err
	}

	dest := make([]interface{}, len(st.returning))
	for i := range dest {
		dest[i] = new(interface{})
	}
	row := s.conn.FetchRow(ctx, st.sql, st.params...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	for i, f := range st.returning {
		raw := *(dest[i].(*interface{}))
		v, err := f.Impl.FromDatabase(raw)
		if err != nil {
			return err
		}
		inst.State.Set(f.Name(), v)
	}
	return nil
}

// polymorphChain lists the tables an instance of e spans, root ancestor
// first — the required insert order.
func polymorphChain(e *entity.Entity) []*entity.Entity {
	var chain []*entity.Entity
	for cur := e; cur != nil; cur = cur.PolymorphParent {
		chain = append([]*entity.Entity{cur}, chain...)
	}
	return chain
}

func stateMissing(inst *Instance, key string) error {
	return &dberrors.StateError{
		Entity:  inst.Entity.Qualified.String(),
		Key:     key,
		Message: "value not loaded",
	}
}
