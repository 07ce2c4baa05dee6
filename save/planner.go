package save

import (
	"github.com/entropydb/entity"
	"github.com/entropydb/entity/relation"
)

// OpKind enumerates the operations the planner emits.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
	OpLink
	OpUnlink
)

// fkPull defers a foreign-key assignment until the referenced instance
// has been persisted and its key column holds a real value (e.g. a
// sequence-assigned id returned by the INSERT).
type fkPull struct {
	column     string
	from       *Instance
	fromColumn string
}

// Operation is one planned write. For OpLink/OpUnlink the subject is
// the (Owner, Remote) pair joined through Rel's link entity; for the
// other kinds it is Instance.
type Operation struct {
	Kind     OpKind
	Instance *Instance
	// Rank is the subject entity's position in its registry's full
	// dependency order, recorded for inspection; the slice order itself
	// is already execution order.
	Rank int

	Rel    *relation.ManyAcross
	Owner  *Instance
	Remote *Instance

	pulls []fkPull
}

// Operations resolves the object graph rooted at root into an ordered
// operation list: One-held inners before their owner,
// Many-held inners after, ManyAcross inners before the owner with link
// rows after, each instance at most once even through cycles.
func Operations(root *Instance) ([]*Operation, error) {
	p := &planner{
		visited: make(map[*Instance]bool),
		ranks:   make(map[*entity.Registry]map[string]int),
	}
	if err := p.plan(root, nil); err != nil {
		return nil, err
	}
	return p.ops, nil
}

// DeleteOperations plans the removal of a single instance. Polymorph
// parent rows are not listed: deleting the concrete row fires the
// cascade trigger that removes its ancestors.
func DeleteOperations(inst *Instance) []*Operation {
	p := &planner{ranks: make(map[*entity.Registry]map[string]int)}
	return []*Operation{{Kind: OpDelete, Instance: inst, Rank: p.rank(inst.Entity)}}
}

type planner struct {
	visited map[*Instance]bool
	ranks   map[*entity.Registry]map[string]int
	ops     []*Operation
}

func (p *planner) plan(inst *Instance, pulls []fkPull) error {
	if p.visited[inst] {
		return nil
	}
	p.visited[inst] = true

	ownPulls := pulls
	for _, h := range inst.ones {
		if err := p.plan(h.inner, nil); err != nil {
			return err
		}
		ownPulls = append(ownPulls, fkPull{column: h.rel.LocalColumn, from: h.inner, fromColumn: h.rel.RemoteColumn})
	}
	for _, h := range inst.links {
		if h.remove {
			continue
		}
		if err := p.plan(h.remote, nil); err != nil {
			return err
		}
	}

	kind := OpUpdate
	if inst.State.IsNew() || inst.PKEmpty() {
		kind = OpInsert
	}
	if kind == OpInsert || inst.IsDirty() || len(ownPulls) > 0 {
		p.ops = append(p.ops, &Operation{
			Kind:     kind,
			Instance: inst,
			Rank:     p.rank(inst.Entity),
			pulls:    ownPulls,
		})
	}

	for _, h := range inst.manys {
		pull := fkPull{column: h.rel.RemoteColumn, from: inst, fromColumn: h.rel.LocalColumn}
		if err := p.plan(h.inner, []fkPull{pull}); err != nil {
			return err
		}
	}

	for _, h := range inst.links {
		kind := OpLink
		if h.remove {
			kind = OpUnlink
		}
		p.ops = append(p.ops, &Operation{
			Kind:   kind,
			Rank:   p.rank(h.rel.Through),
			Rel:    h.rel,
			Owner:  inst,
			Remote: h.remote,
		})
	}
	return nil
}

// rank looks up an entity's position in its registry's full dependency
// order, memoized per registry. Unregistered entities rank 0.
func (p *planner) rank(e *entity.Entity) int {
	reg := e.Registry
	if reg == nil {
		return 0
	}
	byName, ok := p.ranks[reg]
	if !ok {
		byName = make(map[string]int)
		for i, n := range reg.FullDependencyOrder() {
			byName[n.Name.String()] = i
		}
		p.ranks[reg] = byName
	}
	return byName[e.Qualified.String()]
}
