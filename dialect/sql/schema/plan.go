package schema

import (
	"sort"

	"github.com/google/uuid"

	"github.com/syssam/pgorm"
)

// A Step is a single planned DDL operation. A step may expand to several
// statements (column modifications split into narrow ALTERs). Reverse holds
// the statements undoing the step where the operation is reversible, and is
// empty for irreversible (data-discarding) steps.
type Step struct {
	Change  Change
	Cmd     []string
	Reverse []string
}

// A Plan is an ordered, executable migration. Safe steps never discard
// data; Destructive steps (table drops, column drops, narrowing type
// changes) are kept apart and are only applied with an explicit override.
// Steps in each list are ordered for sequential execution, with the Safe
// list running first.
type Plan struct {
	ID          uuid.UUID // plan identity, for logs and error context.
	Safe        []*Step
	Destructive []*Step
	// TwoPhase reports that foreign keys between new (or dropped) tables
	// could not be linearized into a single pass and were split into a
	// second phase of ALTER statements.
	TwoPhase bool

	applied bool
}

// Empty reports whether the plan contains no steps.
func (p *Plan) Empty() bool {
	return len(p.Safe) == 0 && len(p.Destructive) == 0
}

// Steps returns all steps in execution order: safe first, then destructive.
func (p *Plan) Steps() []*Step {
	steps := make([]*Step, 0, len(p.Safe)+len(p.Destructive))
	steps = append(steps, p.Safe...)
	return append(steps, p.Destructive...)
}

type planner struct {
	inlineFKs bool
}

// PlanOption configures the planner.
type PlanOption func(*planner)

// InlineForeignKeys makes the planner fold foreign keys of new tables
// into their CREATE TABLE statements instead of adding them in a second
// pass. In this mode a foreign-key cycle between new tables cannot be
// linearized and planning fails with a pgorm.CyclicDependencyError.
func InlineForeignKeys(b bool) PlanOption {
	return func(p *planner) {
		p.inlineFKs = b
	}
}

// NewPlan orders the given changes into an executable plan. Ordering rules:
// constraint and index drops run before the drops they would otherwise
// block, table creations run before constraints referencing them, and index
// and foreign-key creations run after the columns they cover exist.
func NewPlan(changes []Change, opts ...PlanOption) (*Plan, error) {
	p := &planner{}
	for _, opt := range opts {
		opt(p)
	}
	return p.plan(changes)
}

func (p *planner) plan(changes []Change) (*Plan, error) {
	var (
		dropIndexes, dropChecks, dropFKs, dropPKs []Change
		creates                                   []*CreateTable
		addColumns, modifySafe                    []Change
		addPKs, addChecks, addIndexes, addFKs     []Change
		modifyDestructive, dropColumns            []Change
		dropTables                                []*DropTable
	)
	for _, c := range changes {
		switch c := c.(type) {
		case *DropIndex:
			dropIndexes = append(dropIndexes, c)
		case *DropCheck:
			dropChecks = append(dropChecks, c)
		case *DropForeignKey:
			dropFKs = append(dropFKs, c)
		case *DropPrimaryKey:
			dropPKs = append(dropPKs, c)
		case *CreateTable:
			creates = append(creates, c)
		case *AddColumn:
			addColumns = append(addColumns, c)
		case *ModifyColumn:
			if c.Destructive() {
				modifyDestructive = append(modifyDestructive, c)
			} else {
				modifySafe = append(modifySafe, c)
			}
		case *AddPrimaryKey:
			addPKs = append(addPKs, c)
		case *AddCheck:
			addChecks = append(addChecks, c)
		case *AddIndex:
			addIndexes = append(addIndexes, c)
		case *AddForeignKey:
			addFKs = append(addFKs, c)
		case *DropColumn:
			dropColumns = append(dropColumns, c)
		case *DropTable:
			dropTables = append(dropTables, c)
		}
	}
	plan := &Plan{ID: uuid.New()}

	// Order table creations so that referenced tables are created first.
	ordered, cyclic := orderCreates(creates)
	if len(cyclic) > 0 {
		if p.inlineFKs {
			return nil, pgorm.NewCyclicDependencyError(cyclic...)
		}
		plan.TwoPhase = true
	}
	created := make(map[string]struct{}, len(ordered))
	for _, c := range ordered {
		created[c.TableName()] = struct{}{}
	}
	// In inline mode, foreign keys of new tables live in CREATE TABLE.
	if p.inlineFKs {
		kept := addFKs[:0]
		for _, c := range addFKs {
			if _, ok := created[c.TableName()]; !ok {
				kept = append(kept, c)
			}
		}
		addFKs = kept
	}

	for _, group := range [][]Change{dropIndexes, dropChecks, dropFKs, dropPKs} {
		plan.appendSafe(p, group...)
	}
	for _, c := range ordered {
		plan.appendSafe(p, c)
	}
	for _, group := range [][]Change{addColumns, modifySafe, addPKs, addChecks, addIndexes, addFKs} {
		plan.appendSafe(p, group...)
	}

	// Destructive bucket: narrowing modifications, column drops, then table
	// drops with referencing tables dropped first.
	plan.appendDestructive(p, modifyDestructive...)
	plan.appendDestructive(p, dropColumns...)
	orderedDrops, synthesized := orderDrops(dropTables)
	if len(synthesized) > 0 {
		// A foreign-key cycle between dropped tables: detach the cycle's
		// foreign keys first, then the drop order no longer matters.
		plan.TwoPhase = true
		plan.appendDestructive(p, synthesized...)
	}
	plan.appendDestructive(p, orderedDrops...)
	return plan, nil
}

func (p *Plan) appendSafe(pl *planner, changes ...Change) {
	for _, c := range changes {
		cmd, reverse := changeStmts(c, pl.inlineFKs)
		p.Safe = append(p.Safe, &Step{Change: c, Cmd: cmd, Reverse: reverse})
	}
}

func (p *Plan) appendDestructive(pl *planner, changes ...Change) {
	for _, c := range changes {
		cmd, reverse := changeStmts(c, pl.inlineFKs)
		p.Destructive = append(p.Destructive, &Step{Change: c, Cmd: cmd, Reverse: reverse})
	}
}

// orderCreates topologically sorts table creations so that a table is
// created after the tables its foreign keys reference. Self-references do
// not constrain the order. The second return value names the tables that
// participate in a reference cycle; those are appended in name order.
func orderCreates(creates []*CreateTable) ([]Change, []string) {
	byName := make(map[string]*CreateTable, len(creates))
	names := make([]string, 0, len(creates))
	for _, c := range creates {
		byName[c.T.Name] = c
		names = append(names, c.T.Name)
	}
	sort.Strings(names)
	// in-degree counts references to other newly created tables.
	deps := make(map[string]map[string]struct{}, len(creates))
	for _, name := range names {
		deps[name] = make(map[string]struct{})
		for _, fk := range byName[name].T.ForeignKeys {
			ref := fk.RefTable.Name
			if ref == name {
				continue
			}
			if _, ok := byName[ref]; ok {
				deps[name][ref] = struct{}{}
			}
		}
	}
	var ordered []Change
	done := make(map[string]struct{}, len(names))
	for len(done) < len(names) {
		progressed := false
		for _, name := range names {
			if _, ok := done[name]; ok {
				continue
			}
			ready := true
			for dep := range deps[name] {
				if _, ok := done[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, byName[name])
				done[name] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			// The remaining tables form at least one cycle.
			var cyclic []string
			for _, name := range names {
				if _, ok := done[name]; !ok {
					cyclic = append(cyclic, name)
					ordered = append(ordered, byName[name])
					done[name] = struct{}{}
				}
			}
			return ordered, cyclic
		}
	}
	return ordered, nil
}

// orderDrops orders table drops so that referencing tables are dropped
// before the tables they reference. If dropped tables reference each other
// cyclically, the cycle's foreign keys are dropped first and the returned
// synthesized changes must run before the drops.
func orderDrops(drops []*DropTable) (ordered []Change, synthesized []Change) {
	byName := make(map[string]*DropTable, len(drops))
	names := make([]string, 0, len(drops))
	for _, c := range drops {
		byName[c.T.Name] = c
		names = append(names, c.T.Name)
	}
	sort.Strings(names)
	// A table is droppable once every dropped table referencing it is gone.
	referencedBy := make(map[string]map[string]struct{}, len(drops))
	for _, name := range names {
		referencedBy[name] = make(map[string]struct{})
	}
	for _, name := range names {
		for _, fk := range byName[name].T.ForeignKeys {
			ref := fk.RefTable.Name
			if ref == name {
				continue
			}
			if _, ok := byName[ref]; ok {
				referencedBy[ref][name] = struct{}{}
			}
		}
	}
	done := make(map[string]struct{}, len(names))
	for len(done) < len(names) {
		progressed := false
		for _, name := range names {
			if _, ok := done[name]; ok {
				continue
			}
			ready := true
			for ref := range referencedBy[name] {
				if _, ok := done[ref]; !ok {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, byName[name])
				done[name] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			for _, name := range names {
				if _, ok := done[name]; ok {
					continue
				}
				for _, fk := range byName[name].T.ForeignKeys {
					if _, dropped := byName[fk.RefTable.Name]; dropped && fk.RefTable.Name != name {
						synthesized = append(synthesized, &DropForeignKey{T: byName[name].T, F: fk})
					}
				}
				ordered = append(ordered, byName[name])
				done[name] = struct{}{}
			}
			return ordered, synthesized
		}
	}
	return ordered, nil
}
