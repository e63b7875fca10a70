package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgorm"
	"github.com/syssam/pgorm/schema/field"
)

func TestPlanCreateOrder(t *testing.T) {
	users := usersTable()
	pets := petsTable(users)
	changes, err := Diff(mustSchema(t), mustSchema(t, pets, users))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	require.False(t, plan.Empty())
	assert.Empty(t, plan.Destructive)
	var order []string
	for _, s := range plan.Safe {
		if _, ok := s.Change.(*CreateTable); ok {
			order = append(order, s.Change.TableName())
		}
	}
	// Referenced tables are created before the tables referencing them.
	assert.Equal(t, []string{"users", "pets"}, order)
	last := plan.Safe[len(plan.Safe)-1]
	assert.IsType(t, &AddForeignKey{}, last.Change)
}

func TestPlanDropBucket(t *testing.T) {
	current := mustSchema(t, usersTable())
	desired := usersTable()
	desired.Columns = desired.Columns[:2]
	delete(desired.columns, "age")
	changes, err := Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	assert.Empty(t, plan.Safe)
	require.Len(t, plan.Destructive, 1)
	assert.IsType(t, &DropColumn{}, plan.Destructive[0].Change)
	assert.Equal(t, []string{`ALTER TABLE "users" DROP COLUMN "age"`}, plan.Destructive[0].Cmd)
	// Dropping a column cannot be reversed without its data.
	assert.Empty(t, plan.Destructive[0].Reverse)
}

// cyclicTables builds two new tables whose foreign keys reference each other.
func cyclicTables() (*Table, *Table) {
	a := NewTable("authors")
	a.AddColumn(NewColumn(field.Int64("id").Increment().Descriptor()))
	a.AddColumn(NewColumn(field.Int64("best_book_id").Optional().Descriptor()))
	a.SetPrimaryKey("id")
	b := NewTable("books")
	b.AddColumn(NewColumn(field.Int64("id").Increment().Descriptor()))
	b.AddColumn(NewColumn(field.Int64("author_id").Optional().Descriptor()))
	b.SetPrimaryKey("id")
	ab, _ := a.Column("best_book_id")
	bid, _ := b.Column("id")
	a.AddForeignKey(&ForeignKey{Columns: []*Column{ab}, RefTable: b, RefColumns: []*Column{bid}})
	ba, _ := b.Column("author_id")
	aid, _ := a.Column("id")
	b.AddForeignKey(&ForeignKey{Columns: []*Column{ba}, RefTable: a, RefColumns: []*Column{aid}})
	return a, b
}

func TestPlanCycleTwoPhase(t *testing.T) {
	a, b := cyclicTables()
	changes, err := Diff(mustSchema(t), mustSchema(t, a, b))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	assert.True(t, plan.TwoPhase)
	// Both tables are created without foreign keys, then both constraints
	// are added in a second pass.
	var creates, fks int
	lastCreate, firstFK := -1, len(plan.Safe)
	for i, s := range plan.Safe {
		switch s.Change.(type) {
		case *CreateTable:
			creates++
			lastCreate = i
		case *AddForeignKey:
			fks++
			if i < firstFK {
				firstFK = i
			}
		}
	}
	assert.Equal(t, 2, creates)
	assert.Equal(t, 2, fks)
	assert.Less(t, lastCreate, firstFK)
}

func TestPlanCycleInlineFails(t *testing.T) {
	a, b := cyclicTables()
	changes, err := Diff(mustSchema(t), mustSchema(t, a, b))
	require.NoError(t, err)
	_, err = NewPlan(changes, InlineForeignKeys(true))
	require.Error(t, err)
	assert.True(t, pgorm.IsCyclicDependency(err))
	var cde *pgorm.CyclicDependencyError
	require.ErrorAs(t, err, &cde)
	assert.ElementsMatch(t, []string{"authors", "books"}, cde.Tables)
}

func TestPlanInlineForeignKeys(t *testing.T) {
	users := usersTable()
	pets := petsTable(users)
	changes, err := Diff(mustSchema(t), mustSchema(t, users, pets))
	require.NoError(t, err)
	plan, err := NewPlan(changes, InlineForeignKeys(true))
	require.NoError(t, err)
	assert.False(t, plan.TwoPhase)
	for _, s := range plan.Safe {
		_, fk := s.Change.(*AddForeignKey)
		assert.False(t, fk, "foreign keys must be folded into CREATE TABLE")
		if ct, ok := s.Change.(*CreateTable); ok && ct.T.Name == "pets" {
			require.Len(t, s.Cmd, 1)
			assert.Contains(t, s.Cmd[0], "FOREIGN KEY")
		}
	}
}

func TestPlanDropOrder(t *testing.T) {
	users := usersTable()
	pets := petsTable(users)
	changes, err := Diff(mustSchema(t, users, pets), mustSchema(t))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	assert.Empty(t, plan.Safe)
	var order []string
	for _, s := range plan.Destructive {
		if _, ok := s.Change.(*DropTable); ok {
			order = append(order, s.Change.TableName())
		}
	}
	// Referencing tables are dropped before the tables they reference.
	assert.Equal(t, []string{"pets", "users"}, order)
}

func TestPlanDropCycle(t *testing.T) {
	a, b := cyclicTables()
	changes, err := Diff(mustSchema(t, a, b), mustSchema(t))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	assert.True(t, plan.TwoPhase)
	// The cycle's foreign keys are detached first, then the drops run.
	var kinds []ChangeKind
	for _, s := range plan.Destructive {
		kinds = append(kinds, s.Change.Kind())
	}
	require.Len(t, kinds, 4)
	assert.Equal(t, ChangeDropForeignKey, kinds[0])
	assert.Equal(t, ChangeDropForeignKey, kinds[1])
	assert.Equal(t, ChangeDropTable, kinds[2])
	assert.Equal(t, ChangeDropTable, kinds[3])
}

func TestPlanSafeBeforeDestructive(t *testing.T) {
	current := mustSchema(t, usersTable())
	desired := usersTable()
	desired.Columns = desired.Columns[:2]
	delete(desired.columns, "age")
	desired.AddColumn(NewColumn(field.Bool("active").Default(true).Descriptor()))
	changes, err := Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	steps := plan.Steps()
	require.Len(t, steps, 2)
	assert.IsType(t, &AddColumn{}, steps[0].Change)
	assert.IsType(t, &DropColumn{}, steps[1].Change)
}

func TestPlanStepReverse(t *testing.T) {
	current := mustSchema(t)
	desired := mustSchema(t, usersTable())
	changes, err := Diff(current, desired)
	require.NoError(t, err)
	plan, err := NewPlan(changes)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Safe)
	create := plan.Safe[0]
	require.IsType(t, &CreateTable{}, create.Change)
	assert.Equal(t, []string{`DROP TABLE "users"`}, create.Reverse)
}
