package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgorm/schema/field"
)

func mustSchema(t *testing.T, tables ...*Table) *Schema {
	t.Helper()
	s, err := NewSchema("public", tables...)
	require.NoError(t, err)
	return s
}

func TestDiffIdentical(t *testing.T) {
	users := usersTable()
	current := mustSchema(t, users, petsTable(users))
	dusers := usersTable()
	desired := mustSchema(t, dusers, petsTable(dusers))
	changes, err := Diff(current, desired)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffCreateTable(t *testing.T) {
	current := mustSchema(t)
	users := usersTable()
	desired := mustSchema(t, users, petsTable(users))
	changes, err := Diff(current, desired)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.IsType(t, &CreateTable{}, changes[0])
	assert.Equal(t, "users", changes[0].TableName())
	assert.IsType(t, &CreateTable{}, changes[1])
	assert.Equal(t, "pets", changes[1].TableName())
	// Foreign keys of new tables are separate changes, added after all
	// table creations.
	assert.IsType(t, &AddForeignKey{}, changes[2])
	assert.Equal(t, "pets", changes[2].TableName())
}

func TestDiffDropColumn(t *testing.T) {
	current := mustSchema(t, usersTable())
	desired := usersTable()
	desired.Columns = desired.Columns[:2] // drop "age"
	delete(desired.columns, "age")
	changes, err := Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	dc, ok := changes[0].(*DropColumn)
	require.True(t, ok)
	assert.Equal(t, "age", dc.C.Name)
	assert.True(t, dc.Destructive())
}

func TestDiffAddColumn(t *testing.T) {
	current := mustSchema(t, usersTable())
	desired := usersTable()
	desired.AddColumn(NewColumn(field.Bool("active").Default(true).Descriptor()))
	changes, err := Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	ac, ok := changes[0].(*AddColumn)
	require.True(t, ok)
	assert.Equal(t, "active", ac.C.Name)
	assert.False(t, ac.Destructive())
}

func TestDiffModifyColumn(t *testing.T) {
	t.Run("widening is safe", func(t *testing.T) {
		current := mustSchema(t, usersTable())
		desired := usersTable()
		c, _ := desired.Column("name")
		c.Size = 512
		changes, err := Diff(current, mustSchema(t, desired))
		require.NoError(t, err)
		require.Len(t, changes, 1)
		mc, ok := changes[0].(*ModifyColumn)
		require.True(t, ok)
		assert.False(t, mc.Destructive())
	})
	t.Run("narrowing is destructive", func(t *testing.T) {
		current := mustSchema(t, usersTable())
		desired := usersTable()
		c, _ := desired.Column("name")
		c.Size = 10
		changes, err := Diff(current, mustSchema(t, desired))
		require.NoError(t, err)
		require.Len(t, changes, 1)
		mc, ok := changes[0].(*ModifyColumn)
		require.True(t, ok)
		assert.True(t, mc.Destructive())
	})
	t.Run("cross-family change is destructive", func(t *testing.T) {
		current := mustSchema(t, usersTable())
		desired := usersTable()
		c, _ := desired.Column("age")
		c.Type = field.TypeString
		changes, err := Diff(current, mustSchema(t, desired))
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.True(t, changes[0].Destructive())
	})
	t.Run("nullability only", func(t *testing.T) {
		current := mustSchema(t, usersTable())
		desired := usersTable()
		c, _ := desired.Column("age")
		c.Nullable = false
		changes, err := Diff(current, mustSchema(t, desired))
		require.NoError(t, err)
		require.Len(t, changes, 1)
		mc, ok := changes[0].(*ModifyColumn)
		require.True(t, ok)
		// Tightening nullability stays in the safe bucket; it fails loudly
		// at apply time if rows hold nulls instead of discarding data.
		assert.False(t, mc.Destructive())
	})
}

func TestDiffUniqueColumn(t *testing.T) {
	// Declaring a unique column on an existing table must surface as a
	// modification, not silently compare equal.
	current := mustSchema(t, usersTable())
	desired := usersTable()
	c, _ := desired.Column("name")
	c.Unique = true
	changes, err := Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	mc, ok := changes[0].(*ModifyColumn)
	require.True(t, ok)
	assert.False(t, mc.From.Unique)
	assert.True(t, mc.To.Unique)
	assert.False(t, mc.Destructive())

	// And the other way around, once the constraint exists.
	back, err := Diff(mustSchema(t, desired), mustSchema(t, usersTable()))
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.IsType(t, &ModifyColumn{}, back[0])
}

func TestDiffForeignKeyNamesIgnored(t *testing.T) {
	users := usersTable()
	pets := petsTable(users)
	pets.ForeignKeys[0].Symbol = "pets_owner_id_fkey"
	current := mustSchema(t, users, pets)
	dusers := usersTable()
	dpets := petsTable(dusers)
	dpets.ForeignKeys[0].Symbol = "fk_owner"
	changes, err := Diff(current, mustSchema(t, dusers, dpets))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffForeignKeyActionChanged(t *testing.T) {
	users := usersTable()
	current := mustSchema(t, users, petsTable(users))
	dusers := usersTable()
	dpets := petsTable(dusers)
	dpets.ForeignKeys[0].OnDelete = SetNull
	changes, err := Diff(current, mustSchema(t, dusers, dpets))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.IsType(t, &DropForeignKey{}, changes[0])
	assert.IsType(t, &AddForeignKey{}, changes[1])
}

func TestDiffDefaultNormalization(t *testing.T) {
	// The catalog reports text defaults with a cast suffix. They must
	// compare equal to the declared literal.
	current := usersTable()
	cc, _ := current.Column("name")
	cc.Default = field.Expr("'guest'::character varying")
	desired := usersTable()
	dc, _ := desired.Column("name")
	dc.Default = "guest"
	changes, err := Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffEnumValues(t *testing.T) {
	current := NewTable("orders")
	current.AddColumn(NewColumn(field.Enum("status").Values("pending", "paid").Descriptor()))
	desired := NewTable("orders")
	desired.AddColumn(NewColumn(field.Enum("status").Values("pending", "paid", "shipped").Descriptor()))
	changes, err := Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	mc, ok := changes[0].(*ModifyColumn)
	require.True(t, ok)
	// Growing the value set is safe, shrinking it is not.
	assert.False(t, mc.Destructive())
	back, err := Diff(mustSchema(t, desired), mustSchema(t, current))
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.True(t, back[0].Destructive())
}

func TestDiffPrimaryKeyChanged(t *testing.T) {
	current := usersTable()
	desired := usersTable()
	desired.SetPrimaryKey("id", "name")
	changes, err := Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.IsType(t, &DropPrimaryKey{}, changes[0])
	assert.IsType(t, &AddPrimaryKey{}, changes[1])
}

func TestDiffIndexes(t *testing.T) {
	current := usersTable()
	desired := usersTable()
	desired.AddIndex("users_name_idx", false, []string{"name"})
	changes, err := Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.IsType(t, &AddIndex{}, changes[0])

	// Structurally equal indexes with different names are not churned.
	renamed := usersTable()
	renamed.AddIndex("ix_users_name", false, []string{"name"})
	changes, err = Diff(mustSchema(t, renamed), mustSchema(t, desired))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffChecks(t *testing.T) {
	current := usersTable()
	current.AddCheck("users_age_check", `("age" >= 0)`)
	desired := usersTable()
	desired.AddCheck("users_age_check", "age >= 0")
	changes, err := Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	assert.Empty(t, changes)

	desired.AddCheck("users_name_check", "length(name) > 0")
	changes, err = Diff(mustSchema(t, current), mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.IsType(t, &AddCheck{}, changes[0])
}

func TestDiffSkipChanges(t *testing.T) {
	current := mustSchema(t, usersTable())
	desired := usersTable()
	desired.Columns = desired.Columns[:2]
	delete(desired.columns, "age")
	desired.AddIndex("users_name_idx", false, []string{"name"})
	var differ Differ = DiffFunc(Diff)
	differ = filterChanges(ChangeDropColumn)(differ)
	changes, err := differ.Diff(current, mustSchema(t, desired))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.IsType(t, &AddIndex{}, changes[0])
}
