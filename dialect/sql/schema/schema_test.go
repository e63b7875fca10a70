package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgorm"
	"github.com/syssam/pgorm/schema/field"
)

// usersTable returns a fresh "users" descriptor. Tests mutate descriptors,
// so each call builds a new one.
func usersTable() *Table {
	t := NewTable("users")
	t.AddColumn(NewColumn(field.Int64("id").Increment().Descriptor()))
	t.AddColumn(NewColumn(field.String("name").MaxLen(255).Descriptor()))
	t.AddColumn(NewColumn(field.Int64("age").Optional().Descriptor()))
	t.SetPrimaryKey("id")
	return t
}

// petsTable returns a "pets" descriptor referencing the given users table.
func petsTable(users *Table) *Table {
	t := NewTable("pets")
	t.AddColumn(NewColumn(field.Int64("id").Increment().Descriptor()))
	t.AddColumn(NewColumn(field.Int64("owner_id").Optional().Descriptor()))
	t.SetPrimaryKey("id")
	owner, _ := t.Column("owner_id")
	id, _ := users.Column("id")
	t.AddForeignKey(&ForeignKey{
		Columns:    []*Column{owner},
		RefTable:   users,
		RefColumns: []*Column{id},
		OnDelete:   Cascade,
	})
	return t
}

func TestNewSchema(t *testing.T) {
	users := usersTable()
	s, err := NewSchema("public", users, petsTable(users))
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)
	assert.True(t, s.HasTable("users"))
	assert.True(t, s.HasTable("pets"))

	_, err = NewSchema("public", usersTable(), usersTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table")
}

func TestSchemaTableNotFound(t *testing.T) {
	s, err := NewSchema("public", usersTable())
	require.NoError(t, err)
	_, err = s.Table("groups")
	require.Error(t, err)
	assert.True(t, pgorm.IsNotFound(err))
	var nfe *pgorm.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "table", nfe.Kind())
	assert.Equal(t, "groups", nfe.Name())
}

func TestTableValidate(t *testing.T) {
	tbl := NewTable("users")
	tbl.AddColumn(NewColumn(field.Int64("id").Descriptor()))
	tbl.PrimaryKey = append(tbl.PrimaryKey, &Column{Name: "uid", Type: field.TypeInt64})
	_, err := NewSchema("public", tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")

	dup := NewTable("users")
	dup.AddColumn(NewColumn(field.Int64("id").Descriptor()))
	dup.Columns = append(dup.Columns, &Column{Name: "id", Type: field.TypeInt64})
	_, err = NewSchema("public", dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestColumnConvertibleTo(t *testing.T) {
	tests := []struct {
		name string
		from *Column
		to   *Column
		want bool
	}{
		{"same type", &Column{Type: field.TypeInt64}, &Column{Type: field.TypeInt64}, true},
		{"int widen", &Column{Type: field.TypeInt16}, &Column{Type: field.TypeInt64}, true},
		{"int narrow", &Column{Type: field.TypeInt64}, &Column{Type: field.TypeInt32}, false},
		{"float widen", &Column{Type: field.TypeFloat32}, &Column{Type: field.TypeFloat64}, true},
		{"float narrow", &Column{Type: field.TypeFloat64}, &Column{Type: field.TypeFloat32}, false},
		{"varchar widen", &Column{Type: field.TypeString, Size: 100}, &Column{Type: field.TypeString, Size: 255}, true},
		{"varchar narrow", &Column{Type: field.TypeString, Size: 255}, &Column{Type: field.TypeString, Size: 100}, false},
		{"varchar to unbounded", &Column{Type: field.TypeString, Size: 255}, &Column{Type: field.TypeString}, true},
		{"unbounded to varchar", &Column{Type: field.TypeString}, &Column{Type: field.TypeString, Size: 255}, false},
		{"varchar to text", &Column{Type: field.TypeString, Size: 255}, &Column{Type: field.TypeText}, true},
		{"text to varchar", &Column{Type: field.TypeText}, &Column{Type: field.TypeString, Size: 255}, false},
		{"decimal widen", &Column{Type: field.TypeDecimal, Precision: 10, Scale: 2}, &Column{Type: field.TypeDecimal, Precision: 12, Scale: 4}, true},
		{"decimal narrow", &Column{Type: field.TypeDecimal, Precision: 12, Scale: 4}, &Column{Type: field.TypeDecimal, Precision: 10, Scale: 2}, false},
		{"enum superset", &Column{Type: field.TypeEnum, Enums: []string{"a"}}, &Column{Type: field.TypeEnum, Enums: []string{"a", "b"}}, true},
		{"enum subset", &Column{Type: field.TypeEnum, Enums: []string{"a", "b"}}, &Column{Type: field.TypeEnum, Enums: []string{"a"}}, false},
		{"enum to text", &Column{Type: field.TypeEnum, Enums: []string{"a"}}, &Column{Type: field.TypeText}, true},
		{"int to string ambiguous", &Column{Type: field.TypeInt64}, &Column{Type: field.TypeString}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.ConvertibleTo(tt.to))
		})
	}
}

func TestSchemaFingerprint(t *testing.T) {
	s1, err := NewSchema("public", usersTable())
	require.NoError(t, err)
	s2, err := NewSchema("public", usersTable())
	require.NoError(t, err)
	f1, err := s1.Fingerprint()
	require.NoError(t, err)
	f2, err := s2.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	changed := usersTable()
	c, _ := changed.Column("name")
	c.Size = 100
	s3, err := NewSchema("public", changed)
	require.NoError(t, err)
	f3, err := s3.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)
}

func TestPrimaryKeyName(t *testing.T) {
	tbl := usersTable()
	assert.Equal(t, "users_pkey", tbl.PrimaryKeyName())
	tbl.pkName = "users_pk_legacy"
	assert.Equal(t, "users_pk_legacy", tbl.PrimaryKeyName())
}
