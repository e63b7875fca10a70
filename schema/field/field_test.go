package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/pgorm/schema/field"
)

func TestString(t *testing.T) {
	fd := field.String("email").
		MaxLen(255).
		Unique().
		Comment("login address").
		Descriptor()
	assert.Equal(t, "email", fd.Name)
	assert.Equal(t, field.TypeString, fd.Info.Type)
	assert.Equal(t, 255, fd.Info.Size)
	assert.True(t, fd.Unique)
	assert.False(t, fd.Nullable)
	assert.Equal(t, "login address", fd.Comment)

	fd = field.Text("bio").Optional().Descriptor()
	assert.Equal(t, field.TypeText, fd.Info.Type)
	assert.Zero(t, fd.Info.Size)
	assert.True(t, fd.Nullable)
}

func TestInt(t *testing.T) {
	fd := field.Int64("id").Increment().Descriptor()
	assert.Equal(t, field.TypeInt64, fd.Info.Type)
	assert.True(t, fd.Increment)

	fd = field.Int("id").Descriptor()
	assert.Equal(t, field.TypeInt64, fd.Info.Type, "Int aliases Int64")

	fd = field.Int32("age").Optional().Default(18).Descriptor()
	assert.Equal(t, field.TypeInt32, fd.Info.Type)
	assert.True(t, fd.Nullable)
	assert.Equal(t, int64(18), fd.Default)

	fd = field.Int16("retries").Descriptor()
	assert.Equal(t, field.TypeInt16, fd.Info.Type)
}

func TestFloatAndDecimal(t *testing.T) {
	fd := field.Float64("score").Default(0).Descriptor()
	assert.Equal(t, field.TypeFloat64, fd.Info.Type)
	assert.Equal(t, float64(0), fd.Default)

	fd = field.Decimal("price", 10, 2).Descriptor()
	assert.Equal(t, field.TypeDecimal, fd.Info.Type)
	assert.Equal(t, 10, fd.Info.Precision)
	assert.Equal(t, 2, fd.Info.Scale)
	assert.Equal(t, "decimal(10,2)", fd.Info.String())
}

func TestTemporal(t *testing.T) {
	fd := field.Time("created_at").DefaultNow().Descriptor()
	assert.Equal(t, field.TypeTime, fd.Info.Type)
	assert.Equal(t, field.Expr("now()"), fd.Default)

	assert.Equal(t, field.TypeTimestamp, field.Timestamp("t").Descriptor().Info.Type)
	assert.Equal(t, field.TypeDate, field.Date("d").Descriptor().Info.Type)
}

func TestUUID(t *testing.T) {
	fd := field.UUID("id").DefaultRandom().Descriptor()
	assert.Equal(t, field.TypeUUID, fd.Info.Type)
	assert.Equal(t, field.Expr("gen_random_uuid()"), fd.Default)
}

func TestEnum(t *testing.T) {
	fd := field.Enum("status").
		Values("pending", "active").
		Default("pending").
		Descriptor()
	assert.Equal(t, field.TypeEnum, fd.Info.Type)
	assert.Equal(t, []string{"pending", "active"}, fd.Info.Enums)
	assert.Equal(t, "pending", fd.Default)
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, field.TypeInt32.Integer())
	assert.False(t, field.TypeFloat64.Integer())
	assert.True(t, field.TypeFloat32.Float())
	assert.True(t, field.TypeDecimal.Numeric())
	assert.True(t, field.TypeString.Textual())
	assert.True(t, field.TypeEnum.Textual())
	assert.False(t, field.TypeBytes.Textual())
	assert.True(t, field.TypeDate.Temporal())
	assert.False(t, field.TypeBool.Temporal())

	assert.True(t, field.TypeBool.Valid())
	assert.False(t, field.TypeInvalid.Valid())
	assert.False(t, field.Type(200).Valid())
	assert.Equal(t, "invalid(200)", field.Type(200).String())
	assert.Equal(t, "string(255)", field.TypeInfo{Type: field.TypeString, Size: 255}.String())
}
