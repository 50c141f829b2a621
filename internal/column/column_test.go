package column

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestNewSimpleColumns(t *testing.T) {
	tests := []struct {
		columnType string
		sqlType    string
		sample     string
		want       interface{}
	}{
		{"varchar(50)", "varchar", "blah", "blah"},
		{"tinyint(2)", "tinyint", "1024", int64(1024)},
		{"text", "text", "blah", "blah"},
		{"date", "date", "2009-01-22", time.Date(2009, 1, 22, 0, 0, 0, 0, time.UTC)},
		{"smallint(5)", "smallint", "5", int64(5)},
		{"mediumint(5)", "mediumint", "50", int64(50)},
		{"int(10)", "int", "1002", int64(1002)},
		{"bigint(10)", "bigint", "3423423423", int64(3423423423)},
		{"bigint(20) unsigned", "bigint", "18446744073709551615", uint64(18446744073709551615)},
		{"float", "float", "3.14", 3.14},
		{"double", "double", "3.15", 3.15},
		{"decimal(10,2)", "decimal", "45345.23", 45345.23},
		{"datetime", "datetime", "2009-01-22 01:11:11", time.Date(2009, 1, 22, 1, 11, 11, 0, time.UTC)},
		{"timestamp", "timestamp", "2009-01-22 01:11:11 GMT", time.Date(2009, 1, 22, 1, 11, 11, 0, time.UTC)},
		{"char(10)", "char", "blah", "blah"},
		{"longblob", "longblob", "blah", "blah"},
		{"mediumtext", "mediumtext", "blah", "blah"},
	}

	for _, tt := range tests {
		c, err := New(models.FieldInfo{Field: "blah", Type: tt.columnType}, nil)
		require.NoError(t, err, tt.columnType)
		assert.Equal(t, "blah", c.Name)
		assert.Equal(t, tt.sqlType, c.SQLType, tt.columnType)
		assert.Equal(t, Plain, c.Kind)
		assert.False(t, c.Primary)
		assert.False(t, c.Unique)
		assert.False(t, c.Key)
		assert.True(t, c.Nullable)
		assert.Nil(t, c.Default)
		assert.Nil(t, c.DefaultValue)

		got, err := c.ParseString(tt.sample)
		require.NoError(t, err, tt.columnType)
		if want, ok := tt.want.(time.Time); ok {
			assert.True(t, want.Equal(got.(time.Time)), tt.columnType)
		} else {
			assert.Equal(t, tt.want, got, tt.columnType)
		}

		c, err = New(models.FieldInfo{Field: "blah", Type: tt.columnType, Default: strPtr(tt.sample)}, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.sample, *c.Default)
		assert.True(t, Equal(tt.want, c.DefaultValue), tt.columnType)
	}
}

func TestNewKeyFlags(t *testing.T) {
	c, err := New(models.FieldInfo{Field: "id", Type: "int(10)", Null: "NO", Key: "PRI", Extra: "auto_increment"}, nil)
	require.NoError(t, err)
	assert.True(t, c.Primary)
	assert.True(t, c.Unique)
	assert.True(t, c.Key)
	assert.False(t, c.Nullable)
	assert.True(t, c.AutoIncrement())

	c, err = New(models.FieldInfo{Field: "email", Type: "varchar(64)", Key: "UNI"}, nil)
	require.NoError(t, err)
	assert.False(t, c.Primary)
	assert.True(t, c.Unique)
	assert.False(t, c.AutoIncrement())
}

func TestEnumAndBooleanColumns(t *testing.T) {
	c, err := New(models.FieldInfo{Field: "state", Type: "enum('new','open','closed')", Null: "NO", Default: strPtr("open")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Enum, c.Kind)
	assert.Equal(t, []string{"new", "open", "closed"}, c.EnumSymbols)
	assert.Equal(t, "open", c.DefaultValue.(enum.Enum).Symbol())

	_, err = c.Assign("bogus")
	assert.ErrorIs(t, err, enum.ErrInvalidChoice)

	c, err = New(models.FieldInfo{Field: "active", Type: "enum('n','y')", Null: "NO"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Boolean, c.Kind)
	v, err := c.ParseString("y")
	require.NoError(t, err)
	assert.True(t, v.(enum.Boolean).Bool())
	assert.Equal(t, "y", c.WireValue(v))

	c, err = New(models.FieldInfo{Field: "flag", Type: "enum('y')", Null: "YES"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Boolean, c.Kind)

	c, err = New(models.FieldInfo{Field: "flag", Type: "enum('y')", Null: "NO"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Enum, c.Kind)
}

func TestEnumMapColumn(t *testing.T) {
	mapping, err := enum.NewMapping(enum.Entry{Symbol: "free", Value: 0}, enum.Entry{Symbol: "paid", Value: 10})
	require.NoError(t, err)

	c, err := New(models.FieldInfo{Field: "plan", Type: "tinyint(3)", Default: strPtr("10")}, mapping)
	require.NoError(t, err)
	assert.Equal(t, EnumMap, c.Kind)
	assert.Equal(t, []string{"free", "paid"}, c.EnumSymbols)
	assert.Equal(t, "paid", c.DefaultValue.(enum.EnumMap).Symbol())

	v, err := c.Assign("free")
	require.NoError(t, err)
	assert.Equal(t, "0", c.WireValue(v))

	_, err = c.Assign(7)
	assert.ErrorIs(t, err, enum.ErrInvalidChoice)
}

func TestRoundTrip(t *testing.T) {
	mapping, _ := enum.NewMapping(enum.Entry{Symbol: "a", Value: 1}, enum.Entry{Symbol: "b", Value: 2})

	tests := []struct {
		info    models.FieldInfo
		mapping *enum.Mapping
		value   interface{}
	}{
		{models.FieldInfo{Field: "c", Type: "int(11)"}, nil, int64(-42)},
		{models.FieldInfo{Field: "c", Type: "bigint(20)"}, nil, int64(9007199254740993)},
		{models.FieldInfo{Field: "c", Type: "double"}, nil, 0.1},
		{models.FieldInfo{Field: "c", Type: "varchar(10)"}, nil, "hello"},
		{models.FieldInfo{Field: "c", Type: "date"}, nil, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)},
		{models.FieldInfo{Field: "c", Type: "datetime"}, nil, time.Date(2020, 2, 29, 23, 59, 58, 0, time.UTC)},
		{models.FieldInfo{Field: "c", Type: "datetime(6)"}, nil, time.Date(2020, 2, 29, 23, 59, 58, 123456000, time.UTC)},
		{models.FieldInfo{Field: "c", Type: "enum('x','y','z')"}, nil, "z"},
		{models.FieldInfo{Field: "c", Type: "enum('n','y')"}, nil, true},
		{models.FieldInfo{Field: "c", Type: "tinyint(1)"}, mapping, "b"},
	}

	for _, tt := range tests {
		c, err := New(tt.info, tt.mapping)
		require.NoError(t, err)

		value, err := c.Assign(tt.value)
		require.NoError(t, err, tt.info.Type)

		parsed, err := c.ParseString(c.Format(value))
		require.NoError(t, err, tt.info.Type)
		assert.True(t, Equal(value, parsed), "%s: %v != %v", tt.info.Type, value, parsed)
	}
}

func TestAssignPlain(t *testing.T) {
	c, _ := New(models.FieldInfo{Field: "n", Type: "int(10)"}, nil)

	v, err := c.Assign(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = c.Assign("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	_, err = c.Assign(struct{}{})
	assert.Error(t, err)

	v, err = c.Assign(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAssignLargeUnsigned(t *testing.T) {
	c, _ := New(models.FieldInfo{Field: "n", Type: "bigint(20) unsigned"}, nil)

	big := ^uint(0)
	v, err := c.Assign(big)
	require.NoError(t, err)
	assert.Equal(t, uint64(big), v)

	v, err = c.Assign(uint(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	assert.True(t, Equal(big, uint64(big)))
	assert.False(t, Equal(big, int64(-1)))
}

func TestEqualNormalizes(t *testing.T) {
	assert.True(t, Equal(50, int64(50)))
	assert.True(t, Equal(int32(3), uint8(3)))
	assert.False(t, Equal(int64(3), "3"))
	assert.True(t, Equal([]byte("x"), "x"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "`id`", Quote("id"))
	assert.Equal(t, "`we``ird`", Quote("we`ird"))
}
