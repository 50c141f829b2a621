package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
)

type schemaOnly struct {
	fields  []models.FieldInfo
	indexes []models.IndexInfo
}

func (s schemaOnly) Query(ctx context.Context, query string, params ...interface{}) (*connector.Result, error) {
	return nil, errors.New("unexpected query")
}

func (s schemaOnly) QueryStreamed(ctx context.Context, query string, params ...interface{}) (*connector.Stream, error) {
	return nil, errors.New("unexpected query")
}

func (s schemaOnly) ListFields(ctx context.Context, name string) ([]models.FieldInfo, error) {
	return s.fields, nil
}

func (s schemaOnly) ListIndexes(ctx context.Context, name string) ([]models.IndexInfo, error) {
	return s.indexes, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTable(t *testing.T, name string, fields []models.FieldInfo, pk string, enums map[string]*enum.Mapping) *table.Table {
	t.Helper()
	db := schemaOnly{
		fields:  fields,
		indexes: []models.IndexInfo{{KeyName: "PRIMARY", ColumnName: pk, SeqInIndex: 1}},
	}
	tbl := table.New(testLogger())
	require.NoError(t, tbl.Init(context.Background(), db, name, enums))
	return tbl
}

func profileTable(t *testing.T) *table.Table {
	mapping, err := enum.NewMapping(enum.Entry{Symbol: "low", Value: 1}, enum.Entry{Symbol: "high", Value: 9})
	require.NoError(t, err)

	return newTable(t, "profiles", []models.FieldInfo{
		{Field: "id", Type: "int(10) unsigned", Null: "NO", Key: "PRI", Extra: "auto_increment"},
		{Field: "email", Type: "varchar(12)", Null: "NO", Key: "UNI"},
		{Field: "code", Type: "char(3)", Null: "NO"},
		{Field: "state", Type: "enum('new','active','closed')", Null: "NO"},
		{Field: "verified", Type: "enum('n','y')", Null: "NO"},
		{Field: "priority", Type: "tinyint(3)", Null: "NO"},
		{Field: "score", Type: "decimal(8,2)", Null: "YES"},
		{Field: "born", Type: "date", Null: "YES"},
		{Field: "created_at", Type: "datetime", Null: "NO"},
		{Field: "wakes", Type: "time", Null: "YES"},
		{Field: "flags", Type: "set('a','b','c')", Null: "YES"},
		{Field: "meta", Type: "json", Null: "YES"},
		{Field: "visits", Type: "smallint(5) unsigned", Null: "NO"},
	}, "id", map[string]*enum.Mapping{"priority": mapping})
}

func TestGenerateRecordIsAssignable(t *testing.T) {
	tbl := profileTable(t)
	dg := NewDataGenerator(testLogger())

	for i := 0; i < 50; i++ {
		record := dg.GenerateRecord(tbl)
		assert.NotContains(t, record, "id")

		row, err := tbl.NewRow()
		require.NoError(t, err)
		for name, value := range record {
			require.NoError(t, row.Set(name, value), "column %s value %v", name, value)
		}
	}
}

func TestGenerateDataRespectsColumns(t *testing.T) {
	tbl := profileTable(t)
	dg := NewDataGenerator(testLogger())
	col := func(name string) *column.Column {
		c, ok := tbl.Column(name)
		require.True(t, ok)
		return c
	}

	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, len(dg.GenerateData(col("email")).(string)), 12)
		assert.LessOrEqual(t, len(dg.GenerateData(col("code")).(string)), 3)
		assert.Contains(t, []string{"new", "active", "closed"}, dg.GenerateData(col("state")))
		assert.Contains(t, []string{"low", "high"}, dg.GenerateData(col("priority")))
		assert.IsType(t, true, dg.GenerateData(col("verified")))

		visits := dg.GenerateData(col("visits")).(int64)
		assert.True(t, visits >= 0 && visits < 65536)

		score := dg.GenerateData(col("score")).(float64)
		assert.True(t, score >= 0 && score < 1000)

		created := dg.GenerateData(col("created_at")).(time.Time)
		assert.False(t, created.After(time.Now()))
	}

	assert.Nil(t, dg.GenerateData(col("id")))
}

func TestNextKey(t *testing.T) {
	tbl := newTable(t, "codes", []models.FieldInfo{
		{Field: "id", Type: "int(10)", Null: "NO", Key: "PRI"},
		{Field: "label", Type: "varchar(32)", Null: "NO"},
	}, "id", nil)
	tbl.SetSeqInitialValue(100)
	dg := NewDataGenerator(testLogger())

	first := dg.GenerateRecord(tbl)
	second := dg.GenerateRecord(tbl)

	assert.Equal(t, int64(100), first["id"])
	assert.Equal(t, int64(101), second["id"])
	assert.Equal(t, int64(102), dg.NextKey(tbl))
}
