package table

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/internal/reqctx"
	"github.com/vitebski/tablemap/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type field struct {
	name, typ, null, key string
	def                  interface{}
	extra                string
}

var tmpFields = []field{
	{"id", "int(10) unsigned", "NO", "PRI", nil, "auto_increment"},
	{"text", "varchar(255)", "YES", "", nil, ""},
}

var tmpIndexes = [][2]string{{"PRIMARY", "id"}}

func tmpRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "text"})
}

var usersFields = []field{
	{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
	{"email", "varchar(128)", "NO", "UNI", nil, ""},
}

var usersIndexes = [][2]string{{"PRIMARY", "id"}, {"email_idx", "email"}}

func usersRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email"})
}

type fixture struct {
	t    *testing.T
	db   *connector.DatabaseConnector
	mock sqlmock.Sqlmock
	sink *reqctx.MemorySink
}

func newFixture(t *testing.T) *fixture {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return &fixture{
		t:    t,
		db:   connector.NewWithDB(sqlDB, "test", testLogger()),
		mock: mock,
		sink: reqctx.NewMemorySink(reqctx.Debug),
	}
}

// exact matches the whole statement
func exact(q string) string {
	return "^" + regexp.QuoteMeta(q) + "$"
}

func (f *fixture) expectSchema(name string, fields []field, indexes [][2]string) {
	idx := sqlmock.NewRows([]string{"Table", "Non_unique", "Key_name", "Seq_in_index", "Column_name"})
	seq := make(map[string]int64)
	for _, i := range indexes {
		seq[i[0]]++
		idx.AddRow(name, int64(0), i[0], seq[i[0]], i[1])
	}
	f.mock.ExpectQuery(exact("SHOW INDEXES FROM `" + name + "`")).WillReturnRows(idx)

	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	for _, fl := range fields {
		rows.AddRow(fl.name, fl.typ, fl.null, fl.key, fl.def, fl.extra)
	}
	f.mock.ExpectQuery(exact("SHOW FIELDS FROM `" + name + "`")).WillReturnRows(rows)
}

func (f *fixture) table(name string, fields []field, indexes [][2]string) *Table {
	f.expectSchema(name, fields, indexes)
	tbl := New(testLogger())
	require.NoError(f.t, tbl.Init(context.Background(), f.db, name, nil))
	return tbl
}

// run executes fn inside a fresh request scope
func (f *fixture) run(fn func(ctx context.Context)) {
	err := reqctx.Use(context.Background(), reqctx.New(f.sink), func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
	require.NoError(f.t, err)
}

// queries returns how many statements ran inside request scopes
func (f *fixture) queries() int {
	n := 0
	for _, item := range f.sink.Items() {
		if _, ok := item.(connector.QueryLog); ok {
			n++
		}
	}
	return n
}

// staticTable builds a table from definitions without a database
func staticTable(t *testing.T, name string, fields []models.FieldInfo, indexes []models.IndexInfo) *Table {
	s, err := buildSchema(nil, name, fields, indexes, nil)
	require.NoError(t, err)
	tbl := New(testLogger())
	tbl.schema = s
	return tbl
}

func TestInitBuildsSchema(t *testing.T) {
	f := newFixture(t)
	tbl := f.table("users", []field{
		{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
		{"email", "varchar(64)", "NO", "UNI", nil, ""},
		{"active", "enum('n','y')", "NO", "", "y", ""},
		{"state", "enum('new','open')", "NO", "", "new", ""},
	}, [][2]string{{"PRIMARY", "id"}, {"email_idx", "email"}})

	assert.Equal(t, "users", tbl.Name())
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey())
	assert.Equal(t, []string{"PRIMARY", "email_idx"}, tbl.IndexNames())

	cols, ok := tbl.Index("email_idx")
	require.True(t, ok)
	assert.Equal(t, []string{"email"}, cols)

	names := make([]string, 0)
	for _, c := range tbl.Columns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "email", "active", "state"}, names)

	active, ok := tbl.Column("active")
	require.True(t, ok)
	assert.Equal(t, column.Boolean, active.Kind)
	state, _ := tbl.Column("state")
	assert.Equal(t, column.Enum, state.Kind)

	row, err := tbl.NewRow()
	require.NoError(t, err)
	assert.Equal(t, ModeInsert, row.Mode())
	assert.True(t, row.Get("active").(enum.Boolean).Bool())
	assert.Equal(t, "new", row.Get("state").(enum.Enum).Symbol())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestInitCompoundIndexOrder(t *testing.T) {
	tbl := staticTable(t, "memberships",
		[]models.FieldInfo{{Field: "group_id", Type: "int(10)", Key: "PRI"}, {Field: "user_id", Type: "int(10)", Key: "PRI"}},
		[]models.IndexInfo{
			{KeyName: "PRIMARY", ColumnName: "user_id", SeqInIndex: 2},
			{KeyName: "PRIMARY", ColumnName: "group_id", SeqInIndex: 1},
		})
	assert.Equal(t, []string{"group_id", "user_id"}, tbl.PrimaryKey())
}

func TestInitSynthesizesPrimaryKey(t *testing.T) {
	f := newFixture(t)
	tbl := f.table("log", []field{
		{"at", "datetime", "NO", "", nil, ""},
		{"message", "text", "YES", "", nil, ""},
	}, nil)

	assert.Equal(t, []string{"at", "message"}, tbl.PrimaryKey())
	assert.Equal(t, []string{"PRIMARY"}, tbl.IndexNames())
}

func TestInitRejectsEnumMapPrimaryKey(t *testing.T) {
	f := newFixture(t)
	mapping, err := enum.NewMapping(enum.Entry{Symbol: "a", Value: 1})
	require.NoError(t, err)

	f.expectSchema("kinds", []field{{"kind", "tinyint(3)", "NO", "PRI", nil, ""}}, [][2]string{{"PRIMARY", "kind"}})
	tbl := New(testLogger())
	err = tbl.Init(context.Background(), f.db, "kinds", map[string]*enum.Mapping{"kind": mapping})
	assert.ErrorIs(t, err, ErrEnumMapPrimaryKey)
	assert.Equal(t, "", tbl.Name())
}

func TestInitFailsOnMissingTable(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(exact("SHOW INDEXES FROM `nope`")).
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'test.nope' doesn't exist"})

	err := New(testLogger()).Init(context.Background(), f.db, "nope", nil)
	assert.ErrorIs(t, err, connector.ErrCannotFindTable)
}

func TestReinitResetsCache(t *testing.T) {
	f := newFixture(t)
	tbl := f.table("tmp", tmpFields, tmpIndexes)

	f.mock.ExpectQuery(exact("SELECT * FROM `tmp` WHERE (`id` = ?)")).WithArgs(int64(1)).
		WillReturnRows(tmpRows().AddRow(int64(1), "a"))
	f.expectSchema("tmp", tmpFields, tmpIndexes)
	f.mock.ExpectQuery(exact("SELECT * FROM `tmp` WHERE (`id` = ?)")).WithArgs(int64(1)).
		WillReturnRows(tmpRows().AddRow(int64(1), "b"))

	f.run(func(ctx context.Context) {
		first, err := tbl.First(ctx, FindOptions{}, 1)
		require.NoError(t, err)
		assert.Equal(t, "a", first.Get("text"))

		require.NoError(t, tbl.Init(ctx, f.db, "tmp", nil))
		assert.Equal(t, uint64(2), tbl.Generation())

		again, err := tbl.First(ctx, FindOptions{}, 1)
		require.NoError(t, err)
		assert.NotSame(t, first, again)
		assert.Equal(t, "b", again.Get("text"))
	})
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSelections(t *testing.T) {
	tbl := staticTable(t, "tmp",
		[]models.FieldInfo{{Field: "id", Type: "int(10)", Key: "PRI"}, {Field: "text", Type: "varchar(10)"}},
		[]models.IndexInfo{{KeyName: "PRIMARY", ColumnName: "id", SeqInIndex: 1}})

	brief, err := tbl.RegisterSelection("brief", "id")
	require.NoError(t, err)
	assert.Equal(t, "`id`", brief.SQL())

	_, err = tbl.RegisterSelection("broken", "nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = tbl.RegisterSelection("textonly", "text")
	require.NoError(t, err)

	ok, err := tbl.PrimaryKeySelection("brief")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.PrimaryKeySelection("textonly")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tbl.PrimaryKeySelection("missing")
	assert.ErrorIs(t, err, ErrIncompletePrimaryKey)

	assert.Nil(t, tbl.Selection(""))
}

func TestDeriveInheritsSelections(t *testing.T) {
	parent := staticTable(t, "tmp",
		[]models.FieldInfo{{Field: "id", Type: "int(10)", Key: "PRI"}, {Field: "text", Type: "varchar(10)"}},
		[]models.IndexInfo{{KeyName: "PRIMARY", ColumnName: "id", SeqInIndex: 1}})
	_, err := parent.RegisterSelection("brief", "id")
	require.NoError(t, err)
	parent.SetSeqInitialValue(1000)

	child := parent.Derive()
	assert.Equal(t, "tmp", child.Name())
	assert.Equal(t, int64(1000), child.SeqInitialValue())
	assert.NotNil(t, child.Selection("brief"))

	_, err = child.RegisterSelection("own", "text")
	require.NoError(t, err)
	assert.NotNil(t, child.Selection("own"))
	assert.Nil(t, parent.Selection("own"))
}

func TestFindWithoutScope(t *testing.T) {
	f := newFixture(t)
	tbl := f.table("tmp", tmpFields, tmpIndexes)

	_, err := tbl.Find(context.Background(), FindOptions{}, 1)
	assert.ErrorIs(t, err, reqctx.ErrNoScope)
}

func TestFindBeforeInit(t *testing.T) {
	f := newFixture(t)
	f.run(func(ctx context.Context) {
		_, err := New(testLogger()).Find(ctx, FindOptions{}, 1)
		assert.ErrorIs(t, err, ErrNotInitialized)
	})
}
