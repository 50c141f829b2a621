package populator

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/tablemap/internal/analyzer"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/generator"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
)

type testTable struct {
	name   string
	fields [][]interface{} // Field, Type, Null, Key, Default, Extra
}

type testFK struct {
	table, column, referenced, nullable string
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func exact(q string) string {
	return "^" + regexp.QuoteMeta(q) + "$"
}

// expectCatalog queues the introspection queries of AnalyzeSchema. Tables
// must be given sorted by name and keyed by an `id` column.
func expectCatalog(mock sqlmock.Sqlmock, tables []testTable, fks []testFK) {
	names := sqlmock.NewRows([]string{"table_name"})
	for _, tt := range tables {
		names.AddRow(tt.name)
	}
	mock.ExpectQuery(`FROM information_schema\.tables`).WithArgs("shop").WillReturnRows(names)

	for _, tt := range tables {
		mock.ExpectQuery(exact("SHOW INDEXES FROM `" + tt.name + "`")).
			WillReturnRows(sqlmock.NewRows([]string{"Key_name", "Seq_in_index", "Column_name"}).
				AddRow("PRIMARY", int64(1), "id"))
		fields := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
		for _, f := range tt.fields {
			row := make([]driver.Value, len(f))
			for i, v := range f {
				row[i] = v
			}
			fields.AddRow(row...)
		}
		mock.ExpectQuery(exact("SHOW FIELDS FROM `" + tt.name + "`")).WillReturnRows(fields)
	}

	rows := sqlmock.NewRows([]string{"table_name", "column_name", "referenced_table_name", "referenced_column_name", "constraint_name", "is_nullable"})
	for _, fk := range fks {
		rows.AddRow(fk.table, fk.column, fk.referenced, "id", "fk_"+fk.table+"_"+fk.column, fk.nullable)
	}
	mock.ExpectQuery(`FROM information_schema\.key_column_usage`).WithArgs("shop").WillReturnRows(rows)
}

func newPopulator(t *testing.T, tables []testTable, fks []testFK, records, retries int) (*DatabasePopulator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := testLogger()
	dc := connector.NewWithDB(db, "shop", logger)
	expectCatalog(mock, tables, fks)

	schemaAnalyzer := analyzer.NewSchemaAnalyzer(dc, nil, logger)
	require.NoError(t, schemaAnalyzer.AnalyzeSchema(context.Background()))

	dp := NewDatabasePopulator(schemaAnalyzer, generator.NewDataGenerator(logger), records, retries, logger)
	return dp, mock
}

var blogTables = []testTable{
	{name: "posts", fields: [][]interface{}{
		{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
		{"user_id", "int(10)", "NO", "MUL", nil, ""},
	}},
	{name: "users", fields: [][]interface{}{
		{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
		{"name", "varchar(32)", "NO", "", nil, ""},
	}},
}

var blogFKs = []testFK{{"posts", "user_id", "users", "NO"}}

func TestPopulateDatabase(t *testing.T) {
	dp, mock := newPopulator(t, blogTables, blogFKs, 2, 0)

	insertUser := exact("INSERT INTO `users` SET `id` = ?, `name` = ?")
	mock.ExpectExec(insertUser).WithArgs(nil, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertUser).WithArgs(nil, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	insertPost := exact("INSERT INTO `posts` SET `id` = ?, `user_id` = ?")
	mock.ExpectExec(insertPost).WithArgs(nil, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertPost).WithArgs(nil, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))

	require.True(t, dp.PopulateDatabase(context.Background()))

	require.Len(t, dp.InsertedRows["users"], 2)
	assert.Equal(t, int64(1), dp.InsertedRows["users"][0].Get("id"))
	assert.Equal(t, int64(2), dp.InsertedRows["users"][1].Get("id"))
	for _, post := range dp.InsertedRows["posts"] {
		assert.Contains(t, []interface{}{int64(1), int64(2)}, post.Get("user_id"))
		assert.Equal(t, table.ModeUpdate, post.Mode())
		assert.False(t, post.IsModified())
	}

	result := dp.Result()
	assert.Equal(t, []string{"posts", "users"}, result.SuccessfulTables)
	assert.Empty(t, result.FailedTables)
	assert.Equal(t, 4, result.TotalRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulateCircularTables(t *testing.T) {
	tables := []testTable{
		{name: "a", fields: [][]interface{}{
			{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
			{"b_id", "int(10)", "YES", "MUL", nil, ""},
		}},
		{name: "b", fields: [][]interface{}{
			{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
			{"a_id", "int(10)", "NO", "MUL", nil, ""},
		}},
	}
	fks := []testFK{{"a", "b_id", "b", "YES"}, {"b", "a_id", "a", "NO"}}
	dp, mock := newPopulator(t, tables, fks, 1, 0)

	mock.ExpectExec(exact("INSERT INTO `a` SET `id` = ?, `b_id` = ?")).
		WithArgs(nil, nil).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(exact("INSERT INTO `b` SET `id` = ?, `a_id` = ?")).
		WithArgs(nil, int64(5)).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(exact("UPDATE `a` SET `b_id` = ? WHERE `id` = ?")).
		WithArgs(int64(9), int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.True(t, dp.PopulateDatabase(context.Background()))

	assert.Equal(t, int64(9), dp.InsertedRows["a"][0].Get("b_id"))
	assert.Equal(t, int64(5), dp.InsertedRows["b"][0].Get("a_id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulateMissingReference(t *testing.T) {
	dp, mock := newPopulator(t, blogTables, blogFKs, 1, 0)

	mock.ExpectExec(exact("INSERT INTO `users` SET `id` = ?, `name` = ?")).
		WillReturnError(errors.New("table is read only"))

	assert.False(t, dp.PopulateDatabase(context.Background()))

	assert.True(t, dp.FailedTables["users"])
	assert.True(t, dp.FailedTables["posts"])
	assert.Equal(t, []string{"posts", "users"}, dp.Result().FailedTables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulateRetriesDuplicates(t *testing.T) {
	tables := []testTable{{name: "users", fields: [][]interface{}{
		{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
		{"email", "varchar(64)", "NO", "UNI", nil, ""},
	}}}
	dp, mock := newPopulator(t, tables, nil, 1, 1)

	insert := exact("INSERT INTO `users` SET `id` = ?, `email` = ?")
	mock.ExpectExec(insert).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'email'"})
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(1, 1))

	require.True(t, dp.PopulateDatabase(context.Background()))
	assert.Len(t, dp.InsertedRows["users"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulateGivesUpOnDuplicates(t *testing.T) {
	tables := []testTable{{name: "users", fields: [][]interface{}{
		{"id", "int(10)", "NO", "PRI", nil, "auto_increment"},
		{"email", "varchar(64)", "NO", "UNI", nil, ""},
	}}}
	dp, mock := newPopulator(t, tables, nil, 1, 1)

	insert := exact("INSERT INTO `users` SET `id` = ?, `email` = ?")
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'email'"}
	mock.ExpectExec(insert).WillReturnError(dup)
	mock.ExpectExec(insert).WillReturnError(dup)

	assert.False(t, dp.PopulateDatabase(context.Background()))
	assert.True(t, dp.FailedTables["users"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculateManyToManyRecords(t *testing.T) {
	dp := NewDatabasePopulator(nil, nil, 3, 0, testLogger())
	fks := []models.ForeignKey{
		{Table: "user_posts", Column: "user_id", ReferencedTable: "users"},
		{Table: "user_posts", Column: "post_id", ReferencedTable: "posts"},
	}

	assert.Equal(t, 0, dp.calculateManyToManyRecords(fks))

	dp.InsertedRows["users"] = make([]*table.Row, 2)
	dp.InsertedRows["posts"] = make([]*table.Row, 2)
	assert.Equal(t, 4, dp.calculateManyToManyRecords(fks))

	dp.InsertedRows["posts"] = make([]*table.Row, 5)
	assert.Equal(t, 6, dp.calculateManyToManyRecords(fks))
}
