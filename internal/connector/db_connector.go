package connector

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"net"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/reqctx"
	"github.com/vitebski/tablemap/pkg/models"
)

const defaultMaxRetries = 10

var calcFoundRowsPattern = regexp.MustCompile(`(?i)^\s*SELECT\s+(DISTINCT\s+)?SQL_CALC_FOUND_ROWS`)

// QueryLog is the scope log item written for every statement
type QueryLog struct {
	SQL      string
	Params   []interface{}
	Duration time.Duration
}

func (q QueryLog) String() string {
	return fmt.Sprintf("[%s] %s", q.Duration, q.SQL)
}

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Host       string
	User       string
	Password   string
	Database   string
	Port       string
	MaxRetries int
	DB         *sql.DB
	Logger     *logrus.Logger

	mu         sync.Mutex
	stream     *Stream
	numQueries int64
	queryTime  time.Duration
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = getEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("MYSQL_USER", "root")
	}
	if password == "" {
		password = getEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("MYSQL_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Host:       host,
		User:       user,
		Password:   password,
		Database:   database,
		Port:       port,
		MaxRetries: GetEnvInt("MYSQL_CONNECT_RETRIES", defaultMaxRetries),
		Logger:     logger,
	}
}

// NewWithDB wraps an already opened database handle
func NewWithDB(db *sql.DB, database string, logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Database:   database,
		MaxRetries: defaultMaxRetries,
		DB:         db,
		Logger:     logger,
	}
}

// DSN builds the driver connection string. Parameters are interpolated on
// the client so every value comes back in its text form.
func (dc *DatabaseConnector) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = dc.User
	cfg.Passwd = dc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dc.Host, dc.Port)
	cfg.DBName = dc.Database
	cfg.InterpolateParams = true
	return cfg.FormatDSN()
}

// Connect establishes a connection to the MySQL database, retrying with a
// growing randomized delay up to MaxRetries times
func (dc *DatabaseConnector) Connect() error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as MYSQL_DATABASE environment variable")
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		db, err := sql.Open("mysql", dc.DSN())
		if err == nil {
			// Test the connection
			if err = db.Ping(); err == nil {
				dc.DB = db
				dc.Logger.Infof("Connected to MySQL database: %s", dc.Database)
				return nil
			}
			db.Close()
		}
		lastErr = err

		if attempt >= dc.MaxRetries {
			break
		}

		// wait between 50 and 250ms, going up each retry
		delay := time.Duration(attempt+1) * time.Duration(rand.Intn(200)+50) * time.Millisecond
		dc.Logger.Warningf("Failed to connect to %s:%s, reconnecting in %v: %v", dc.Host, dc.Database, delay, err)
		time.Sleep(delay)
	}

	dc.Logger.Errorf("Error connecting to MySQL database: %v", lastErr)
	return &QueryError{Kind: ErrConnection, Message: lastErr.Error()}
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("MySQL connection closed")
		}
		dc.DB = nil
	}
}

// Stats returns the number of statements run and the time spent on them
func (dc *DatabaseConnector) Stats() (int64, time.Duration) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.numQueries, dc.queryTime
}

func (dc *DatabaseConnector) checkStream(query string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.stream != nil {
		return &QueryError{
			Kind:    ErrCommandsSync,
			Message: "a streamed result is still open on this connection",
			SQL:     query,
		}
	}
	return nil
}

func (dc *DatabaseConnector) releaseStream(s *Stream) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.stream == s {
		dc.stream = nil
	}
}

func (dc *DatabaseConnector) record(ctx context.Context, query string, params []interface{}, d time.Duration) {
	dc.mu.Lock()
	dc.numQueries++
	dc.queryTime += d
	dc.mu.Unlock()

	dc.Logger.Debugf("Query (%v): %s", d, query)
	reqctx.Log(ctx, QueryLog{SQL: query, Params: params, Duration: d}, reqctx.Debug)
}

// Query runs a statement. Row returning statements are fetched completely;
// other statements report affected rows and the insert id. A lost server
// connection is retried once.
func (dc *DatabaseConnector) Query(ctx context.Context, query string, params ...interface{}) (*Result, error) {
	if err := dc.checkStream(query); err != nil {
		return nil, err
	}
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := dc.runQuery(ctx, query, params)
	if err != nil && IsConnectionLost(err) {
		reqctx.Log(ctx, fmt.Sprintf("%v on <%s:%s>, reconnecting", err, dc.Host, dc.Database), reqctx.Warning)
		dc.Logger.Warningf("Lost connection to %s:%s, retrying query", dc.Host, dc.Database)
		result, err = dc.runQuery(ctx, query, params)
	}
	dc.record(ctx, query, params, time.Since(start))

	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	return result, nil
}

func (dc *DatabaseConnector) runQuery(ctx context.Context, query string, params []interface{}) (*Result, error) {
	if !isResultQuery(query) {
		res, err := dc.DB.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, classifyError(err, query)
		}
		result := &Result{}
		result.affectedRows, _ = res.RowsAffected()
		result.insertID, _ = res.LastInsertId()
		return result, nil
	}

	if calcFoundRowsPattern.MatchString(query) {
		return dc.runCalcFoundQuery(ctx, query, params)
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, classifyError(err, query)
	}
	defer rows.Close()

	columns, results, err := scanRows(rows)
	if err != nil {
		return nil, classifyError(err, query)
	}
	return &Result{Columns: columns, Rows: results}, nil
}

// runCalcFoundQuery runs the query and FOUND_ROWS() on the same connection
func (dc *DatabaseConnector) runCalcFoundQuery(ctx context.Context, query string, params []interface{}) (*Result, error) {
	conn, err := dc.DB.Conn(ctx)
	if err != nil {
		return nil, classifyError(err, query)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, classifyError(err, query)
	}
	columns, results, err := scanRows(rows)
	rows.Close()
	if err != nil {
		return nil, classifyError(err, query)
	}

	result := &Result{Columns: columns, Rows: results, calcFound: true}
	if err := conn.QueryRowContext(ctx, "SELECT FOUND_ROWS()").Scan(&result.foundRows); err != nil {
		return nil, classifyError(err, "SELECT FOUND_ROWS()")
	}
	return result, nil
}

// QueryStreamed runs a SELECT whose rows are fetched lazily. Until the
// returned stream is drained or closed every other query on this connector
// fails with ErrCommandsSync.
func (dc *DatabaseConnector) QueryStreamed(ctx context.Context, query string, params ...interface{}) (*Stream, error) {
	if err := dc.checkStream(query); err != nil {
		return nil, err
	}
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	rows, err := dc.DB.QueryContext(ctx, query, params...)
	dc.record(ctx, query, params, time.Since(start))
	if err != nil {
		qe := classifyError(err, query)
		dc.Logger.Errorf("Error executing streamed query: %v", qe)
		return nil, qe
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, classifyError(err, query)
	}

	s := &Stream{dc: dc, rows: rows, columns: columns, query: query}
	dc.mu.Lock()
	dc.stream = s
	dc.mu.Unlock()
	return s, nil
}

// ListFields returns the column definitions of a table
func (dc *DatabaseConnector) ListFields(ctx context.Context, table string) ([]models.FieldInfo, error) {
	result, err := dc.Query(ctx, fmt.Sprintf("SHOW FIELDS FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, err
	}

	fields := make([]models.FieldInfo, 0, result.Len())
	for _, row := range result.Rows {
		field := models.FieldInfo{
			Field: stringValue(row["Field"]),
			Type:  stringValue(row["Type"]),
			Null:  stringValue(row["Null"]),
			Key:   stringValue(row["Key"]),
			Extra: stringValue(row["Extra"]),
		}
		if def, ok := row["Default"].(string); ok {
			field.Default = &def
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// ListIndexes returns one entry per indexed column, in index order
func (dc *DatabaseConnector) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	result, err := dc.Query(ctx, fmt.Sprintf("SHOW INDEXES FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, err
	}

	indexes := make([]models.IndexInfo, 0, result.Len())
	for _, row := range result.Rows {
		seq, _ := strconv.Atoi(stringValue(row["Seq_in_index"]))
		indexes = append(indexes, models.IndexInfo{
			KeyName:    stringValue(row["Key_name"]),
			ColumnName: stringValue(row["Column_name"]),
			SeqInIndex: seq,
		})
	}
	return indexes, nil
}

// ListTables returns the base tables of the database, sorted by name
func (dc *DatabaseConnector) ListTables(ctx context.Context) ([]string, error) {
	query := "SELECT table_name AS `table_name` FROM information_schema.tables " +
		"WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name"
	result, err := dc.Query(ctx, query, dc.Database)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, result.Len())
	for _, row := range result.Rows {
		tables = append(tables, stringValue(row["table_name"]))
	}
	return tables, nil
}

// ListForeignKeys returns every foreign key column of the database
func (dc *DatabaseConnector) ListForeignKeys(ctx context.Context) ([]models.ForeignKey, error) {
	query := "SELECT k.table_name AS `table_name`, k.column_name AS `column_name`, " +
		"k.referenced_table_name AS `referenced_table_name`, k.referenced_column_name AS `referenced_column_name`, " +
		"k.constraint_name AS `constraint_name`, c.is_nullable AS `is_nullable` " +
		"FROM information_schema.key_column_usage k " +
		"JOIN information_schema.columns c ON c.table_schema = k.table_schema " +
		"AND c.table_name = k.table_name AND c.column_name = k.column_name " +
		"WHERE k.table_schema = ? AND k.referenced_table_name IS NOT NULL " +
		"ORDER BY k.table_name, k.column_name"
	result, err := dc.Query(ctx, query, dc.Database)
	if err != nil {
		return nil, err
	}

	fks := make([]models.ForeignKey, 0, result.Len())
	for _, row := range result.Rows {
		fks = append(fks, models.ForeignKey{
			Table:            stringValue(row["table_name"]),
			Column:           stringValue(row["column_name"]),
			ReferencedTable:  stringValue(row["referenced_table_name"]),
			ReferencedColumn: stringValue(row["referenced_column_name"]),
			ConstraintName:   stringValue(row["constraint_name"]),
			IsNullable:       stringValue(row["is_nullable"]) == "YES",
		})
	}
	return fks, nil
}

func quoteIdent(name string) string {
	out := []byte{'`'}
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer value from an environment variable
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
