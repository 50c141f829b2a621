package connector

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Result is a fully fetched statement result. Row values are nil for SQL
// NULL and the server's string form otherwise.
type Result struct {
	Columns []string
	Rows    []map[string]interface{}

	affectedRows int64
	insertID     int64
	foundRows    int64
	calcFound    bool
}

// Len returns the number of fetched rows
func (r *Result) Len() int {
	return len(r.Rows)
}

// AffectedRows returns the rows changed by an INSERT, UPDATE or DELETE
func (r *Result) AffectedRows() int64 {
	return r.affectedRows
}

// InsertID returns the id generated by an INSERT
func (r *Result) InsertID() int64 {
	return r.insertID
}

// TotalRows returns FOUND_ROWS() for SQL_CALC_FOUND_ROWS queries and the
// number of fetched rows otherwise
func (r *Result) TotalRows() int64 {
	if r.calcFound {
		return r.foundRows
	}
	return int64(len(r.Rows))
}

// CalculatedTotal reports whether TotalRows came from FOUND_ROWS()
func (r *Result) CalculatedTotal() bool {
	return r.calcFound
}

// Stream is a lazily fetched result. While a stream is open its connector
// refuses other queries with ErrCommandsSync; drain it or call Close.
type Stream struct {
	dc      *DatabaseConnector
	rows    *sql.Rows
	columns []string
	current map[string]interface{}
	query   string
	err     error
	closed  bool
}

// Columns returns the result column names
func (s *Stream) Columns() []string {
	return s.columns
}

// Next fetches the next row. It returns false at the end of the result or
// on error, after which the stream is closed.
func (s *Stream) Next() bool {
	if s.closed {
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.err = classifyError(err, s.query)
		}
		s.Close()
		return false
	}
	row, err := scanRow(s.rows, s.columns)
	if err != nil {
		s.err = classifyError(err, s.query)
		s.Close()
		return false
	}
	s.current = row
	return true
}

// Row returns the row fetched by the last call to Next
func (s *Stream) Row() map[string]interface{} {
	return s.current
}

// Err returns the error that ended iteration, if any
func (s *Stream) Err() error {
	return s.err
}

// Close releases the server cursor and the connector
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.rows.Close()
	s.dc.releaseStream(s)
	return err
}

// Each calls fn for every remaining row and always closes the stream
func (s *Stream) Each(fn func(row map[string]interface{}) error) error {
	defer s.Close()
	for s.Next() {
		if err := fn(s.current); err != nil {
			return err
		}
	}
	return s.err
}

func scanRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, results, nil
}

func scanRow(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	// Create a slice of interface{} to hold the values
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range columns {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		row[col] = rawString(values[i])
	}
	return row, nil
}

// rawString converts a scanned value to the server's text form
func rawString(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprint(v)
}

// isResultQuery reports whether a statement returns rows
func isResultQuery(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	if len(q) < 4 {
		return false
	}
	word := strings.ToUpper(q[:4])
	switch word {
	case "SELE", "SHOW", "DESC", "EXPL", "WITH":
		return true
	}
	return false
}
