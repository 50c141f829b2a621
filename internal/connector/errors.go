package connector

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
)

// Error kinds. Every error returned by a query is a *QueryError whose Kind
// is one of these, so callers can branch with errors.Is.
var (
	ErrConnection       = errors.New("connection error")
	ErrCommandsSync     = errors.New("commands out of sync")
	ErrCannotFindRow    = errors.New("cannot find row")
	ErrCannotFindColumn = errors.New("cannot find column")
	ErrCannotFindTable  = errors.New("cannot find table")
	ErrDeadlock         = errors.New("deadlock")
	ErrDuplication      = errors.New("duplicate entry")
	ErrQuery            = errors.New("query error")
)

// MySQL server and client error numbers
const (
	erKeyNotFound     = 1032
	erBadField        = 1054
	erDupEntry        = 1062
	erNoSuchTable     = 1146
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	crCommandsOutSync = 2014
	crServerGone      = 2006
	crServerLost      = 2013
)

var unknownColumnPattern = regexp.MustCompile(`^Unknown column '([^']+)' in`)

// QueryError describes a failed statement
type QueryError struct {
	Kind    error
	Number  uint16
	Message string
	SQL     string
	// Column is set for ErrCannotFindColumn
	Column string
}

func (e *QueryError) Error() string {
	if e.Number != 0 {
		return fmt.Sprintf("%v: %s (%d) in <%s>", e.Kind, e.Message, e.Number, e.SQL)
	}
	if e.SQL != "" {
		return fmt.Sprintf("%v: %s in <%s>", e.Kind, e.Message, e.SQL)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap exposes the error kind
func (e *QueryError) Unwrap() error {
	return e.Kind
}

// classifyError maps a driver error to a *QueryError
func classifyError(err error, query string) *QueryError {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		out := &QueryError{Number: myErr.Number, Message: myErr.Message, SQL: query}
		switch myErr.Number {
		case crServerGone, crServerLost:
			out.Kind = ErrConnection
		case crCommandsOutSync:
			out.Kind = ErrCommandsSync
		case erKeyNotFound:
			out.Kind = ErrCannotFindRow
		case erBadField:
			out.Kind = ErrCannotFindColumn
			if m := unknownColumnPattern.FindStringSubmatch(myErr.Message); m != nil {
				out.Column = m[1]
			}
		case erNoSuchTable:
			out.Kind = ErrCannotFindTable
		case erLockWaitTimeout, erLockDeadlock:
			out.Kind = ErrDeadlock
		case erDupEntry:
			out.Kind = ErrDuplication
		default:
			out.Kind = ErrQuery
		}
		return out
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return &QueryError{Kind: ErrConnection, Message: err.Error(), SQL: query}
	}
	return &QueryError{Kind: ErrQuery, Message: err.Error(), SQL: query}
}

// IsConnectionLost reports whether err means the server connection went away
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnection)
}
