package table

import "errors"

var (
	// ErrUnconstrainedQuery is returned by a find without ids, conditions,
	// limit, having or an explicit scan
	ErrUnconstrainedQuery = errors.New("unconstrained query without scan")

	// ErrIncompletePrimaryKey is returned when a selection is used as if it
	// covered the primary key but does not, or does not exist
	ErrIncompletePrimaryKey = errors.New("selection does not cover the primary key")

	ErrKeyArity            = errors.New("key value count does not match index")
	ErrColumnNotSelected   = errors.New("column is not part of the row selection")
	ErrInvalidUpdateMode   = errors.New("row has an invalid update mode")
	ErrUnstreamableOptions = errors.New("options cannot be used with a streamed find")
	ErrNotInitialized      = errors.New("table is not initialized")
	ErrUnknownColumn       = errors.New("unknown column")
	ErrUnknownIndex        = errors.New("unknown index")
	ErrUnknownSelection    = errors.New("unknown selection")
	ErrEnumMapPrimaryKey   = errors.New("primary key column cannot be an enum map")

	// ErrEvaluating is returned when a deferred lookup is resolved from
	// inside its own evaluation
	ErrEvaluating = errors.New("deferred lookup is already being evaluated")
)
