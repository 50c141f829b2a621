// Package table maps MySQL rows to Row values. It keeps a per request
// identity cache so the same row is represented by the same *Row inside one
// request scope, and batches key lookups so that keys requested before any
// of them is resolved are fetched with a single query.
//
// A Table is safe for concurrent use. Rows, results and deferred lookups
// belong to the request scope they were loaded in and are not.
package table

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/pkg/models"
)

const (
	// PrimaryIndex is the index keys resolve against by default
	PrimaryIndex = "PRIMARY"

	// DefaultPageLength is the limit used for paged finds without one
	DefaultPageLength = 25
)

// Database is what a table needs from the database connector
type Database interface {
	Query(ctx context.Context, query string, params ...interface{}) (*connector.Result, error)
	QueryStreamed(ctx context.Context, query string, params ...interface{}) (*connector.Stream, error)
	ListFields(ctx context.Context, table string) ([]models.FieldInfo, error)
	ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error)
}

// schema is an immutable snapshot of the table definition. Init builds a new
// one and swaps it in, so a find always works against a complete schema.
type schema struct {
	name       string
	db         Database
	columns    map[string]*column.Column
	order      []string
	indexes    map[string][]string
	indexOrder []string
	enums      map[string]*enum.Mapping
	generation uint64
	// PRIMARY was built from every column
	synthetic bool
}

func (s *schema) primaryKey() []string {
	return s.indexes[PrimaryIndex]
}

func (s *schema) isPrimary(name string) bool {
	for _, c := range s.primaryKey() {
		if c == name {
			return true
		}
	}
	return false
}

// keepsColumn reports whether a write must fail rather than drop name from
// its statement. Key columns can only be dropped from a synthetic PRIMARY,
// where the remaining columns still address the row.
func (s *schema) keepsColumn(name string) bool {
	return !s.synthetic && s.isPrimary(name)
}

// Table is the registry for one table: its columns, indexes, selections and
// event hooks
type Table struct {
	mu              sync.RWMutex
	schema          *schema
	parent          *Table
	selections      map[string]*Selection
	hooks           map[Event][]Hook
	seqInitialValue int64
	generation      uint64
	logger          *logrus.Logger
}

// New creates an uninitialized table
func New(logger *logrus.Logger) *Table {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Table{
		selections:      make(map[string]*Selection),
		hooks:           make(map[Event][]Hook),
		seqInitialValue: 1,
		logger:          logger,
	}
}

// Derive creates a child table. It shares the parent's current schema until
// it is initialized itself, resolves selections through the parent and has
// its own hooks and row cache.
func (t *Table) Derive() *Table {
	child := New(t.logger)
	child.parent = t

	t.mu.RLock()
	child.schema = t.schema
	child.seqInitialValue = t.seqInitialValue
	t.mu.RUnlock()

	return child
}

// Init introspects the table and installs its schema. It can be called
// again to pick up schema changes; every request cache built against the
// previous schema is reset.
func (t *Table) Init(ctx context.Context, db Database, name string, enums map[string]*enum.Mapping) error {
	indexes, err := db.ListIndexes(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to list indexes of %s: %w", name, err)
	}
	fields, err := db.ListFields(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to list fields of %s: %w", name, err)
	}

	s, err := buildSchema(db, name, fields, indexes, enums)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.generation++
	s.generation = t.generation
	t.schema = s
	t.mu.Unlock()

	// Caches of other scopes notice the new generation on next use
	if rc, err := t.cache(ctx); err == nil {
		rc.reset(s.generation)
	}

	t.logger.Debugf("Initialized table %s with %d columns and %d indexes", name, len(s.order), len(s.indexes))
	return nil
}

func buildSchema(db Database, name string, fields []models.FieldInfo, indexes []models.IndexInfo, enums map[string]*enum.Mapping) (*schema, error) {
	s := &schema{
		name:    name,
		db:      db,
		columns: make(map[string]*column.Column, len(fields)),
		indexes: make(map[string][]string),
		enums:   make(map[string]*enum.Mapping, len(enums)),
	}
	for k, v := range enums {
		s.enums[k] = v
	}

	grouped := make(map[string][]models.IndexInfo)
	for _, idx := range indexes {
		if _, ok := grouped[idx.KeyName]; !ok {
			s.indexOrder = append(s.indexOrder, idx.KeyName)
		}
		grouped[idx.KeyName] = append(grouped[idx.KeyName], idx)
	}
	for name, parts := range grouped {
		sort.SliceStable(parts, func(i, j int) bool { return parts[i].SeqInIndex < parts[j].SeqInIndex })
		for _, part := range parts {
			s.indexes[name] = append(s.indexes[name], part.ColumnName)
		}
	}

	for _, field := range fields {
		col, err := column.New(field, s.enums[field.Field])
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		s.columns[col.Name] = col
		s.order = append(s.order, col.Name)
	}

	// Without a declared primary key every column forms it
	if _, ok := s.indexes[PrimaryIndex]; !ok {
		s.indexes[PrimaryIndex] = append([]string(nil), s.order...)
		s.indexOrder = append([]string{PrimaryIndex}, s.indexOrder...)
		s.synthetic = true
	}

	for _, name := range s.indexes[PrimaryIndex] {
		col, ok := s.columns[name]
		if !ok {
			return nil, fmt.Errorf("table %s: primary key column %s: %w", s.name, name, ErrUnknownColumn)
		}
		if col.Kind == column.EnumMap {
			return nil, fmt.Errorf("table %s: column %s: %w", s.name, name, ErrEnumMapPrimaryKey)
		}
	}
	return s, nil
}

func (t *Table) snapshot() (*schema, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.schema == nil {
		return nil, ErrNotInitialized
	}
	return t.schema, nil
}

// Name returns the table name, or "" before Init
func (t *Table) Name() string {
	s, err := t.snapshot()
	if err != nil {
		return ""
	}
	return s.name
}

// Columns returns the column descriptors in table order
func (t *Table) Columns() []*column.Column {
	s, err := t.snapshot()
	if err != nil {
		return nil
	}
	cols := make([]*column.Column, 0, len(s.order))
	for _, name := range s.order {
		cols = append(cols, s.columns[name])
	}
	return cols
}

// Column returns a column descriptor by name
func (t *Table) Column(name string) (*column.Column, bool) {
	s, err := t.snapshot()
	if err != nil {
		return nil, false
	}
	col, ok := s.columns[name]
	return col, ok
}

// PrimaryKey returns the primary key column names
func (t *Table) PrimaryKey() []string {
	s, err := t.snapshot()
	if err != nil {
		return nil
	}
	return append([]string(nil), s.primaryKey()...)
}

// Index returns the columns of an index
func (t *Table) Index(name string) ([]string, bool) {
	s, err := t.snapshot()
	if err != nil {
		return nil, false
	}
	cols, ok := s.indexes[name]
	return append([]string(nil), cols...), ok
}

// IndexNames returns the index names, PRIMARY first when synthesized
func (t *Table) IndexNames() []string {
	s, err := t.snapshot()
	if err != nil {
		return nil
	}
	return append([]string(nil), s.indexOrder...)
}

// Generation increases every time the table is initialized
func (t *Table) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// SetSeqInitialValue sets the first value used for generated sequences
func (t *Table) SetSeqInitialValue(v int64) {
	t.mu.Lock()
	t.seqInitialValue = v
	t.mu.Unlock()
}

// SeqInitialValue returns the first value used for generated sequences
func (t *Table) SeqInitialValue() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seqInitialValue
}

// Logger returns the table logger
func (t *Table) Logger() *logrus.Logger {
	return t.logger
}

// NewRow creates a row pending insert with every column set to its default
func (t *Table) NewRow() (*Row, error) {
	s, err := t.snapshot()
	if err != nil {
		return nil, err
	}
	row := newRow(t, s, nil)
	for _, name := range s.order {
		row.values[name] = s.columns[name].NewDefault()
	}
	return row, nil
}
