package table

import (
	"fmt"

	"github.com/vitebski/tablemap/internal/column"
)

// Mode decides whether the next Store inserts or updates. The zero value
// is invalid.
type Mode int

const (
	ModeInsert Mode = iota + 1
	ModeUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	default:
		return fmt.Sprintf("invalid(%d)", int(m))
	}
}

// Row holds the typed values of one table row and tracks which columns
// changed since it was loaded
type Row struct {
	table     *Table
	schema    *schema
	values    map[string]interface{}
	modified  map[string]interface{}
	mode      Mode
	selection *Selection

	insertID     int64
	affectedRows int64
	totalRows    int64

	onChange func(row *Row, column string)
}

func newRow(t *Table, s *schema, sel *Selection) *Row {
	return &Row{
		table:     t,
		schema:    s,
		values:    make(map[string]interface{}, len(s.order)),
		modified:  make(map[string]interface{}),
		mode:      ModeInsert,
		selection: sel,
	}
}

// Table returns the table the row belongs to
func (r *Row) Table() *Table {
	return r.table
}

// Selection returns the selection the row was loaded with, nil for all
// columns
func (r *Row) Selection() *Selection {
	return r.selection
}

func (r *Row) Mode() Mode {
	return r.mode
}

// SetMode overrides the update mode
func (r *Row) SetMode(m Mode) {
	r.mode = m
}

// InsertID returns the id generated by the last insert
func (r *Row) InsertID() int64 {
	return r.insertID
}

// AffectedRows returns the affected rows of the last write that asked
// for them
func (r *Row) AffectedRows() int64 {
	return r.affectedRows
}

// TotalRows returns the total reported by the query that loaded the row
func (r *Row) TotalRows() int64 {
	return r.totalRows
}

// SetChangeHook installs a function called after every column assignment
func (r *Row) SetChangeHook(fn func(row *Row, column string)) {
	r.onChange = fn
}

func (r *Row) check(name string) (*column.Column, error) {
	col, ok := r.schema.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.schema.name, name)
	}
	if r.selection != nil && !r.selection.Has(name) {
		return nil, fmt.Errorf("%w: %s not in selection %s", ErrColumnNotSelected, name, r.selection.Name)
	}
	return col, nil
}

// Lookup returns the value of a column
func (r *Row) Lookup(name string) (interface{}, error) {
	if _, err := r.check(name); err != nil {
		return nil, err
	}
	return r.values[name], nil
}

// Get returns the value of a column. Reading an unknown column or one
// outside the row selection panics.
func (r *Row) Get(name string) interface{} {
	v, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Text returns a column value in its database text form, "" for NULL
func (r *Row) Text(name string) string {
	col, err := r.check(name)
	if err != nil {
		panic(err)
	}
	return col.Format(r.values[name])
}

// Set assigns a column. The value is converted for the column kind; the
// previous value is recorded as the column's original value the first time
// it changes.
func (r *Row) Set(name string, value interface{}) error {
	col, err := r.check(name)
	if err != nil {
		return err
	}
	v, err := col.Assign(value)
	if err != nil {
		return err
	}
	if _, ok := r.modified[name]; !ok {
		r.modified[name] = r.values[name]
	}
	r.values[name] = v
	if r.onChange != nil {
		r.onChange(r, name)
	}
	return nil
}

// Modified reports whether a column changed. Every column of a row pending
// insert is modified.
func (r *Row) Modified(name string) bool {
	if r.mode == ModeInsert {
		return true
	}
	_, ok := r.modified[name]
	return ok
}

// IsModified reports whether the row has anything to write
func (r *Row) IsModified() bool {
	return r.mode == ModeInsert || len(r.modified) > 0
}

// ModifiedColumns returns the modified columns in table order
func (r *Row) ModifiedColumns() []string {
	var out []string
	for _, name := range r.columnNames() {
		if r.Modified(name) {
			out = append(out, name)
		}
	}
	return out
}

// Original returns the value a column had before it was modified
func (r *Row) Original(name string) interface{} {
	if v, ok := r.modified[name]; ok {
		return v
	}
	return r.values[name]
}

// ClearModified marks every column unmodified
func (r *Row) ClearModified() {
	r.modified = make(map[string]interface{})
}

// OriginalVersion returns a detached copy of the row as it was loaded
func (r *Row) OriginalVersion() *Row {
	orig := newRow(r.table, r.schema, r.selection)
	orig.mode = r.mode
	for name, v := range r.values {
		orig.values[name] = v
	}
	for name, v := range r.modified {
		orig.values[name] = v
	}
	return orig
}

// Values returns a copy of the populated column values
func (r *Row) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for name, v := range r.values {
		out[name] = v
	}
	return out
}

// PrimaryKey returns the primary key values
func (r *Row) PrimaryKey() []interface{} {
	pk := r.schema.primaryKey()
	out := make([]interface{}, len(pk))
	for i, name := range pk {
		out[i] = r.values[name]
	}
	return out
}

// Key returns the primary key of the row within its selection
func (r *Row) Key() (Key, error) {
	return newKey(r.schema, PrimaryIndex, selectionName(r.selection), r.PrimaryKey())
}

// Equal compares every column value
func (r *Row) Equal(other *Row) bool {
	if other == nil || r.schema.name != other.schema.name {
		return false
	}
	for _, name := range r.schema.order {
		if !column.Equal(r.values[name], other.values[name]) {
			return false
		}
	}
	return true
}

// SameKey compares primary keys
func (r *Row) SameKey(other *Row) bool {
	if other == nil || r.schema.name != other.schema.name {
		return false
	}
	a, b := r.PrimaryKey(), other.PrimaryKey()
	for i := range a {
		if !column.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	return fmt.Sprintf("%s %v", r.schema.name, r.PrimaryKey())
}

// columnNames returns the columns the row holds, in table order
func (r *Row) columnNames() []string {
	if r.selection == nil {
		return r.schema.order
	}
	out := make([]string, 0, len(r.selection.columns))
	for _, name := range r.schema.order {
		if r.selection.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// load replaces the row values with a raw result row
func (r *Row) load(raw map[string]interface{}) error {
	for _, name := range r.columnNames() {
		col := r.schema.columns[name]
		v, ok := raw[name]
		if !ok || v == nil {
			r.values[name] = nil
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		parsed, err := col.ParseString(s)
		if err != nil {
			return err
		}
		r.values[name] = parsed
	}
	r.mode = ModeUpdate
	return nil
}
