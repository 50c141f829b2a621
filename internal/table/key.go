package table

import (
	"fmt"
	"strings"

	"github.com/vitebski/tablemap/internal/column"
)

// Key identifies rows by the values of an index, within a selection. Two
// keys are equal when index, selection and values are equal after
// normalization, so 50 and int64(50) address the same row.
type Key struct {
	Index     string
	Selection string
	Columns   []string
	Values    []interface{}

	params []interface{}
	id     string
}

// NewKey builds a key for index. The number of values must equal the number
// of index columns.
func (t *Table) NewKey(index, selection string, values ...interface{}) (Key, error) {
	s, err := t.snapshot()
	if err != nil {
		return Key{}, err
	}
	return newKey(s, index, selection, values)
}

func newKey(s *schema, index, selection string, values []interface{}) (Key, error) {
	if index == "" {
		index = PrimaryIndex
	}
	columns, ok := s.indexes[index]
	if !ok {
		return Key{}, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, index, s.name)
	}
	if len(values) != len(columns) {
		return Key{}, fmt.Errorf("%w: %s has %d columns, got %d values", ErrKeyArity, index, len(columns), len(values))
	}

	k := Key{
		Index:     index,
		Selection: selection,
		Columns:   columns,
		Values:    make([]interface{}, len(values)),
		params:    make([]interface{}, len(values)),
	}
	for i, name := range columns {
		col := s.columns[name]
		v, err := col.Assign(values[i])
		if err != nil {
			return Key{}, fmt.Errorf("key %s: %w", index, err)
		}
		k.Values[i] = v
		k.params[i] = col.WireValue(v)
	}
	k.id = k.encode()
	return k, nil
}

func (k Key) encode() string {
	var b strings.Builder
	b.WriteString(k.Index)
	b.WriteByte(0)
	b.WriteString(k.Selection)
	for _, v := range k.Values {
		n := column.Normalize(v)
		fmt.Fprintf(&b, "\x00%T:%v", n, n)
	}
	return b.String()
}

// ID returns the comparable encoding used as the cache map key
func (k Key) ID() string {
	if k.id == "" {
		return k.encode()
	}
	return k.id
}

// Equal reports whether both keys address the same rows
func (k Key) Equal(other Key) bool {
	return k.ID() == other.ID()
}

func (k Key) String() string {
	parts := make([]string, len(k.Values))
	for i, v := range k.Values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%s[%s]", k.Index, strings.Join(parts, ","))
}

// Matches reports whether every key column equals the row's current value.
// The row selection is not consulted.
func (k Key) Matches(row *Row) bool {
	for i, name := range k.Columns {
		if !column.Equal(k.Values[i], row.values[name]) {
			return false
		}
	}
	return true
}

// MatchesModified reports whether the key matches the row as it was before
// its recorded modifications
func (k Key) MatchesModified(row *Row) bool {
	for i, name := range k.Columns {
		v, ok := row.modified[name]
		if !ok {
			v = row.values[name]
		}
		if !column.Equal(k.Values[i], v) {
			return false
		}
	}
	return true
}

// Condition renders the key as a parenthesized AND of column equalities
func (k Key) Condition() (string, []interface{}) {
	parts := make([]string, 0, len(k.Columns))
	args := make([]interface{}, 0, len(k.Columns))
	for i, name := range k.Columns {
		if k.Values[i] == nil {
			parts = append(parts, column.Quote(name)+" IS NULL")
			continue
		}
		parts = append(parts, column.Quote(name)+" = ?")
		if k.params != nil {
			args = append(args, k.params[i])
		} else {
			args = append(args, k.Values[i])
		}
	}
	return "(" + strings.Join(parts, " AND ") + ")", args
}

// keysCondition ORs the conditions of keys
func keysCondition(keys []Key) (string, []interface{}) {
	parts := make([]string, 0, len(keys))
	var args []interface{}
	for _, k := range keys {
		sql, a := k.Condition()
		parts = append(parts, sql)
		args = append(args, a...)
	}
	if len(parts) == 1 {
		return parts[0], args
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
