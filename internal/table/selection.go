package table

import (
	"fmt"
	"strings"

	"github.com/vitebski/tablemap/internal/column"
)

// Selection is a named subset of columns. Rows loaded with a selection only
// hold those columns.
type Selection struct {
	Name    string
	columns []string
	set     map[string]struct{}
	sql     string
}

// NewSelection creates a selection over columns
func NewSelection(name string, columns ...string) *Selection {
	s := &Selection{
		Name:    name,
		columns: append([]string(nil), columns...),
		set:     make(map[string]struct{}, len(columns)),
	}
	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		s.set[c] = struct{}{}
		quoted = append(quoted, column.Quote(c))
	}
	s.sql = strings.Join(quoted, ", ")
	return s
}

// Columns returns the selected column names
func (s *Selection) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Has reports whether a column is part of the selection
func (s *Selection) Has(name string) bool {
	_, ok := s.set[name]
	return ok
}

// SQL returns the rendered projection
func (s *Selection) SQL() string {
	return s.sql
}

func selectionName(s *Selection) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func projection(s *Selection) string {
	if s == nil {
		return "*"
	}
	return s.sql
}

// RegisterSelection registers a named selection. Columns are checked
// against the schema when the table is initialized.
func (t *Table) RegisterSelection(name string, columns ...string) (*Selection, error) {
	if name == "" {
		return nil, fmt.Errorf("selection name cannot be empty")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("selection %s has no columns", name)
	}
	if s, err := t.snapshot(); err == nil {
		for _, c := range columns {
			if _, ok := s.columns[c]; !ok {
				return nil, fmt.Errorf("selection %s: column %s: %w", name, c, ErrUnknownColumn)
			}
		}
	}

	sel := NewSelection(name, columns...)
	t.mu.Lock()
	t.selections[name] = sel
	t.mu.Unlock()
	return sel, nil
}

// Selection looks a selection up on this table and then on its parents.
// The empty name means all columns and returns nil.
func (t *Table) Selection(name string) *Selection {
	if name == "" {
		return nil
	}
	for cur := t; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		sel := cur.selections[name]
		cur.mu.RUnlock()
		if sel != nil {
			return sel
		}
	}
	return nil
}

// PrimaryKeySelection reports whether a selection contains every primary
// key column
func (t *Table) PrimaryKeySelection(name string) (bool, error) {
	sel := t.Selection(name)
	if sel == nil {
		return false, fmt.Errorf("%w: no selection %q", ErrIncompletePrimaryKey, name)
	}
	s, err := t.snapshot()
	if err != nil {
		return false, err
	}
	return covers(sel, s.primaryKey()), nil
}

func covers(sel *Selection, columns []string) bool {
	if sel == nil {
		return true
	}
	for _, c := range columns {
		if !sel.Has(c) {
			return false
		}
	}
	return true
}
