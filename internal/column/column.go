// Package column describes table columns and converts between the raw
// strings MySQL returns and typed Go values.
package column

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/pkg/models"
)

// Kind is the semantic type that decides how a column value is assigned
type Kind int

const (
	Plain Kind = iota
	Boolean
	Enum
	EnumMap
)

func (k Kind) String() string {
	switch k {
	case Boolean:
		return "boolean"
	case Enum:
		return "enum"
	case EnumMap:
		return "enum_map"
	default:
		return "plain"
	}
}

const autoIncrement = "auto_increment"

var typePattern = regexp.MustCompile(`^(\w+)(\(.*\))?.*$`)

// Column holds the description of one column. It is immutable after New.
type Column struct {
	Name          string
	SQLType       string
	Kind          Kind
	Nullable      bool
	Primary       bool
	Unique        bool
	Key           bool
	Extra         string
	Default       *string
	DefaultValue  interface{}
	EnumSymbols   []string
	EnumMapping   *enum.Mapping
	columnTypeRaw string
}

// New builds a column from a SHOW FIELDS row. A non nil mapping turns the
// column into an enum map column.
func New(info models.FieldInfo, mapping *enum.Mapping) (*Column, error) {
	c := &Column{
		Name:          info.Field,
		Primary:       info.Key == "PRI",
		Unique:        info.Key == "PRI" || info.Key == "UNI",
		Key:           info.Key != "",
		Nullable:      info.Null != "NO",
		Extra:         info.Extra,
		Default:       info.Default,
		columnTypeRaw: info.Type,
	}

	m := typePattern.FindStringSubmatch(strings.ToLower(info.Type))
	if m == nil {
		return nil, fmt.Errorf("column %s: cannot parse type %q", info.Field, info.Type)
	}
	c.SQLType = m[1]

	if c.SQLType == "enum" {
		c.Kind = Enum
		c.EnumSymbols = enum.ParseType(info.Type)
		switch len(c.EnumSymbols) {
		case 2:
			if contains(c.EnumSymbols, "n") && contains(c.EnumSymbols, "y") {
				c.Kind = Boolean
			}
		case 1:
			if c.EnumSymbols[0] == "y" && c.Nullable {
				c.Kind = Boolean
			}
		}
	}
	if mapping != nil {
		c.Kind = EnumMap
		c.EnumMapping = mapping
		c.EnumSymbols = mapping.Symbols()
	}

	if c.Default != nil {
		v, err := c.ParseString(*c.Default)
		if err != nil {
			return nil, fmt.Errorf("column %s: default: %w", c.Name, err)
		}
		c.DefaultValue = v
	}
	return c, nil
}

// AutoIncrement reports whether the server generates this column's value
func (c *Column) AutoIncrement() bool {
	return strings.Contains(strings.ToLower(c.Extra), autoIncrement)
}

// Type returns the column type as reported by the server
func (c *Column) Type() string {
	return c.columnTypeRaw
}

// Quoted returns the backtick quoted column name
func (c *Column) Quoted() string {
	return Quote(c.Name)
}

// Quote backtick quotes an identifier
func Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
