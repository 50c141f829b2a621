package column

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vitebski/tablemap/internal/enum"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

var datetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	dateLayout,
}

func isInteger(sqlType string) bool {
	switch sqlType {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "year", "bit":
		return true
	}
	return false
}

func isFloat(sqlType string) bool {
	switch sqlType {
	case "float", "double", "decimal", "numeric", "real":
		return true
	}
	return false
}

func isTime(sqlType string) bool {
	switch sqlType {
	case "date", "datetime", "timestamp":
		return true
	}
	return false
}

// ParseString converts a raw server value to the column's Go type:
// int64 for integer types, float64 for floating and decimal types,
// time.Time for date and time types, enum.Enum, enum.EnumMap or
// enum.Boolean for closed-choice columns and string for the rest.
func (c *Column) ParseString(raw string) (interface{}, error) {
	switch c.Kind {
	case Boolean:
		return enum.NewBoolean(raw == "y" || raw == "1")
	case Enum:
		return enum.New(raw, c.EnumSymbols)
	case EnumMap:
		base, err := c.parseBase(raw)
		if err != nil {
			return nil, err
		}
		return enum.NewMap(base, c.EnumMapping)
	}
	return c.parseBase(raw)
}

func (c *Column) parseBase(raw string) (interface{}, error) {
	switch {
	case isInteger(c.SQLType):
		if raw == "" {
			return int64(0), nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(raw, 10, 64)
			if uerr != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			return u, nil
		}
		return n, nil
	case isFloat(c.SQLType):
		if raw == "" {
			return float64(0), nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return f, nil
	case c.SQLType == "date":
		return parseTime(c.Name, raw, append([]string{dateLayout}, datetimeLayouts...))
	case isTime(c.SQLType):
		return parseTime(c.Name, raw, append([]string{datetimeLayout}, datetimeLayouts...))
	}
	return raw, nil
}

func parseTime(name, raw string, layouts []string) (time.Time, error) {
	if raw == "" || strings.HasPrefix(raw, "0000-00-00") {
		return time.Time{}, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: cannot parse time %q", name, raw)
}

// Format renders a typed value in the form the server returns it, so that
// ParseString(Format(v)) == v for every value the column produces
func (c *Column) Format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case enum.Boolean:
		if c.SQLType == "enum" {
			return val.Flag()
		}
		return strconv.FormatInt(val.Value(), 10)
	case enum.Enum:
		return val.Symbol()
	case enum.EnumMap:
		return val.String()
	case time.Time:
		if c.SQLType == "date" {
			return val.Format(dateLayout)
		}
		if val.Nanosecond() != 0 {
			return val.Format("2006-01-02 15:04:05.999999999")
		}
		return val.Format(datetimeLayout)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	}
	return fmt.Sprint(v)
}

// WireValue converts a typed value into a bind parameter
func (c *Column) WireValue(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return nil
	case enum.Boolean, enum.Enum, enum.EnumMap, time.Time:
		return c.Format(v)
	}
	return v
}

// Assign validates and converts a value being assigned to the column,
// dispatching on the column kind. Closed-choice columns reject values
// outside their choices with enum.ErrInvalidChoice.
func (c *Column) Assign(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind {
	case Boolean:
		return enum.NewBoolean(v)
	case Enum:
		switch val := v.(type) {
		case enum.Enum:
			return enum.New(val.Symbol(), c.EnumSymbols)
		case string:
			return enum.New(val, c.EnumSymbols)
		case fmt.Stringer:
			return enum.New(val.String(), c.EnumSymbols)
		}
		return nil, fmt.Errorf("%w: %v for column %s", enum.ErrInvalidChoice, v, c.Name)
	case EnumMap:
		if val, ok := v.(enum.EnumMap); ok {
			return enum.NewMap(val.Symbol(), c.EnumMapping)
		}
		return enum.NewMap(v, c.EnumMapping)
	}
	return c.assignPlain(v)
}

func (c *Column) assignPlain(v interface{}) (interface{}, error) {
	if s, ok := v.([]byte); ok {
		v = string(s)
	}
	switch {
	case isInteger(c.SQLType):
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			return c.parseBase(s)
		}
		switch u := v.(type) {
		case uint64:
			return u, nil
		case uint:
			return uint64(u), nil
		}
	case isFloat(c.SQLType):
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		case string:
			return c.parseBase(f)
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
	case isTime(c.SQLType):
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			return c.parseBase(t)
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("column %s: cannot assign %T to %s", c.Name, v, c.SQLType)
}

// NewDefault returns a fresh copy of the column default value
func (c *Column) NewDefault() interface{} {
	return c.DefaultValue
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// Normalize maps equivalent values to one representation for comparison:
// every integer kind becomes int64, closed-choice values become their
// symbol and byte slices become strings
func Normalize(v interface{}) interface{} {
	if n, ok := toInt64(v); ok {
		return n
	}
	switch val := v.(type) {
	case uint:
		return uint64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case enum.Enum:
		return val.Symbol()
	case enum.EnumMap:
		return val.Symbol()
	case enum.Boolean:
		return val.Bool()
	case time.Time:
		return val.UTC()
	}
	return v
}

// Equal compares two column values after normalization
func Equal(a, b interface{}) bool {
	na, nb := Normalize(a), Normalize(b)
	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	return na == nb
}
