package enum

import (
	"fmt"
	"strconv"
)

// Entry pairs a symbol with the number stored in the database
type Entry struct {
	Symbol string
	Value  int64
}

// Mapping is an ordered symbol to number table
type Mapping struct {
	entries []Entry
}

// NewMapping builds a mapping, keeping entry order. The first entry is the default.
func NewMapping(entries ...Entry) (*Mapping, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Symbol] {
			return nil, fmt.Errorf("duplicate enum map symbol %q", e.Symbol)
		}
		seen[e.Symbol] = true
	}
	return &Mapping{entries: entries}, nil
}

// Symbols returns the mapped symbols in order
func (m *Mapping) Symbols() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Symbol
	}
	return out
}

// Entries returns the mapping entries
func (m *Mapping) Entries() []Entry {
	return m.entries
}

// Default returns the first symbol
func (m *Mapping) Default() string {
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[0].Symbol
}

// Value returns the number mapped to symbol
func (m *Mapping) Value(symbol string) (int64, bool) {
	for _, e := range m.entries {
		if e.Symbol == symbol {
			return e.Value, true
		}
	}
	return 0, false
}

// Resolve accepts a symbol or a backing number (as any integer kind or its
// decimal string) and returns the symbol
func (m *Mapping) Resolve(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		if _, found := m.Value(s); found {
			return s, nil
		}
	}
	var text string
	switch n := v.(type) {
	case int:
		text = strconv.FormatInt(int64(n), 10)
	case int8:
		text = strconv.FormatInt(int64(n), 10)
	case int16:
		text = strconv.FormatInt(int64(n), 10)
	case int32:
		text = strconv.FormatInt(int64(n), 10)
	case int64:
		text = strconv.FormatInt(n, 10)
	case uint:
		text = strconv.FormatUint(uint64(n), 10)
	case uint8:
		text = strconv.FormatUint(uint64(n), 10)
	case uint16:
		text = strconv.FormatUint(uint64(n), 10)
	case uint32:
		text = strconv.FormatUint(uint64(n), 10)
	case uint64:
		text = strconv.FormatUint(n, 10)
	case bool:
		text = "0"
		if n {
			text = "1"
		}
	default:
		text = fmt.Sprint(v)
	}
	for _, e := range m.entries {
		if strconv.FormatInt(e.Value, 10) == text {
			return e.Symbol, nil
		}
	}
	return "", fmt.Errorf("%w: %v not in %v", ErrInvalidChoice, v, m.Symbols())
}

// EnumMap is an Enum whose database representation is a number
type EnumMap struct {
	symbol  string
	mapping *Mapping
}

// NewMap creates an EnumMap from a symbol or backing number
func NewMap(v interface{}, mapping *Mapping) (EnumMap, error) {
	symbol, err := mapping.Resolve(v)
	if err != nil {
		return EnumMap{}, err
	}
	return EnumMap{symbol: symbol, mapping: mapping}, nil
}

// Symbol returns the current symbol
func (e EnumMap) Symbol() string { return e.symbol }

// Mapping returns the symbol table
func (e EnumMap) Mapping() *Mapping { return e.mapping }

// Value returns the backing number
func (e EnumMap) Value() int64 {
	v, _ := e.mapping.Value(e.symbol)
	return v
}

// String renders the backing number, the form written to the database
func (e EnumMap) String() string {
	return strconv.FormatInt(e.Value(), 10)
}

// Set assigns a symbol or backing number
func (e *EnumMap) Set(v interface{}) error {
	symbol, err := e.mapping.Resolve(v)
	if err != nil {
		return err
	}
	e.symbol = symbol
	return nil
}

// Equal reports whether both values carry the same symbol
func (e EnumMap) Equal(other EnumMap) bool {
	return e.symbol == other.symbol
}
