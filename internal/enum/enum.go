// Package enum implements closed-choice column values: Enum for MySQL ENUM
// columns, EnumMap for symbolic values backed by a number, and Boolean.
package enum

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChoice is returned when a value outside the declared choices is assigned
var ErrInvalidChoice = errors.New("invalid choice")

// Enum stores one symbol out of a fixed list of symbols
type Enum struct {
	symbol  string
	symbols []string
}

// New creates an Enum. An empty symbol selects the first valid symbol.
func New(symbol string, symbols []string) (Enum, error) {
	e := Enum{symbols: symbols}
	if symbol == "" {
		if len(symbols) > 0 {
			e.symbol = symbols[0]
		}
		return e, nil
	}
	if !e.Valid(symbol) {
		return Enum{}, fmt.Errorf("%w: %q not in %v", ErrInvalidChoice, symbol, symbols)
	}
	e.symbol = symbol
	return e, nil
}

// Symbol returns the current symbol
func (e Enum) Symbol() string { return e.symbol }

// Symbols returns the valid symbols
func (e Enum) Symbols() []string { return e.symbols }

func (e Enum) String() string { return e.symbol }

// Valid reports whether symbol is one of the choices
func (e Enum) Valid(symbol string) bool {
	for _, s := range e.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Set assigns a new symbol. The empty symbol clears the value.
func (e *Enum) Set(symbol string) error {
	if symbol != "" && !e.Valid(symbol) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidChoice, symbol, e.symbols)
	}
	e.symbol = symbol
	return nil
}

// Equal reports whether both values carry the same symbol
func (e Enum) Equal(other Enum) bool {
	return e.symbol == other.symbol
}

// ParseType extracts the symbols from a column type such as enum('a','b')
func ParseType(columnType string) []string {
	s := strings.TrimSpace(columnType)
	open := strings.Index(s, "(")
	closing := strings.LastIndex(s, ")")
	if open < 0 || closing <= open {
		return nil
	}
	body := s[open+1 : closing]

	var symbols []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'' && inQuote && i+1 < len(body) && body[i+1] == '\'':
			current.WriteByte('\'')
			i++
		case c == '\'':
			if inQuote {
				symbols = append(symbols, current.String())
				current.Reset()
			}
			inQuote = !inQuote
		case inQuote:
			current.WriteByte(c)
		}
	}
	return symbols
}
