package enum

import (
	"fmt"
	"strings"
)

// Boolean is a two valued closed choice, stored as 0/1 or as an enum('n','y') column
type Boolean struct {
	value bool
}

// True and False are the two Boolean values
var (
	True  = Boolean{value: true}
	False = Boolean{value: false}
)

// NewBoolean accepts a bool, 0/1 of any integer kind, or one of the strings
// "0", "1", "n", "y"
func NewBoolean(v interface{}) (Boolean, error) {
	switch b := v.(type) {
	case bool:
		return Boolean{value: b}, nil
	case Boolean:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "1", "y":
			return True, nil
		case "0", "n":
			return False, nil
		}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		switch fmt.Sprint(b) {
		case "1":
			return True, nil
		case "0":
			return False, nil
		}
	}
	return Boolean{}, fmt.Errorf("%w: %v is not a boolean", ErrInvalidChoice, v)
}

// Bool returns the Go value
func (b Boolean) Bool() bool { return b.value }

// Value returns 1 for true and 0 for false
func (b Boolean) Value() int64 {
	if b.value {
		return 1
	}
	return 0
}

// Flag returns the enum('n','y') form
func (b Boolean) Flag() string {
	if b.value {
		return "y"
	}
	return "n"
}

func (b Boolean) String() string {
	if b.value {
		return "true"
	}
	return "false"
}

// Equal reports whether both hold the same value
func (b Boolean) Equal(other Boolean) bool {
	return b.value == other.value
}
