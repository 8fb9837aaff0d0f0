package common

import (
	"encoding/binary"
	"strconv"
)

// Field is a single typed value inside a tuple: either a 64-bit integer or a fixed-width string.
// Fields are immutable and comparable with ==, so they can be used directly as map keys.
type Field struct {
	t Type
	i int64
	s string
}

// NewIntField creates a new integer Field.
func NewIntField(v int64) Field {
	return Field{t: IntType, i: v}
}

// NewStringField creates a new string Field. Strings longer than StringLength bytes are truncated,
// matching what survives a round trip through a page.
func NewStringField(v string) Field {
	if len(v) > StringLength {
		v = v[:StringLength]
	}
	return Field{t: StringType, s: v}
}

// Type returns the type of the Field.
func (f Field) Type() Type {
	return f.t
}

// IsNil returns true if the Field is uninitialized.
func (f Field) IsNil() bool {
	return f.t == DefaultType
}

// Int returns the underlying integer.
func (f Field) Int() int64 {
	Assert(f.t == IntType, "type mismatch in Int: field is %s", f.t)
	return f.i
}

// Str returns the underlying string.
func (f Field) Str() string {
	Assert(f.t == StringType, "type mismatch in Str: field is %s", f.t)
	return f.s
}

// WriteTo serializes the Field into storage format. Strings are zero padded to StringLength.
func (f Field) WriteTo(data []byte) {
	Assert(len(data) >= f.t.Size(), "buffer too small")
	switch f.t {
	case IntType:
		binary.LittleEndian.PutUint64(data, uint64(f.i))
	case StringType:
		n := copy(data[:StringLength], f.s)
		for i := n; i < StringLength; i++ {
			data[i] = 0
		}
	}
}

// ReadField deserializes a Field of type t from data. The string is copied out of data.
func ReadField(t Type, data []byte) Field {
	switch t {
	case IntType:
		return NewIntField(int64(binary.LittleEndian.Uint64(data)))
	case StringType:
		Assert(len(data) >= StringLength, "string too short")
		realLen := StringLength
		for i := 0; i < StringLength; i++ {
			if data[i] == 0 {
				realLen = i
				break
			}
		}
		return Field{t: StringType, s: string(data[:realLen])}
	}
	panic("unknown type")
}

// Compare compares two Fields of the same type.
// Returns -1 if f < other, 0 if f == other, 1 if f > other.
func (f Field) Compare(other Field) int {
	Assert(f.t == other.t, "type mismatch in comparison")
	switch f.t {
	case IntType:
		if f.i < other.i {
			return -1
		}
		if f.i > other.i {
			return 1
		}
		return 0
	case StringType:
		if f.s < other.s {
			return -1
		}
		if f.s > other.s {
			return 1
		}
		return 0
	}
	panic("unreachable")
}

func (f Field) String() string {
	switch f.t {
	case IntType:
		return strconv.FormatInt(f.i, 10)
	case StringType:
		return f.s
	}
	return "<nil>"
}
