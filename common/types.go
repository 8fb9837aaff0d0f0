package common

import (
	"fmt"
	"strings"
)

const (
	PageSize     int = 4096
	IntSize      int = 8
	StringLength int = 32
)

type Type int8

const (
	// For uninitialized Fields
	DefaultType Type = iota
	IntType
	StringType
)

// Size returns the fixed-width storage size of the type in bytes
func (t Type) Size() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return StringLength
	default:
		panic("unknown type")
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// ParseType maps the textual names used by the catalog and tools back to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "int_type":
		return IntType, nil
	case "string", "str", "string_type":
		return StringType, nil
	}
	return DefaultType, NewError(InvalidArgumentError, "unknown type %q", s)
}

// TableID uniquely identifies a heap file. It is derived from the file's absolute path, so the same
// file always maps to the same id across restarts.
type TableID uint64

const InvalidTableID TableID = 0

// TableIDForPath computes the id of the heap file stored at absPath.
func TableIDForPath(absPath string) TableID {
	id := TableID(Hash([]byte(absPath)))
	if id == InvalidTableID {
		id = 1
	}
	return id
}

// PageID uniquely identifies a page within the database.
type PageID struct {
	Table   TableID
	PageNum int32
}

func (p PageID) String() string {
	return fmt.Sprintf("Page(%d, %d)", p.Table, p.PageNum)
}

// IsNil checks if the PageID is valid.
func (p PageID) IsNil() bool {
	return p.Table == InvalidTableID
}

// RecordID identifies a specific tuple (row) in the database via its PageID and Slot index.
type RecordID struct {
	PageID
	Slot int32
}

// IsNil checks if the RecordID refers to a valid page.
func (r RecordID) IsNil() bool {
	return r.PageID.IsNil()
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%s, %d)", r.PageID.String(), r.Slot)
}

type TransactionID uint64

const InvalidTransactionID TransactionID = 0

// Permissions is the access mode a transaction requests when fetching a page.
type Permissions int8

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	switch p {
	case ReadOnly:
		return "READ_ONLY"
	case ReadWrite:
		return "READ_WRITE"
	}
	return "unknown"
}
