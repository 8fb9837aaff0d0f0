package storage

import (
	"fmt"
	"strings"

	"mit.edu/dsg/heapdb/common"
)

// FieldItem is one named, typed column of a TupleDesc.
type FieldItem struct {
	Name string
	Type common.Type
}

// TupleDesc describes the schema of a tuple: an ordered list of (name, type) pairs together with the
// fixed-width byte offset of each field. A TupleDesc is immutable once built.
type TupleDesc struct {
	fields        []FieldItem
	offsets       []int
	bytesPerTuple int
}

// NewTupleDesc creates a TupleDesc from the given field items. Every field type must be IntType or
// StringType.
func NewTupleDesc(items ...FieldItem) *TupleDesc {
	common.Assert(len(items) > 0, "tuple descriptor must have at least one field")
	desc := &TupleDesc{
		fields:  make([]FieldItem, len(items)),
		offsets: make([]int, len(items)),
	}
	copy(desc.fields, items)
	offset := 0
	for i, f := range items {
		desc.offsets[i] = offset
		offset += f.Type.Size()
	}
	desc.bytesPerTuple = offset
	common.Assert(common.AlignedTo8(desc.bytesPerTuple), "tuple size %d should be aligned to 8", desc.bytesPerTuple)
	return desc
}

// NewTupleDescFromTypes pairs types with names; names may be nil, in which case every field is
// anonymous.
func NewTupleDescFromTypes(types []common.Type, names []string) *TupleDesc {
	common.Assert(names == nil || len(names) == len(types), "names and types must have the same length")
	items := make([]FieldItem, len(types))
	for i, t := range types {
		items[i].Type = t
		if names != nil {
			items[i].Name = names[i]
		}
	}
	return NewTupleDesc(items...)
}

func (td *TupleDesc) NumFields() int {
	return len(td.fields)
}

func (td *TupleDesc) FieldName(i int) string {
	return td.fields[i].Name
}

func (td *TupleDesc) FieldType(i int) common.Type {
	return td.fields[i].Type
}

// Fields returns a copy of the field items.
func (td *TupleDesc) Fields() []FieldItem {
	result := make([]FieldItem, len(td.fields))
	copy(result, td.fields)
	return result
}

// Types returns the field types in order.
func (td *TupleDesc) Types() []common.Type {
	result := make([]common.Type, len(td.fields))
	for i, f := range td.fields {
		result[i] = f.Type
	}
	return result
}

// IndexOf returns the position of the first field called name.
func (td *TupleDesc) IndexOf(name string) (int, error) {
	for i, f := range td.fields {
		if f.Name == name {
			return i, nil
		}
	}
	return -1, common.NewError(common.NoSuchObjectError, "no field named %q in %s", name, td)
}

// BytesPerTuple is the serialized size of one tuple of this schema.
func (td *TupleDesc) BytesPerTuple() int {
	return td.bytesPerTuple
}

// Offset returns the byte offset of field i within a serialized tuple.
func (td *TupleDesc) Offset(i int) int {
	return td.offsets[i]
}

// Equals reports whether two descriptors have the same field types in the same order. Names are
// ignored, so a projection with renamed fields can still be inserted into its source table.
func (td *TupleDesc) Equals(other *TupleDesc) bool {
	if td == other {
		return true
	}
	if other == nil || len(td.fields) != len(other.fields) {
		return false
	}
	for i := range td.fields {
		if td.fields[i].Type != other.fields[i].Type {
			return false
		}
	}
	return true
}

// Merge concatenates two descriptors, left fields first. Used for join output.
func Merge(left, right *TupleDesc) *TupleDesc {
	items := make([]FieldItem, 0, len(left.fields)+len(right.fields))
	items = append(items, left.fields...)
	items = append(items, right.fields...)
	return NewTupleDesc(items...)
}

// WithPrefix returns a copy of td whose field names are qualified as "prefix.name".
func (td *TupleDesc) WithPrefix(prefix string) *TupleDesc {
	if prefix == "" {
		return td
	}
	items := td.Fields()
	for i := range items {
		items[i].Name = prefix + "." + items[i].Name
	}
	return NewTupleDesc(items...)
}

func (td *TupleDesc) String() string {
	parts := make([]string, len(td.fields))
	for i, f := range td.fields {
		parts[i] = fmt.Sprintf("%s(%s)", f.Type, f.Name)
	}
	return strings.Join(parts, ", ")
}

// Tuple is a row of Fields positionally aligned with a TupleDesc. Tuples read from a heap file
// carry the RecordID of the slot they came from; tuples built in memory have a nil RecordID.
type Tuple struct {
	desc   *TupleDesc
	fields []common.Field
	rid    common.RecordID
}

// NewTuple builds a tuple, checking that the fields agree with desc in count and type.
func NewTuple(desc *TupleDesc, fields ...common.Field) (*Tuple, error) {
	if len(fields) != desc.NumFields() {
		return nil, common.NewError(common.IncompatibleSchemaError,
			"tuple has %d fields, schema %s has %d", len(fields), desc, desc.NumFields())
	}
	for i, f := range fields {
		if f.Type() != desc.FieldType(i) {
			return nil, common.NewError(common.IncompatibleSchemaError,
				"field %d has type %s, schema expects %s", i, f.Type(), desc.FieldType(i))
		}
	}
	t := &Tuple{desc: desc, fields: make([]common.Field, len(fields))}
	copy(t.fields, fields)
	return t, nil
}

// MustNewTuple is NewTuple for callers that have already validated the fields.
func MustNewTuple(desc *TupleDesc, fields ...common.Field) *Tuple {
	t, err := NewTuple(desc, fields...)
	common.Assert(err == nil, "invalid tuple: %v", err)
	return t
}

// ReadTuple deserializes a tuple of the given schema from buf.
func ReadTuple(desc *TupleDesc, buf []byte, rid common.RecordID) *Tuple {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small for tuple")
	t := &Tuple{desc: desc, fields: make([]common.Field, desc.NumFields()), rid: rid}
	for i := range t.fields {
		t.fields[i] = common.ReadField(desc.FieldType(i), buf[desc.Offset(i):])
	}
	return t
}

// WriteTo serializes the tuple into buf in the fixed-width on-page format.
func (t *Tuple) WriteTo(buf []byte) {
	common.Assert(len(buf) >= t.desc.BytesPerTuple(), "buffer too small for tuple")
	for i, f := range t.fields {
		f.WriteTo(buf[t.desc.Offset(i):])
	}
}

// MergeTuples concatenates the fields of left and right under desc. The result has no RecordID.
func MergeTuples(desc *TupleDesc, left, right *Tuple) *Tuple {
	fields := make([]common.Field, 0, len(left.fields)+len(right.fields))
	fields = append(fields, left.fields...)
	fields = append(fields, right.fields...)
	common.Assert(len(fields) == desc.NumFields(), "merged tuple does not match schema")
	return &Tuple{desc: desc, fields: fields}
}

func (t *Tuple) Desc() *TupleDesc {
	return t.desc
}

func (t *Tuple) NumFields() int {
	return len(t.fields)
}

func (t *Tuple) Field(i int) common.Field {
	return t.fields[i]
}

// Fields returns a copy of the tuple's fields.
func (t *Tuple) Fields() []common.Field {
	result := make([]common.Field, len(t.fields))
	copy(result, t.fields)
	return result
}

func (t *Tuple) RID() common.RecordID {
	return t.rid
}

func (t *Tuple) SetRID(rid common.RecordID) {
	t.rid = rid
}

// Rebind returns a tuple sharing t's fields and RecordID but described by desc, which must have the
// same field types.
func (t *Tuple) Rebind(desc *TupleDesc) *Tuple {
	common.Assert(desc.Equals(t.desc), "rebinding tuple to incompatible schema %s", desc)
	return &Tuple{desc: desc, fields: t.fields, rid: t.rid}
}

// Equals compares field values only.
func (t *Tuple) Equals(other *Tuple) bool {
	if len(t.fields) != len(other.fields) {
		return false
	}
	for i := range t.fields {
		if t.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// String renders the fields tab separated.
func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\t")
}
