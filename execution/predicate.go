package execution

import (
	"fmt"
	"strings"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// ComparisonType is the operator of a predicate.
type ComparisonType int

const (
	Equal ComparisonType = iota
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
	// Like is substring containment for strings and equality for integers.
	Like
)

func (c ComparisonType) String() string {
	switch c {
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEqual:
		return ">="
	case LessThanOrEqual:
		return "<="
	case Like:
		return "LIKE"
	}
	return "unknown"
}

// Compare applies c to two fields of the same type.
func (c ComparisonType) Compare(left, right common.Field) bool {
	if c == Like {
		if left.Type() == common.StringType {
			return strings.Contains(left.Str(), right.Str())
		}
		return left == right
	}
	cmp := left.Compare(right)
	switch c {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case GreaterThan:
		return cmp > 0
	case LessThan:
		return cmp < 0
	case GreaterThanOrEqual:
		return cmp >= 0
	case LessThanOrEqual:
		return cmp <= 0
	}
	panic("unknown comparison type")
}

func checkFieldIndex(desc *storage.TupleDesc, field int) error {
	if field < 0 || field >= desc.NumFields() {
		return common.NewError(common.IncompatibleSchemaError, "field index %d out of range for %s", field, desc)
	}
	return nil
}

// Predicate compares one field of a tuple against either a constant or another field of the same
// tuple.
type Predicate struct {
	field      int
	op         ComparisonType
	operand    common.Field
	otherField int
}

// NewPredicate compares field against a constant operand.
func NewPredicate(field int, op ComparisonType, operand common.Field) *Predicate {
	return &Predicate{field: field, op: op, operand: operand, otherField: -1}
}

// NewFieldPredicate compares field against otherField of the same tuple.
func NewFieldPredicate(field int, op ComparisonType, otherField int) *Predicate {
	return &Predicate{field: field, op: op, otherField: otherField}
}

func (p *Predicate) Field() int {
	return p.field
}

func (p *Predicate) Op() ComparisonType {
	return p.op
}

func (p *Predicate) Operand() common.Field {
	return p.operand
}

// Validate checks that p can be evaluated against tuples of desc.
func (p *Predicate) Validate(desc *storage.TupleDesc) error {
	if err := checkFieldIndex(desc, p.field); err != nil {
		return err
	}
	rightType := p.operand.Type()
	if p.otherField >= 0 {
		if err := checkFieldIndex(desc, p.otherField); err != nil {
			return err
		}
		rightType = desc.FieldType(p.otherField)
	}
	if desc.FieldType(p.field) != rightType {
		return common.NewError(common.IncompatibleSchemaError,
			"cannot compare %s field %q with %s", desc.FieldType(p.field), desc.FieldName(p.field), rightType)
	}
	return nil
}

// Filter reports whether t satisfies the predicate.
func (p *Predicate) Filter(t *storage.Tuple) bool {
	right := p.operand
	if p.otherField >= 0 {
		right = t.Field(p.otherField)
	}
	return p.op.Compare(t.Field(p.field), right)
}

func (p *Predicate) String() string {
	if p.otherField >= 0 {
		return fmt.Sprintf("$%d %s $%d", p.field, p.op, p.otherField)
	}
	return fmt.Sprintf("$%d %s %s", p.field, p.op, p.operand)
}

// JoinPredicate compares a field of an outer tuple with a field of an inner tuple.
type JoinPredicate struct {
	field1 int
	op     ComparisonType
	field2 int
}

func NewJoinPredicate(field1 int, op ComparisonType, field2 int) *JoinPredicate {
	return &JoinPredicate{field1: field1, op: op, field2: field2}
}

func (p *JoinPredicate) Field1() int {
	return p.field1
}

func (p *JoinPredicate) Field2() int {
	return p.field2
}

func (p *JoinPredicate) Op() ComparisonType {
	return p.op
}

// Validate checks that p can be evaluated against tuples of outer and inner.
func (p *JoinPredicate) Validate(outer, inner *storage.TupleDesc) error {
	if err := checkFieldIndex(outer, p.field1); err != nil {
		return err
	}
	if err := checkFieldIndex(inner, p.field2); err != nil {
		return err
	}
	if outer.FieldType(p.field1) != inner.FieldType(p.field2) {
		return common.NewError(common.IncompatibleSchemaError, "cannot join %s field %q with %s field %q",
			outer.FieldType(p.field1), outer.FieldName(p.field1), inner.FieldType(p.field2), inner.FieldName(p.field2))
	}
	return nil
}

// Filter reports whether the pair (outer, inner) satisfies the predicate.
func (p *JoinPredicate) Filter(outer, inner *storage.Tuple) bool {
	return p.op.Compare(outer.Field(p.field1), inner.Field(p.field2))
}

func (p *JoinPredicate) String() string {
	return fmt.Sprintf("left.$%d %s right.$%d", p.field1, p.op, p.field2)
}
