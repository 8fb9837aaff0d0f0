package execution

import (
	"errors"
	"fmt"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

type aggregatorKind int8

const (
	integerAggregation aggregatorKind = iota
	stringAggregation
)

// Aggregate computes one aggregate over its child, optionally grouped by one field. It is blocking:
// Open drains the whole child into a fresh aggregator before the first result is produced.
//
// The output schema is (aggregate) or (group, aggregate). The aggregate column is named
// "<op>(<child field name>)", e.g. "count(id)"; the group column keeps the child's name.
type Aggregate struct {
	Operator
	child   DbIterator
	aField  int
	gbField int
	op      AggOp
	kind    aggregatorKind
	desc    *storage.TupleDesc
	results DbIterator
}

// NewAggregate aggregates child field aField with op, grouped by gbField or NoGrouping. The
// aggregator variant is fixed here from the aggregate field's type; an op the type does not
// support is a configuration error.
func NewAggregate(child DbIterator, aField int, gbField int, op AggOp) (*Aggregate, error) {
	a := &Aggregate{aField: aField, gbField: gbField, op: op}
	if err := a.bind(child); err != nil {
		return nil, err
	}
	a.Operator = newOperator(a.fetchNext)
	return a, nil
}

// bind validates child against the aggregate's fields and derives the variant and output schema.
func (a *Aggregate) bind(child DbIterator) error {
	childDesc := child.TupleDesc()
	if !a.op.valid() {
		return common.NewError(common.UnsupportedAggregateError, "unknown aggregate op %d", int(a.op))
	}
	if err := checkFieldIndex(childDesc, a.aField); err != nil {
		return err
	}
	if a.gbField != NoGrouping {
		if err := checkFieldIndex(childDesc, a.gbField); err != nil {
			return err
		}
	}

	var kind aggregatorKind
	switch childDesc.FieldType(a.aField) {
	case common.IntType:
		kind = integerAggregation
	case common.StringType:
		if a.op != Count {
			return common.NewError(common.UnsupportedAggregateError,
				"%s is not defined over string field %q", a.op, childDesc.FieldName(a.aField))
		}
		kind = stringAggregation
	default:
		return common.NewError(common.UnsupportedAggregateError,
			"cannot aggregate field of type %s", childDesc.FieldType(a.aField))
	}

	aggItem := storage.FieldItem{
		Name: fmt.Sprintf("%s(%s)", a.op, childDesc.FieldName(a.aField)),
		Type: common.IntType,
	}
	if a.gbField == NoGrouping {
		a.desc = storage.NewTupleDesc(aggItem)
	} else {
		groupItem := storage.FieldItem{Name: childDesc.FieldName(a.gbField), Type: childDesc.FieldType(a.gbField)}
		a.desc = storage.NewTupleDesc(groupItem, aggItem)
	}
	a.child = child
	a.kind = kind
	return nil
}

func (a *Aggregate) newAggregator() (Aggregator, error) {
	gbType := common.DefaultType
	if a.gbField != NoGrouping {
		gbType = a.child.TupleDesc().FieldType(a.gbField)
	}
	if a.kind == stringAggregation {
		return NewStringAggregator(a.gbField, gbType, a.aField, a.op)
	}
	return NewIntegerAggregator(a.gbField, gbType, a.aField, a.op)
}

// GroupField is the index of the group-by field in the child, or NoGrouping.
func (a *Aggregate) GroupField() int {
	return a.gbField
}

// GroupFieldName is the name of the group-by field, or "" if ungrouped.
func (a *Aggregate) GroupFieldName() string {
	if a.gbField == NoGrouping {
		return ""
	}
	return a.child.TupleDesc().FieldName(a.gbField)
}

func (a *Aggregate) AggregateField() int {
	return a.aField
}

func (a *Aggregate) AggregateFieldName() string {
	return a.child.TupleDesc().FieldName(a.aField)
}

func (a *Aggregate) AggregateOp() AggOp {
	return a.op
}

func (a *Aggregate) fetchNext() (*storage.Tuple, error) {
	t, err := pull(a.results)
	if err != nil || t == nil {
		return nil, err
	}
	return t.Rebind(a.desc), nil
}

func (a *Aggregate) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	agg, err := a.newAggregator()
	if err != nil {
		return errors.Join(err, a.child.Close())
	}
	for {
		t, err := pull(a.child)
		if err != nil {
			return errors.Join(err, a.child.Close())
		}
		if t == nil {
			break
		}
		if err := agg.MergeTupleIntoGroup(t); err != nil {
			return errors.Join(err, a.child.Close())
		}
	}
	a.results = agg.Iterator()
	if err := a.results.Open(); err != nil {
		return errors.Join(err, a.child.Close())
	}
	a.markOpen()
	return nil
}

// Rewind replays the computed groups without re-reading the child.
func (a *Aggregate) Rewind() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	a.resetLookahead()
	return a.results.Rewind()
}

func (a *Aggregate) Close() error {
	a.markClosed()
	var errs []error
	if a.results != nil {
		errs = append(errs, a.results.Close())
		a.results = nil
	}
	errs = append(errs, a.child.Close())
	return errors.Join(errs...)
}

func (a *Aggregate) TupleDesc() *storage.TupleDesc {
	return a.desc
}

func (a *Aggregate) Children() []DbIterator {
	return []DbIterator{a.child}
}

func (a *Aggregate) SetChild(i int, child DbIterator) error {
	if err := checkChildIndex(i, 1); err != nil {
		return err
	}
	return a.bind(child)
}
