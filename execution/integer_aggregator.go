package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// IntegerAggregator computes MIN, MAX, SUM, AVG or COUNT over an integer field, optionally grouped
// by another field.
type IntegerAggregator struct {
	table *groupTable
}

// NewIntegerAggregator aggregates field aField with op, grouping by gbField (of type gbType) or
// NoGrouping.
func NewIntegerAggregator(gbField int, gbType common.Type, aField int, op AggOp) (*IntegerAggregator, error) {
	if !op.valid() {
		return nil, common.NewError(common.UnsupportedAggregateError, "unknown aggregate op %d", int(op))
	}
	return &IntegerAggregator{table: newGroupTable(gbField, gbType, aField, op)}, nil
}

func (a *IntegerAggregator) MergeTupleIntoGroup(t *storage.Tuple) error {
	state, err := a.table.stateFor(t)
	if err != nil {
		return err
	}
	state.merge(t.Field(a.table.aField).Int())
	return nil
}

func (a *IntegerAggregator) Iterator() DbIterator {
	return newResultIterator(a.table)
}
