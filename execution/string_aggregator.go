package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// StringAggregator counts the values of a string field, optionally grouped by another field. COUNT
// is the only aggregate defined over strings.
type StringAggregator struct {
	table *groupTable
}

func NewStringAggregator(gbField int, gbType common.Type, aField int, op AggOp) (*StringAggregator, error) {
	if op != Count {
		return nil, common.NewError(common.UnsupportedAggregateError, "string fields only support count, got %s", op)
	}
	return &StringAggregator{table: newGroupTable(gbField, gbType, aField, op)}, nil
}

func (a *StringAggregator) MergeTupleIntoGroup(t *storage.Tuple) error {
	state, err := a.table.stateFor(t)
	if err != nil {
		return err
	}
	state.count++
	state.seen = true
	return nil
}

func (a *StringAggregator) Iterator() DbIterator {
	return newResultIterator(a.table)
}
