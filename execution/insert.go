package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

type mutationState int8

const (
	mutationPending mutationState = iota
	mutationDone
	// mutationFailed means the drain stopped partway. The error is replayed until the next Open and
	// the rows already written stay with the transaction, which the caller should abort.
	mutationFailed
)

// Insert drains its child into a table on the first fetch and then yields a single tuple with one
// int field, "Inserted", holding the number of rows written. Later fetches report end of data
// without touching storage again. If the child or the sink fails partway, every later fetch returns
// that error.
type Insert struct {
	Operator
	ctx     *ExecutorContext
	child   DbIterator
	tableID common.TableID
	state   mutationState
	failure error
	desc    *storage.TupleDesc
}

// NewInsert returns an IncompatibleSchemaError if the child's schema does not match the table's.
func NewInsert(ctx *ExecutorContext, child DbIterator, tableID common.TableID) (*Insert, error) {
	ins := &Insert{
		ctx:     ctx,
		tableID: tableID,
		desc:    storage.NewTupleDesc(storage.FieldItem{Name: "Inserted", Type: common.IntType}),
	}
	if err := ins.checkSchema(child); err != nil {
		return nil, err
	}
	ins.child = child
	ins.Operator = newOperator(ins.fetchNext)
	return ins, nil
}

func (ins *Insert) checkSchema(child DbIterator) error {
	tableDesc, err := ins.ctx.Schemas().TupleDesc(ins.tableID)
	if err != nil {
		return err
	}
	if !tableDesc.Equals(child.TupleDesc()) {
		return common.NewError(common.IncompatibleSchemaError,
			"cannot insert %s into table %d with schema %s", child.TupleDesc(), ins.tableID, tableDesc)
	}
	return nil
}

func (ins *Insert) TableID() common.TableID {
	return ins.tableID
}

func (ins *Insert) fetchNext() (*storage.Tuple, error) {
	switch ins.state {
	case mutationDone:
		return nil, nil
	case mutationFailed:
		return nil, ins.failure
	}
	count := int64(0)
	for {
		t, err := pull(ins.child)
		if err == nil && t == nil {
			break
		}
		if err == nil {
			_, err = ins.ctx.Sink().InsertTuple(ins.ctx.TransactionID(), ins.tableID, t)
		}
		if err != nil {
			ins.state, ins.failure = mutationFailed, err
			ins.ctx.Logger().Warn("insert failed", "table", uint64(ins.tableID), "written", count, "error", err)
			return nil, err
		}
		count++
	}
	ins.state = mutationDone
	ins.ctx.Logger().Debug("inserted tuples", "table", uint64(ins.tableID), "count", count)
	return storage.NewTuple(ins.desc, common.NewIntField(count))
}

// Open re-arms the operator so a reopened plan inserts again.
func (ins *Insert) Open() error {
	if err := ins.child.Open(); err != nil {
		return err
	}
	ins.state, ins.failure = mutationPending, nil
	ins.markOpen()
	return nil
}

// Rewind rewinds the child but keeps the operator done, so rewinding never repeats the insert.
func (ins *Insert) Rewind() error {
	if err := ins.checkOpen(); err != nil {
		return err
	}
	ins.resetLookahead()
	return ins.child.Rewind()
}

func (ins *Insert) Close() error {
	ins.markClosed()
	return ins.child.Close()
}

func (ins *Insert) TupleDesc() *storage.TupleDesc {
	return ins.desc
}

func (ins *Insert) Children() []DbIterator {
	return []DbIterator{ins.child}
}

func (ins *Insert) SetChild(i int, child DbIterator) error {
	if err := checkChildIndex(i, 1); err != nil {
		return err
	}
	if err := ins.checkSchema(child); err != nil {
		return err
	}
	ins.child = child
	return nil
}
