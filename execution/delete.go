package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Delete removes every tuple its child produces, locating each through its RecordID, and then
// yields a single "Deleted" count tuple. Like Insert it runs at most once per Open, and a failure
// partway is replayed on every later fetch.
type Delete struct {
	Operator
	ctx     *ExecutorContext
	child   DbIterator
	state   mutationState
	failure error
	desc    *storage.TupleDesc
}

func NewDelete(ctx *ExecutorContext, child DbIterator) *Delete {
	d := &Delete{
		ctx:   ctx,
		child: child,
		desc:  storage.NewTupleDesc(storage.FieldItem{Name: "Deleted", Type: common.IntType}),
	}
	d.Operator = newOperator(d.fetchNext)
	return d
}

func (d *Delete) fetchNext() (*storage.Tuple, error) {
	switch d.state {
	case mutationDone:
		return nil, nil
	case mutationFailed:
		return nil, d.failure
	}
	count := int64(0)
	for {
		t, err := pull(d.child)
		if err == nil && t == nil {
			break
		}
		if err == nil {
			_, err = d.ctx.Sink().DeleteTuple(d.ctx.TransactionID(), t)
		}
		if err != nil {
			d.state, d.failure = mutationFailed, err
			d.ctx.Logger().Warn("delete failed", "deleted", count, "error", err)
			return nil, err
		}
		count++
	}
	d.state = mutationDone
	d.ctx.Logger().Debug("deleted tuples", "count", count)
	return storage.NewTuple(d.desc, common.NewIntField(count))
}

func (d *Delete) Open() error {
	if err := d.child.Open(); err != nil {
		return err
	}
	d.state, d.failure = mutationPending, nil
	d.markOpen()
	return nil
}

// Rewind keeps the operator done; see Insert.Rewind.
func (d *Delete) Rewind() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.resetLookahead()
	return d.child.Rewind()
}

func (d *Delete) Close() error {
	d.markClosed()
	return d.child.Close()
}

func (d *Delete) TupleDesc() *storage.TupleDesc {
	return d.desc
}

func (d *Delete) Children() []DbIterator {
	return []DbIterator{d.child}
}

func (d *Delete) SetChild(i int, child DbIterator) error {
	if err := checkChildIndex(i, 1); err != nil {
		return err
	}
	d.child = child
	return nil
}
