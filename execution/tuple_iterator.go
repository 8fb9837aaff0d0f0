package execution

import (
	"mit.edu/dsg/heapdb/storage"
)

// TupleIterator is a restartable DbIterator over a fixed slice of tuples.
type TupleIterator struct {
	Operator
	desc   *storage.TupleDesc
	tuples []*storage.Tuple
	pos    int
}

// NewTupleIterator iterates tuples, all of which must match desc.
func NewTupleIterator(desc *storage.TupleDesc, tuples []*storage.Tuple) *TupleIterator {
	it := &TupleIterator{desc: desc, tuples: tuples}
	it.Operator = newOperator(it.fetchNext)
	return it
}

func (it *TupleIterator) fetchNext() (*storage.Tuple, error) {
	if it.pos >= len(it.tuples) {
		return nil, nil
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}

func (it *TupleIterator) Open() error {
	it.pos = 0
	it.markOpen()
	return nil
}

func (it *TupleIterator) Rewind() error {
	if err := it.checkOpen(); err != nil {
		return err
	}
	it.pos = 0
	it.resetLookahead()
	return nil
}

func (it *TupleIterator) Close() error {
	it.markClosed()
	return nil
}

func (it *TupleIterator) TupleDesc() *storage.TupleDesc {
	return it.desc
}
