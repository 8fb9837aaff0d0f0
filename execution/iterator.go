package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// DbIterator is the pull protocol every operator implements. A query plan is a tree of DbIterators;
// the consumer drives it from the root by calling HasNext/Next.
//
// Lifecycle: an iterator starts unopened, Open moves it to open, Close moves it to closed. Rewind
// restarts an open iterator from its first tuple. HasNext, Next and Rewind fail with
// common.ErrIteratorNotOpen outside the open state. Next on an exhausted iterator fails with
// common.ErrNoSuchElement. Close is idempotent and may be called on error paths.
type DbIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*storage.Tuple, error)
	Rewind() error
	Close() error
	// TupleDesc is fixed for the iterator's lifetime and may be called in any state.
	TupleDesc() *storage.TupleDesc
}

// OperatorNode is a DbIterator with children. Children are owned by their parent and can be swapped
// out by position, e.g. by an optimizer rewriting the plan.
type OperatorNode interface {
	DbIterator
	Children() []DbIterator
	SetChild(i int, child DbIterator) error
}

type iteratorState int8

const (
	stateUnopened iteratorState = iota
	stateOpen
	stateClosed
)

// Operator implements the HasNext/Next half of DbIterator on top of a single fetchNext function and
// is embedded by every concrete operator. It caches at most one look-ahead tuple.
//
// fetchNext returns (nil, nil) at end of data. It is only invoked while the operator is open.
type Operator struct {
	state     iteratorState
	lookahead *storage.Tuple
	fetchNext func() (*storage.Tuple, error)
}

func newOperator(fetchNext func() (*storage.Tuple, error)) Operator {
	return Operator{fetchNext: fetchNext}
}

// markOpen is called by the embedding operator's Open after its children are open.
func (o *Operator) markOpen() {
	o.state = stateOpen
	o.lookahead = nil
}

// markClosed is called by the embedding operator's Close.
func (o *Operator) markClosed() {
	o.state = stateClosed
	o.lookahead = nil
}

// resetLookahead drops any cached tuple; used by Rewind.
func (o *Operator) resetLookahead() {
	o.lookahead = nil
}

func (o *Operator) checkOpen() error {
	if o.state != stateOpen {
		return common.ErrIteratorNotOpen
	}
	return nil
}

func (o *Operator) HasNext() (bool, error) {
	if err := o.checkOpen(); err != nil {
		return false, err
	}
	if o.lookahead == nil {
		t, err := o.fetchNext()
		if err != nil {
			return false, err
		}
		o.lookahead = t
	}
	return o.lookahead != nil, nil
}

func (o *Operator) Next() (*storage.Tuple, error) {
	ok, err := o.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNoSuchElement
	}
	t := o.lookahead
	o.lookahead = nil
	return t, nil
}

// pull reads the next tuple from child, returning (nil, nil) once child is exhausted.
func pull(child DbIterator) (*storage.Tuple, error) {
	ok, err := child.HasNext()
	if err != nil || !ok {
		return nil, err
	}
	return child.Next()
}

// Drain collects every remaining tuple of an open iterator.
func Drain(it DbIterator) ([]*storage.Tuple, error) {
	var result []*storage.Tuple
	for {
		t, err := pull(it)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return result, nil
		}
		result = append(result, t)
	}
}

func checkChildIndex(i, numChildren int) error {
	if i < 0 || i >= numChildren {
		return common.NewError(common.InvalidArgumentError, "child index %d out of range [0, %d)", i, numChildren)
	}
	return nil
}
