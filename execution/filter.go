package execution

import (
	"mit.edu/dsg/heapdb/storage"
)

// Filter passes through the child tuples that satisfy a predicate, preserving order and schema.
type Filter struct {
	Operator
	predicate *Predicate
	child     DbIterator
}

// NewFilter returns an error if the predicate does not fit the child's schema.
func NewFilter(predicate *Predicate, child DbIterator) (*Filter, error) {
	if err := predicate.Validate(child.TupleDesc()); err != nil {
		return nil, err
	}
	f := &Filter{predicate: predicate, child: child}
	f.Operator = newOperator(f.fetchNext)
	return f, nil
}

func (f *Filter) Predicate() *Predicate {
	return f.predicate
}

func (f *Filter) fetchNext() (*storage.Tuple, error) {
	for {
		t, err := pull(f.child)
		if err != nil || t == nil {
			return nil, err
		}
		if f.predicate.Filter(t) {
			return t, nil
		}
	}
}

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return err
	}
	f.markOpen()
	return nil
}

func (f *Filter) Rewind() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	f.resetLookahead()
	return f.child.Rewind()
}

func (f *Filter) Close() error {
	f.markClosed()
	return f.child.Close()
}

func (f *Filter) TupleDesc() *storage.TupleDesc {
	return f.child.TupleDesc()
}

func (f *Filter) Children() []DbIterator {
	return []DbIterator{f.child}
}

func (f *Filter) SetChild(i int, child DbIterator) error {
	if err := checkChildIndex(i, 1); err != nil {
		return err
	}
	if err := f.predicate.Validate(child.TupleDesc()); err != nil {
		return err
	}
	f.child = child
	return nil
}
