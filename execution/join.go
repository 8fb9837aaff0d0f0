package execution

import (
	"errors"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Join is a nested-loop join. For each outer tuple it scans the whole inner child, emitting the
// concatenation of every pair that satisfies the predicate, then rewinds the inner child. Output is
// in outer-major order; outer tuples with no match produce nothing.
type Join struct {
	Operator
	predicate  *JoinPredicate
	outer      DbIterator
	inner      DbIterator
	desc       *storage.TupleDesc
	outerTuple *storage.Tuple
}

// NewJoin returns an error if the predicate does not fit the children's schemas.
func NewJoin(predicate *JoinPredicate, outer, inner DbIterator) (*Join, error) {
	if err := predicate.Validate(outer.TupleDesc(), inner.TupleDesc()); err != nil {
		return nil, err
	}
	j := &Join{
		predicate: predicate,
		outer:     outer,
		inner:     inner,
		desc:      storage.Merge(outer.TupleDesc(), inner.TupleDesc()),
	}
	j.Operator = newOperator(j.fetchNext)
	return j, nil
}

func (j *Join) Predicate() *JoinPredicate {
	return j.predicate
}

// JoinField1Name is the name of the outer join field.
func (j *Join) JoinField1Name() string {
	return j.outer.TupleDesc().FieldName(j.predicate.Field1())
}

// JoinField2Name is the name of the inner join field.
func (j *Join) JoinField2Name() string {
	return j.inner.TupleDesc().FieldName(j.predicate.Field2())
}

func (j *Join) fetchNext() (*storage.Tuple, error) {
	for {
		if j.outerTuple == nil {
			t, err := pull(j.outer)
			if err != nil || t == nil {
				return nil, err
			}
			j.outerTuple = t
		}
		for {
			in, err := pull(j.inner)
			if err != nil {
				return nil, err
			}
			if in == nil {
				break
			}
			if j.predicate.Filter(j.outerTuple, in) {
				return storage.MergeTuples(j.desc, j.outerTuple, in), nil
			}
		}
		j.outerTuple = nil
		if err := j.inner.Rewind(); err != nil {
			return nil, err
		}
	}
}

func (j *Join) Open() error {
	if err := j.outer.Open(); err != nil {
		return err
	}
	if err := j.inner.Open(); err != nil {
		return errors.Join(err, j.outer.Close())
	}
	j.outerTuple = nil
	j.markOpen()
	return nil
}

func (j *Join) Rewind() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	j.resetLookahead()
	j.outerTuple = nil
	if err := j.outer.Rewind(); err != nil {
		return err
	}
	return j.inner.Rewind()
}

func (j *Join) Close() error {
	j.markClosed()
	j.outerTuple = nil
	return errors.Join(j.outer.Close(), j.inner.Close())
}

func (j *Join) TupleDesc() *storage.TupleDesc {
	return j.desc
}

func (j *Join) Children() []DbIterator {
	return []DbIterator{j.outer, j.inner}
}

// SetChild replaces the outer (0) or inner (1) child. A replacement that would change the joined
// schema is rejected with IncompatibleSchemaError.
func (j *Join) SetChild(i int, child DbIterator) error {
	if err := checkChildIndex(i, 2); err != nil {
		return err
	}
	outer, inner := j.outer, j.inner
	if i == 0 {
		outer = child
	} else {
		inner = child
	}
	if err := j.predicate.Validate(outer.TupleDesc(), inner.TupleDesc()); err != nil {
		return err
	}
	if merged := storage.Merge(outer.TupleDesc(), inner.TupleDesc()); !merged.Equals(j.desc) {
		return common.NewError(common.IncompatibleSchemaError,
			"child %d would change the join schema from %s to %s", i, j.desc, merged)
	}
	j.outer, j.inner = outer, inner
	return nil
}
