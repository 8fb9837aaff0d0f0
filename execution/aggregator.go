package execution

import (
	"math"

	"github.com/tidwall/btree"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// NoGrouping is passed as the group-by field index for an ungrouped aggregate.
const NoGrouping = -1

// AggOp is an aggregate function.
type AggOp int

const (
	Min AggOp = iota
	Max
	Sum
	Avg
	Count
)

func (op AggOp) String() string {
	switch op {
	case Min:
		return "min"
	case Max:
		return "max"
	case Sum:
		return "sum"
	case Avg:
		return "avg"
	case Count:
		return "count"
	}
	return "unknown"
}

func (op AggOp) valid() bool {
	return op >= Min && op <= Count
}

// GroupKey identifies an aggregation group. Ungrouped aggregates put every tuple under the single
// NoGroupingKey; grouped aggregates key by the group-by field value.
type GroupKey struct {
	grouped bool
	value   common.Field
}

// NoGroupingKey is the key of the one group of an ungrouped aggregate.
var NoGroupingKey = GroupKey{}

func GroupKeyOf(value common.Field) GroupKey {
	return GroupKey{grouped: true, value: value}
}

func (k GroupKey) IsGrouped() bool {
	return k.grouped
}

func (k GroupKey) Value() common.Field {
	return k.value
}

func (k GroupKey) less(other GroupKey) bool {
	if k.grouped != other.grouped {
		return !k.grouped
	}
	if !k.grouped {
		return false
	}
	return k.value.Compare(other.value) < 0
}

// Aggregator folds tuples into per-group running state and produces one result row per group.
type Aggregator interface {
	// MergeTupleIntoGroup folds t into the group selected by its group-by field.
	MergeTupleIntoGroup(t *storage.Tuple) error
	// Iterator returns the result rows, (aggregateValue) or (groupValue, aggregateValue), ordered by
	// group value. The groups are snapshotted the first time the iterator is opened; merging after
	// that fails with common.ErrAggregatorFinalized.
	Iterator() DbIterator
}

type groupState struct {
	key   GroupKey
	min   int64
	max   int64
	sum   int64
	count int64
	seen  bool
}

func (s *groupState) merge(v int64) {
	// the sentinels are only a seed; the first value always wins
	if !s.seen || v < s.min {
		s.min = v
	}
	if !s.seen || v > s.max {
		s.max = v
	}
	s.sum += v
	s.count++
	s.seen = true
}

func (s *groupState) result(op AggOp) int64 {
	switch op {
	case Min:
		return s.min
	case Max:
		return s.max
	case Sum:
		return s.sum
	case Avg:
		// Go integer division truncates toward zero
		return s.sum / s.count
	case Count:
		return s.count
	}
	panic("unknown aggregate op")
}

// groupTable is the state shared by the integer and string aggregators: running group states kept
// in a B-tree ordered by group key.
type groupTable struct {
	gbField   int
	gbType    common.Type
	aField    int
	op        AggOp
	groups    *btree.BTreeG[*groupState]
	finalized bool
	rows      []*storage.Tuple
	desc      *storage.TupleDesc
}

func newGroupTable(gbField int, gbType common.Type, aField int, op AggOp) *groupTable {
	var desc *storage.TupleDesc
	if gbField == NoGrouping {
		desc = storage.NewTupleDesc(storage.FieldItem{Name: "aggregateValue", Type: common.IntType})
	} else {
		desc = storage.NewTupleDesc(
			storage.FieldItem{Name: "groupValue", Type: gbType},
			storage.FieldItem{Name: "aggregateValue", Type: common.IntType},
		)
	}
	return &groupTable{
		gbField: gbField,
		gbType:  gbType,
		aField:  aField,
		op:      op,
		groups: btree.NewBTreeG(func(a, b *groupState) bool {
			return a.key.less(b.key)
		}),
		desc: desc,
	}
}

func (g *groupTable) keyOf(t *storage.Tuple) GroupKey {
	if g.gbField == NoGrouping {
		return NoGroupingKey
	}
	return GroupKeyOf(t.Field(g.gbField))
}

func (g *groupTable) stateFor(t *storage.Tuple) (*groupState, error) {
	if g.finalized {
		return nil, common.ErrAggregatorFinalized
	}
	key := g.keyOf(t)
	if s, ok := g.groups.Get(&groupState{key: key}); ok {
		return s, nil
	}
	s := &groupState{key: key, min: math.MaxInt64, max: math.MinInt64}
	g.groups.Set(s)
	return s, nil
}

func (g *groupTable) results() []*storage.Tuple {
	if g.finalized {
		return g.rows
	}
	g.finalized = true
	rows := make([]*storage.Tuple, 0, g.groups.Len())
	g.groups.Scan(func(s *groupState) bool {
		agg := common.NewIntField(s.result(g.op))
		if s.key.IsGrouped() {
			rows = append(rows, storage.MustNewTuple(g.desc, s.key.Value(), agg))
		} else {
			rows = append(rows, storage.MustNewTuple(g.desc, agg))
		}
		return true
	})
	g.rows = rows
	return rows
}

// resultIterator defers materializing the groups until it is first opened.
type resultIterator struct {
	*TupleIterator
	table *groupTable
}

func newResultIterator(table *groupTable) *resultIterator {
	return &resultIterator{
		TupleIterator: NewTupleIterator(table.desc, nil),
		table:         table,
	}
}

func (it *resultIterator) Open() error {
	if it.tuples == nil {
		it.tuples = it.table.results()
	}
	return it.TupleIterator.Open()
}
