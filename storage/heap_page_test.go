package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/heapdb/common"
)

var testPID = common.PageID{Table: 7, PageNum: 2}

func makeTuple(desc *TupleDesc, id int64, name string) *Tuple {
	return MustNewTuple(desc, common.NewIntField(id), common.NewStringField(name))
}

func TestSlotsPerPage(t *testing.T) {
	// 40-byte rows: 16 bytes of bitmap + 102 * 40 = 4096
	assert.Equal(t, 102, SlotsPerPage(idNameDesc()))
	// 8-byte rows: 64 bytes of bitmap + 504 * 8 = 4096
	assert.Equal(t, 504, SlotsPerPage(NewTupleDesc(FieldItem{Name: "a", Type: common.IntType})))

	for _, desc := range []*TupleDesc{
		idNameDesc(),
		NewTupleDescFromTypes([]common.Type{common.IntType, common.IntType, common.IntType}, nil),
		NewTupleDescFromTypes([]common.Type{common.StringType, common.StringType}, nil),
	} {
		n := SlotsPerPage(desc)
		assert.LessOrEqual(t, BitmapBytes(n)+n*desc.BytesPerTuple(), common.PageSize)
		assert.Greater(t, BitmapBytes(n+1)+(n+1)*desc.BytesPerTuple(), common.PageSize)
	}
}

func TestHeapPage_EmptyPage(t *testing.T) {
	hp, err := NewEmptyHeapPage(testPID, idNameDesc())
	require.NoError(t, err)
	assert.Equal(t, hp.NumSlots(), hp.NumEmptySlots())
	assert.Empty(t, hp.Tuples())
	assert.Equal(t, EmptyPageData(), hp.PageData())
}

func TestHeapPage_InsertSetsRID(t *testing.T) {
	desc := idNameDesc()
	hp, err := NewEmptyHeapPage(testPID, desc)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tup := makeTuple(desc, int64(i), "row")
		require.NoError(t, hp.InsertTuple(tup))
		assert.Equal(t, common.RecordID{PageID: testPID, Slot: int32(i)}, tup.RID())
	}
	assert.Equal(t, 3, hp.NumUsed())

	got, err := hp.TupleAt(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Field(0).Int())
}

func TestHeapPage_InsertRejectsWrongSchema(t *testing.T) {
	hp, err := NewEmptyHeapPage(testPID, idNameDesc())
	require.NoError(t, err)
	other := MustNewTuple(NewTupleDesc(FieldItem{Name: "a", Type: common.IntType}), common.NewIntField(1))
	assert.ErrorIs(t, hp.InsertTuple(other), common.ErrIncompatibleSchema)
}

func TestHeapPage_FillAndReuse(t *testing.T) {
	desc := idNameDesc()
	hp, err := NewEmptyHeapPage(testPID, desc)
	require.NoError(t, err)

	inserted := make([]*Tuple, 0, hp.NumSlots())
	for i := 0; i < hp.NumSlots(); i++ {
		tup := makeTuple(desc, int64(i), "x")
		require.NoError(t, hp.InsertTuple(tup))
		inserted = append(inserted, tup)
	}
	assert.Zero(t, hp.NumEmptySlots())
	assert.Error(t, hp.InsertTuple(makeTuple(desc, -1, "overflow")))

	require.NoError(t, hp.DeleteTuple(inserted[10]))
	assert.Equal(t, 1, hp.NumEmptySlots())

	again := makeTuple(desc, 1000, "again")
	require.NoError(t, hp.InsertTuple(again))
	assert.Equal(t, int32(10), again.RID().Slot)
}

func TestHeapPage_DeleteErrors(t *testing.T) {
	desc := idNameDesc()
	hp, err := NewEmptyHeapPage(testPID, desc)
	require.NoError(t, err)
	tup := makeTuple(desc, 1, "a")
	require.NoError(t, hp.InsertTuple(tup))

	require.NoError(t, hp.DeleteTuple(tup))
	assert.ErrorIs(t, hp.DeleteTuple(tup), common.ErrNoSuchObject, "double delete should fail")

	foreign := makeTuple(desc, 2, "b")
	foreign.SetRID(common.RecordID{PageID: common.PageID{Table: 7, PageNum: 3}, Slot: 0})
	assert.ErrorIs(t, hp.DeleteTuple(foreign), common.ErrNoSuchObject)

	_, err = hp.TupleAt(0)
	assert.Error(t, err)
}

func TestHeapPage_RoundTripByteIdentical(t *testing.T) {
	desc := idNameDesc()
	hp, err := NewEmptyHeapPage(testPID, desc)
	require.NoError(t, err)
	var victims []*Tuple
	for i := 0; i < 50; i++ {
		tup := makeTuple(desc, int64(i*i), "name")
		require.NoError(t, hp.InsertTuple(tup))
		if i%7 == 0 {
			victims = append(victims, tup)
		}
	}
	for _, v := range victims {
		require.NoError(t, hp.DeleteTuple(v))
	}

	data := hp.PageData()
	reloaded, err := NewHeapPage(testPID, desc, bytes.Clone(data))
	require.NoError(t, err)
	assert.Equal(t, data, reloaded.PageData())
	assert.Equal(t, hp.NumUsed(), reloaded.NumUsed())

	before, after := hp.Tuples(), reloaded.Tuples()
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Equals(after[i]))
		assert.Equal(t, before[i].RID(), after[i].RID())
	}
}

func TestHeapPage_RejectsShortBuffer(t *testing.T) {
	_, err := NewHeapPage(testPID, idNameDesc(), make([]byte, 100))
	assert.ErrorIs(t, err, common.ErrCorruptFile)
}

func TestHeapPage_DirtyTracking(t *testing.T) {
	hp, err := NewEmptyHeapPage(testPID, idNameDesc())
	require.NoError(t, err)
	_, dirty := hp.IsDirty()
	assert.False(t, dirty)

	hp.MarkDirty(true, 4)
	tid, dirty := hp.IsDirty()
	assert.True(t, dirty)
	assert.Equal(t, common.TransactionID(4), tid)

	hp.MarkDirty(false, 4)
	_, dirty = hp.IsDirty()
	assert.False(t, dirty)
}
