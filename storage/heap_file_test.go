package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/transaction"
)

func newTestPool(t *testing.T, numPages int) *BufferPool {
	t.Helper()
	files := NewFileManager()
	t.Cleanup(func() { _ = files.Close() })
	bp, err := NewBufferPool(numPages, files, transaction.NewLockManager())
	require.NoError(t, err)
	return bp
}

func newTestHeapFile(t *testing.T, bp *BufferPool, name string, desc *TupleDesc) *HeapFile {
	t.Helper()
	hf, err := NewHeapFile(filepath.Join(t.TempDir(), name), desc, bp)
	require.NoError(t, err)
	require.NoError(t, bp.Files().Register(hf))
	return hf
}

func scanAll(t *testing.T, hf *HeapFile, tid common.TransactionID) []*Tuple {
	t.Helper()
	it := hf.Iterator(tid)
	require.NoError(t, it.Open())
	defer it.Close()
	var result []*Tuple
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return result
		}
		tup, err := it.Next()
		require.NoError(t, err)
		result = append(result, tup)
	}
}

func TestHeapFile_IDStableAcrossOpens(t *testing.T) {
	bp := newTestPool(t, 10)
	path := filepath.Join(t.TempDir(), "stable.dat")
	a, err := NewHeapFile(path, idNameDesc(), bp)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewHeapFile(path, idNameDesc(), bp)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.ID(), b.ID())
	abs, _ := filepath.Abs(path)
	assert.Equal(t, common.TableIDForPath(abs), a.ID())
}

func TestHeapFile_RejectsCorruptLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, common.PageSize+10), 0644))

	_, err := NewHeapFile(path, idNameDesc(), newTestPool(t, 10))
	assert.ErrorIs(t, err, common.ErrCorruptFile)
}

func TestHeapFile_ReadWritePage(t *testing.T) {
	bp := newTestPool(t, 10)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "rw.dat", desc)

	n, err := hf.NumPages()
	require.NoError(t, err)
	assert.Zero(t, n)

	pageNum, err := hf.appendEmptyPage()
	require.NoError(t, err)
	assert.Zero(t, pageNum)

	pid := common.PageID{Table: hf.ID(), PageNum: 0}
	page, err := NewEmptyHeapPage(pid, desc)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, page.InsertTuple(makeTuple(desc, int64(i), "p0")))
	}
	require.NoError(t, hf.WritePage(page))

	n, err = hf.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	read, err := hf.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, page.PageData(), read.PageData())
	assert.Equal(t, 5, read.NumUsed())
}

func TestHeapFile_ReadWritePastEnd(t *testing.T) {
	bp := newTestPool(t, 10)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "bounds.dat", desc)

	_, err := hf.ReadPage(common.PageID{Table: hf.ID(), PageNum: 0})
	assert.ErrorIs(t, err, common.ErrCorruptFile)

	far, err := NewEmptyHeapPage(common.PageID{Table: hf.ID(), PageNum: 3}, desc)
	require.NoError(t, err)
	assert.ErrorIs(t, hf.WritePage(far), common.ErrCorruptFile)

	// the page just past the end is not writable either; only appendEmptyPage grows the file
	next, err := NewEmptyHeapPage(common.PageID{Table: hf.ID(), PageNum: 0}, desc)
	require.NoError(t, err)
	assert.ErrorIs(t, hf.WritePage(next), common.ErrCorruptFile)
	_, err = hf.appendEmptyPage()
	require.NoError(t, err)
	require.NoError(t, hf.WritePage(next))
	next, err = NewEmptyHeapPage(common.PageID{Table: hf.ID(), PageNum: 1}, desc)
	require.NoError(t, err)
	assert.ErrorIs(t, hf.WritePage(next), common.ErrCorruptFile)
	n, err := hf.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = hf.ReadPage(common.PageID{Table: hf.ID() + 1, PageNum: 0})
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
}

func TestHeapFile_InsertGrowsByPages(t *testing.T) {
	bp := newTestPool(t, 20)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "grow.dat", desc)
	perPage := SlotsPerPage(desc)
	const tid = common.TransactionID(1)

	total := 2*perPage + 5
	for i := 0; i < total; i++ {
		_, err := bp.InsertTuple(tid, hf.ID(), makeTuple(desc, int64(i), "x"))
		require.NoError(t, err)
	}

	n, err := hf.NumPages()
	require.NoError(t, err)
	assert.Equal(t, (total+perPage-1)/perPage, n)

	tuples := scanAll(t, hf, tid)
	require.Len(t, tuples, total)
	for i, tup := range tuples {
		assert.Equal(t, int64(i), tup.Field(0).Int(), "scan should be in page then slot order")
	}
}

func TestHeapFile_FirstFitReusesFreedSlot(t *testing.T) {
	bp := newTestPool(t, 20)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "reuse.dat", desc)
	perPage := SlotsPerPage(desc)
	const tid = common.TransactionID(1)

	var first *Tuple
	for i := 0; i < perPage+1; i++ {
		tup := makeTuple(desc, int64(i), "x")
		_, err := bp.InsertTuple(tid, hf.ID(), tup)
		require.NoError(t, err)
		if i == 3 {
			first = tup
		}
	}
	_, err := bp.DeleteTuple(tid, first)
	require.NoError(t, err)

	again := makeTuple(desc, 999, "again")
	pages, err := bp.InsertTuple(tid, hf.ID(), again)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int32(0), pages[0].ID().PageNum)
	assert.Equal(t, first.RID(), again.RID())
}

func TestHeapFile_ModifiedPagesAreDirty(t *testing.T) {
	bp := newTestPool(t, 10)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "dirty.dat", desc)
	const tid = common.TransactionID(4)

	tup := makeTuple(desc, 1, "a")
	pages, err := hf.InsertTuple(tid, tup)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	dirtier, dirty := pages[0].IsDirty()
	assert.True(t, dirty)
	assert.Equal(t, tid, dirtier)

	pages[0].MarkDirty(false, common.InvalidTransactionID)
	pages, err = hf.DeleteTuple(tid, tup)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	dirtier, dirty = pages[0].IsDirty()
	assert.True(t, dirty, "a delete leaves the page dirty")
	assert.Equal(t, tid, dirtier)
	assert.Zero(t, pages[0].NumUsed())
}

func TestHeapFile_DeleteRejectsForeignTuple(t *testing.T) {
	bp := newTestPool(t, 10)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "foreign.dat", desc)

	_, err := hf.DeleteTuple(1, makeTuple(desc, 1, "no rid"))
	assert.ErrorIs(t, err, common.ErrNoSuchObject)

	other := makeTuple(desc, 1, "other")
	other.SetRID(common.RecordID{PageID: common.PageID{Table: hf.ID() + 1, PageNum: 0}})
	_, err = hf.DeleteTuple(1, other)
	assert.ErrorIs(t, err, common.ErrNoSuchObject)
}

func TestHeapFile_InsertRejectsWrongSchema(t *testing.T) {
	bp := newTestPool(t, 10)
	hf := newTestHeapFile(t, bp, "schema.dat", idNameDesc())
	bad := MustNewTuple(NewTupleDesc(FieldItem{Name: "a", Type: common.IntType}), common.NewIntField(1))
	_, err := hf.InsertTuple(1, bad)
	assert.ErrorIs(t, err, common.ErrIncompatibleSchema)
}

func TestHeapFileIterator_SkipsEmptyPagesAndRewinds(t *testing.T) {
	bp := newTestPool(t, 10)
	desc := idNameDesc()
	hf := newTestHeapFile(t, bp, "sparse.dat", desc)

	// page 0 empty, page 1 with two tuples, page 2 empty
	for i := 0; i < 3; i++ {
		page, err := NewEmptyHeapPage(common.PageID{Table: hf.ID(), PageNum: int32(i)}, desc)
		require.NoError(t, err)
		if i == 1 {
			require.NoError(t, page.InsertTuple(makeTuple(desc, 10, "a")))
			require.NoError(t, page.InsertTuple(makeTuple(desc, 11, "b")))
		}
		_, err = hf.appendEmptyPage()
		require.NoError(t, err)
		require.NoError(t, hf.WritePage(page))
	}

	it := hf.Iterator(1)
	_, err := it.HasNext()
	assert.ErrorIs(t, err, common.ErrIteratorNotOpen)

	require.NoError(t, it.Open())
	var ids []int64
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			break
		}
		tup, err := it.Next()
		require.NoError(t, err)
		ids = append(ids, tup.Field(0).Int())
	}
	assert.Equal(t, []int64{10, 11}, ids)

	_, err = it.Next()
	assert.ErrorIs(t, err, common.ErrNoSuchElement)

	require.NoError(t, it.Rewind())
	tup, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(10), tup.Field(0).Int())
	assert.Equal(t, common.RecordID{PageID: common.PageID{Table: hf.ID(), PageNum: 1}, Slot: 0}, tup.RID())
	require.NoError(t, it.Close())
}

func TestHeapFileIterator_EmptyFile(t *testing.T) {
	bp := newTestPool(t, 10)
	hf := newTestHeapFile(t, bp, "empty.dat", idNameDesc())
	assert.Empty(t, scanAll(t, hf, 1))
}
