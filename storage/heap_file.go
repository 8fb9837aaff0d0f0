package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
)

// PageSource fetches pages on behalf of a transaction, acquiring the page lock implied by perm.
// The BufferPool is the production implementation; every page access made by a HeapFile goes
// through it.
type PageSource interface {
	GetPage(tid common.TransactionID, pid common.PageID, perm common.Permissions) (*HeapPage, error)
}

// HeapFile stores the tuples of one table as an unordered sequence of fixed-size pages in a single
// OS file. Page i lives at byte offset i*PageSize. The file only grows.
type HeapFile struct {
	path  string
	id    common.TableID
	desc  *TupleDesc
	pages PageSource
	file  *os.File

	// serializes appends so two transactions never claim the same new page number
	tailLatch sync.Mutex
}

// NewHeapFile opens (creating if necessary) the heap file at path for tuples of schema desc. Pages
// are fetched through pages.
func NewHeapFile(path string, desc *TupleDesc, pages PageSource) (*HeapFile, error) {
	if SlotsPerPage(desc) == 0 {
		return nil, common.NewError(common.IncompatibleSchemaError,
			"tuples of %d bytes do not fit in a page", desc.BytesPerTuple())
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, common.WrapError(common.StorageError, err, "cannot resolve path %s", path)
	}
	f, err := os.OpenFile(absPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, common.WrapError(common.StorageError, err, "cannot open heap file %s", absPath)
	}
	hf := &HeapFile{
		path:  absPath,
		id:    common.TableIDForPath(absPath),
		desc:  desc,
		pages: pages,
		file:  f,
	}
	if _, err := hf.NumPages(); err != nil {
		f.Close()
		return nil, err
	}
	return hf, nil
}

// ID is derived from the absolute path, so it is stable across restarts.
func (hf *HeapFile) ID() common.TableID {
	return hf.id
}

func (hf *HeapFile) Path() string {
	return hf.path
}

func (hf *HeapFile) TupleDesc() *TupleDesc {
	return hf.desc
}

// NumPages returns the number of pages currently in the file. It is recomputed from the file length
// on every call, so pages appended by other transactions are visible.
func (hf *HeapFile) NumPages() (int, error) {
	info, err := hf.file.Stat()
	if err != nil {
		return 0, common.WrapError(common.StorageError, err, "cannot stat heap file %s", hf.path)
	}
	size := info.Size()
	if size%int64(common.PageSize) != 0 {
		return 0, common.NewError(common.CorruptFileError,
			"heap file %s has length %d, not a multiple of the page size %d", hf.path, size, common.PageSize)
	}
	return int(size / int64(common.PageSize)), nil
}

// ReadPage reads page pid straight from disk, bypassing the buffer pool.
func (hf *HeapFile) ReadPage(pid common.PageID) (*HeapPage, error) {
	if pid.Table != hf.id {
		return nil, common.NewError(common.NoSuchObjectError, "page %s does not belong to table %d", pid, hf.id)
	}
	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}
	if pid.PageNum < 0 || int(pid.PageNum) >= numPages {
		return nil, common.NewError(common.CorruptFileError,
			"read past end of table: page %d of %d", pid.PageNum, numPages)
	}

	buf := make([]byte, common.PageSize)
	n, err := hf.file.ReadAt(buf, int64(pid.PageNum)*int64(common.PageSize))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, common.WrapError(common.CorruptFileError, err,
				"short read of page %s: %d of %d bytes", pid, n, common.PageSize)
		}
		return nil, common.WrapError(common.StorageError, err, "cannot read page %s", pid)
	}
	return NewHeapPage(pid, hf.desc, buf)
}

// WritePage writes page over its existing slot on disk. The file only grows through
// appendEmptyPage; a page number at or beyond the current extent is an error.
func (hf *HeapFile) WritePage(page *HeapPage) error {
	pid := page.ID()
	if pid.Table != hf.id {
		return common.NewError(common.NoSuchObjectError, "page %s does not belong to table %d", pid, hf.id)
	}
	numPages, err := hf.NumPages()
	if err != nil {
		return err
	}
	if pid.PageNum < 0 || int(pid.PageNum) >= numPages {
		return common.NewError(common.CorruptFileError,
			"write past end of table: page %d of %d", pid.PageNum, numPages)
	}
	if _, err := hf.file.WriteAt(page.PageData(), int64(pid.PageNum)*int64(common.PageSize)); err != nil {
		return common.WrapError(common.StorageError, err, "cannot write page %s", pid)
	}
	return nil
}

// appendEmptyPage grows the file by one all-zero page and returns its page number.
func (hf *HeapFile) appendEmptyPage() (int, error) {
	hf.tailLatch.Lock()
	defer hf.tailLatch.Unlock()

	numPages, err := hf.NumPages()
	if err != nil {
		return 0, err
	}
	if _, err := hf.file.WriteAt(EmptyPageData(), int64(numPages)*int64(common.PageSize)); err != nil {
		return 0, common.WrapError(common.StorageError, err, "cannot append page to %s", hf.path)
	}
	logging.WithTable(hf.id).Debug("appended empty page", "page", numPages)
	return numPages, nil
}

// InsertTuple adds t to the first page with a free slot, or to a newly appended page if every page
// is full. Pages are fetched READ_WRITE through the page source. The modified page is marked dirty
// by tid and returned so the caller can track it.
func (hf *HeapFile) InsertTuple(tid common.TransactionID, t *Tuple) ([]*HeapPage, error) {
	if !hf.desc.Equals(t.Desc()) {
		return nil, common.NewError(common.IncompatibleSchemaError,
			"tuple schema %s does not match table schema %s", t.Desc(), hf.desc)
	}
	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}
	for i := 0; i < numPages; i++ {
		page, err := hf.pages.GetPage(tid, common.PageID{Table: hf.id, PageNum: int32(i)}, common.ReadWrite)
		if err != nil {
			return nil, err
		}
		if page.NumEmptySlots() > 0 {
			if err := page.InsertTuple(t); err != nil {
				return nil, err
			}
			page.MarkDirty(true, tid)
			return []*HeapPage{page}, nil
		}
	}

	pageNum, err := hf.appendEmptyPage()
	if err != nil {
		return nil, err
	}
	page, err := hf.pages.GetPage(tid, common.PageID{Table: hf.id, PageNum: int32(pageNum)}, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.InsertTuple(t); err != nil {
		return nil, err
	}
	page.MarkDirty(true, tid)
	return []*HeapPage{page}, nil
}

// DeleteTuple removes t from the page named by its RecordID, marks the page dirty by tid and returns
// it.
func (hf *HeapFile) DeleteTuple(tid common.TransactionID, t *Tuple) ([]*HeapPage, error) {
	rid := t.RID()
	if rid.IsNil() || rid.Table != hf.id {
		return nil, common.NewError(common.NoSuchObjectError, "tuple %s is not a member of table %d", rid, hf.id)
	}
	page, err := hf.pages.GetPage(tid, rid.PageID, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.DeleteTuple(t); err != nil {
		return nil, err
	}
	page.MarkDirty(true, tid)
	return []*HeapPage{page}, nil
}

// Close releases the OS file handle.
func (hf *HeapFile) Close() error {
	return hf.file.Close()
}

// Iterator returns a lazy scan over every tuple in the file on behalf of tid.
func (hf *HeapFile) Iterator(tid common.TransactionID) *HeapFileIterator {
	return &HeapFileIterator{file: hf, tid: tid}
}

// HeapFileIterator yields the tuples of a heap file in page order, then slot order. Pages are
// fetched READ_ONLY through the page source one at a time; empty pages are skipped.
type HeapFileIterator struct {
	file    *HeapFile
	tid     common.TransactionID
	open    bool
	pageNum int
	tuples  []*Tuple
	pos     int
}

func (it *HeapFileIterator) Open() error {
	it.open = true
	it.pageNum = -1
	it.tuples = nil
	it.pos = 0
	return nil
}

// HasNext advances across pages until it finds an occupied slot or runs out of pages.
func (it *HeapFileIterator) HasNext() (bool, error) {
	if !it.open {
		return false, common.ErrIteratorNotOpen
	}
	for it.pos >= len(it.tuples) {
		numPages, err := it.file.NumPages()
		if err != nil {
			return false, err
		}
		if it.pageNum+1 >= numPages {
			return false, nil
		}
		it.pageNum++
		pid := common.PageID{Table: it.file.id, PageNum: int32(it.pageNum)}
		page, err := it.file.pages.GetPage(it.tid, pid, common.ReadOnly)
		if err != nil {
			return false, err
		}
		it.tuples = page.Tuples()
		it.pos = 0
	}
	return true, nil
}

func (it *HeapFileIterator) Next() (*Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNoSuchElement
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}

// Rewind restarts the scan from the first page.
func (it *HeapFileIterator) Rewind() error {
	if !it.open {
		return common.ErrIteratorNotOpen
	}
	return it.Open()
}

func (it *HeapFileIterator) Close() error {
	it.open = false
	it.tuples = nil
	return nil
}
