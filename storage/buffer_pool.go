package storage

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
	"mit.edu/dsg/heapdb/transaction"
)

// DefaultPages is the buffer pool capacity used when none is configured.
const DefaultPages = 50

type frame struct {
	page   *HeapPage
	refBit atomic.Bool
}

// BufferPool caches heap pages in memory with a fixed capacity and is the only path through which
// operators and heap files touch pages. Every GetPage acquires a page lock for the transaction
// (shared for READ_ONLY, exclusive for READ_WRITE) before returning the page.
//
// The pool is NO-STEAL/FORCE: a page dirtied by a running transaction is never evicted, commit
// writes the transaction's dirty pages to disk, and abort drops them so the next access rereads the
// committed image. Clean pages are evicted with the clock algorithm.
type BufferPool struct {
	files     *FileManager
	locks     *transaction.LockManager
	frames    []*frame
	clockHand int
	pageTable *xsync.MapOf[common.PageID, *frame]

	// guards frames, clockHand and admission into pageTable
	mutex sync.Mutex
}

// NewBufferPool creates a BufferPool holding at most numPages pages. Files are resolved through
// files and page locks are taken from locks.
func NewBufferPool(numPages int, files *FileManager, locks *transaction.LockManager) (*BufferPool, error) {
	if numPages <= 0 {
		return nil, common.NewError(common.InvalidArgumentError, "buffer pool capacity must be positive, got %d", numPages)
	}
	return &BufferPool{
		files:     files,
		locks:     locks,
		frames:    make([]*frame, numPages),
		pageTable: xsync.NewMapOf[common.PageID, *frame](),
	}, nil
}

// PageSize is the process-wide page size in bytes.
func (bp *BufferPool) PageSize() int {
	return common.PageSize
}

func (bp *BufferPool) Capacity() int {
	return len(bp.frames)
}

func (bp *BufferPool) Files() *FileManager {
	return bp.files
}

func (bp *BufferPool) LockManager() *transaction.LockManager {
	return bp.locks
}

// GetPage returns page pid on behalf of tid, blocking until the page lock matching perm is granted.
// If wait-die aborts the request the returned error matches common.ErrTransactionAborted. A cache
// miss reads the page from its heap file, evicting a clean page if the pool is full.
func (bp *BufferPool) GetPage(tid common.TransactionID, pid common.PageID, perm common.Permissions) (*HeapPage, error) {
	if err := bp.locks.Lock(tid, pid, transaction.ModeFor(perm)); err != nil {
		return nil, err
	}

	if f, ok := bp.pageTable.Load(pid); ok {
		f.refBit.Store(true)
		return f.page, nil
	}

	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	// Another transaction may have loaded the page while we waited for the latch
	if f, ok := bp.pageTable.Load(pid); ok {
		f.refBit.Store(true)
		return f.page, nil
	}

	file, err := bp.files.Get(pid.Table)
	if err != nil {
		return nil, err
	}
	idx, err := bp.findFrame()
	if err != nil {
		return nil, err
	}
	page, err := file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	f := &frame{page: page}
	bp.frames[idx] = f
	bp.pageTable.Store(pid, f)
	return page, nil
}

// findFrame returns the index of a free frame, evicting a clean page with the clock algorithm if
// necessary. Called with bp.mutex held.
func (bp *BufferPool) findFrame() (int, error) {
	numFrames := len(bp.frames)
	// two sweeps: the first may only clear reference bits
	for i := 0; i < 2*numFrames; i++ {
		idx := bp.clockHand
		bp.clockHand = (bp.clockHand + 1) % numFrames

		f := bp.frames[idx]
		if f == nil {
			return idx, nil
		}
		if _, dirty := f.page.IsDirty(); dirty {
			continue
		}
		if f.refBit.Swap(false) {
			continue
		}
		bp.pageTable.Delete(f.page.ID())
		bp.frames[idx] = nil
		logging.WithPage(f.page.ID()).Debug("evicted page")
		return idx, nil
	}
	return -1, common.NewError(common.BufferPoolFullError,
		"all %d buffer pool pages are dirty", numFrames)
}

// InsertTuple adds t to table tableID on behalf of tid and marks every modified page dirty.
func (bp *BufferPool) InsertTuple(tid common.TransactionID, tableID common.TableID, t *Tuple) ([]*HeapPage, error) {
	file, err := bp.files.Get(tableID)
	if err != nil {
		return nil, err
	}
	pages, err := file.InsertTuple(tid, t)
	if err != nil {
		return nil, err
	}
	if err := bp.markDirty(tid, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// DeleteTuple removes t from the table named by its RecordID and marks the modified page dirty.
func (bp *BufferPool) DeleteTuple(tid common.TransactionID, t *Tuple) ([]*HeapPage, error) {
	rid := t.RID()
	if rid.IsNil() {
		return nil, common.NewError(common.NoSuchObjectError, "tuple has no record id")
	}
	file, err := bp.files.Get(rid.Table)
	if err != nil {
		return nil, err
	}
	pages, err := file.DeleteTuple(tid, t)
	if err != nil {
		return nil, err
	}
	if err := bp.markDirty(tid, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// markDirty pins the modified pages in the pool. A clean page may have been evicted between the
// heap file fetching it and modifying it; the exclusive lock guarantees nobody reloaded it since, so
// the modified copy is simply readmitted.
func (bp *BufferPool) markDirty(tid common.TransactionID, pages []*HeapPage) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, tid)
		if f, ok := bp.pageTable.Load(p.ID()); ok {
			f.page = p
			continue
		}
		idx, err := bp.findFrame()
		if err != nil {
			return err
		}
		f := &frame{page: p}
		bp.frames[idx] = f
		bp.pageTable.Store(p.ID(), f)
	}
	return nil
}

// TransactionComplete ends tid. On commit every page tid dirtied is written to disk; on abort those
// pages are dropped from the pool. Either way all of tid's locks are released.
func (bp *BufferPool) TransactionComplete(tid common.TransactionID, commit bool) error {
	defer bp.locks.ReleaseAll(tid)

	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	var errs []error
	for idx, f := range bp.frames {
		if f == nil {
			continue
		}
		dirtier, dirty := f.page.IsDirty()
		if !dirty || dirtier != tid {
			continue
		}
		if commit {
			err := bp.flushFrame(f)
			if err == nil {
				continue
			}
			errs = append(errs, err)
		}
		bp.pageTable.Delete(f.page.ID())
		bp.frames[idx] = nil
	}
	if err := errors.Join(errs...); err != nil {
		logging.WithTxn(tid).Error("commit flush failed", "error", err)
		return err
	}
	return nil
}

func (bp *BufferPool) flushFrame(f *frame) error {
	file, err := bp.files.Get(f.page.ID().Table)
	if err != nil {
		return err
	}
	if err := file.WritePage(f.page); err != nil {
		return err
	}
	f.page.MarkDirty(false, common.InvalidTransactionID)
	logging.WithPage(f.page.ID()).Debug("flushed page")
	return nil
}

// FlushPage writes pid to disk if it is cached and dirty.
func (bp *BufferPool) FlushPage(pid common.PageID) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	f, ok := bp.pageTable.Load(pid)
	if !ok {
		return nil
	}
	if _, dirty := f.page.IsDirty(); !dirty {
		return nil
	}
	return bp.flushFrame(f)
}

// FlushAllPages writes every dirty page to disk regardless of which transaction dirtied it. It
// breaks NO-STEAL and exists for shutdown and tests.
func (bp *BufferPool) FlushAllPages() error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	var errs []error
	for _, f := range bp.frames {
		if f == nil {
			continue
		}
		if _, dirty := f.page.IsDirty(); dirty {
			if err := bp.flushFrame(f); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// DiscardPage drops pid from the pool without writing it.
func (bp *BufferPool) DiscardPage(pid common.PageID) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	if _, ok := bp.pageTable.LoadAndDelete(pid); !ok {
		return
	}
	for idx, f := range bp.frames {
		if f != nil && f.page.ID() == pid {
			bp.frames[idx] = nil
			return
		}
	}
}

// HoldsLock reports whether tid holds a lock on pid.
func (bp *BufferPool) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	return bp.locks.Holds(tid, pid)
}

// UnsafeReleasePage releases tid's lock on pid before the transaction ends. It is only safe for
// pages tid has read but not modified.
func (bp *BufferPool) UnsafeReleasePage(tid common.TransactionID, pid common.PageID) {
	bp.locks.Unlock(tid, pid)
}

// NumCached returns the number of pages currently in the pool.
func (bp *BufferPool) NumCached() int {
	return bp.pageTable.Size()
}

// IsCached reports whether pid is in the pool.
func (bp *BufferPool) IsCached(pid common.PageID) bool {
	_, ok := bp.pageTable.Load(pid)
	return ok
}
