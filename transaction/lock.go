package transaction

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
)

// LockMode represents the type of access a transaction is requesting on a page.
type LockMode int

const (
	// LockModeS (Shared) allows reading a page. Multiple transactions can hold S locks simultaneously.
	LockModeS LockMode = iota
	// LockModeX (Exclusive) allows modification. It is incompatible with all other modes.
	LockModeX
)

func (m LockMode) String() string {
	switch m {
	case LockModeS:
		return "LockModeS"
	case LockModeX:
		return "LockModeX"
	}
	return "Unknown lock mode"
}

// ModeFor maps page permissions onto the lock mode that protects them.
func ModeFor(perm common.Permissions) LockMode {
	if perm == common.ReadWrite {
		return LockModeX
	}
	return LockModeS
}

// Compatible reports whether a lock in mode req can be granted while another transaction holds held.
func Compatible(req, held LockMode) bool {
	return req == LockModeS && held == LockModeS
}

// CoveredBy returns true if the held lock is strong enough to satisfy the requested lock.
func CoveredBy(req, held LockMode) bool {
	return held == LockModeX || req == held
}

type pageLock struct {
	holders map[common.TransactionID]LockMode
	cond    *sync.Cond
	mutex   sync.Mutex
}

func newPageLock() *pageLock {
	l := &pageLock{holders: make(map[common.TransactionID]LockMode)}
	l.cond = sync.NewCond(&l.mutex)
	return l
}

// lock is called with l.mutex held. Wait-die: a requester older than every conflicting holder
// waits; a younger one aborts. Transaction ids grow monotonically, so smaller means older.
func (l *pageLock) lock(tid common.TransactionID, mode LockMode) error {
	for {
		if held, ok := l.holders[tid]; ok && CoveredBy(mode, held) {
			return nil
		}
		blocked := false
		for h, hm := range l.holders {
			if h == tid || Compatible(mode, hm) {
				continue
			}
			if tid > h {
				return common.NewError(common.TransactionAbortedError,
					"wait-die: txn %d aborting for holder %d", tid, h)
			}
			blocked = true
		}
		if !blocked {
			l.holders[tid] = mode
			return nil
		}
		l.cond.Wait()
	}
}

func (l *pageLock) unlock(tid common.TransactionID) {
	if _, ok := l.holders[tid]; !ok {
		return
	}
	delete(l.holders, tid)
	l.cond.Broadcast()
}

type heldSet struct {
	pages map[common.PageID]struct{}
	mutex sync.Mutex
}

// LockManager grants, releases and waits on page-level shared and exclusive locks. Locks are held
// until the owning transaction completes (strict two-phase locking). Deadlocks are avoided with
// wait-die.
type LockManager struct {
	lockTable *xsync.MapOf[common.PageID, *pageLock]
	heldLocks *xsync.MapOf[common.TransactionID, *heldSet]
}

// NewLockManager initializes a new LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		lockTable: xsync.NewMapOf[common.PageID, *pageLock](),
		heldLocks: xsync.NewMapOf[common.TransactionID, *heldSet](),
	}
}

// Lock acquires a lock on pid with the requested mode, upgrading S to X when needed. If the lock
// cannot be granted immediately the caller blocks until it is granted or wait-die aborts it.
// It returns nil on success or a GoDBError with TransactionAbortedError.
func (lm *LockManager) Lock(tid common.TransactionID, pid common.PageID, mode LockMode) error {
	lock, _ := lm.lockTable.LoadOrCompute(pid, newPageLock)

	lock.mutex.Lock()
	err := lock.lock(tid, mode)
	lock.mutex.Unlock()
	if err != nil {
		logging.WithTxn(tid).Debug("lock request aborted", "page", pid.String(), "mode", mode.String())
		return err
	}

	held, _ := lm.heldLocks.LoadOrCompute(tid, func() *heldSet {
		return &heldSet{pages: make(map[common.PageID]struct{})}
	})
	held.mutex.Lock()
	held.pages[pid] = struct{}{}
	held.mutex.Unlock()
	return nil
}

// Unlock releases the lock held by the transaction on pid, waking any waiters.
func (lm *LockManager) Unlock(tid common.TransactionID, pid common.PageID) {
	if held, ok := lm.heldLocks.Load(tid); ok {
		held.mutex.Lock()
		delete(held.pages, pid)
		held.mutex.Unlock()
	}
	lm.release(tid, pid)
}

func (lm *LockManager) release(tid common.TransactionID, pid common.PageID) {
	lock, ok := lm.lockTable.Load(pid)
	if !ok {
		return
	}
	lock.mutex.Lock()
	lock.unlock(tid)
	lock.mutex.Unlock()
}

// ReleaseAll releases every lock held by tid.
func (lm *LockManager) ReleaseAll(tid common.TransactionID) {
	held, ok := lm.heldLocks.LoadAndDelete(tid)
	if !ok {
		return
	}
	held.mutex.Lock()
	pages := make([]common.PageID, 0, len(held.pages))
	for pid := range held.pages {
		pages = append(pages, pid)
	}
	held.pages = nil
	held.mutex.Unlock()

	for _, pid := range pages {
		lm.release(tid, pid)
	}
}

// Holds reports whether tid holds any lock on pid.
func (lm *LockManager) Holds(tid common.TransactionID, pid common.PageID) bool {
	lock, ok := lm.lockTable.Load(pid)
	if !ok {
		return false
	}
	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	_, held := lock.holders[tid]
	return held
}

// HeldMode returns the mode tid holds on pid, if any.
func (lm *LockManager) HeldMode(tid common.TransactionID, pid common.PageID) (LockMode, bool) {
	lock, ok := lm.lockTable.Load(pid)
	if !ok {
		return LockModeS, false
	}
	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	mode, held := lock.holders[tid]
	return mode, held
}

// ExclusivelyLocked reports whether some transaction holds an X lock on pid.
func (lm *LockManager) ExclusivelyLocked(pid common.PageID) bool {
	lock, ok := lm.lockTable.Load(pid)
	if !ok {
		return false
	}
	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	for _, m := range lock.holders {
		if m == LockModeX {
			return true
		}
	}
	return false
}

// LockedPages returns the pages tid currently holds locks on.
func (lm *LockManager) LockedPages(tid common.TransactionID) []common.PageID {
	held, ok := lm.heldLocks.Load(tid)
	if !ok {
		return nil
	}
	held.mutex.Lock()
	defer held.mutex.Unlock()
	result := make([]common.PageID, 0, len(held.pages))
	for pid := range held.pages {
		result = append(result, pid)
	}
	return result
}
