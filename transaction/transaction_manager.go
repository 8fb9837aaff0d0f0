package transaction

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
)

// Completer finishes a transaction at the page level: on commit it forces the transaction's dirty
// pages to disk, on abort it discards them. It must also release the transaction's locks.
// The buffer pool implements it.
type Completer interface {
	TransactionComplete(tid common.TransactionID, commit bool) error
}

type State int8

const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// TransactionContext is the runtime handle of a running transaction.
type TransactionContext struct {
	id      common.TransactionID
	manager *TransactionManager
	state   State
	mutex   sync.Mutex
}

// ID returns the transaction id to pass to the buffer pool and operators.
func (txn *TransactionContext) ID() common.TransactionID {
	return txn.id
}

func (txn *TransactionContext) State() State {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	return txn.state
}

// Commit forces the transaction's changes to disk and releases its locks.
func (txn *TransactionContext) Commit() error {
	return txn.manager.complete(txn, true)
}

// Abort discards the transaction's changes and releases its locks.
func (txn *TransactionContext) Abort() error {
	return txn.manager.complete(txn, false)
}

// TransactionManager hands out monotonically increasing transaction ids, which double as the
// timestamps wait-die compares, and drives commit and abort through the Completer.
type TransactionManager struct {
	activeTxns *xsync.MapOf[common.TransactionID, *TransactionContext]
	completer  Completer
	nextTxnID  atomic.Uint64
}

// NewTransactionManager initializes the transaction manager.
func NewTransactionManager(completer Completer) *TransactionManager {
	return &TransactionManager{
		activeTxns: xsync.NewMapOf[common.TransactionID, *TransactionContext](),
		completer:  completer,
	}
}

// Begin starts a new transaction and returns the initialized context.
func (tm *TransactionManager) Begin() *TransactionContext {
	tid := common.TransactionID(tm.nextTxnID.Add(1))
	txn := &TransactionContext{id: tid, manager: tm, state: Active}
	tm.activeTxns.Store(tid, txn)
	logging.WithTxn(tid).Debug("transaction begin")
	return txn
}

// ActiveCount returns the number of transactions that have neither committed nor aborted.
func (tm *TransactionManager) ActiveCount() int {
	return tm.activeTxns.Size()
}

func (tm *TransactionManager) complete(txn *TransactionContext, commit bool) error {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	if txn.state != Active {
		return common.NewError(common.TransactionStateError, "transaction %d already %s", txn.id, txn.state)
	}

	err := tm.completer.TransactionComplete(txn.id, commit)
	if commit && err == nil {
		txn.state = Committed
	} else {
		txn.state = Aborted
	}
	tm.activeTxns.Delete(txn.id)
	logging.WithTxn(txn.id).Debug("transaction complete", "state", txn.state.String(), "error", err)
	return err
}
