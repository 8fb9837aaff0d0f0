package execution

import (
	"log/slog"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
	"mit.edu/dsg/heapdb/storage"
)

// TupleSink applies tuple mutations on behalf of a transaction and reports the pages it modified.
// The buffer pool implements it.
type TupleSink interface {
	InsertTuple(tid common.TransactionID, tableID common.TableID, t *storage.Tuple) ([]*storage.HeapPage, error)
	DeleteTuple(tid common.TransactionID, t *storage.Tuple) ([]*storage.HeapPage, error)
}

// SchemaSource resolves a table id to its schema. The catalog implements it.
type SchemaSource interface {
	TupleDesc(id common.TableID) (*storage.TupleDesc, error)
}

// ExecutorContext holds the state and resources an operator tree needs to run inside one
// transaction. It is passed to every mutating operator during construction.
type ExecutorContext struct {
	tid     common.TransactionID
	sink    TupleSink
	schemas SchemaSource
	logger  *slog.Logger
}

func NewExecutorContext(tid common.TransactionID, sink TupleSink, schemas SchemaSource) *ExecutorContext {
	return &ExecutorContext{
		tid:     tid,
		sink:    sink,
		schemas: schemas,
		logger:  logging.WithTxn(tid),
	}
}

func (ctx *ExecutorContext) TransactionID() common.TransactionID {
	return ctx.tid
}

func (ctx *ExecutorContext) Sink() TupleSink {
	return ctx.sink
}

func (ctx *ExecutorContext) Schemas() SchemaSource {
	return ctx.schemas
}

func (ctx *ExecutorContext) Logger() *slog.Logger {
	return ctx.logger
}
