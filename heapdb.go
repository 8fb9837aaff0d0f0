package heapdb

import (
	"errors"
	"io"
	"os"

	// Imports all sub-components
	"mit.edu/dsg/heapdb/catalog"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/execution"
	"mit.edu/dsg/heapdb/logging"
	"mit.edu/dsg/heapdb/storage"
	"mit.edu/dsg/heapdb/transaction"
)

// Config selects where a database lives and how it runs.
type Config struct {
	// StorageDir holds catalog.json and, by default, the heap files.
	StorageDir string
	// BufferPoolPages is the buffer pool capacity in pages.
	BufferPoolPages int
	LogLevel        logging.Level
	// LogFormat is "text" or "json".
	LogFormat string
	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

func DefaultConfig(storageDir string) Config {
	return Config{
		StorageDir:      storageDir,
		BufferPoolPages: storage.DefaultPages,
		LogLevel:        logging.LevelInfo,
		LogFormat:       "text",
	}
}

// HeapDB is the top-level container for the database system.
type HeapDB struct {
	Catalog            *catalog.Catalog
	BufferPool         *storage.BufferPool
	Files              *storage.FileManager
	TransactionManager *transaction.TransactionManager
	LockManager        *transaction.LockManager
}

// Open creates the storage directory if needed, loads the catalog from it and reopens every table.
func Open(cfg Config) (*HeapDB, error) {
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	if cfg.BufferPoolPages == 0 {
		cfg.BufferPoolPages = storage.DefaultPages
	}
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, common.WrapError(common.StorageError, err, "cannot create storage dir %s", cfg.StorageDir)
	}

	files := storage.NewFileManager()
	lockManager := transaction.NewLockManager()
	bufferPool, err := storage.NewBufferPool(cfg.BufferPoolPages, files, lockManager)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.NewCatalog(catalog.NewDiskCatalogManager(cfg.StorageDir), files, bufferPool)
	if err != nil {
		return nil, errors.Join(err, files.Close())
	}

	logging.Get().Info("database opened", "dir", cfg.StorageDir, "buffer_pool_pages", cfg.BufferPoolPages)
	return &HeapDB{
		Catalog:            cat,
		BufferPool:         bufferPool,
		Files:              files,
		TransactionManager: transaction.NewTransactionManager(bufferPool),
		LockManager:        lockManager,
	}, nil
}

// Begin starts a transaction.
func (db *HeapDB) Begin() *transaction.TransactionContext {
	return db.TransactionManager.Begin()
}

// NewExecutorContext binds an operator tree to txn, with the buffer pool as its tuple sink and the
// catalog as its schema source.
func (db *HeapDB) NewExecutorContext(txn *transaction.TransactionContext) *execution.ExecutorContext {
	return execution.NewExecutorContext(txn.ID(), db.BufferPool, db.Catalog)
}

// SeqScan builds a scan of the named table inside txn.
func (db *HeapDB) SeqScan(txn *transaction.TransactionContext, tableName, alias string) (*execution.SeqScan, error) {
	id, err := db.Catalog.TableID(tableName)
	if err != nil {
		return nil, err
	}
	hf, err := db.Catalog.DatabaseFile(id)
	if err != nil {
		return nil, err
	}
	return execution.NewSeqScan(db.NewExecutorContext(txn), hf, alias), nil
}

// Close closes every heap file. Transactions still running lose their uncommitted changes.
func (db *HeapDB) Close() error {
	if n := db.TransactionManager.ActiveCount(); n > 0 {
		logging.Get().Warn("closing database with active transactions", "count", n)
	}
	return db.Files.Close()
}
