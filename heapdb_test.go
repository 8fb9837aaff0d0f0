package heapdb

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"mit.edu/dsg/heapdb/catalog"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/execution"
	"mit.edu/dsg/heapdb/logging"
	"mit.edu/dsg/heapdb/storage"
	"mit.edu/dsg/heapdb/transaction"
)

var peopleColumns = []catalog.Column{{Name: "id", Type: "int"}, {Name: "name", Type: "string"}}

func openTestDB(t *testing.T, dir string) *HeapDB {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.LogOutput = &bytes.Buffer{}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createPeople(t *testing.T, db *HeapDB, dir, name string) *catalog.Table {
	t.Helper()
	table, err := db.Catalog.AddTable(name, filepath.Join(dir, name+".dat"), peopleColumns)
	require.NoError(t, err)
	return table
}

// insertRows commits rows into table in one transaction using the Insert operator.
func insertRows(t *testing.T, db *HeapDB, table *catalog.Table, rows ...[]common.Field) {
	t.Helper()
	txn := db.Begin()
	tuples := make([]*storage.Tuple, len(rows))
	for i, r := range rows {
		tuples[i] = storage.MustNewTuple(table.TupleDesc(), r...)
	}
	ins, err := execution.NewInsert(db.NewExecutorContext(txn),
		execution.NewTupleIterator(table.TupleDesc(), tuples), table.ID)
	require.NoError(t, err)
	require.NoError(t, ins.Open())
	_, err = execution.Drain(ins)
	require.NoError(t, err)
	require.NoError(t, ins.Close())
	require.NoError(t, txn.Commit())
}

func person(id int64, name string) []common.Field {
	return []common.Field{common.NewIntField(id), common.NewStringField(name)}
}

func runQuery(t *testing.T, it execution.DbIterator) []*storage.Tuple {
	t.Helper()
	require.NoError(t, it.Open())
	tuples, err := execution.Drain(it)
	require.NoError(t, err)
	require.NoError(t, it.Close())
	return tuples
}

func TestHeapDB_InsertScanAggregate(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	people := createPeople(t, db, dir, "people")
	insertRows(t, db, people, person(1, "a"), person(2, "b"), person(1, "c"))

	txn := db.Begin()
	scan, err := db.SeqScan(txn, "people", "p")
	require.NoError(t, err)
	countByID, err := execution.NewAggregate(scan, 1, 0, execution.Count)
	require.NoError(t, err)
	assert.Equal(t, "p.id", countByID.TupleDesc().FieldName(0))
	assert.Equal(t, "count(p.name)", countByID.TupleDesc().FieldName(1))

	result := runQuery(t, countByID)
	require.Len(t, result, 2)
	assert.Equal(t, "1\t2", result[0].String())
	assert.Equal(t, "2\t1", result[1].String())

	scan, err = db.SeqScan(txn, "people", "p")
	require.NoError(t, err)
	avgID, err := execution.NewAggregate(scan, 0, execution.NoGrouping, execution.Avg)
	require.NoError(t, err)
	result = runQuery(t, avgID)
	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0].Field(0).Int())
	require.NoError(t, txn.Commit())
	assert.Equal(t, transaction.Committed, txn.State())
	assert.Zero(t, db.TransactionManager.ActiveCount())
}

func TestHeapDB_DeleteAbortAndReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	people := createPeople(t, db, dir, "people")
	insertRows(t, db, people, person(1, "a"), person(2, "b"), person(3, "c"))

	// an aborted delete leaves the table untouched
	txn := db.Begin()
	scan, err := db.SeqScan(txn, "people", "")
	require.NoError(t, err)
	del := execution.NewDelete(db.NewExecutorContext(txn), scan)
	deleted := runQuery(t, del)
	assert.Equal(t, int64(3), deleted[0].Field(0).Int())
	require.NoError(t, txn.Abort())
	assert.Equal(t, transaction.Aborted, txn.State())
	assert.ErrorIs(t, txn.Commit(), common.GoDBError{Code: common.TransactionStateError})

	// a committed one is durable across a restart
	txn = db.Begin()
	scan, err = db.SeqScan(txn, "people", "")
	require.NoError(t, err)
	filter, err := execution.NewFilter(
		execution.NewPredicate(0, execution.LessThan, common.NewIntField(3)), scan)
	require.NoError(t, err)
	deleted = runQuery(t, execution.NewDelete(db.NewExecutorContext(txn), filter))
	assert.Equal(t, int64(2), deleted[0].Field(0).Int())
	require.NoError(t, txn.Commit())
	require.NoError(t, db.Close())

	reopened := openTestDB(t, dir)
	txn = reopened.Begin()
	scan, err = reopened.SeqScan(txn, "people", "")
	require.NoError(t, err)
	remaining := runQuery(t, scan)
	require.Len(t, remaining, 1)
	assert.Equal(t, "3\tc", remaining[0].String())
	require.NoError(t, txn.Commit())
}

func TestHeapDB_JoinAcrossTables(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	people := createPeople(t, db, dir, "people")
	staff := createPeople(t, db, dir, "staff")
	insertRows(t, db, people, person(1, "ann"), person(2, "bob"))
	insertRows(t, db, staff, person(2, "eng"), person(2, "ops"), person(5, "hr"))

	txn := db.Begin()
	left, err := db.SeqScan(txn, "people", "p")
	require.NoError(t, err)
	right, err := db.SeqScan(txn, "staff", "s")
	require.NoError(t, err)
	join, err := execution.NewJoin(execution.NewJoinPredicate(0, execution.Equal, 0), left, right)
	require.NoError(t, err)

	result := runQuery(t, join)
	require.Len(t, result, 2)
	assert.Equal(t, "2\tbob\t2\teng", result[0].String())
	assert.Equal(t, "2\tbob\t2\tops", result[1].String())
	require.NoError(t, txn.Commit())
}

func TestHeapDB_ConcurrentInserts(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	people := createPeople(t, db, dir, "people")

	const workers = 4
	const perWorker = 25
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if err := insertWithRetry(db, people, person(int64(w*perWorker+i), fmt.Sprintf("w%d", w))); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	txn := db.Begin()
	scan, err := db.SeqScan(txn, "people", "")
	require.NoError(t, err)
	count, err := execution.NewAggregate(scan, 0, execution.NoGrouping, execution.Count)
	require.NoError(t, err)
	scan, err = db.SeqScan(txn, "people", "")
	require.NoError(t, err)
	sum, err := execution.NewAggregate(scan, 0, execution.NoGrouping, execution.Sum)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), runQuery(t, count)[0].Field(0).Int())
	n := int64(workers * perWorker)
	assert.Equal(t, n*(n-1)/2, runQuery(t, sum)[0].Field(0).Int())
	require.NoError(t, txn.Commit())
}

// insertWithRetry inserts one row, restarting the transaction whenever wait-die aborts it.
func insertWithRetry(db *HeapDB, table *catalog.Table, fields []common.Field) error {
	for {
		txn := db.Begin()
		tup := storage.MustNewTuple(table.TupleDesc(), fields...)
		ins, err := execution.NewInsert(db.NewExecutorContext(txn),
			execution.NewTupleIterator(table.TupleDesc(), []*storage.Tuple{tup}), table.ID)
		if err != nil {
			return errors.Join(err, txn.Abort())
		}
		if err = ins.Open(); err == nil {
			_, err = execution.Drain(ins)
		}
		err = errors.Join(err, ins.Close())
		if err == nil {
			return txn.Commit()
		}
		if abortErr := txn.Abort(); abortErr != nil {
			return errors.Join(err, abortErr)
		}
		if !errors.Is(err, common.ErrTransactionAborted) {
			return err
		}
	}
}

func TestHeapDB_JSONLogging(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig(t.TempDir())
	cfg.LogFormat = "json"
	cfg.LogLevel = logging.LevelDebug
	cfg.LogOutput = &out
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	txn := db.Begin()
	require.NoError(t, txn.Commit())
	assert.Contains(t, out.String(), `"msg":"database opened"`)
	assert.Contains(t, out.String(), `"txn":1`)
}
