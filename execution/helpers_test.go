package execution

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
	"mit.edu/dsg/heapdb/transaction"
)

type testSchemas map[common.TableID]*storage.TupleDesc

func (s testSchemas) TupleDesc(id common.TableID) (*storage.TupleDesc, error) {
	desc, ok := s[id]
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "no table %d", id)
	}
	return desc, nil
}

type testEnv struct {
	dir     string
	bp      *storage.BufferPool
	schemas testSchemas
	nextTid common.TransactionID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files := storage.NewFileManager()
	t.Cleanup(func() { _ = files.Close() })
	bp, err := storage.NewBufferPool(50, files, transaction.NewLockManager())
	require.NoError(t, err)
	return &testEnv{dir: t.TempDir(), bp: bp, schemas: testSchemas{}}
}

func (e *testEnv) begin() *ExecutorContext {
	e.nextTid++
	return NewExecutorContext(e.nextTid, e.bp, e.schemas)
}

func (e *testEnv) commit(t *testing.T, ctx *ExecutorContext) {
	t.Helper()
	require.NoError(t, e.bp.TransactionComplete(ctx.TransactionID(), true))
}

// createTable makes a heap file for desc and commits rows into it.
func (e *testEnv) createTable(t *testing.T, name string, desc *storage.TupleDesc, rows ...[]common.Field) *storage.HeapFile {
	t.Helper()
	hf, err := storage.NewHeapFile(filepath.Join(e.dir, name+".dat"), desc, e.bp)
	require.NoError(t, err)
	require.NoError(t, e.bp.Files().Register(hf))
	e.schemas[hf.ID()] = desc

	ctx := e.begin()
	for _, row := range rows {
		tup, err := storage.NewTuple(desc, row...)
		require.NoError(t, err)
		_, err = e.bp.InsertTuple(ctx.TransactionID(), hf.ID(), tup)
		require.NoError(t, err)
	}
	e.commit(t, ctx)
	return hf
}

func idNameDesc() *storage.TupleDesc {
	return storage.NewTupleDesc(
		storage.FieldItem{Name: "id", Type: common.IntType},
		storage.FieldItem{Name: "name", Type: common.StringType},
	)
}

func twoIntDesc(a, b string) *storage.TupleDesc {
	return storage.NewTupleDesc(
		storage.FieldItem{Name: a, Type: common.IntType},
		storage.FieldItem{Name: b, Type: common.IntType},
	)
}

func row(values ...any) []common.Field {
	fields := make([]common.Field, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case int:
			fields[i] = common.NewIntField(int64(x))
		case int64:
			fields[i] = common.NewIntField(x)
		case string:
			fields[i] = common.NewStringField(x)
		default:
			panic(fmt.Sprintf("unsupported value %v", v))
		}
	}
	return fields
}

func tuplesOf(desc *storage.TupleDesc, rows ...[]common.Field) []*storage.Tuple {
	result := make([]*storage.Tuple, len(rows))
	for i, r := range rows {
		result[i] = storage.MustNewTuple(desc, r...)
	}
	return result
}

// collect opens it, drains it and closes it.
func collect(t *testing.T, it DbIterator) []*storage.Tuple {
	t.Helper()
	require.NoError(t, it.Open())
	tuples, err := Drain(it)
	require.NoError(t, err)
	require.NoError(t, it.Close())
	return tuples
}

// rowsOf renders tuples as slices of their Go values for easy comparison.
func rowsOf(tuples []*storage.Tuple) [][]any {
	result := make([][]any, len(tuples))
	for i, tup := range tuples {
		values := make([]any, tup.NumFields())
		for j := range values {
			f := tup.Field(j)
			if f.Type() == common.IntType {
				values[j] = f.Int()
			} else {
				values[j] = f.Str()
			}
		}
		result[i] = values
	}
	return result
}

func codeOf(err error) common.GoDBErrorCode {
	code, _ := common.CodeOf(err)
	return code
}
