package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// SeqScan reads every tuple of a heap file in storage order. Output field names are qualified with
// the table alias ("alias.field") so joined schemas stay unambiguous.
type SeqScan struct {
	Operator
	file     *storage.HeapFile
	alias    string
	desc     *storage.TupleDesc
	iterator *storage.HeapFileIterator
}

// NewSeqScan scans file inside the transaction of ctx. An empty alias leaves field names unqualified.
func NewSeqScan(ctx *ExecutorContext, file *storage.HeapFile, alias string) *SeqScan {
	s := &SeqScan{
		file:     file,
		alias:    alias,
		desc:     file.TupleDesc().WithPrefix(alias),
		iterator: file.Iterator(ctx.TransactionID()),
	}
	s.Operator = newOperator(s.fetchNext)
	return s
}

func (s *SeqScan) TableID() common.TableID {
	return s.file.ID()
}

func (s *SeqScan) Alias() string {
	return s.alias
}

func (s *SeqScan) fetchNext() (*storage.Tuple, error) {
	ok, err := s.iterator.HasNext()
	if err != nil || !ok {
		return nil, err
	}
	t, err := s.iterator.Next()
	if err != nil {
		return nil, err
	}
	return t.Rebind(s.desc), nil
}

func (s *SeqScan) Open() error {
	if err := s.iterator.Open(); err != nil {
		return err
	}
	s.markOpen()
	return nil
}

func (s *SeqScan) Rewind() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.resetLookahead()
	return s.iterator.Rewind()
}

func (s *SeqScan) Close() error {
	s.markClosed()
	return s.iterator.Close()
}

func (s *SeqScan) TupleDesc() *storage.TupleDesc {
	return s.desc
}
