package storage

import (
	"sync"

	"mit.edu/dsg/heapdb/common"
)

// HeapPage Layout:
// occupancy Bitmap (numSlots bits, padded to 8 bytes) | rows (numSlots * BytesPerTuple) | zero padding
//
// An all-zero page is a valid empty page, which is what the heap file appends when it grows.
type HeapPage struct {
	pid          common.PageID
	desc         *TupleDesc
	data         []byte
	occupied     Bitmap
	numSlots     int
	numUsed      int
	rowDataStart int

	// dirty metadata is read by the buffer pool while the owning transaction may be writing
	mutex   sync.Mutex
	dirty   bool
	dirtier common.TransactionID
}

// SlotsPerPage returns the largest number of tuples of desc that fit in a page together with their
// occupancy bitmap.
func SlotsPerPage(desc *TupleDesc) int {
	rowSize := desc.BytesPerTuple()
	// every 64 rows need one more bitmap word
	blockSize := 64*rowSize + 8
	fullBlocks, remainder := common.PageSize/blockSize, common.PageSize%blockSize
	numSlots := fullBlocks * 64
	if remainder > 8 {
		numSlots += (remainder - 8) / rowSize
	}
	return numSlots
}

// EmptyPageData returns the bytes of a page with no occupied slots.
func EmptyPageData() []byte {
	return make([]byte, common.PageSize)
}

// NewHeapPage interprets data as page pid of a table with schema desc. The page keeps data as its
// backing buffer.
func NewHeapPage(pid common.PageID, desc *TupleDesc, data []byte) (*HeapPage, error) {
	if len(data) != common.PageSize {
		return nil, common.NewError(common.CorruptFileError,
			"page %s has %d bytes, expected %d", pid, len(data), common.PageSize)
	}
	numSlots := SlotsPerPage(desc)
	if numSlots == 0 {
		return nil, common.NewError(common.IncompatibleSchemaError,
			"tuples of %d bytes do not fit in a page", desc.BytesPerTuple())
	}
	hp := &HeapPage{
		pid:          pid,
		desc:         desc,
		data:         data,
		numSlots:     numSlots,
		rowDataStart: BitmapBytes(numSlots),
	}
	hp.occupied = AsBitmap(data[:hp.rowDataStart], numSlots)
	hp.numUsed = hp.occupied.Count()
	return hp, nil
}

// NewEmptyHeapPage creates an in-memory page with every slot free.
func NewEmptyHeapPage(pid common.PageID, desc *TupleDesc) (*HeapPage, error) {
	return NewHeapPage(pid, desc, EmptyPageData())
}

func (hp *HeapPage) ID() common.PageID {
	return hp.pid
}

func (hp *HeapPage) Desc() *TupleDesc {
	return hp.desc
}

func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) NumUsed() int {
	return hp.numUsed
}

func (hp *HeapPage) NumEmptySlots() int {
	return hp.numSlots - hp.numUsed
}

// IsSlotUsed checks the occupancy bitmap. Out-of-range slots are reported as unused.
func (hp *HeapPage) IsSlotUsed(slot int) bool {
	if slot < 0 || slot >= hp.numSlots {
		return false
	}
	return hp.occupied.LoadBit(slot)
}

func (hp *HeapPage) rowBytes(slot int) []byte {
	rowSize := hp.desc.BytesPerTuple()
	start := hp.rowDataStart + slot*rowSize
	return hp.data[start : start+rowSize]
}

// InsertTuple stores t in the first free slot and sets t's RecordID to that slot.
func (hp *HeapPage) InsertTuple(t *Tuple) error {
	if !hp.desc.Equals(t.Desc()) {
		return common.NewError(common.IncompatibleSchemaError,
			"tuple schema %s does not match page schema %s", t.Desc(), hp.desc)
	}
	slot := hp.occupied.FindFirstZero(0)
	if slot == -1 {
		return common.NewError(common.InvalidArgumentError, "page %s is full", hp.pid)
	}
	t.WriteTo(hp.rowBytes(slot))
	hp.occupied.SetBit(slot, true)
	hp.numUsed++
	t.SetRID(common.RecordID{PageID: hp.pid, Slot: int32(slot)})
	return nil
}

// DeleteTuple frees the slot named by t's RecordID and zeroes its bytes.
func (hp *HeapPage) DeleteTuple(t *Tuple) error {
	rid := t.RID()
	if rid.PageID != hp.pid {
		return common.NewError(common.NoSuchObjectError, "tuple %s is not on page %s", rid, hp.pid)
	}
	slot := int(rid.Slot)
	if !hp.IsSlotUsed(slot) {
		return common.NewError(common.NoSuchObjectError, "slot %s is already empty", rid)
	}
	clear(hp.rowBytes(slot))
	hp.occupied.SetBit(slot, false)
	hp.numUsed--
	return nil
}

// TupleAt decodes the tuple in slot.
func (hp *HeapPage) TupleAt(slot int) (*Tuple, error) {
	if !hp.IsSlotUsed(slot) {
		return nil, common.NewError(common.NoSuchObjectError, "slot %d of page %s is empty", slot, hp.pid)
	}
	rid := common.RecordID{PageID: hp.pid, Slot: int32(slot)}
	return ReadTuple(hp.desc, hp.rowBytes(slot), rid), nil
}

// Tuples decodes every occupied slot in slot order.
func (hp *HeapPage) Tuples() []*Tuple {
	result := make([]*Tuple, 0, hp.numUsed)
	for slot := 0; slot < hp.numSlots; slot++ {
		if hp.occupied.LoadBit(slot) {
			rid := common.RecordID{PageID: hp.pid, Slot: int32(slot)}
			result = append(result, ReadTuple(hp.desc, hp.rowBytes(slot), rid))
		}
	}
	return result
}

// PageData returns a copy of the page bytes suitable for writing to disk.
func (hp *HeapPage) PageData() []byte {
	result := make([]byte, common.PageSize)
	copy(result, hp.data)
	return result
}

// MarkDirty records whether the page has unflushed changes and which transaction made them.
func (hp *HeapPage) MarkDirty(dirty bool, tid common.TransactionID) {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()
	hp.dirty = dirty
	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = common.InvalidTransactionID
	}
}

// IsDirty returns the transaction that dirtied the page, if it is dirty.
func (hp *HeapPage) IsDirty() (common.TransactionID, bool) {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()
	return hp.dirtier, hp.dirty
}
