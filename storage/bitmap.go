package storage

import (
	"math/bits"
	"unsafe"

	"mit.edu/dsg/heapdb/common"
)

// Bitmap provides a word-level view over the slot-occupancy header of a heap page.
// It does not own the underlying bytes; writes go straight through to the page buffer.
type Bitmap struct {
	words   []uint64
	numBits int
}

// AsBitmap creates a Bitmap view over the provided byte slice.
//
// data must start on an 8-byte boundary and hold at least numBits rounded up to whole words.
func AsBitmap(data []byte, numBits int) Bitmap {
	numWords := (numBits + 63) / 64
	if numWords == 0 {
		return Bitmap{}
	}
	common.Assert(len(data) >= numWords*8, "bitmap buffer too small")
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&data[0])), numWords)
	return Bitmap{
		words:   words,
		numBits: numBits,
	}
}

// BitmapBytes is the number of bytes a bitmap of numBits occupies on a page.
func BitmapBytes(numBits int) int {
	return common.Align8((numBits + 7) / 8)
}

func (b *Bitmap) Len() int {
	return b.numBits
}

// SetBit sets the bit at index i to the given value.
// Returns the previous value of the bit.
func (b *Bitmap) SetBit(i int, on bool) (originalValue bool) {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	mask := uint64(1) << uint(i%64)
	ptr := &b.words[i/64]
	originalValue = (*ptr & mask) != 0
	if on {
		*ptr |= mask
	} else {
		*ptr &^= mask
	}
	return originalValue
}

// LoadBit returns the value of the bit at index i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	return (b.words[i/64] & (1 << uint(i%64))) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for i, w := range b.words {
		if i == len(b.words)-1 && b.numBits%64 != 0 {
			w &= (uint64(1) << uint(b.numBits%64)) - 1
		}
		n += bits.OnesCount64(w)
	}
	return n
}

// FindFirstZero searches for the first bit set to 0 starting at startHint, wrapping around to the
// beginning if needed. Returns -1 if every bit is set.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if startHint < 0 || startHint > b.numBits {
		startHint = 0
	}
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	if start == end {
		return -1
	}
	startWord := start / 64
	endWord := (end - 1) / 64

	for i := startWord; i <= endWord; i++ {
		word := b.words[i]
		if word == ^uint64(0) {
			continue
		}

		bitStart, bitEnd := 0, 64
		if i == startWord {
			bitStart = start % 64
		}
		if i == endWord {
			if limit := end % 64; limit != 0 {
				bitEnd = limit
			}
		}

		// mask off bits below bitStart, then take the lowest zero
		free := ^word &^ ((uint64(1) << uint(bitStart)) - 1)
		if free == 0 {
			continue
		}
		j := bits.TrailingZeros64(free)
		if j < bitEnd {
			return i*64 + j
		}
	}
	return -1
}
