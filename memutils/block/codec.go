// Package block encodes and decodes the boundary tags that a heap keeps inside its own memory.
//
// A block is addressed by its block pointer: the offset of its first payload byte. The 4-byte header sits
// immediately before the block pointer and, when present, the 4-byte footer occupies the last word of the
// block. Both hold the same word:
//
//	size | prevAllocated<<1 | allocated
//
// While a block is free its payload doubles as storage for free-block index links, each of them a 4-byte
// offset into the heap where 0 means "no link".
package block

import (
	"encoding/binary"
	"math"
)

const (
	// WordSize is the size in bytes of a boundary tag and of a stored link
	WordSize uint32 = 4
	// Alignment is the alignment of every block pointer and the granularity of block sizes
	Alignment uint32 = 8
	// MinBlockSize is the smallest legal block: a header, two links and a footer
	MinBlockSize uint32 = 2 * Alignment
	// MaxBlockSize is the largest size a header can encode
	MaxBlockSize uint32 = math.MaxUint32 &^ (Alignment - 1)

	allocatedBit     uint32 = 0x1
	prevAllocatedBit uint32 = 0x2
	sizeMask         uint32 = ^(Alignment - 1)
)

// Link offsets within a free block's payload
const (
	linkPrev  uint32 = 0
	linkNext  uint32 = WordSize
	linkLeft  uint32 = 2 * WordSize
	linkRight uint32 = 3 * WordSize
)

// Memory is the byte region a Codec reads and writes. Bytes is called on every access, so implementations
// are free to move their backing storage between calls.
type Memory interface {
	Bytes() []byte
}

// Pack builds a boundary tag word
func Pack(size uint32, allocated, prevAllocated bool) uint32 {
	word := size & sizeMask
	if allocated {
		word |= allocatedBit
	}
	if prevAllocated {
		word |= prevAllocatedBit
	}
	return word
}

// Codec reads and writes boundary tags and link fields for one heap. With footerless set, allocated
// blocks carry no footer and every header caches whether the preceding block is allocated.
type Codec struct {
	mem        Memory
	footerless bool
}

func NewCodec(mem Memory, footerless bool) Codec {
	return Codec{mem: mem, footerless: footerless}
}

// Footerless reports whether allocated blocks omit their footer
func (c Codec) Footerless() bool { return c.footerless }

// Word reads the 32-bit word at offset
func (c Codec) Word(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(c.mem.Bytes()[offset:])
}

// PutWord writes the 32-bit word at offset
func (c Codec) PutWord(offset uint32, value uint32) {
	binary.LittleEndian.PutUint32(c.mem.Bytes()[offset:], value)
}

func (c Codec) HeaderOf(bp uint32) uint32 {
	return bp - WordSize
}

// FooterOf returns the offset of the block's footer word. It is only meaningful when HasFooter is true.
func (c Codec) FooterOf(bp uint32) uint32 {
	return bp + c.SizeOf(bp) - Alignment
}

func (c Codec) SizeOf(bp uint32) uint32 {
	return c.Word(bp-WordSize) & sizeMask
}

func (c Codec) IsAllocated(bp uint32) bool {
	return c.Word(bp-WordSize)&allocatedBit != 0
}

// IsPrevAllocated reports whether the block physically preceding bp is allocated. Footerless codecs
// answer from the cached header bit, others from the preceding block's footer.
func (c Codec) IsPrevAllocated(bp uint32) bool {
	if c.footerless {
		return c.Word(bp-WordSize)&prevAllocatedBit != 0
	}
	return c.Word(bp-Alignment)&allocatedBit != 0
}

// HasFooter reports whether the block currently carries a footer. The zero-sized epilogue never does.
func (c Codec) HasFooter(bp uint32) bool {
	if c.SizeOf(bp) == 0 {
		return false
	}
	return !c.footerless || !c.IsAllocated(bp)
}

func (c Codec) NextBlock(bp uint32) uint32 {
	return bp + c.SizeOf(bp)
}

// PrevBlock returns the block physically preceding bp. It relies on that block having a footer: with a
// footerless codec, check IsPrevAllocated first.
func (c Codec) PrevBlock(bp uint32) uint32 {
	return bp - (c.Word(bp-Alignment) & sizeMask)
}

// Mark writes the block's header and, when the block should carry one, its footer. The prevAllocated
// bit is only stored by footerless codecs.
func (c Codec) Mark(bp uint32, size uint32, allocated, prevAllocated bool) {
	word := Pack(size, allocated, prevAllocated && c.footerless)
	c.PutWord(bp-WordSize, word)

	if size != 0 && (!allocated || !c.footerless) {
		c.PutWord(bp+size-Alignment, word)
	}
}

// SetPrevAllocated updates the cached allocation state of the block preceding bp. It must be called on
// the following block whenever a block changes allocation state. It no-ops for codecs with footers.
func (c Codec) SetPrevAllocated(bp uint32, prevAllocated bool) {
	if !c.footerless {
		return
	}

	word := c.Word(bp - WordSize)
	if prevAllocated {
		word |= prevAllocatedBit
	} else {
		word &^= prevAllocatedBit
	}
	c.PutWord(bp-WordSize, word)

	size := word & sizeMask
	if size != 0 && word&allocatedBit == 0 {
		c.PutWord(bp+size-Alignment, word)
	}
}

// Overhead is the number of bytes of an allocated block that are not available as payload
func (c Codec) Overhead() uint32 {
	if c.footerless {
		return WordSize
	}
	return Alignment
}

// AdjustedSize converts a requested payload size into a block size that satisfies alignment, boundary
// tag overhead and the minimum block size. It returns false if no block can hold the request.
func (c Codec) AdjustedSize(n int) (uint32, bool) {
	if n <= 0 || uint64(n) > uint64(MaxBlockSize-Alignment) {
		return 0, false
	}

	size := (uint32(n) + c.Overhead() + Alignment - 1) & sizeMask
	if size < MinBlockSize {
		size = MinBlockSize
	}
	return size, true
}

// PayloadSize returns the number of bytes a caller may use in an allocated block
func (c Codec) PayloadSize(bp uint32) uint32 {
	return c.SizeOf(bp) - c.Overhead()
}

// Contains reports whether bp could address a block in the current heap: it is aligned and there is room
// for a header before it and a minimum-sized block after it.
func (c Codec) Contains(bp uint32) bool {
	return bp >= Alignment && bp%Alignment == 0 && uint64(bp)+uint64(MinBlockSize) <= uint64(len(c.mem.Bytes()))
}

func (c Codec) Prev(bp uint32) uint32  { return c.Word(bp + linkPrev) }
func (c Codec) Next(bp uint32) uint32  { return c.Word(bp + linkNext) }
func (c Codec) Left(bp uint32) uint32  { return c.Word(bp + linkLeft) }
func (c Codec) Right(bp uint32) uint32 { return c.Word(bp + linkRight) }

func (c Codec) SetPrev(bp, link uint32)  { c.PutWord(bp+linkPrev, link) }
func (c Codec) SetNext(bp, link uint32)  { c.PutWord(bp+linkNext, link) }
func (c Codec) SetLeft(bp, link uint32)  { c.PutWord(bp+linkLeft, link) }
func (c Codec) SetRight(bp, link uint32) { c.PutWord(bp+linkRight, link) }

// ClearLinks resets the first words link fields of a free block to "no link"
func (c Codec) ClearLinks(bp uint32, words int) {
	for i := 0; i < words; i++ {
		c.PutWord(bp+uint32(i)*WordSize, 0)
	}
}
