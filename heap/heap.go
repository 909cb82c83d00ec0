// Package heap implements a single-threaded dynamic memory allocator over a growable byte arena.
//
// Every block in the heap is delimited by boundary tags stored in the arena itself, and free blocks are
// tracked by a freelist.Index whose links are stored in the free blocks' payloads. The heap never holds
// Go pointers into its memory: allocations are identified by their offset, a Pointer.
package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/segheap/memutils"
	"github.com/vkngwrapper/segheap/memutils/arena"
	"github.com/vkngwrapper/segheap/memutils/block"
	"github.com/vkngwrapper/segheap/memutils/freelist"
	"golang.org/x/exp/slog"
)

// Pointer identifies an allocation by the offset of its first payload byte within the heap's arena
type Pointer uint32

// Null is the Pointer that refers to no allocation. No block ever lives at offset 0.
const Null Pointer = 0

// fixedOverhead is the padding word, the prologue block and the epilogue header
const fixedOverhead = 4 * int(block.WordSize)

// Heap is a boundary-tag allocator. It is not safe for concurrent use: callers that share a Heap between
// goroutines must synchronize access themselves.
type Heap struct {
	logger   *slog.Logger
	policy   freelist.FreeListPolicy
	extender arena.Extender
	codec    block.Codec
	index    *freelist.Index

	chunkSize uint32
	base      uint32
	prologue  uint32

	allocationCount int
	allocationBytes int
}

var _ memutils.Validatable = &Heap{}

func (h *Heap) Policy() freelist.FreeListPolicy {
	return h.policy
}

// Bounds returns the offset of the first byte of the heap and the offset one past its last byte
func (h *Heap) Bounds() (lo, hi int) {
	_, hi = h.extender.Bounds()
	return int(h.base), hi
}

// Allocate reserves a block with at least n bytes of payload and returns a pointer to the payload. A
// request for n <= 0 bytes returns Null and no error. If the heap cannot grow far enough, Allocate returns
// an error wrapping memutils.ErrOutOfMemory and leaves the heap unchanged.
func (h *Heap) Allocate(n int) (Pointer, error) {
	h.logger.Debug("Heap::Allocate", slog.Int("Size", n))
	memutils.DebugValidate(h)

	if n <= 0 {
		return Null, nil
	}

	bp, err := h.allocate(n)
	if err != nil {
		h.logger.Debug("    Heap::Allocate FAILED", slog.Any("error", err))
		return Null, err
	}

	return Pointer(bp), nil
}

// Free returns an allocation to the heap. Freeing Null does nothing. Freeing anything other than a live
// allocation of this heap is undefined behavior.
func (h *Heap) Free(p Pointer) {
	h.logger.Debug("Heap::Free", slog.Int("Pointer", int(p)))
	memutils.DebugValidate(h)

	if p == Null {
		return
	}

	h.free(h.checkPointer(p))
}

// Resize moves an allocation into a block with at least n bytes of payload and returns its new location.
// The first min(n, PayloadSize(p)) bytes are preserved. Resizing Null is equivalent to Allocate, and
// resizing to n <= 0 bytes is equivalent to Free and returns Null. If the new block cannot be allocated,
// the error is returned and p remains valid and unchanged.
func (h *Heap) Resize(p Pointer, n int) (Pointer, error) {
	h.logger.Debug("Heap::Resize", slog.Int("Pointer", int(p)), slog.Int("Size", n))

	if p == Null {
		return h.Allocate(n)
	}

	if n <= 0 {
		h.Free(p)
		return Null, nil
	}

	oldSize := h.PayloadSize(p)
	newP, err := h.Allocate(n)
	if err != nil {
		return Null, err
	}

	// Allocate may have moved the arena's backing memory, so both payloads are fetched afterward
	copy(h.Payload(newP), h.Payload(p)[:min(oldSize, n)])
	h.Free(p)

	return newP, nil
}

// ZeroAllocate allocates count*size bytes and zeroes the payload. The multiplication is not checked for
// overflow.
func (h *Heap) ZeroAllocate(count, size int) (Pointer, error) {
	h.logger.Debug("Heap::ZeroAllocate", slog.Int("Count", count), slog.Int("Size", size))

	p, err := h.Allocate(count * size)
	if err != nil || p == Null {
		return p, err
	}

	clear(h.Payload(p))
	return p, nil
}

// Payload returns the bytes of an allocation. The slice aliases heap memory and is invalidated by the
// next call that may grow the heap (Allocate, Resize or ZeroAllocate).
func (h *Heap) Payload(p Pointer) []byte {
	if p == Null {
		return nil
	}

	bp := h.checkPointer(p)
	size := h.payloadSize(bp)
	return h.extender.Bytes()[bp : bp+size : bp+size]
}

// PayloadSize returns the number of usable bytes in an allocation, which may exceed the size requested
func (h *Heap) PayloadSize(p Pointer) int {
	if p == Null {
		return 0
	}

	return int(h.payloadSize(h.checkPointer(p)))
}

func (h *Heap) payloadSize(bp uint32) uint32 {
	return h.codec.PayloadSize(bp) - uint32(memutils.DebugMargin)
}

func (h *Heap) checkPointer(p Pointer) uint32 {
	bp := uint32(p)
	_, hi := h.extender.Bounds()
	memutils.DebugCheckPointer(int(bp), int(block.Alignment), int(h.prologue+block.Alignment), hi)
	return bp
}

func (h *Heap) allocate(n int) (uint32, error) {
	size, ok := h.codec.AdjustedSize(n + memutils.DebugMargin)
	if !ok {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "an allocation of %d bytes is larger than the largest block", n)
	}

	bp := h.index.FindBestFit(size)
	if bp == 0 {
		var err error
		bp, err = h.extendHeap(max(size, h.chunkSize))
		if err != nil {
			return 0, err
		}
	}

	h.place(bp, size)

	if memutils.DebugMargin > 0 {
		memutils.WriteMagicValue(h.extender.Bytes(), int(bp+h.payloadSize(bp)))
	}

	return bp, nil
}

func (h *Heap) free(bp uint32) {
	if memutils.DebugMargin > 0 && !memutils.ValidateMagicValue(h.extender.Bytes(), int(bp+h.payloadSize(bp))) {
		panic(errors.Wrapf(memutils.ErrCorruption, "allocation at offset %d", bp))
	}

	size := h.codec.SizeOf(bp)
	h.allocationCount--
	h.allocationBytes -= int(size)

	h.codec.Mark(bp, size, false, h.codec.IsPrevAllocated(bp))
	h.codec.SetPrevAllocated(h.codec.NextBlock(bp), false)
	h.index.Insert(h.coalesce(bp))
}

// extendHeap grows the heap by size bytes and returns the resulting free block, already merged with a
// free predecessor. The block is not inserted into the index.
func (h *Heap) extendHeap(size uint32) (uint32, error) {
	start, err := h.extender.Extend(int(size))
	if err != nil {
		return 0, err
	}

	h.logger.Debug("    Heap::extendHeap", slog.Int("Size", int(size)), slog.Int("Offset", start))

	// The old epilogue header becomes the new block's header
	bp := uint32(start)
	h.codec.Mark(bp, size, false, h.codec.IsPrevAllocated(bp))
	h.codec.Mark(bp+size, 0, true, false)

	return h.coalesce(bp), nil
}
