package heap

import "github.com/vkngwrapper/segheap/memutils/block"

// place allocates size bytes at the start of the free block bp, which must not be in the index. The
// remainder is split off into a new free block when it is large enough to stand alone.
func (h *Heap) place(bp uint32, size uint32) {
	blockSize := h.codec.SizeOf(bp)
	prevAllocated := h.codec.IsPrevAllocated(bp)

	if blockSize-size >= block.MinBlockSize {
		h.codec.Mark(bp, size, true, prevAllocated)

		remainder := bp + size
		h.codec.Mark(remainder, blockSize-size, false, true)
		h.index.Insert(h.coalesce(remainder))
	} else {
		size = blockSize
		h.codec.Mark(bp, size, true, prevAllocated)
		h.codec.SetPrevAllocated(h.codec.NextBlock(bp), true)
	}

	h.allocationCount++
	h.allocationBytes += int(size)
}
