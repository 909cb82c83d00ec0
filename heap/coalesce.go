package heap

// coalesce merges the free block bp with whichever physical neighbours are free and returns the merged
// block. Merged neighbours are removed from the index, but the result is not inserted.
func (h *Heap) coalesce(bp uint32) uint32 {
	size := h.codec.SizeOf(bp)
	next := h.codec.NextBlock(bp)
	prevAllocated := h.codec.IsPrevAllocated(bp)
	nextAllocated := h.codec.IsAllocated(next)

	if prevAllocated && nextAllocated {
		h.index.ResetLinks(bp)
		return bp
	}

	if !nextAllocated {
		h.index.Remove(next)
		size += h.codec.SizeOf(next)
	}

	if !prevAllocated {
		prev := h.codec.PrevBlock(bp)
		h.index.Remove(prev)
		size += h.codec.SizeOf(prev)
		bp = prev
	}

	h.codec.Mark(bp, size, false, h.codec.IsPrevAllocated(bp))
	h.index.ResetLinks(bp)
	return bp
}
