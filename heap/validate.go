package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/segheap/memutils/block"
	"golang.org/x/exp/slog"
)

// Validate checks every structural invariant of the heap and returns an error describing the first
// violation found
func (h *Heap) Validate() error {
	return h.checkHeap(false)
}

// CheckHeap validates the heap like Validate. When verbose is true, every block is logged at Info level
// as it is visited. A failure is logged at Error level before it is returned.
func (h *Heap) CheckHeap(verbose bool) error {
	err := h.checkHeap(verbose)
	if err != nil {
		h.logger.Error("heap check failed", slog.Any("error", err))
	}
	return err
}

func (h *Heap) checkHeap(verbose bool) error {
	lo, hi := h.Bounds()
	if hi > len(h.extender.Bytes()) {
		return errors.AssertionFailedf("heap bounds [%d, %d) exceed the arena's %d bytes", lo, hi, len(h.extender.Bytes()))
	}

	prologueTag := block.Pack(block.Alignment, true, h.codec.Footerless())
	if h.codec.Word(h.codec.HeaderOf(h.prologue)) != prologueTag || h.codec.Word(h.prologue) != prologueTag {
		return errors.AssertionFailedf("prologue block at offset %d is damaged", h.prologue)
	}

	freeBlocks := swiss.NewMap[uint32, uint32](uint32(h.index.Count() + 1))
	hiOffset := uint32(hi)
	bp := h.prologue + block.Alignment
	prevAllocated := true
	blockBytes := 0

	for {
		if bp > hiOffset {
			return errors.AssertionFailedf("block at offset %d lies outside of the heap [%d, %d)", bp, lo, hi)
		}
		if bp%block.Alignment != 0 {
			return errors.AssertionFailedf("block at offset %d is not aligned to %d bytes", bp, block.Alignment)
		}

		size := h.codec.SizeOf(bp)
		allocated := h.codec.IsAllocated(bp)

		if h.codec.Footerless() && h.codec.IsPrevAllocated(bp) != prevAllocated {
			return errors.AssertionFailedf("block at offset %d records previous block allocated=%t but it is %t", bp, h.codec.IsPrevAllocated(bp), prevAllocated)
		}

		if size == 0 {
			if !allocated {
				return errors.AssertionFailedf("epilogue at offset %d is not marked allocated", bp)
			}
			if bp != hiOffset {
				return errors.AssertionFailedf("epilogue at offset %d is not at the end of the heap %d", bp, hi)
			}
			break
		}

		if verbose {
			h.logger.Info("block",
				slog.Int("Offset", int(bp)),
				slog.Int("Size", int(size)),
				slog.Bool("Allocated", allocated),
				slog.Bool("PrevAllocated", prevAllocated))
		}

		if size < block.MinBlockSize {
			return errors.AssertionFailedf("block at offset %d has size %d, smaller than the minimum %d", bp, size, block.MinBlockSize)
		}
		if uint64(bp)+uint64(size) > uint64(hiOffset) {
			return errors.AssertionFailedf("block at offset %d with size %d runs past the end of the heap %d", bp, size, hi)
		}
		if h.codec.HasFooter(bp) && h.codec.Word(h.codec.FooterOf(bp)) != h.codec.Word(h.codec.HeaderOf(bp)) {
			return errors.AssertionFailedf("block at offset %d has a footer that does not match its header", bp)
		}
		if !allocated {
			if !prevAllocated {
				return errors.AssertionFailedf("block at offset %d and the block before it are both free", bp)
			}
			freeBlocks.Put(bp, size)
		}

		blockBytes += int(size)
		prevAllocated = allocated
		bp += size
	}

	if blockBytes+fixedOverhead != hi-lo {
		return errors.AssertionFailedf("blocks account for %d bytes of a %d byte heap", blockBytes+fixedOverhead, hi-lo)
	}

	err := h.index.Validate(func(bp uint32) error {
		size, ok := freeBlocks.Get(bp)
		if !ok {
			return errors.AssertionFailedf("free-block index holds offset %d, which is not a free block", bp)
		}
		if size != h.codec.SizeOf(bp) {
			return errors.AssertionFailedf("free-block index holds offset %d with size %d, expected %d", bp, h.codec.SizeOf(bp), size)
		}
		freeBlocks.Delete(bp)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "invalid free-block index")
	}

	if freeBlocks.Count() > 0 {
		var missing uint32
		freeBlocks.Iter(func(bp uint32, _ uint32) bool {
			missing = bp
			return true
		})
		return errors.AssertionFailedf("free block at offset %d is missing from the free-block index (%d missing)", missing, freeBlocks.Count())
	}

	return nil
}
