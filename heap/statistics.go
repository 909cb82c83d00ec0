package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/segheap/memutils"
	"github.com/vkngwrapper/segheap/memutils/block"
	"golang.org/x/exp/slog"
)

// BlockType describes what occupies a block in the detailed heap map
type BlockType uint32

const (
	BlockTypeFree BlockType = iota
	BlockTypeAllocation
)

var blockTypeMapping = map[BlockType]string{
	BlockTypeFree:       "FREE",
	BlockTypeAllocation: "ALLOCATION",
}

func (t BlockType) String() string {
	return blockTypeMapping[t]
}

// visitBlocks calls handleBlock for every block between the prologue and the epilogue, in address order
func (h *Heap) visitBlocks(handleBlock func(bp uint32, size uint32, allocated bool) error) error {
	for bp := h.prologue + block.Alignment; ; {
		size := h.codec.SizeOf(bp)
		if size == 0 {
			return nil
		}

		err := handleBlock(bp, size, h.codec.IsAllocated(bp))
		if err != nil {
			return err
		}
		bp += size
	}
}

// AddStatistics adds the heap's running totals to stats. It does not walk the heap.
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	lo, hi := h.Bounds()

	stats.HeapBytes += hi - lo
	stats.AllocationCount += h.allocationCount
	stats.AllocationBytes += h.allocationBytes
	stats.FreeBlockCount += h.index.Count()
	stats.FreeBytes += h.index.FreeBytes()
}

// AddDetailedStatistics walks every block in the heap and adds it to stats
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	lo, hi := h.Bounds()
	stats.HeapBytes += hi - lo

	_ = h.visitBlocks(func(bp uint32, size uint32, allocated bool) error {
		if allocated {
			stats.AddAllocation(int(size))
		} else {
			stats.AddFreeBlock(int(size))
		}
		return nil
	})
}

// PrintDetailedMap writes a JSON object describing the heap and every block in it
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	lo, hi := h.Bounds()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Policy").String(h.policy.String())
	objState.Name("TotalBytes").Int(hi - lo)
	objState.Name("UnusedBytes").Int(h.index.FreeBytes())
	objState.Name("Allocations").Int(h.allocationCount)
	objState.Name("UnusedRanges").Int(h.index.Count())

	arrayState := objState.Name("Blocks").Array()
	defer arrayState.End()

	_ = h.visitBlocks(func(bp uint32, size uint32, allocated bool) error {
		obj := arrayState.Object()
		defer obj.End()

		blockType := BlockTypeFree
		if allocated {
			blockType = BlockTypeAllocation
		}

		obj.Name("Offset").Int(int(bp))
		obj.Name("Size").Int(int(size))
		obj.Name("Type").String(blockType.String())
		return nil
	})
}

// CheckCorruption verifies the debug margin behind every live allocation and returns an error wrapping
// memutils.ErrCorruption for the first damaged one. Margins only exist when built with the
// debug_mem_utils tag; otherwise this always succeeds.
func (h *Heap) CheckCorruption() error {
	h.logger.Debug("Heap::CheckCorruption")

	if memutils.DebugMargin == 0 {
		return nil
	}

	return h.visitBlocks(func(bp uint32, size uint32, allocated bool) error {
		if !allocated {
			return nil
		}

		if !memutils.ValidateMagicValue(h.extender.Bytes(), int(bp+h.payloadSize(bp))) {
			h.logger.Error("corruption detected", slog.Int("Offset", int(bp)), slog.Int("Size", int(size)))
			return errors.Wrapf(memutils.ErrCorruption, "allocation at offset %d", bp)
		}
		return nil
	})
}
