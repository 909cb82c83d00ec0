package heap

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/segheap/memutils"
	"github.com/vkngwrapper/segheap/memutils/arena"
	"github.com/vkngwrapper/segheap/memutils/block"
	"github.com/vkngwrapper/segheap/memutils/freelist"
	"golang.org/x/exp/slog"
)

const (
	// DefaultChunkSize is the minimum number of bytes a heap is extended by when no free block can
	// satisfy a request and ChunkSize was not provided
	DefaultChunkSize int = 64
)

// CreateOptions contains optional settings when creating a heap. It is valid to leave all the fields blank.
type CreateOptions struct {
	// Policy selects the free-list configuration. GraduatedPolicy is used if none is provided.
	Policy freelist.FreeListPolicy
	// ChunkSize is the minimum number of bytes the heap grows by. It must be a multiple of 8 and no
	// smaller than 16.
	ChunkSize int

	// MaxHeapSize is the number of bytes past which the default arena refuses to grow. It is ignored
	// when Extender is provided.
	MaxHeapSize int
	// PageSize is the granularity in which the default arena reserves backing memory. It must be a
	// power of two and is ignored when Extender is provided.
	PageSize int

	// Extender can be used to supply the heap's host memory. If it is nil, a new arena.Arena is created
	// from MaxHeapSize and PageSize.
	Extender arena.Extender
}

// New creates a heap and performs its first extension, so the returned heap already holds one free
// block of ChunkSize bytes.
//
// logger - The logger that heap operations will be reported to. If it is nil, nothing is logged.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Heap, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	policy := options.Policy
	if policy == nil {
		policy = freelist.GraduatedPolicy{}
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < int(block.MinBlockSize) || !memutils.IsAligned(chunkSize, int(block.Alignment)) {
		return nil, errors.Newf("heap.CreateOptions.ChunkSize must be a multiple of %d no smaller than %d, but it was %d", block.Alignment, block.MinBlockSize, chunkSize)
	}
	if chunkSize > int(block.MaxBlockSize) {
		return nil, errors.Newf("heap.CreateOptions.ChunkSize %d is larger than the largest block", chunkSize)
	}

	extender := options.Extender
	if extender == nil {
		var err error
		extender, err = arena.New(options.MaxHeapSize, options.PageSize)
		if err != nil {
			return nil, errors.Wrap(err, "could not create the default arena")
		}
	}

	codec := block.NewCodec(extender, policy.OmitAllocatedFooters())
	h := &Heap{
		logger:    logger,
		policy:    policy,
		extender:  extender,
		codec:     codec,
		index:     freelist.NewIndex(codec, policy),
		chunkSize: uint32(chunkSize),
	}

	err := h.init()
	if err != nil {
		return nil, err
	}

	return h, nil
}

// init lays out the padding word, the prologue and the epilogue, then extends the heap by one chunk
func (h *Heap) init() error {
	start, err := h.extender.Extend(fixedOverhead)
	if err != nil {
		return errors.Wrap(err, "could not create the initial heap")
	}
	if !memutils.IsAligned(start, int(block.Alignment)) {
		return errors.Newf("heap extender returned misaligned offset %d", start)
	}

	h.base = uint32(start)
	h.prologue = h.base + block.Alignment

	h.codec.PutWord(h.base, 0)
	h.codec.Mark(h.prologue, block.Alignment, true, true)
	// The prologue keeps its footer under every policy
	h.codec.PutWord(h.prologue, h.codec.Word(h.codec.HeaderOf(h.prologue)))
	h.codec.Mark(h.prologue+block.Alignment, 0, true, true)

	bp, err := h.extendHeap(h.chunkSize)
	if err != nil {
		return err
	}
	h.index.Insert(bp)

	h.logger.Debug("Heap::New",
		slog.String("Policy", h.policy.String()),
		slog.Int("ChunkSize", int(h.chunkSize)),
		slog.Int("Base", int(h.base)))
	return nil
}
