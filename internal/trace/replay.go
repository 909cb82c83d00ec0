package trace

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/segheap/heap"
	"golang.org/x/exp/slog"
)

// Allocator is the surface of heap.Heap that a replay drives
type Allocator interface {
	Allocate(n int) (heap.Pointer, error)
	Free(p heap.Pointer)
	Resize(p heap.Pointer, n int) (heap.Pointer, error)
	Payload(p heap.Pointer) []byte
	Bounds() (lo, hi int)
	Validate() error
}

var _ Allocator = &heap.Heap{}

type ReplayOptions struct {
	// Validate runs the allocator's Validate after every op
	Validate bool
	// Logger receives a Debug record for every op. If it is nil, nothing is logged.
	Logger *slog.Logger
}

type Result struct {
	Ops int
	// PeakPayload is the largest number of requested bytes that were live at once
	PeakPayload int
	// HeapBytes is the size of the heap after the replay
	HeapBytes int
}

// Utilization is the ratio of peak live payload to final heap size
func (r Result) Utilization() float64 {
	if r.HeapBytes == 0 {
		return 0
	}
	return float64(r.PeakPayload) / float64(r.HeapBytes)
}

type liveBlock struct {
	p    heap.Pointer
	size int
}

// pattern is the byte expected at offset index of allocation id's payload
func pattern(id, index int) byte {
	return byte(id*31 + index + 1)
}

type replayer struct {
	alloc  Allocator
	logger *slog.Logger
	live   *swiss.Map[int, liveBlock]

	payload int
	result  Result
}

// Replay runs every op of t against alloc. It stops at the first op that fails, whose allocator
// returns an error, or whose results are inconsistent with the allocations still live.
func Replay(alloc Allocator, t *Trace, opts ReplayOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &replayer{
		alloc:  alloc,
		logger: logger,
		live:   swiss.NewMap[int, liveBlock](uint32(max(t.IDCount, 1))),
	}

	for _, op := range t.Ops {
		err := r.apply(op)
		if err == nil && opts.Validate {
			err = alloc.Validate()
		}
		if err != nil {
			return r.result, errors.Wrapf(err, "line %d (%s %d)", op.Line, op.Kind, op.ID)
		}
		r.result.Ops++
	}

	lo, hi := alloc.Bounds()
	r.result.HeapBytes = hi - lo
	return r.result, nil
}

func (r *replayer) apply(op Op) error {
	r.logger.Debug("Trace::apply", slog.String("Op", op.Kind.String()), slog.Int("ID", op.ID), slog.Int("Size", op.Size))

	switch op.Kind {
	case OpAllocate:
		if _, ok := r.live.Get(op.ID); ok {
			return errors.Newf("id %d is already allocated", op.ID)
		}

		p, err := r.alloc.Allocate(op.Size)
		if err != nil {
			return err
		}
		return r.track(op.ID, p, op.Size, 0)

	case OpResize:
		block, ok := r.live.Get(op.ID)
		if !ok {
			return errors.Newf("id %d is not allocated", op.ID)
		}
		err := r.verify(op.ID, block)
		if err != nil {
			return err
		}

		p, err := r.alloc.Resize(block.p, op.Size)
		if err != nil {
			return err
		}
		r.live.Delete(op.ID)
		r.payload -= block.size
		return r.track(op.ID, p, op.Size, min(block.size, op.Size))

	case OpFree:
		block, ok := r.live.Get(op.ID)
		if !ok {
			return errors.Newf("id %d is not allocated", op.ID)
		}
		err := r.verify(op.ID, block)
		if err != nil {
			return err
		}

		r.alloc.Free(block.p)
		r.live.Delete(op.ID)
		r.payload -= block.size
		return nil
	}

	return errors.AssertionFailedf("unknown op kind %d", op.Kind)
}

// track checks a fresh allocation against the heap bounds and every live allocation, then fills the
// bytes past preserved with the id's pattern and starts tracking it
func (r *replayer) track(id int, p heap.Pointer, size int, preserved int) error {
	if size > 0 {
		if p == heap.Null {
			return errors.Newf("allocation of %d bytes returned a null pointer", size)
		}

		lo, hi := r.alloc.Bounds()
		if int(p) < lo || int(p)+size > hi {
			return errors.Newf("payload [%d, %d) lies outside of the heap [%d, %d)", p, int(p)+size, lo, hi)
		}

		payload := r.alloc.Payload(p)
		if len(payload) < size {
			return errors.Newf("payload at %d holds %d bytes but %d were requested", p, len(payload), size)
		}

		var overlapErr error
		r.live.Iter(func(otherID int, other liveBlock) bool {
			if other.size > 0 && int(p) < int(other.p)+other.size && int(other.p) < int(p)+size {
				overlapErr = errors.Newf("payload [%d, %d) overlaps id %d at [%d, %d)", p, int(p)+size, otherID, other.p, int(other.p)+other.size)
				return true
			}
			return false
		})
		if overlapErr != nil {
			return overlapErr
		}

		for i := preserved; i < size; i++ {
			payload[i] = pattern(id, i)
		}
	}

	block := liveBlock{p: p, size: size}
	if preserved > 0 {
		err := r.verify(id, liveBlock{p: p, size: preserved})
		if err != nil {
			return errors.Wrap(err, "resize did not preserve the payload")
		}
	}

	r.live.Put(id, block)
	r.payload += size
	r.result.PeakPayload = max(r.result.PeakPayload, r.payload)
	return nil
}

func (r *replayer) verify(id int, block liveBlock) error {
	if block.size == 0 {
		return nil
	}

	payload := r.alloc.Payload(block.p)
	for i := 0; i < block.size; i++ {
		if payload[i] != pattern(id, i) {
			return errors.Newf("payload of id %d was overwritten at byte %d", id, i)
		}
	}
	return nil
}
