// Package arena provides the host side of a heap: a contiguous, growable byte region that is extended
// monotonically. Offsets handed out by an Extender are indices into the slice returned by Bytes, which
// remain valid across extensions even when the backing slice is reallocated.
package arena

import (
	"math"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/segheap/memutils"
)

const (
	// DefaultPageSize is the granularity in which backing memory is reserved when PageSize is not provided
	DefaultPageSize int = 4096
	// DefaultLimit is the maximum heap size used when no limit is provided. It is equal to 1Gb.
	DefaultLimit int = 1024 * 1024 * 1024
	// MaxLimit is the largest heap an Arena can manage: every offset must fit in 32 bits
	MaxLimit int = math.MaxUint32 &^ 7
)

// Extender is the single primitive a heap consumes from its host.
type Extender interface {
	// Extend grows the heap by exactly n bytes and returns the offset of the first new byte. It returns an
	// error wrapping memutils.ErrOutOfMemory when no more memory is available, in which case the heap is
	// left unchanged.
	Extend(n int) (int, error)
	// Bounds returns the offset of the first byte of the heap and the offset one past its last byte
	Bounds() (lo, hi int)
	// Bytes returns the current heap contents. The slice is invalidated by the next call to Extend.
	Bytes() []byte
}

// Arena is an Extender backed by a Go byte slice. Backing capacity is reserved in whole pages and
// doubles as the heap grows, up to a hard limit.
//
// Arena is not safe for concurrent use.
type Arena struct {
	buf      []byte
	limit    int
	pageSize int
	extends  int
}

var _ Extender = &Arena{}

// New creates an empty Arena that will refuse to grow beyond limit bytes. A limit of 0 selects DefaultLimit
// and a pageSize of 0 selects DefaultPageSize. pageSize must be a power of two.
func New(limit int, pageSize int) (*Arena, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	if limit < 0 || uint64(limit) > uint64(MaxLimit) {
		return nil, errors.Newf("arena limit %d must be between 1 and %d", limit, MaxLimit)
	}

	err := memutils.CheckPow2(pageSize, "pageSize")
	if err != nil {
		return nil, err
	}

	return &Arena{
		limit:    limit,
		pageSize: pageSize,
	}, nil
}

func (a *Arena) Extend(n int) (int, error) {
	if n < 0 {
		return -1, errors.Newf("attempted to extend the arena by a negative size %d", n)
	}

	start := len(a.buf)
	if n > a.limit-start {
		return -1, errors.Wrapf(memutils.ErrOutOfMemory, "cannot extend a heap of %d bytes by %d bytes: limit is %d", start, n, a.limit)
	}

	if start+n > cap(a.buf) {
		a.reserve(start + n)
	}

	a.buf = a.buf[:start+n]
	a.extends++

	return start, nil
}

func (a *Arena) reserve(minCapacity int) {
	newCapacity := memutils.AlignUp(max(minCapacity, 2*cap(a.buf)), a.pageSize)
	if newCapacity > a.limit {
		newCapacity = max(minCapacity, a.limit)
	}

	buf := dirtmake.Bytes(len(a.buf), newCapacity)
	copy(buf, a.buf)
	a.buf = buf
}

func (a *Arena) Bounds() (lo, hi int) {
	return 0, len(a.buf)
}

func (a *Arena) Bytes() []byte {
	return a.buf
}

// Limit returns the largest size this arena will grow to
func (a *Arena) Limit() int { return a.limit }

// Reserved returns the number of bytes of backing memory currently held, which is at least the heap size
func (a *Arena) Reserved() int { return cap(a.buf) }

// ExtendCount returns the number of successful calls to Extend
func (a *Arena) ExtendCount() int { return a.extends }
