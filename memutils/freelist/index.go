// Package freelist tracks the free blocks of a boundary-tag heap. Small blocks live in exact-size LIFO
// bins and everything else lives in a binary search tree keyed by block size, with blocks of equal size
// chained behind a single tree node. All links are stored inside the free blocks themselves.
package freelist

import (
	"fmt"

	"github.com/vkngwrapper/segheap/memutils/block"
)

const (
	binLinkWords  = 2
	treeLinkWords = 4
)

// Index is the free-block index of a single heap. It is not safe for concurrent use.
type Index struct {
	codec  block.Codec
	policy FreeListPolicy

	bins  []uint32
	root  uint32
	count int
	bytes int
}

func NewIndex(codec block.Codec, policy FreeListPolicy) *Index {
	if codec.Footerless() != policy.OmitAllocatedFooters() {
		panic(fmt.Sprintf("codec footer mode does not match policy %s", policy))
	}

	return &Index{
		codec:  codec,
		policy: policy,
		bins:   make([]uint32, policy.SmallClassCount()),
	}
}

func (i *Index) Policy() FreeListPolicy {
	return i.policy
}

// Count is the number of blocks currently in the index
func (i *Index) Count() int {
	return i.count
}

// FreeBytes is the sum of the sizes of all blocks currently in the index
func (i *Index) FreeBytes() int {
	return i.bytes
}

// Clear forgets every block in the index without touching heap memory
func (i *Index) Clear() {
	for bin := range i.bins {
		i.bins[bin] = 0
	}
	i.root = 0
	i.count = 0
	i.bytes = 0
}

// ResetLinks clears every link field that the block would use as a member of the index
func (i *Index) ResetLinks(bp uint32) {
	if i.policy.SmallClassIndex(i.codec.SizeOf(bp)) >= 0 {
		i.codec.ClearLinks(bp, binLinkWords)
		return
	}
	i.codec.ClearLinks(bp, treeLinkWords)
}

// Insert adds a free block to the bin or tree its size belongs to
func (i *Index) Insert(bp uint32) {
	if i.codec.IsAllocated(bp) {
		panic(fmt.Sprintf("block at offset %d is not free", bp))
	}

	size := i.codec.SizeOf(bp)
	if size < block.MinBlockSize {
		panic(fmt.Sprintf("block at offset %d has invalid size %d", bp, size))
	}

	class := i.policy.SmallClassIndex(size)
	if class >= 0 {
		head := i.bins[class]
		i.codec.SetPrev(bp, 0)
		i.codec.SetNext(bp, head)
		if head != 0 {
			i.codec.SetPrev(head, bp)
		}
		i.bins[class] = bp
	} else {
		i.insertNode(bp, size)
	}

	i.count++
	i.bytes += int(size)
}

// Remove unlinks a block that is currently in the index
func (i *Index) Remove(bp uint32) {
	if i.codec.IsAllocated(bp) {
		panic(fmt.Sprintf("block at offset %d is not free", bp))
	}
	if i.count == 0 {
		panic("cannot remove a block from an empty index")
	}

	size := i.codec.SizeOf(bp)
	class := i.policy.SmallClassIndex(size)
	if class >= 0 {
		prev := i.codec.Prev(bp)
		next := i.codec.Next(bp)

		if prev != 0 {
			i.codec.SetNext(prev, next)
		} else {
			if i.bins[class] != bp {
				panic("block was not in the free list at the expected location")
			}
			i.bins[class] = next
		}
		if next != 0 {
			i.codec.SetPrev(next, prev)
		}
	} else {
		i.removeNode(bp, size)
	}

	i.count--
	i.bytes -= int(size)
}

// FindBestFit removes and returns the smallest free block of at least size bytes, or 0 if there is none.
// Requests that map to a small bin take from that bin, then from larger bins in order, and finally from
// the tree.
func (i *Index) FindBestFit(size uint32) uint32 {
	class := i.policy.SmallClassIndex(size)
	if class >= 0 {
		for bin := class; bin < len(i.bins); bin++ {
			bp := i.bins[bin]
			if bp != 0 {
				i.Remove(bp)
				return bp
			}
		}
	}

	bp := i.findNode(size)
	if bp != 0 {
		i.Remove(bp)
	}
	return bp
}
