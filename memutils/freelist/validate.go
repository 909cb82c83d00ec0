package freelist

import (
	"github.com/cockroachdb/errors"
)

type validateFrame struct {
	node   uint32
	parent uint32
	// sizes in the subtree must lie strictly between lower and upper, upper == 0 is unbounded
	lower uint32
	upper uint32
}

// Validate checks the structure of every bin and of the tree, calling visit once for every block found.
// It stops at the first inconsistency, including any error returned from visit.
func (i *Index) Validate(visit func(bp uint32) error) error {
	seen := 0
	seenBytes := 0

	checkNode := func(bp uint32) error {
		seen++
		if seen > i.count {
			return errors.Newf("index holds more than the %d blocks it has counted", i.count)
		}
		if !i.codec.Contains(bp) {
			return errors.Newf("index link %d is outside the heap", bp)
		}
		if i.codec.IsAllocated(bp) {
			return errors.Newf("block at offset %d is in the index but allocated", bp)
		}
		seenBytes += int(i.codec.SizeOf(bp))
		if visit != nil {
			return visit(bp)
		}
		return nil
	}

	for bin, head := range i.bins {
		binSize := i.policy.SmallClassSize(bin)
		var prev uint32

		for bp := head; bp != 0; bp = i.codec.Next(bp) {
			err := checkNode(bp)
			if err != nil {
				return err
			}
			if i.codec.SizeOf(bp) != binSize {
				return errors.Newf("block at offset %d has size %d but is in the %d-byte bin", bp, i.codec.SizeOf(bp), binSize)
			}
			if i.codec.Prev(bp) != prev {
				return errors.Newf("block at offset %d has previous link %d, expected %d", bp, i.codec.Prev(bp), prev)
			}
			prev = bp
		}
	}

	var stack []validateFrame
	if i.root != 0 {
		stack = append(stack, validateFrame{node: i.root})
	}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bp := frame.node
		err := checkNode(bp)
		if err != nil {
			return err
		}

		size := i.codec.SizeOf(bp)
		if i.policy.SmallClassIndex(size) >= 0 {
			return errors.Newf("block at offset %d has size %d but is in the tree", bp, size)
		}
		if size <= frame.lower || (frame.upper != 0 && size >= frame.upper) {
			return errors.Newf("tree node at offset %d with size %d is out of order", bp, size)
		}
		if i.codec.Prev(bp) != frame.parent {
			return errors.Newf("tree node at offset %d has parent link %d, expected %d", bp, i.codec.Prev(bp), frame.parent)
		}

		prev := bp
		for member := i.codec.Next(bp); member != 0; member = i.codec.Next(member) {
			err = checkNode(member)
			if err != nil {
				return err
			}
			if i.codec.SizeOf(member) != size {
				return errors.Newf("chain member at offset %d has size %d, expected %d", member, i.codec.SizeOf(member), size)
			}
			if i.codec.Prev(member) != prev {
				return errors.Newf("chain member at offset %d has previous link %d, expected %d", member, i.codec.Prev(member), prev)
			}
			if i.codec.Left(member) != 0 || i.codec.Right(member) != 0 {
				return errors.Newf("chain member at offset %d has children", member)
			}
			prev = member
		}

		if left := i.codec.Left(bp); left != 0 {
			stack = append(stack, validateFrame{node: left, parent: bp, lower: frame.lower, upper: size})
		}
		if right := i.codec.Right(bp); right != 0 {
			stack = append(stack, validateFrame{node: right, parent: bp, lower: size, upper: frame.upper})
		}
	}

	if seen != i.count {
		return errors.Newf("index counted %d blocks but holds %d", i.count, seen)
	}
	if seenBytes != i.bytes {
		return errors.Newf("index counted %d free bytes but holds %d", i.bytes, seenBytes)
	}

	return nil
}
