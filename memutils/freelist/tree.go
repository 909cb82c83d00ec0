package freelist

import "fmt"

// Tree nodes reuse the prev link: for a chain head it points at the parent node, for every other chain
// member it points at the previous member of the chain. Only chain heads have left and right links.

func (i *Index) replaceChild(parent, old, replacement uint32) {
	switch {
	case parent == 0:
		if i.root != old {
			panic(fmt.Sprintf("block at offset %d has no parent but is not the tree root", old))
		}
		i.root = replacement
	case i.codec.Left(parent) == old:
		i.codec.SetLeft(parent, replacement)
	case i.codec.Right(parent) == old:
		i.codec.SetRight(parent, replacement)
	default:
		panic(fmt.Sprintf("block at offset %d is not a child of its parent %d", old, parent))
	}
}

func (i *Index) insertNode(bp, size uint32) {
	i.codec.ClearLinks(bp, treeLinkWords)

	if i.root == 0 {
		i.root = bp
		return
	}

	node := i.root
	for {
		nodeSize := i.codec.SizeOf(node)

		if size == nodeSize {
			// The new block takes over the node's place in the tree and the old head
			// becomes the second member of the chain
			parent := i.codec.Prev(node)
			left := i.codec.Left(node)
			right := i.codec.Right(node)

			i.codec.SetPrev(bp, parent)
			i.codec.SetNext(bp, node)
			i.codec.SetLeft(bp, left)
			i.codec.SetRight(bp, right)
			if left != 0 {
				i.codec.SetPrev(left, bp)
			}
			if right != 0 {
				i.codec.SetPrev(right, bp)
			}
			i.replaceChild(parent, node, bp)

			i.codec.SetPrev(node, bp)
			i.codec.SetLeft(node, 0)
			i.codec.SetRight(node, 0)
			return
		}

		var child uint32
		if size < nodeSize {
			child = i.codec.Left(node)
			if child == 0 {
				i.codec.SetLeft(node, bp)
			}
		} else {
			child = i.codec.Right(node)
			if child == 0 {
				i.codec.SetRight(node, bp)
			}
		}

		if child == 0 {
			i.codec.SetPrev(bp, node)
			return
		}
		node = child
	}
}

func (i *Index) removeNode(bp, size uint32) {
	parent := i.codec.Prev(bp)
	next := i.codec.Next(bp)

	// Chain member behind the head
	if parent != 0 && i.codec.SizeOf(parent) == size {
		i.codec.SetNext(parent, next)
		if next != 0 {
			i.codec.SetPrev(next, parent)
		}
		return
	}

	left := i.codec.Left(bp)
	right := i.codec.Right(bp)

	// Chain head with followers: promote the next member
	if next != 0 {
		i.codec.SetPrev(next, parent)
		i.codec.SetLeft(next, left)
		i.codec.SetRight(next, right)
		if left != 0 {
			i.codec.SetPrev(left, next)
		}
		if right != 0 {
			i.codec.SetPrev(right, next)
		}
		i.replaceChild(parent, bp, next)
		return
	}

	var replacement uint32
	switch {
	case left == 0:
		replacement = right
	case right == 0:
		replacement = left
	case i.codec.Left(right) == 0:
		replacement = right
		i.codec.SetLeft(right, left)
		i.codec.SetPrev(left, right)
	default:
		successor := i.codec.Left(right)
		for i.codec.Left(successor) != 0 {
			successor = i.codec.Left(successor)
		}

		successorParent := i.codec.Prev(successor)
		successorRight := i.codec.Right(successor)
		i.codec.SetLeft(successorParent, successorRight)
		if successorRight != 0 {
			i.codec.SetPrev(successorRight, successorParent)
		}

		i.codec.SetLeft(successor, left)
		i.codec.SetPrev(left, successor)
		i.codec.SetRight(successor, right)
		i.codec.SetPrev(right, successor)
		replacement = successor
	}

	if replacement != 0 {
		i.codec.SetPrev(replacement, parent)
	}
	i.replaceChild(parent, bp, replacement)
}

// findNode returns the tree node whose size is the smallest one at least size, without removing it
func (i *Index) findNode(size uint32) uint32 {
	var candidate uint32
	node := i.root

	for node != 0 {
		nodeSize := i.codec.SizeOf(node)
		if nodeSize == size {
			return node
		}

		if nodeSize > size {
			candidate = node
			node = i.codec.Left(node)
		} else {
			node = i.codec.Right(node)
		}
	}

	return candidate
}
