// Package cursor implements traversal over the two sequence primitives a
// journal file is built from: the offset-array chain (a geometrically
// growing singly-linked list of fixed-capacity item arrays) and the
// higher-level entry Cursor built on top of it that a reader steps through
// while applying match filters.
package cursor

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/object"
)

// ArrayCursor walks a chain of EntryArray nodes (or, structurally
// identically, the items of a DataHashTable/FieldHashTable's collision
// chains are walked via Entry/Data/Field next-offset pointers directly, not
// through this type). ArrayCursor holds a logical position: a node plus an
// index into that node's items.
type ArrayCursor struct {
	src     object.Source
	head    uint64
	compact bool

	nodeOffset uint64
	node       object.EntryArray
	release    func()
	index      int // index within the current node; -1 means unpositioned
	nodeOrdinal int
}

// NewArrayCursor creates a cursor over the offset-array chain rooted at
// head. head may be zero (an empty chain); every positioning method then
// returns errs.ErrEmptyArrayChain.
func NewArrayCursor(src object.Source, head uint64, compact bool) *ArrayCursor {
	return &ArrayCursor{src: src, head: head, compact: compact, index: -1}
}

// Close releases the currently loaded node, if any.
func (c *ArrayCursor) Close() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

func (c *ArrayCursor) loadNode(offset uint64) error {
	if !format.IsAligned(offset) {
		return errs.NewOffsetError("load entry array node", offset, errs.ErrNullOffset)
	}

	h, data, release, err := object.Load(c.src, offset, format.ObjectEntryArray)
	if err != nil {
		return err
	}

	node, err := object.ParseEntryArray(h, data, offset, c.compact)
	if err != nil {
		release()
		return err
	}

	c.Close()
	c.nodeOffset = offset
	c.node = node
	c.release = release

	return nil
}

// First positions the cursor at the first item of the chain.
func (c *ArrayCursor) First() (uint64, error) {
	if c.head == 0 {
		return 0, errs.ErrEmptyArrayChain
	}
	if err := c.loadNode(c.head); err != nil {
		return 0, err
	}
	c.nodeOrdinal = 0
	c.index = 0

	return c.node.Item(0)
}

// Last positions the cursor at the final non-zero item of the chain. It
// walks the entire chain since EntryArray nodes are singly linked forward
// only, matching the on-disk format.
func (c *ArrayCursor) Last() (uint64, error) {
	if c.head == 0 {
		return 0, errs.ErrEmptyArrayChain
	}

	offset := c.head
	var lastNodeOffset uint64
	var lastIndex int
	var lastValue uint64
	found := false
	ordinal := 0
	lastOrdinal := 0

	for offset != 0 {
		if err := c.loadNode(offset); err != nil {
			return 0, err
		}
		for i := 0; i < c.node.Capacity(); i++ {
			v, err := c.node.Item(i)
			if err != nil {
				return 0, err
			}
			if v != 0 {
				lastNodeOffset = offset
				lastIndex = i
				lastValue = v
				lastOrdinal = ordinal
				found = true
			}
		}
		offset = c.node.NextEntryArrayOffset
		ordinal++
	}

	if !found {
		return 0, errs.ErrEmptyArrayChain
	}

	if err := c.loadNode(lastNodeOffset); err != nil {
		return 0, err
	}
	c.index = lastIndex
	c.nodeOrdinal = lastOrdinal

	return lastValue, nil
}

// Next advances the cursor by one item, returning errs.ErrInvalidArrayIndex
// once the chain is exhausted.
func (c *ArrayCursor) Next() (uint64, error) {
	if c.index < 0 {
		return c.First()
	}

	if c.index+1 < c.node.Capacity() {
		v, err := c.node.Item(c.index + 1)
		if err != nil {
			return 0, err
		}
		if v != 0 {
			c.index++
			return v, nil
		}
		return 0, errs.ErrInvalidArrayIndex
	}

	next := c.node.NextEntryArrayOffset
	if next == 0 {
		return 0, errs.ErrInvalidArrayIndex
	}

	if err := c.loadNode(next); err != nil {
		return 0, err
	}
	c.nodeOrdinal++
	c.index = 0

	return c.node.Item(0)
}

// Previous steps the cursor back by one item within the current node. Since
// nodes are singly linked forward only, stepping back across a node
// boundary requires re-walking from First(); callers that need frequent
// backward iteration should prefer First()/Next() and buffer results.
func (c *ArrayCursor) Previous() (uint64, error) {
	if c.index < 0 {
		return 0, errs.ErrUnsetCursor
	}
	if c.index > 0 {
		c.index--
		return c.node.Item(c.index)
	}
	if c.nodeOrdinal == 0 {
		return 0, errs.ErrInvalidArrayIndex
	}

	// Re-walk from the head to find the node preceding the current one.
	target := c.nodeOrdinal - 1
	offset := c.head
	for i := 0; i < target; i++ {
		if err := c.loadNode(offset); err != nil {
			return 0, err
		}
		offset = c.node.NextEntryArrayOffset
	}
	if err := c.loadNode(offset); err != nil {
		return 0, err
	}
	c.nodeOrdinal = target
	c.index = c.node.Capacity() - 1

	return c.node.Item(c.index)
}

// Direction selects which end of a monotone predicate's transition
// DirectedPartitionPoint reports.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// DirectedPartitionPoint locates the boundary of a chain whose items are
// monotonically ordered by whatever key pred tests (e.g. realtime
// timestamp), assuming pred is false for a prefix of the chain and true for
// the rest. Forward returns the first item for which pred is true; Backward
// returns the last item for which pred is false. It scans the chain rather
// than bisecting node-to-node: the chain's node sizes aren't indexable
// without walking them, so this trades the theoretical O(log n) of
// systemd's generic_array_bisect for a simple O(n) scan.
func (c *ArrayCursor) DirectedPartitionPoint(pred func(item uint64) bool, direction Direction) (uint64, bool, error) {
	if direction == Backward {
		return c.directedPartitionPointBackward(pred)
	}
	return c.directedPartitionPointForward(pred)
}

func (c *ArrayCursor) directedPartitionPointForward(pred func(item uint64) bool) (uint64, bool, error) {
	v, err := c.First()
	if err == errs.ErrEmptyArrayChain {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	for {
		if pred(v) {
			return v, true, nil
		}
		v, err = c.Next()
		if err == errs.ErrInvalidArrayIndex {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
	}
}

// directedPartitionPointBackward finds the logical index of the last item
// for which pred is false, then re-walks from the head to leave the cursor
// positioned there (ArrayCursor nodes are singly linked forward only, so a
// found-while-scanning-forward position can't be retained directly once the
// scan has moved past it).
func (c *ArrayCursor) directedPartitionPointBackward(pred func(item uint64) bool) (uint64, bool, error) {
	v, err := c.First()
	if err == errs.ErrEmptyArrayChain {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	targetIndex := -1
	idx := 0
	for !pred(v) {
		targetIndex = idx
		v, err = c.Next()
		if err == errs.ErrInvalidArrayIndex {
			break
		}
		if err != nil {
			return 0, false, err
		}
		idx++
	}

	if targetIndex < 0 {
		return 0, false, nil
	}

	v, err = c.First()
	if err != nil {
		return 0, false, err
	}
	for i := 0; i < targetIndex; i++ {
		v, err = c.Next()
		if err != nil {
			return 0, false, err
		}
	}

	return v, true, nil
}
