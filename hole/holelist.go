package hole

import (
	"github.com/cockroachdb/errors"
	"github.com/holeheap/holeheap/memutils"
)

// HoleList is the ordered, intrusive, singly-linked list of free blocks
// inside a managed region [bottom, top). Its head is a sentinel Hole with
// size 0 so insertion and removal never need an empty-list special case
// (invariant I5).
type HoleList struct {
	first       Hole
	bottom, top uintptr
}

// NewHoleList constructs a HoleList over [bottom, top). If the region is
// large enough to hold one Hole header, it is seeded as a single free block
// spanning the whole region; otherwise the list starts (and stays) empty,
// matching the under-sized-region behavior Heap.Init relies on.
func NewHoleList(bottom, top uintptr) *HoleList {
	l := &HoleList{bottom: bottom, top: top}
	if top > bottom && top-bottom >= Size {
		h := at(bottom)
		h.size = top - bottom
		h.next = 0
		l.first.next = bottom
	}
	return l
}

// Bottom and Top report the inclusive/exclusive bounds of the managed
// region.
func (l *HoleList) Bottom() uintptr { return l.bottom }
func (l *HoleList) Top() uintptr    { return l.top }

// Extend grows the managed region by by bytes at top, handing the new bytes
// to Deallocate so they merge with the current last hole when contiguous.
// The caller guarantees by >= Size; a smaller extension could not hold a
// Hole header and would corrupt the list.
func (l *HoleList) Extend(by uintptr) {
	addr := l.top
	l.top += by
	l.Deallocate(addr, by)
}

// AllocateFirstFit walks the list in address order and returns the address
// and actual size of the first free block that can satisfy (size, align)
// after normalization (spec §4.2). On success the chosen block is unlinked
// and replaced by up to two smaller holes (front pad, back pad); on failure
// the list is unchanged and the error wraps memutils.ErrOutOfMemory.
func (l *HoleList) AllocateFirstFit(size, align uintptr) (uintptr, uintptr, error) {
	size, align = Normalize(size, align)

	prev := &l.first
	for prev.next != 0 {
		node := at(prev.next)
		candidate, ok := node.asAllocationCandidate(size, align)
		if !ok {
			prev = node
			continue
		}

		tail := node.next
		if candidate.back != nil {
			bh := at(candidate.back.addr)
			bh.size = candidate.back.size
			bh.next = tail
			tail = candidate.back.addr
		}
		if candidate.front != nil {
			fh := at(candidate.front.addr)
			fh.size = candidate.front.size
			fh.next = tail
			tail = candidate.front.addr
		}
		prev.next = tail

		return candidate.allocAddr, candidate.actualSize, nil
	}

	return 0, 0, errors.Wrapf(memutils.ErrOutOfMemory, "no free block for size=%d align=%d", size, align)
}

// Deallocate returns a previously allocated block to the list, coalescing it
// with an address-adjacent predecessor and/or successor (spec §4.3). The
// caller guarantees (blockAddr, size) was returned by a prior
// AllocateFirstFit on this list (with size already the actual size handed
// back then), or is a region initially registered as free; violating this
// is undefined behavior.
func (l *HoleList) Deallocate(blockAddr, size uintptr) {
	current := &l.first
	for current.next != 0 && current.next <= blockAddr {
		current = at(current.next)
	}
	prev := current
	nextAddr := prev.next

	prevMerged := false
	if prev != &l.first {
		pAddr, pSize := prev.Info()
		if pAddr+pSize == blockAddr {
			prevMerged = true
		}
	}

	if prevMerged {
		prev.size += size
		if nextAddr != 0 {
			next := at(nextAddr)
			nAddr, nSize := next.Info()
			pAddr, pSize := prev.Info()
			if pAddr+pSize == nAddr {
				prev.size += nSize
				prev.next = next.next
			}
		}
		return
	}

	fresh := at(blockAddr)
	fresh.size = size
	fresh.next = nextAddr

	if nextAddr != 0 {
		next := at(nextAddr)
		nAddr, nSize := next.Info()
		if blockAddr+fresh.size == nAddr {
			fresh.size += nSize
			fresh.next = next.next
		}
	}

	prev.next = blockAddr
}

// Stats returns the number of free blocks currently in the list and the sum
// of their sizes.
func (l *HoleList) Stats() (holeCount int, freeBytes uintptr) {
	for addr := l.first.next; addr != 0; {
		h := at(addr)
		holeCount++
		freeBytes += h.size
		addr = h.next
	}
	return holeCount, freeBytes
}

// Validate re-checks the invariants AllocateFirstFit and Deallocate are
// responsible for maintaining: strict address ordering with no
// adjacent-equal endpoints (I2), containment within [bottom, top) (I1), and
// a minimum size of Size on every Hole (I4/P6). It is expensive — O(number
// of free blocks) with no early-out — and is meant for tests and
// debug-build cross-checking (spec §9), not the hot path.
func (l *HoleList) Validate() error {
	var prevAddr, prevSize uintptr
	havePrev := false

	for addr := l.first.next; addr != 0; {
		h := at(addr)
		_, size := h.Info()

		if size < Size {
			return errors.Errorf("hole at %#x has size %d, smaller than a hole header (%d)", addr, size, Size)
		}
		if addr < l.bottom || addr+size > l.top {
			return errors.Errorf("hole at %#x size %d escapes managed region [%#x, %#x)", addr, size, l.bottom, l.top)
		}
		if havePrev && addr <= prevAddr+prevSize {
			return errors.Errorf("hole list is not strictly ordered (and/or adjacent holes were not coalesced): %#x does not follow %#x+%#x", addr, prevAddr, prevSize)
		}

		prevAddr, prevSize = addr, size
		havePrev = true
		addr = h.next
	}

	return nil
}
