// Package hole implements the intrusive free-block list at the center of
// this allocator: Hole, the two-field header written at the start of every
// free block, and HoleList, the ordered singly-linked list of such headers
// that backs first-fit allocation with immediate coalescing.
//
// A Hole is not a Go value that lives on the Go heap; it is a view onto two
// words of the caller-supplied managed region, read and written through
// unsafe.Pointer casts against raw addresses. The caller of heap.New (or, in
// tests, the backing []byte) owns that memory and must keep it alive and
// unmoved for as long as any HoleList addresses it.
package hole

import (
	"github.com/holeheap/holeheap/memutils"
	"unsafe"
)

// Hole is the header written at the start of every free block: its size in
// bytes and the address of the next free block in the list, or 0 if it is
// the last one.
type Hole struct {
	size uintptr
	next uintptr
}

// Size is the number of bytes a Hole header occupies. Every live Hole's
// size field is at least this large (invariant I4/P6); every allocation
// request is padded up to at least this size so a later Deallocate always
// has room to write a header back.
const Size = unsafe.Sizeof(Hole{})

// Align is the alignment a Hole header requires. Every Hole address, and
// every address handed back by AllocateFirstFit, is a multiple of Align
// unless a larger alignment was explicitly requested (invariant I4/I7).
const Align = unsafe.Alignof(Hole{})

// at reinterprets addr as a Hole header. The caller is responsible for addr
// pointing at a live Hole inside the managed region.
func at(addr uintptr) *Hole {
	return (*Hole)(unsafe.Pointer(addr))
}

// addrOf returns the address a Hole header was read from.
func addrOf(h *Hole) uintptr {
	return uintptr(unsafe.Pointer(h))
}

// Info returns this Hole's address and size.
func (h *Hole) Info() (addr, size uintptr) {
	return addrOf(h), h.size
}

// Normalize rounds an allocation request up to a size and alignment this
// list can safely satisfy: size is raised to at least Size and rounded up to
// a multiple of Align (so a following Hole, if any, starts aligned and a
// later Deallocate always has room for a header); align is raised to at
// least Align. Heap calls this identically on both the allocate and the
// deallocate path so accounting stays exact (spec §4.4).
func Normalize(size, align uintptr) (uintptr, uintptr) {
	if size < Size {
		size = Size
	}
	size = memutils.AlignUp(size, Align)
	if align < Align {
		align = Align
	}
	return size, align
}

// splitHole describes one new Hole header AllocateFirstFit must write when a
// candidate hole is larger than the (normalized, aligned) request.
type splitHole struct {
	addr uintptr
	size uintptr
}

// allocationCandidate describes how to commit an allocation against a
// specific Hole: the address and actual size to hand back to the caller,
// plus the optional front and back holes the split leaves behind.
type allocationCandidate struct {
	allocAddr  uintptr
	actualSize uintptr
	front      *splitHole
	back       *splitHole
}

// asAllocationCandidate decides whether h can satisfy a normalized
// (reqSize, reqAlign) request and, if so, how the hole should be split
// (spec §4.2). reqSize and reqAlign must already be normalized via
// Normalize; h is otherwise untouched.
func (h *Hole) asAllocationCandidate(reqSize, reqAlign uintptr) (allocationCandidate, bool) {
	addr, size := h.Info()

	alignedStart := memutils.AlignUp(addr, reqAlign)
	frontPad := alignedStart - addr
	if frontPad != 0 && frontPad < Size {
		// A front pad smaller than a Hole header can't be re-linked as a
		// free block; this candidate must be rejected rather than leaked.
		return allocationCandidate{}, false
	}

	if alignedStart+reqSize > addr+size {
		return allocationCandidate{}, false
	}

	backPad := (addr + size) - (alignedStart + reqSize)
	actualSize := reqSize

	var front, back *splitHole
	if frontPad >= Size {
		front = &splitHole{addr: addr, size: frontPad}
	}
	if backPad > 0 {
		if backPad < Size {
			// Too small to stand on its own; absorb it into the allocation
			// instead of leaving an unusable fragment.
			actualSize += backPad
		} else {
			back = &splitHole{addr: alignedStart + reqSize, size: backPad}
		}
	}

	return allocationCandidate{
		allocAddr:  alignedStart,
		actualSize: actualSize,
		front:      front,
		back:       back,
	}, true
}
