//go:build debug_mem_utils

package heap

import (
	"fmt"
	"unsafe"

	"github.com/dolthub/swiss"

	"github.com/holeheap/holeheap/memutils"
)

// marginEntry is what allocRegistry remembers about one live allocation:
// the size the caller actually asked for versus the actual size the Hole
// gave it (spec §4.2's back-pad absorption can make these differ), and
// whether a corruption-detection margin was written into that slack.
type marginEntry struct {
	requestedSize, actualSize uintptr
	hasMargin                 bool
}

// allocRegistry tracks every currently-live allocation's address and size so
// Deallocate can catch a double-free or a mismatched (size, align) before it
// corrupts the hole list, rather than silently producing an overlapping
// Hole. When the actual size exceeds the requested size by at least
// DebugMargin (from normalization and any absorbed back pad), it also writes a
// corruption-detection margin (mirroring the teacher's
// WriteMagicValue/ValidateMagicValue pair) just past the requested payload,
// so CheckCorruption can later detect a caller that wrote past what it
// asked for. This is a debug_mem_utils-only cost, adapted from
// TLSFBlockMetadata.handleKey's role of mapping a live block to its
// bookkeeping entry, from handle lookup to address lookup since this domain
// addresses blocks directly.
type allocRegistry struct {
	live *swiss.Map[uintptr, marginEntry]
}

func newAllocRegistry() allocRegistry {
	return allocRegistry{live: swiss.NewMap[uintptr, marginEntry](64)}
}

func (r *allocRegistry) record(addr, requestedSize, actualSize uintptr) {
	entry := marginEntry{requestedSize: requestedSize, actualSize: actualSize}

	if slack := actualSize - requestedSize; slack >= memutils.DebugMargin {
		memutils.WriteMagicValue(unsafe.Pointer(addr), requestedSize)
		entry.hasMargin = true
	}

	r.live.Put(addr, entry)
}

func (r *allocRegistry) forget(addr, actualSize uintptr) {
	entry, ok := r.live.Get(addr)
	if !ok {
		panic(fmt.Sprintf("heap: deallocate of address %#x with no matching live allocation (double free?)", addr))
	}
	if entry.actualSize != actualSize {
		panic(fmt.Sprintf("heap: deallocate of address %#x with size %d, but it was allocated with size %d", addr, actualSize, entry.actualSize))
	}
	if entry.hasMargin && !memutils.ValidateMagicValue(unsafe.Pointer(addr), entry.requestedSize) {
		panic(fmt.Sprintf("heap: corruption detected past the end of allocation at %#x (requested %d bytes)", addr, entry.requestedSize))
	}
	r.live.Delete(addr)
}

func (r *allocRegistry) count() int {
	return r.live.Count()
}

// checkCorruption validates every live allocation's margin, if it has one,
// without freeing anything. It returns the first violation found.
func (r *allocRegistry) checkCorruption() error {
	var bad error
	r.live.Iter(func(addr uintptr, entry marginEntry) bool {
		if entry.hasMargin && !memutils.ValidateMagicValue(unsafe.Pointer(addr), entry.requestedSize) {
			bad = fmt.Errorf("heap: corruption detected past the end of allocation at %#x (requested %d bytes)", addr, entry.requestedSize)
			return true
		}
		return false
	})
	return bad
}
