// Package heap is the public façade over a single managed memory region: it
// owns the region's bounds and used/free bookkeeping and translates external
// allocation requests into hole.HoleList operations.
//
// A Heap is strictly single-owner at a time (spec §5): it performs no
// synchronization and holds no lock. Concurrent use requires an external
// mutual-exclusion wrapper that serializes every call into a given Heap
// against every other call into that same Heap.
package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/holeheap/holeheap/hole"
	"github.com/holeheap/holeheap/memutils"
)

// Heap is the managed region [bottom, top) plus the free-block list backing
// it and a running total of bytes handed out.
type Heap struct {
	id     uuid.UUID
	logger *slog.Logger

	holes       *hole.HoleList
	bottom, top uintptr
	used        uintptr
	initialized bool
	registry    allocRegistry
}

// Options configures a Heap at construction time. The zero Options is valid
// and uses a default logger.
type Options struct {
	// Logger receives Debug-level messages on Init/Extend and Warn-level
	// messages on OutOfMemory. Defaults to slog.Default().
	Logger *slog.Logger
}

// Empty constructs an uninitialized Heap. Every Allocate call on it fails
// with memutils.ErrOutOfMemory, and Deallocate panics, until Init succeeds.
func Empty() *Heap {
	return EmptyWithOptions(Options{})
}

// EmptyWithOptions is Empty with explicit Options.
func EmptyWithOptions(opts Options) *Heap {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Heap{id: uuid.New(), logger: logger, registry: newAllocRegistry()}
}

// New is a convenience for Empty followed by Init.
func New(bottom, size uintptr) (*Heap, error) {
	return NewWithOptions(bottom, size, Options{})
}

// NewWithOptions is New with explicit Options.
//
// bottom must be a valid, writable address that the caller owns for the
// Heap's entire lifetime: Hole headers are read and written through raw
// unsafe.Pointer casts against addresses derived from bottom, not through Go
// pointers, so the backing memory must not be moved or reclaimed out from
// under the Heap. In tests, backing a region with a []byte and taking
// uintptr(unsafe.Pointer(&buf[0])) is sufficient as long as buf stays
// reachable for as long as the Heap is in use.
func NewWithOptions(bottom, size uintptr, opts Options) (*Heap, error) {
	h := EmptyWithOptions(opts)
	if err := h.Init(bottom, size); err != nil {
		return nil, err
	}
	return h, nil
}

// ID returns a UUID identifying this Heap instance, attached to every log
// line it emits so multiple heaps in one process stay distinguishable.
func (h *Heap) ID() uuid.UUID { return h.id }

// Init sets the managed region. bottom must already be aligned to
// hole.Align; Init does not silently align it and lose the prefix (see
// SPEC_FULL.md, Open Questions). Calling Init twice returns
// memutils.ErrAlreadyInitialized. If the region (after this alignment
// requirement is met) is too small to hold a single hole.Hole header, the
// Heap becomes usable but permanently unable to serve any allocation — this
// is not itself an error.
func (h *Heap) Init(bottom, size uintptr) error {
	if h.initialized {
		return errors.Wrapf(memutils.ErrAlreadyInitialized, "heap %s", h.id)
	}
	if bottom%hole.Align != 0 {
		return errors.Wrapf(memutils.ErrBottomNotAligned, "bottom=%#x align=%d", bottom, hole.Align)
	}

	top := bottom + size
	h.bottom, h.top = bottom, top
	h.initialized = true

	if size >= hole.Size {
		h.holes = hole.NewHoleList(bottom, top)
	}

	h.logger.Debug("heap initialized",
		slog.String("heap_id", h.id.String()),
		slog.Uint64("bottom", uint64(bottom)),
		slog.Uint64("size", uint64(size)),
		slog.Bool("servable", h.holes != nil),
	)
	return nil
}

// Allocate requests size bytes aligned to align. On success it returns the
// block's address; the caller must present the exact same (size, align)
// pair to Deallocate. On failure it returns an error wrapping
// memutils.ErrOutOfMemory and the Heap is unchanged.
func (h *Heap) Allocate(size, align uintptr) (uintptr, error) {
	if h.holes == nil {
		h.logger.Warn("allocate on unservable heap",
			slog.String("heap_id", h.id.String()))
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "heap %s has no servable region", h.id)
	}

	addr, actualSize, err := h.holes.AllocateFirstFit(size, align)
	if err != nil {
		h.logger.Warn("allocate failed",
			slog.String("heap_id", h.id.String()),
			slog.Uint64("size", uint64(size)),
			slog.Uint64("align", uint64(align)))
		return 0, err
	}

	h.used += actualSize
	h.registry.record(addr, size, actualSize)
	return addr, nil
}

// Deallocate returns a previously allocated block. size and align must
// match the values originally passed to Allocate exactly — normalization is
// deterministic, so this recovers the same actualSize accounting used at
// allocation time. Presenting a block not currently allocated, or a
// mismatched (size, align), is undefined behavior (spec §7).
func (h *Heap) Deallocate(addr, size, align uintptr) {
	if h.holes == nil {
		panic("heap: deallocate called on a heap with no servable region")
	}

	actualSize, _ := hole.Normalize(size, align)
	h.registry.forget(addr, actualSize)
	h.holes.Deallocate(addr, actualSize)
	h.used -= actualSize
}

// Extend grows the managed region by by bytes, appended at the current top.
// The caller guarantees by >= hole.Size and that the extension is
// contiguous with the current top (spec §4.4); violating this is undefined
// behavior.
func (h *Heap) Extend(by uintptr) {
	if h.holes == nil {
		panic("heap: extend called on a heap with no servable region")
	}

	h.holes.Extend(by)
	h.top += by

	h.logger.Debug("heap extended",
		slog.String("heap_id", h.id.String()),
		slog.Uint64("by", uint64(by)))
}

// Size returns the total size in bytes of the managed region.
func (h *Heap) Size() uintptr { return h.top - h.bottom }

// Used returns the number of bytes currently handed out via Allocate and not
// yet returned via Deallocate.
func (h *Heap) Used() uintptr { return h.used }

// Free returns Size() - Used().
func (h *Heap) Free() uintptr { return h.Size() - h.used }

// Bottom and Top return the inclusive/exclusive bounds of the managed
// region.
func (h *Heap) Bottom() uintptr { return h.bottom }
func (h *Heap) Top() uintptr    { return h.top }

// CheckCorruption validates the corruption-detection margin written past
// the requested payload of every live allocation, where one was written
// (see debug_registry_debug.go). Outside debug_mem_utils builds this always
// returns nil.
func (h *Heap) CheckCorruption() error {
	if err := h.registry.checkCorruption(); err != nil {
		return errors.Wrapf(err, "heap %s", h.id)
	}
	return nil
}

// Validate re-checks the hole list's invariants (I1, I2, I4/P6) and cross-
// checks used+sum(hole sizes) against the region size (I6/P4). Intended for
// tests and debug-build assertions, not the hot path.
func (h *Heap) Validate() error {
	if h.holes == nil {
		return nil
	}
	if err := h.holes.Validate(); err != nil {
		return errors.Wrapf(err, "heap %s", h.id)
	}

	_, freeBytes := h.holes.Stats()
	if h.used+freeBytes != h.Size() {
		return errors.Errorf("heap %s: used(%d) + free(%d) != size(%d)", h.id, h.used, freeBytes, h.Size())
	}
	return nil
}

// Statistics returns a coarse summary of this Heap's occupancy.
// AllocationCount is only tracked when built with the debug_mem_utils tag
// (see debug_registry_debug.go); it is -1 otherwise.
func (h *Heap) Statistics() memutils.Statistics {
	return memutils.Statistics{
		RegionBytes:     h.Size(),
		AllocationCount: h.registry.count(),
		AllocationBytes: h.used,
	}
}

// DetailedStatistics returns the Statistics fields plus the number of holes
// on the free list (UnusedRangeCount). AllocationCount carries the same
// debug_mem_utils caveat as Statistics. The per-hole and per-allocation size
// min/max fields are not filled in and keep the values Clear gives them.
func (h *Heap) DetailedStatistics() memutils.DetailedStatistics {
	var stats memutils.DetailedStatistics
	stats.Clear()
	stats.RegionBytes = h.Size()
	stats.AllocationBytes = h.used
	stats.AllocationCount = h.registry.count()

	if h.holes == nil {
		return stats
	}

	holeCount, _ := h.holes.Stats()
	stats.UnusedRangeCount = holeCount
	return stats
}
