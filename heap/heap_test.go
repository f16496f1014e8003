package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/holeheap/holeheap/hole"
	"github.com/holeheap/holeheap/memutils"
)

func newHeapArena(t *testing.T, n int) ([]byte, *Heap) {
	t.Helper()
	buf := make([]byte, n)
	bottom := uintptr(unsafe.Pointer(&buf[0]))
	require.Zero(t, bottom%hole.Align, "test arena must already be hole-aligned")
	h, err := New(bottom, uintptr(n))
	require.NoError(t, err)
	return buf, h
}

func TestHeap_InitTwiceFails(t *testing.T) {
	_, h := newHeapArena(t, 256)
	err := h.Init(h.Bottom(), 256)
	require.ErrorIs(t, err, memutils.ErrAlreadyInitialized)
}

func TestHeap_InitRejectsMisalignedBottom(t *testing.T) {
	buf := make([]byte, 256)
	bottom := uintptr(unsafe.Pointer(&buf[0]))
	h := Empty()
	err := h.Init(bottom+1, 255)
	require.ErrorIs(t, err, memutils.ErrBottomNotAligned)
}

func TestHeap_EmptyHeapIsUnservable(t *testing.T) {
	h := Empty()
	_, err := h.Allocate(8, 8)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
}

func TestHeap_TooSmallRegionIsNotAnError(t *testing.T) {
	buf := make([]byte, 8)
	bottom := uintptr(unsafe.Pointer(&buf[0]))
	require.Zero(t, bottom%hole.Align)
	h, err := New(bottom, 8)
	require.NoError(t, err)

	_, err = h.Allocate(1, 1)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.NoError(t, h.Validate())
}

// Basic allocate/free round trip: spec.md §8 scenario 1.
func TestHeap_BasicAllocFree(t *testing.T) {
	_, h := newHeapArena(t, 256)

	addr, err := h.Allocate(32, 8)
	require.NoError(t, err)
	require.Equal(t, h.Bottom(), addr)
	require.Equal(t, uintptr(32), h.Used())
	require.Equal(t, uintptr(224), h.Free())
	require.NoError(t, h.Validate())

	h.Deallocate(addr, 32, 8)
	require.Zero(t, h.Used())
	require.Equal(t, uintptr(256), h.Free())
	require.NoError(t, h.Validate())
}

// Alignment forces a front pad: spec.md §8 scenario 2.
func TestHeap_AlignmentSplitsFrontPad(t *testing.T) {
	_, h := newHeapArena(t, 512)

	// First carve off a small prefix so the remaining hole's start is not
	// already aligned to 64, forcing the next request to front-pad.
	prefix, err := h.Allocate(16, 8)
	require.NoError(t, err)
	require.Equal(t, h.Bottom(), prefix)

	addr, err := h.Allocate(32, 64)
	require.NoError(t, err)
	require.Zero(t, addr%64)
	require.Greater(t, addr, h.Bottom()+16)
	require.NoError(t, h.Validate())
}

// Back pad equal to hole.Size is kept as its own hole: spec.md §8 scenario 3.
func TestHeap_BackPadEqualToSizeStaysAHole(t *testing.T) {
	_, h := newHeapArena(t, 256)

	addr, err := h.Allocate(240, 8)
	require.NoError(t, err)
	require.Equal(t, h.Bottom(), addr)
	require.Equal(t, uintptr(240), h.Used())
	require.NoError(t, h.Validate())

	addr2, err := h.Allocate(16, 8)
	require.NoError(t, err)
	require.Equal(t, h.Bottom()+240, addr2)
	require.Equal(t, uintptr(256), h.Used())
}

// Back pad smaller than hole.Size is absorbed: spec.md §8 scenario 4.
func TestHeap_BackPadSmallerThanSizeIsAbsorbed(t *testing.T) {
	_, h := newHeapArena(t, 256)

	addr, err := h.Allocate(248, 8)
	require.NoError(t, err)
	require.Equal(t, h.Bottom(), addr)
	require.Equal(t, uintptr(256), h.Used())
	require.Zero(t, h.Free())
	require.NoError(t, h.Validate())
}

// Freeing two address-adjacent neighbors of a live block coalesces on both
// sides once the live block is itself freed: spec.md §8 scenario 5.
func TestHeap_CoalesceBothSides(t *testing.T) {
	_, h := newHeapArena(t, 144)

	a, err := h.Allocate(48, 8)
	require.NoError(t, err)
	b, err := h.Allocate(48, 8)
	require.NoError(t, err)
	c, err := h.Allocate(48, 8)
	require.NoError(t, err)

	h.Deallocate(a, 48, 8)
	h.Deallocate(c, 48, 8)
	require.NoError(t, h.Validate())
	require.Equal(t, uintptr(48), h.Used())

	h.Deallocate(b, 48, 8)
	require.Zero(t, h.Used())
	require.Equal(t, uintptr(144), h.Free())
	require.NoError(t, h.Validate())
}

// Out-of-memory leaves the heap's accounting and hole list untouched:
// spec.md §8 scenario 6.
func TestHeap_OOMLeavesStateIntact(t *testing.T) {
	_, h := newHeapArena(t, 256)

	_, err := h.Allocate(128, 8)
	require.NoError(t, err)

	usedBefore, freeBefore := h.Used(), h.Free()

	_, err = h.Allocate(200, 8)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.Equal(t, usedBefore, h.Used())
	require.Equal(t, freeBefore, h.Free())
	require.NoError(t, h.Validate())
}

func TestHeap_Extend(t *testing.T) {
	buf := make([]byte, 256)
	bottom := uintptr(unsafe.Pointer(&buf[0]))
	require.Zero(t, bottom%hole.Align)
	h, err := New(bottom, 128)
	require.NoError(t, err)

	addr, err := h.Allocate(128, 8)
	require.NoError(t, err)
	require.Equal(t, bottom, addr)

	_, err = h.Allocate(1, 1)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	h.Extend(128)
	require.Equal(t, bottom+256, h.Top())
	require.NoError(t, h.Validate())

	addr2, err := h.Allocate(64, 8)
	require.NoError(t, err)
	require.Equal(t, bottom+128, addr2)
}

func TestHeap_StatisticsTracksSizeAndUsage(t *testing.T) {
	_, h := newHeapArena(t, 256)

	addr, err := h.Allocate(64, 8)
	require.NoError(t, err)

	stats := h.Statistics()
	require.Equal(t, uintptr(256), stats.RegionBytes)
	require.Equal(t, uintptr(64), stats.AllocationBytes)

	detailed := h.DetailedStatistics()
	require.Equal(t, uintptr(256), detailed.RegionBytes)
	require.Equal(t, uintptr(64), detailed.AllocationBytes)
	require.Equal(t, 1, detailed.UnusedRangeCount)

	h.Deallocate(addr, 64, 8)
	require.Zero(t, h.Statistics().AllocationBytes)
}
