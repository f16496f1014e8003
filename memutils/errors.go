// Package memutils holds small helpers shared by the hole and heap packages:
// sentinel errors, alignment arithmetic, and debug-build validation hooks.
package memutils

import "github.com/pkg/errors"

// ErrOutOfMemory is returned by Heap.Allocate / HoleList.AllocateFirstFit when
// no free block can satisfy a request after normalization. It is the only
// recoverable error this module produces; state is unchanged on return.
var ErrOutOfMemory error = errors.New("out of memory")

// ErrPowerOfTwo is returned from CheckPow2 (or wrapped by callers) when a
// value that must be a power of two is not.
var ErrPowerOfTwo error = errors.New("value must be a power of two")

// ErrAlreadyInitialized is returned by Init when called a second time on the
// same Heap.
var ErrAlreadyInitialized error = errors.New("heap has already been initialized")

// ErrBottomNotAligned is returned by Init when the caller-supplied bottom
// address is not aligned to the Hole header's required alignment. This
// module requires a pre-aligned bottom rather than silently consuming and
// losing the misaligned prefix bytes (see SPEC_FULL.md, Open Questions).
var ErrBottomNotAligned error = errors.New("bottom address is not aligned to the hole header alignment")
