package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteJSON emits a diagnostic snapshot of this Heap's occupancy — bottom,
// top, size, used, free, and the number of free blocks currently on the
// hole list — suitable for periodic logging or a debug endpoint. It never
// returns an error: any failure inside the underlying writer surfaces from
// the passed-in Writer's own Error method, mirroring how
// BlockMetadata.BlockJsonData leaves error handling to the caller.
func (h *Heap) WriteJSON(w *jwriter.Writer) {
	obj := w.Object()
	defer obj.End()

	obj.Name("id").String(h.id.String())
	obj.Name("bottom").Float64(float64(h.bottom))
	obj.Name("top").Float64(float64(h.top))
	obj.Name("size").Float64(float64(h.Size()))
	obj.Name("used").Float64(float64(h.used))
	obj.Name("free").Float64(float64(h.Free()))

	holeCount := 0
	if h.holes != nil {
		holeCount, _ = h.holes.Stats()
	}
	obj.Name("hole_count").Float64(float64(holeCount))

	if count := h.registry.count(); count >= 0 {
		obj.Name("allocation_count").Float64(float64(count))
	}
}
