package imagehandler

import "github.com/dkoval/image-handler/core"

// Inner exposes the underlying core.Handler for advanced use (e.g., direct
// allocator access in tests).  Prefer the high-level API for normal usage.
func (h *Handler) Inner() *core.Handler { return h.inner }
