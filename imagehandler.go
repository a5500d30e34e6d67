package imagehandler

import (
	"context"

	xdraw "golang.org/x/image/draw"

	"github.com/dkoval/image-handler/config"
	"github.com/dkoval/image-handler/core"
	"github.com/dkoval/image-handler/engines/decode"
	"github.com/dkoval/image-handler/engines/transform"
)

// Re-export chroma constants for convenience.
const (
	JPEG = core.ChromaJPEG
	PNG  = core.ChromaPNG
	GIF  = core.ChromaGIF
	WebP = core.ChromaWebP

	RGBA  = core.ChromaRGBA
	NRGBA = core.ChromaNRGBA
	Gray  = core.ChromaGray

	Unset = core.ChromaUnset
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Handler is the primary entry point: a long-lived single-image reader that
// caches its decode and transform engines between calls.  Not safe for
// concurrent use; serialize externally or give each goroutine its own Handler.
type Handler struct {
	inner *core.Handler
	reg   *core.DefaultRegistry
}

// New creates a fully wired Handler with the default JPEG, PNG, GIF, and WebP
// decoders registered plus the transform backend selected by cfg.
func New(cfg config.Config) *Handler {
	reg := core.NewRegistry()
	reg.RegisterDecoder(decode.NewJPEG())
	reg.RegisterDecoder(decode.NewPNG())
	reg.RegisterDecoder(decode.NewGIF())
	reg.RegisterDecoder(decode.NewWebP())

	switch cfg.Transform {
	case config.BackendImaging:
		reg.RegisterTransform(transform.NewImaging())
	default:
		reg.RegisterTransform(transform.NewDraw(resamplerFor(cfg.Resampler)))
	}

	inner := core.NewHandler(reg)
	inner.SetLimits(cfg.ChunkSize, cfg.MaxImageBytes)
	return &Handler{inner: inner, reg: reg}
}

// SetLogger attaches a structured logger.
func (h *Handler) SetLogger(l core.Logger) { h.inner.SetLogger(l) }

// SetMetrics attaches a metrics collector.
func (h *Handler) SetMetrics(m core.MetricsCollector) { h.inner.SetMetrics(m) }

// AddHook registers an observer for stage events.
func (h *Handler) AddHook(hook core.Hook) { h.inner.AddHook(hook) }

// RegisterDecoder registers a custom decode engine factory.
func (h *Handler) RegisterDecoder(f core.DecodeEngineFactory) { h.reg.RegisterDecoder(f) }

// RegisterTransform registers a custom transform engine factory.
func (h *Handler) RegisterTransform(f core.TransformEngineFactory) { h.reg.RegisterTransform(f) }

// Registry returns the underlying registry for advanced wiring (e.g. the
// libvips backend in engines/vips).
func (h *Handler) Registry() *core.DefaultRegistry { return h.reg }

// Read decodes payload and converts it to *fmtOut.  See core.Handler.Read for
// the full contract; in short: unspecified fmtOut fields are filled from the
// decoder's output, (nil, nil) means "no image decoded", and the caller must
// Release the returned picture.
func (h *Handler) Read(ctx context.Context, payload *core.Payload, fmtIn core.ImageFormat, fmtOut *core.ImageFormat) (*core.Picture, error) {
	return h.inner.Read(ctx, payload, fmtIn, fmtOut)
}

// ReadFile reads an image file in full and delegates to Read.
func (h *Handler) ReadFile(ctx context.Context, path string, fmtIn core.ImageFormat, fmtOut *core.ImageFormat) (*core.Picture, error) {
	return h.inner.ReadFile(ctx, path, fmtIn, fmtOut)
}

// Write is the encode direction of the contract surface; it currently always
// returns ErrNotImplemented.
func (h *Handler) Write(ctx context.Context, pic *core.Picture, fmtIn core.ImageFormat, fmtOut *core.ImageFormat) ([]byte, error) {
	return h.inner.Write(ctx, pic, fmtIn, fmtOut)
}

// WriteFile mirrors Write for file targets; not implemented.
func (h *Handler) WriteFile(ctx context.Context, pic *core.Picture, fmtIn core.ImageFormat, fmtOut *core.ImageFormat, path string) error {
	return h.inner.WriteFile(ctx, pic, fmtIn, fmtOut, path)
}

// Close destroys any cached engines.  The Handler may be reused afterwards;
// engines are recreated lazily on the next Read.
func (h *Handler) Close() error { return h.inner.Close() }

// ── constructors ──────────────────────────────────────────────────────────────

// NewPayload wraps raw compressed bytes in a Payload.
func NewPayload(data []byte) *core.Payload { return core.NewPayload(data) }

// Format builds an ImageFormat; pass Unset/0 for fields negotiation should fill.
func Format(chroma core.Chroma, width, height int) core.ImageFormat {
	return core.ImageFormat{Chroma: chroma, Width: width, Height: height}
}

func resamplerFor(name string) xdraw.Interpolator {
	switch name {
	case "nearest":
		return xdraw.NearestNeighbor
	case "catmullrom":
		return xdraw.CatmullRom
	}
	return xdraw.BiLinear
}
