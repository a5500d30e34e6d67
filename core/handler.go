package core

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	apperrors "github.com/dkoval/image-handler/errors"
	"github.com/dkoval/image-handler/utils"
)

// Stage names reported to hooks and metrics.
const (
	StageDecode    = "decode"
	StageTransform = "transform"
)

// Handler is the orchestrator: it drives a cached decode engine and a cached
// transform engine to turn one compressed payload into one picture in the
// requested output format, rebuilding either engine only when the formats of
// the current request no longer match what the engine was negotiated for.
//
// A Handler is NOT safe for concurrent use: both bindings are mutable state
// with no internal locking.  Callers invoking Read from multiple goroutines
// must serialize externally.  There is no cancellation once an engine call
// has started; ctx is only checked between stages.
type Handler struct {
	resolver Resolver
	alloc    *BufferManager
	logger   Logger
	metrics  MetricsCollector
	hooks    []Hook

	// Streaming limits for ReadFile.
	chunkSize int
	maxBytes  int64

	// Cached engine bindings; nil means absent.
	dec  *decodeBinding
	xfrm *transformBinding
}

// NewHandler creates a Handler resolving engines through res.  The Handler is
// long-lived: create it once, call Read many times, then Close.
func NewHandler(res Resolver) *Handler {
	return &Handler{
		resolver:  res,
		alloc:     NewBufferManager(),
		logger:    nopLogger{},
		chunkSize: 32 * 1024,
	}
}

// SetLogger attaches a structured logger.
func (h *Handler) SetLogger(l Logger) {
	if l != nil {
		h.logger = l
	}
}

// SetMetrics attaches a metrics collector.
func (h *Handler) SetMetrics(m MetricsCollector) { h.metrics = m }

// AddHook registers an observer for stage events.
func (h *Handler) AddHook(hook Hook) { h.hooks = append(h.hooks, hook) }

// SetLimits configures the streaming chunk size and the maximum accepted file
// size for ReadFile.  Zero values keep the defaults (32 KiB, unlimited).
func (h *Handler) SetLimits(chunkSize int, maxBytes int64) {
	if chunkSize > 0 {
		h.chunkSize = chunkSize
	}
	h.maxBytes = maxBytes
}

// Allocator returns the buffer manager registered with every engine this
// Handler creates.
func (h *Handler) Allocator() Allocator { return h.alloc }

// Close destroys any cached engine bindings.  Idempotent.
func (h *Handler) Close() error {
	if h.dec != nil {
		h.dec.destroy()
		h.dec = nil
	}
	if h.xfrm != nil {
		h.xfrm.destroy()
		h.xfrm = nil
	}
	return nil
}

// Read decodes payload and converts the result to *fmtOut.
//
// fmtIn hints at the payload codec; when its chroma is unset the codec is
// sniffed from the payload bytes.  Any subset of fmtOut's fields may be
// unspecified; they are filled from the decoder's negotiated output before
// the conversion decision is made, and on return *fmtOut holds the fully
// resolved format of the returned picture.
//
// A (nil, nil) return means the decoder legitimately produced no picture this
// call ("needs more input"); it is not an error and does not invalidate the
// cached decoder.  The caller owns the returned Picture and must Release it.
func (h *Handler) Read(ctx context.Context, payload *Payload, fmtIn ImageFormat, fmtOut *ImageFormat) (*Picture, error) {
	if payload == nil || len(payload.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "handler.read", apperrors.ErrEmptyPayload)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "handler.read", err)
	}
	if fmtIn.Chroma == ChromaUnset {
		fmtIn.Chroma = Chroma(utils.DetectChroma(payload.Data))
	}

	// Check whether the cached decoder can be reused.  Validity is keyed on
	// the input chroma only; geometry changes do not invalidate a decoder.
	if h.dec != nil && h.dec.fmtIn.Chroma != fmtIn.Chroma {
		h.logger.Debug("discarding cached decoder",
			"cached", h.dec.fmtIn.Chroma, "requested", fmtIn.Chroma)
		h.dec.destroy()
		h.dec = nil
	}

	if h.dec == nil {
		dec, err := newDecodeBinding(h.resolver, fmtIn)
		if err != nil {
			h.recordError(StageDecode, err)
			return nil, err
		}
		h.dec = dec
		h.recordRebuild(StageDecode)
	}

	now := time.Now()
	payload.PTS, payload.DTS = now, now

	pic, err := h.runDecode(ctx, payload)
	if err != nil {
		h.recordError(StageDecode, err)
		return nil, err
	}
	if pic == nil {
		h.logger.Debug("no image decoded")
		return nil, nil
	}

	// Fill unspecified output fields from the decoder's negotiated output.
	native := h.dec.outputFormat()
	*fmtOut = fmtOut.Resolve(native)

	if native.EqualPixels(*fmtOut) {
		// Nothing to convert; the raw decoder output is the result.
		*fmtOut = native
		return pic, nil
	}

	out, err := h.runTransform(ctx, pic, native, fmtOut)
	if err != nil {
		h.recordError(StageTransform, err)
		return nil, err
	}
	return out, nil
}

// ReadFile reads path in full and delegates to Read.  Thin I/O glue: open
// failures surface as CategoryIO with no picture produced.
func (h *Handler) ReadFile(ctx context.Context, path string, fmtIn ImageFormat, fmtOut *ImageFormat) (*Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		h.logger.Debug("could not open file for reading", "path", path, "error", err)
		return nil, apperrors.Wrap(apperrors.CategoryIO, "handler.readFile", err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxBytes > 0 {
		r = &utils.LimitedReader{R: f, Max: h.maxBytes}
	}
	buf, err := utils.DrainReader(ctx, r, h.chunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryIO, "handler.readFile", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	return h.Read(ctx, NewPayload(data), fmtIn, fmtOut)
}

// Write is the encode direction of the contract surface.  It is declared for
// symmetry but not implemented; callers always receive ErrNotImplemented
// rather than a silent empty result.
func (h *Handler) Write(_ context.Context, _ *Picture, _ ImageFormat, _ *ImageFormat) ([]byte, error) {
	return nil, apperrors.New(apperrors.CategoryEncode, "handler.write", apperrors.ErrNotImplemented)
}

// WriteFile mirrors Write for file targets.  Not implemented.
func (h *Handler) WriteFile(_ context.Context, _ *Picture, _ ImageFormat, _ *ImageFormat, _ string) error {
	return apperrors.New(apperrors.CategoryEncode, "handler.writeFile", apperrors.ErrNotImplemented)
}

// ── stage runners ─────────────────────────────────────────────────────────────

func (h *Handler) runDecode(ctx context.Context, payload *Payload) (*Picture, error) {
	h.notifyBefore(ctx, StageDecode, h.dec.fmtIn)
	start := time.Now()
	pic, err := h.dec.decodeOne(ctx, payload, h.alloc)
	elapsed := time.Since(start)
	h.notifyAfter(ctx, StageDecode, h.dec.outputFormat(), elapsed, err)
	h.recordTime(StageDecode, elapsed)
	return pic, err
}

// runTransform guarantees pic is released exactly once on every failure path;
// on success ownership of the returned picture passes to the caller.
func (h *Handler) runTransform(ctx context.Context, pic *Picture, native ImageFormat, fmtOut *ImageFormat) (*Picture, error) {
	// Check whether the cached transform engine can be reused: all six of
	// the input and output chroma/width/height must match exactly.
	if h.xfrm != nil && !h.xfrm.matches(native, *fmtOut) {
		h.logger.Debug("discarding cached transform engine",
			"cachedIn", h.xfrm.fmtIn.Chroma, "cachedOut", h.xfrm.fmtOut.Chroma)
		h.xfrm.destroy()
		h.xfrm = nil
	}

	if h.xfrm == nil {
		xfrm, err := newTransformBinding(h.resolver, native, *fmtOut)
		if err != nil {
			pic.Release()
			return nil, err
		}
		h.xfrm = xfrm
		h.recordRebuild(StageTransform)
	}

	h.notifyBefore(ctx, StageTransform, native)
	start := time.Now()
	out, err := h.xfrm.transform(ctx, pic, h.alloc)
	elapsed := time.Since(start)
	h.notifyAfter(ctx, StageTransform, h.xfrm.outputFormat(), elapsed, err)
	h.recordTime(StageTransform, elapsed)
	if err != nil {
		return nil, err
	}
	*fmtOut = h.xfrm.outputFormat()
	return out, nil
}

// ── observability plumbing ────────────────────────────────────────────────────

func (h *Handler) notifyBefore(ctx context.Context, stage string, format ImageFormat) {
	for _, hook := range h.hooks {
		hook.BeforeStage(ctx, stage, format)
	}
}

func (h *Handler) notifyAfter(ctx context.Context, stage string, format ImageFormat, d time.Duration, err error) {
	for _, hook := range h.hooks {
		hook.AfterStage(ctx, stage, format, d, err)
	}
}

func (h *Handler) recordTime(stage string, d time.Duration) {
	if h.metrics != nil {
		h.metrics.RecordStageTime(stage, d)
	}
}

func (h *Handler) recordRebuild(engine string) {
	if h.metrics != nil {
		h.metrics.RecordRebuild(engine)
	}
}

func (h *Handler) recordError(stage string, err error) {
	if h.metrics == nil {
		return
	}
	var he *apperrors.HandlerError
	cat := "unknown"
	if stderrors.As(err, &he) {
		cat = string(he.Category)
	}
	h.metrics.RecordError(stage, cat)
}

// nopLogger discards everything; installed when no logger is configured.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
