//go:build cgo

// Package vips provides an optional libvips-powered decode and transform
// backend.  It trades the stdlib codecs' portability for speed and broader
// codec coverage (animated WebP, shrink-on-load JPEG).  Link it in by calling
// Register on the handler's registry; nothing imports it by default.
package vips

import (
	"context"
	"fmt"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a unified libvips decode and transform engine factory.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Register installs the backend on reg for both decode and transform.
// Registered factories are probed in order, so calling this before the
// stdlib factories makes libvips the preferred implementation.
func Register(reg *core.DefaultRegistry, b *Backend) {
	reg.RegisterDecoder(b)
	reg.RegisterTransform(b)
}

// ─── DecodeEngineFactory ──────────────────────────────────────────────────────

func (*Backend) CanDecode(c core.Chroma) bool {
	switch c {
	case core.ChromaJPEG, core.ChromaPNG, core.ChromaWebP, core.ChromaGIF:
		return true
	}
	return false
}

func (b *Backend) NewDecodeEngine(input core.ImageFormat) (core.DecodeEngine, error) {
	return &vipsDecodeEngine{fmtIn: input}, nil
}

type vipsDecodeEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *vipsDecodeEngine) DecodeOne(ctx context.Context, payload *core.Payload, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	data := payload.Data
	payload.Data = nil

	ref, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	pic, fmtOut, err := exportPicture(ref, alloc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	e.fmtOut = fmtOut
	return pic, nil
}

func (e *vipsDecodeEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *vipsDecodeEngine) Close() error { return nil }

// ─── TransformEngineFactory ───────────────────────────────────────────────────

func (*Backend) CanTransform(input, output core.ImageFormat) bool {
	fourBand := func(c core.Chroma) bool {
		return c == core.ChromaRGBA || c == core.ChromaNRGBA
	}
	return input.Width > 0 && input.Height > 0 && output.Width > 0 && output.Height > 0 &&
		fourBand(input.Chroma) && fourBand(output.Chroma)
}

func (b *Backend) NewTransformEngine(input, output core.ImageFormat) (core.TransformEngine, error) {
	return &vipsTransformEngine{fmtIn: input, fmtOut: output}, nil
}

type vipsTransformEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *vipsTransformEngine) Transform(ctx context.Context, src *core.Picture, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.transform", err)
	}
	if len(src.Planes) != 1 {
		return nil, apperrors.New(apperrors.CategoryTransform, "vips.transform",
			fmt.Errorf("expected single interleaved plane, got %d", len(src.Planes)))
	}

	ref, err := govips.NewImageFromMemory(src.Planes[0].Data, e.fmtIn.Width, e.fmtIn.Height, 4)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.transform", err)
	}
	defer ref.Close()

	if e.fmtOut.Width != e.fmtIn.Width || e.fmtOut.Height != e.fmtIn.Height {
		hScale := float64(e.fmtOut.Width) / float64(e.fmtIn.Width)
		vScale := float64(e.fmtOut.Height) / float64(e.fmtIn.Height)
		if err := ref.ResizeWithVScale(hScale, vScale, govips.KernelLanczos3); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.transform", err)
		}
	}

	raw, err := ref.ToBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.transform", err)
	}

	out, err := alloc.Allocate(e.fmtOut)
	if err != nil {
		return nil, err
	}
	copy(out.Planes[0].Data, raw)
	return out, nil
}

func (e *vipsTransformEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *vipsTransformEngine) Close() error { return nil }

// ─── helpers ──────────────────────────────────────────────────────────────────

// exportPicture flattens a vips image to 4-band sRGB and copies it into
// managed NRGBA storage.
func exportPicture(ref *govips.ImageRef, alloc core.Allocator) (*core.Picture, core.ImageFormat, error) {
	if ref.Interpretation() != govips.InterpretationSRGB {
		if err := ref.ToColorSpace(govips.InterpretationSRGB); err != nil {
			return nil, core.ImageFormat{}, err
		}
	}
	if !ref.HasAlpha() {
		if err := ref.AddAlpha(); err != nil {
			return nil, core.ImageFormat{}, err
		}
	}

	raw, err := ref.ToBytes()
	if err != nil {
		return nil, core.ImageFormat{}, err
	}

	fmtOut := core.ImageFormat{
		Chroma: core.ChromaNRGBA,
		Width:  ref.Width(),
		Height: ref.Height(),
	}
	pic, err := alloc.Allocate(fmtOut)
	if err != nil {
		return nil, core.ImageFormat{}, err
	}
	copy(pic.Planes[0].Data, raw)
	return pic, fmtOut, nil
}

// compile-time interface checks
var _ core.DecodeEngineFactory = (*Backend)(nil)
var _ core.TransformEngineFactory = (*Backend)(nil)
