package transform

import (
	"context"
	"fmt"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
)

// Draw builds transform engines backed by golang.org/x/image/draw
// interpolators.  One Scale call covers both the resize and the chroma
// conversion: color-model conversion happens while writing the destination.
type Draw struct {
	// Resampler controls quality vs speed.  Defaults to draw.BiLinear.
	Resampler xdraw.Interpolator
}

// NewDraw returns a Draw factory with the given interpolator (nil for the
// bilinear default).
func NewDraw(resampler xdraw.Interpolator) *Draw { return &Draw{Resampler: resampler} }

func (*Draw) CanTransform(input, output core.ImageFormat) bool {
	return fullySpecified(input) && fullySpecified(output) &&
		readable(input.Chroma) && drawable(output.Chroma)
}

func (d *Draw) NewTransformEngine(input, output core.ImageFormat) (core.TransformEngine, error) {
	sampler := d.Resampler
	if sampler == nil {
		sampler = xdraw.BiLinear
	}
	return &drawEngine{fmtIn: input, fmtOut: output, sampler: sampler}, nil
}

type drawEngine struct {
	fmtIn   core.ImageFormat
	fmtOut  core.ImageFormat
	sampler xdraw.Interpolator
}

func (e *drawEngine) Transform(ctx context.Context, src *core.Picture, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "draw.transform", err)
	}
	view, ok := sourceImage(src)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryTransform, "draw.transform",
			fmt.Errorf("source picture has no image view"))
	}

	out, err := alloc.Allocate(e.fmtOut)
	if err != nil {
		return nil, err
	}
	dst, ok := out.Image.(draw.Image)
	if !ok {
		out.Release()
		return nil, apperrors.New(apperrors.CategoryTransform, "draw.transform",
			fmt.Errorf("storage for chroma %q is not drawable", e.fmtOut.Chroma))
	}

	e.sampler.Scale(dst, dst.Bounds(), view, view.Bounds(), xdraw.Src, nil)
	return out, nil
}

func (e *drawEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *drawEngine) Close() error { return nil }
