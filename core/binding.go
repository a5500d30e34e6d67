package core

import (
	"context"
	"fmt"

	apperrors "github.com/dkoval/image-handler/errors"
)

// A binding wraps one live engine instance plus the formats it was negotiated
// for.  The Handler holds at most one binding of each kind; "absent" is
// modeled as a nil slot, so every non-nil binding is active by construction.

// ── decode binding ────────────────────────────────────────────────────────────

type decodeBinding struct {
	engine DecodeEngine
	fmtIn  ImageFormat
}

// newDecodeBinding resolves and wraps a decoder for input.
func newDecodeBinding(res Resolver, input ImageFormat) (*decodeBinding, error) {
	eng, ok := res.ResolveDecoder(input)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryResolve, "decode.create",
			fmt.Errorf("%w: chroma %q", apperrors.ErrNoSuitableEngine, input.Chroma))
	}
	return &decodeBinding{engine: eng, fmtIn: input}, nil
}

// decodeOne feeds one payload to the engine.  When the engine produces
// nothing and supports draining, a single flush attempt follows; a (nil, nil)
// result after that is the benign "no image decoded" outcome.
func (b *decodeBinding) decodeOne(ctx context.Context, payload *Payload, alloc Allocator) (*Picture, error) {
	pic, err := b.engine.DecodeOne(ctx, payload, alloc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "decode.one", err)
	}
	if pic != nil {
		return pic, nil
	}
	fl, ok := b.engine.(Flusher)
	if !ok {
		return nil, nil
	}
	pic, err = fl.Flush(ctx, alloc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "decode.flush", err)
	}
	return pic, nil
}

func (b *decodeBinding) outputFormat() ImageFormat { return b.engine.OutputFormat() }

// destroy releases the engine.  Safe even when creation never fully
// completed; the engine contract requires Close to tolerate that.
func (b *decodeBinding) destroy() {
	if b.engine != nil {
		_ = b.engine.Close()
	}
	b.engine = nil
}

// ── transform binding ─────────────────────────────────────────────────────────

type transformBinding struct {
	engine TransformEngine
	fmtIn  ImageFormat
	fmtOut ImageFormat
}

// newTransformBinding resolves and wraps a transform engine converting input
// to output.
func newTransformBinding(res Resolver, input, output ImageFormat) (*transformBinding, error) {
	eng, ok := res.ResolveTransform(input, output)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryResolve, "transform.create",
			fmt.Errorf("%w: %q %dx%d -> %q %dx%d", apperrors.ErrNoSuitableEngine,
				input.Chroma, input.Width, input.Height,
				output.Chroma, output.Width, output.Height))
	}
	return &transformBinding{engine: eng, fmtIn: input, fmtOut: output}, nil
}

// matches reports whether the binding can be reused for the pair.  All six of
// input chroma/width/height and output chroma/width/height must match
// exactly; any mismatch forces destroy-and-recreate.
func (b *transformBinding) matches(input, output ImageFormat) bool {
	return b.fmtIn.EqualPixels(input) && b.fmtOut.EqualPixels(output)
}

// transform consumes src: on success it is released and a fresh Picture is
// returned; on failure it is released before the error propagates, so src
// must never be referenced after this call.
func (b *transformBinding) transform(ctx context.Context, src *Picture, alloc Allocator) (*Picture, error) {
	out, err := b.engine.Transform(ctx, src, alloc)
	if out != src {
		src.Release()
	}
	if err != nil {
		if out != nil && out != src {
			out.Release()
		}
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform.run", err)
	}
	return out, nil
}

// outputFormat returns the engine's actual output format, which may refine
// fields left unspecified at creation.
func (b *transformBinding) outputFormat() ImageFormat {
	fmtOut := b.engine.OutputFormat()
	if fmtOut.Chroma == ChromaUnset {
		return b.fmtOut
	}
	return fmtOut
}

func (b *transformBinding) destroy() {
	if b.engine != nil {
		_ = b.engine.Close()
	}
	b.engine = nil
}
