package decode

import (
	"context"

	"golang.org/x/image/webp"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
	"github.com/dkoval/image-handler/utils"
)

// WebP builds decode engines for WebP payloads using golang.org/x/image/webp.
// NOTE: golang.org/x/image/webp only supports still WebP decoding.  For
// animated WebP, register the libvips backend from engines/vips instead.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (*WebP) CanDecode(c core.Chroma) bool { return c == core.ChromaWebP }

func (*WebP) NewDecodeEngine(input core.ImageFormat) (core.DecodeEngine, error) {
	return &webpEngine{fmtIn: input}, nil
}

type webpEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *webpEngine) DecodeOne(ctx context.Context, payload *core.Payload, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}

	data := payload.Data
	payload.Data = nil

	img, err := webp.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}

	pic, fmtOut, err := emit(img, alloc)
	if err != nil {
		return nil, err
	}
	e.fmtOut = fmtOut
	return pic, nil
}

func (e *webpEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *webpEngine) Close() error { return nil }
