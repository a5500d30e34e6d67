package decode

import (
	"context"
	"image/gif"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
	"github.com/dkoval/image-handler/utils"
)

// GIF builds decode engines for GIF payloads.  Only the first frame of an
// animation is decoded.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (*GIF) CanDecode(c core.Chroma) bool { return c == core.ChromaGIF }

func (*GIF) NewDecodeEngine(input core.ImageFormat) (core.DecodeEngine, error) {
	return &gifEngine{fmtIn: input}, nil
}

type gifEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *gifEngine) DecodeOne(ctx context.Context, payload *core.Payload, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}

	data := payload.Data
	payload.Data = nil

	img, err := gif.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}

	pic, fmtOut, err := emit(img, alloc)
	if err != nil {
		return nil, err
	}
	e.fmtOut = fmtOut
	return pic, nil
}

func (e *gifEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *gifEngine) Close() error { return nil }
