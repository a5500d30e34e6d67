package decode

import (
	"context"
	"image/png"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
	"github.com/dkoval/image-handler/utils"
)

// PNG builds decode engines for PNG payloads using the standard library.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (*PNG) CanDecode(c core.Chroma) bool { return c == core.ChromaPNG }

func (*PNG) NewDecodeEngine(input core.ImageFormat) (core.DecodeEngine, error) {
	return &pngEngine{fmtIn: input}, nil
}

type pngEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *pngEngine) DecodeOne(ctx context.Context, payload *core.Payload, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}

	data := payload.Data
	payload.Data = nil

	img, err := png.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}

	pic, fmtOut, err := emit(img, alloc)
	if err != nil {
		return nil, err
	}
	e.fmtOut = fmtOut
	return pic, nil
}

func (e *pngEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *pngEngine) Close() error { return nil }
