package decode

import (
	"context"
	"image/jpeg"

	"github.com/dkoval/image-handler/core"
	apperrors "github.com/dkoval/image-handler/errors"
	"github.com/dkoval/image-handler/utils"
)

// JPEG builds decode engines for JPEG payloads using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG factory.
func NewJPEG() *JPEG { return &JPEG{} }

func (*JPEG) CanDecode(c core.Chroma) bool { return c == core.ChromaJPEG }

func (*JPEG) NewDecodeEngine(input core.ImageFormat) (core.DecodeEngine, error) {
	return &jpegEngine{fmtIn: input}, nil
}

type jpegEngine struct {
	fmtIn  core.ImageFormat
	fmtOut core.ImageFormat
}

func (e *jpegEngine) DecodeOne(ctx context.Context, payload *core.Payload, alloc core.Allocator) (*core.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}

	data := payload.Data
	payload.Data = nil // ownership transferred in; the payload is consumed

	img, err := jpeg.Decode(utils.BytesReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}

	pic, fmtOut, err := emit(img, alloc)
	if err != nil {
		return nil, err
	}
	e.fmtOut = fmtOut
	return pic, nil
}

func (e *jpegEngine) OutputFormat() core.ImageFormat { return e.fmtOut }

func (e *jpegEngine) Close() error { return nil }
