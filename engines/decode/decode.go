// Package decode provides format-specific decode engine factories for the
// default registry.  Every engine is one-shot: a payload either yields a
// picture or an error, so none of them implements core.Flusher.
package decode

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/dkoval/image-handler/core"
)

// storageChroma picks the managed plane layout a decoded image is copied
// into.  Plane layouts this module cannot represent fall back to RGBA.
func storageChroma(img image.Image) core.Chroma {
	if y, ok := img.(*image.YCbCr); ok {
		if y.SubsampleRatio == image.YCbCrSubsampleRatio420 {
			return core.ChromaYCbCr420
		}
		return core.ChromaRGBA
	}
	switch img.(type) {
	case *image.RGBA:
		return core.ChromaRGBA
	case *image.NRGBA:
		return core.ChromaNRGBA
	case *image.Gray:
		return core.ChromaGray
	case *image.CMYK:
		return core.ChromaCMYK
	}
	return core.ChromaRGBA
}

// emit copies a freshly decoded image into picture storage obtained from
// alloc and returns the picture plus its format.  On any failure the partial
// picture is released before the error returns.
func emit(img image.Image, alloc core.Allocator) (*core.Picture, core.ImageFormat, error) {
	b := img.Bounds()
	fmtOut := core.ImageFormat{
		Chroma: storageChroma(img),
		Width:  b.Dx(),
		Height: b.Dy(),
	}

	pic, err := alloc.Allocate(fmtOut)
	if err != nil {
		return nil, core.ImageFormat{}, err
	}
	if err := copyPixels(pic, img); err != nil {
		pic.Release()
		return nil, core.ImageFormat{}, err
	}
	return pic, fmtOut, nil
}

func copyPixels(pic *core.Picture, src image.Image) error {
	switch dst := pic.Image.(type) {
	case *image.YCbCr:
		s, ok := src.(*image.YCbCr)
		if !ok {
			return fmt.Errorf("ycbcr storage for %T source", src)
		}
		copyPlane(dst.Y, dst.YStride, s.Y, s.YStride, pic.Format.Width, pic.Format.Height)
		cw := (pic.Format.Width + 1) / 2
		ch := (pic.Format.Height + 1) / 2
		copyPlane(dst.Cb, dst.CStride, s.Cb, s.CStride, cw, ch)
		copyPlane(dst.Cr, dst.CStride, s.Cr, s.CStride, cw, ch)
		return nil
	case draw.Image:
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return nil
	}
	return fmt.Errorf("unsupported storage type %T", pic.Image)
}

// copyPlane copies w bytes of h lines between planes with differing strides.
func copyPlane(dst []byte, dstStride int, src []byte, srcStride, w, h int) {
	for y := 0; y < h; y++ {
		copy(dst[y*dstStride:y*dstStride+w], src[y*srcStride:y*srcStride+w])
	}
}
