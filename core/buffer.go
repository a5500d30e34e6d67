package core

import (
	"fmt"
	"image"

	apperrors "github.com/dkoval/image-handler/errors"
)

// BufferManager allocates and releases raw picture storage on behalf of the
// decode and transform engines.  It is stateless per call and safe for
// reentrant use; the Handler registers one instance with every engine it
// creates so engines never allocate pictures themselves.
type BufferManager struct{}

// NewBufferManager returns a BufferManager.
func NewBufferManager() *BufferManager { return &BufferManager{} }

// Allocate returns a Picture with plane storage laid out for format.  It
// fails when the chroma yields no usable planes or the geometry is
// degenerate; nothing is retained on failure.
func (m *BufferManager) Allocate(format ImageFormat) (*Picture, error) {
	if format.Width <= 0 || format.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryAlloc, "buffer.allocate",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, format.Width, format.Height))
	}

	planes, view := layoutPlanes(format)
	if len(planes) == 0 {
		return nil, apperrors.New(apperrors.CategoryAlloc, "buffer.allocate",
			fmt.Errorf("%w: no plane layout for chroma %q", apperrors.ErrAllocationFailed, format.Chroma))
	}

	return &Picture{
		Format:  format,
		Planes:  planes,
		Image:   view,
		release: releasePicture,
	}, nil
}

// releasePicture frees plane storage and private state.  Installed as the
// release hook on every Picture this manager allocates.
func releasePicture(p *Picture) {
	if c, ok := p.Private.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	p.Private = nil
	p.Planes = nil
	p.Image = nil
}

// layoutPlanes computes the plane storage and the image.Image view for the
// raw chromas this module supports.  Compressed chromas have no plane layout
// and yield nil.
func layoutPlanes(format ImageFormat) ([]Plane, image.Image) {
	w, h := format.Width, format.Height
	rect := image.Rect(0, 0, w, h)

	switch format.Chroma {
	case ChromaRGBA:
		img := image.NewRGBA(rect)
		return []Plane{{Data: img.Pix, Stride: img.Stride, Lines: h}}, img

	case ChromaNRGBA:
		img := image.NewNRGBA(rect)
		return []Plane{{Data: img.Pix, Stride: img.Stride, Lines: h}}, img

	case ChromaGray:
		img := image.NewGray(rect)
		return []Plane{{Data: img.Pix, Stride: img.Stride, Lines: h}}, img

	case ChromaCMYK:
		img := image.NewCMYK(rect)
		return []Plane{{Data: img.Pix, Stride: img.Stride, Lines: h}}, img

	case ChromaYCbCr420:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
		ch := (h + 1) / 2
		return []Plane{
			{Data: img.Y, Stride: img.YStride, Lines: h},
			{Data: img.Cb, Stride: img.CStride, Lines: ch},
			{Data: img.Cr, Stride: img.CStride, Lines: ch},
		}, img
	}
	return nil, nil
}
