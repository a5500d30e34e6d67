// Package transform provides format-conversion/resize engine factories for
// the default registry.  Two backends are available: the x/image/draw scaler
// and a disintegration/imaging Lanczos scaler.  Both convert between the raw
// chromas the buffer manager can lay out, with the restriction that output
// storage must be drawable (planar YCbCr output needs the libvips backend).
package transform

import (
	"image"

	"github.com/dkoval/image-handler/core"
)

// readable reports whether a picture in this chroma can be used as a source.
func readable(c core.Chroma) bool {
	switch c {
	case core.ChromaRGBA, core.ChromaNRGBA, core.ChromaGray, core.ChromaCMYK, core.ChromaYCbCr420:
		return true
	}
	return false
}

// drawable reports whether storage in this chroma satisfies draw.Image and
// can therefore be a scaling destination.
func drawable(c core.Chroma) bool {
	switch c {
	case core.ChromaRGBA, core.ChromaNRGBA, core.ChromaGray, core.ChromaCMYK:
		return true
	}
	return false
}

// fullySpecified reports whether a format is resolved enough to negotiate an
// engine for it.
func fullySpecified(f core.ImageFormat) bool {
	return f.Chroma != core.ChromaUnset && f.Width > 0 && f.Height > 0
}

// sourceImage extracts the readable view from a managed picture.
func sourceImage(p *core.Picture) (image.Image, bool) {
	if p == nil || p.Image == nil {
		return nil, false
	}
	return p.Image, true
}
