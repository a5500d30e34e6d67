package core

import (
	"image"
	"time"
)

// Chroma identifies a pixel encoding.  The same tag namespace covers both
// compressed codecs (what a payload contains) and raw plane layouts (what a
// decoded picture is made of); an engine's negotiated formats use it for both
// directions.
type Chroma string

const (
	// Compressed codecs.
	ChromaJPEG Chroma = "jpeg"
	ChromaPNG  Chroma = "png"
	ChromaGIF  Chroma = "gif"
	ChromaWebP Chroma = "webp"

	// Raw plane layouts.
	ChromaRGBA     Chroma = "rgba"
	ChromaNRGBA    Chroma = "nrgba"
	ChromaGray     Chroma = "gray"
	ChromaYCbCr420 Chroma = "ycbcr420"
	ChromaCMYK     Chroma = "cmyk"

	// ChromaUnset marks an unspecified pixel encoding subject to negotiation.
	ChromaUnset Chroma = ""
)

// ImageFormat describes a picture format.  Zero values mean "unspecified":
// such fields are filled in by engine negotiation rather than compared for
// mismatch.
type ImageFormat struct {
	Chroma Chroma
	Width  int
	Height int

	// Sample aspect ratio; 0/0 means square pixels.
	AspectNum int
	AspectDen int
}

// Resolve fills any unspecified field of f from other and returns the result.
// Already-specified fields win.
func (f ImageFormat) Resolve(other ImageFormat) ImageFormat {
	if f.Chroma == ChromaUnset {
		f.Chroma = other.Chroma
	}
	if f.Width == 0 {
		f.Width = other.Width
	}
	if f.Height == 0 {
		f.Height = other.Height
	}
	if f.AspectNum == 0 && f.AspectDen == 0 {
		f.AspectNum, f.AspectDen = other.AspectNum, other.AspectDen
	}
	return f
}

// EqualPixels reports whether f and other agree on chroma, width and height.
// Aspect is informational and does not participate in cache validity checks.
func (f ImageFormat) EqualPixels(other ImageFormat) bool {
	return f.Chroma == other.Chroma && f.Width == other.Width && f.Height == other.Height
}

// Payload is a compressed image buffer plus presentation timestamps.
// Ownership transfers into the decode call that consumes it; callers must not
// reuse a Payload after handing it to the Handler.
type Payload struct {
	Data []byte
	PTS  time.Time
	DTS  time.Time
}

// NewPayload wraps data in a Payload.  The timestamps are stamped by the
// Handler at decode time.
func NewPayload(data []byte) *Payload { return &Payload{Data: data} }

// Plane is one raw storage plane of a Picture.
type Plane struct {
	Data   []byte
	Stride int // bytes per line
	Lines  int
}

// Picture is a decoded or transformed raster image.  It owns its plane
// storage and an opaque private slot.  Whoever holds the Picture last must
// call Release exactly once; Release is guarded so a stray second call is a
// no-op rather than a double free.
type Picture struct {
	Format ImageFormat
	Planes []Plane

	// Image is a view over the plane storage for the raw chromas this module
	// knows how to lay out.  Engines draw into it directly.
	Image image.Image

	// Private is an opaque slot for engine-specific state released together
	// with the picture.
	Private any

	release func(*Picture)
}

// Release frees the pixel storage and any private state.  Safe to call on a
// nil Picture; a second call on the same Picture is a no-op.
func (p *Picture) Release() {
	if p == nil || p.release == nil {
		return
	}
	rel := p.release
	p.release = nil
	rel(p)
}

// Released reports whether Release has already run.
func (p *Picture) Released() bool { return p == nil || p.release == nil }
