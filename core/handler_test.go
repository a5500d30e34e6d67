package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/dkoval/image-handler/errors"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeDecodeEngine struct {
	fmtOut     ImageFormat
	noPicture  bool // DecodeOne yields nothing
	closeCount int
	decodes    int
	lastPic    *Picture
}

func (e *fakeDecodeEngine) DecodeOne(_ context.Context, payload *Payload, alloc Allocator) (*Picture, error) {
	e.decodes++
	payload.Data = nil
	if e.noPicture {
		return nil, nil
	}
	pic, err := alloc.Allocate(e.fmtOut)
	if err != nil {
		return nil, err
	}
	e.lastPic = pic
	return pic, nil
}

func (e *fakeDecodeEngine) OutputFormat() ImageFormat { return e.fmtOut }
func (e *fakeDecodeEngine) Close() error              { e.closeCount++; return nil }

// flushingEngine produces nothing from DecodeOne and emits from Flush.
type flushingEngine struct {
	fakeDecodeEngine
	flushes int
}

func (e *flushingEngine) DecodeOne(_ context.Context, payload *Payload, _ Allocator) (*Picture, error) {
	e.decodes++
	payload.Data = nil
	return nil, nil
}

func (e *flushingEngine) Flush(_ context.Context, alloc Allocator) (*Picture, error) {
	e.flushes++
	pic, err := alloc.Allocate(e.fmtOut)
	if err != nil {
		return nil, err
	}
	e.lastPic = pic
	return pic, nil
}

type fakeDecoderFactory struct {
	chroma  Chroma
	fmtOut  ImageFormat
	noPic   bool
	flusher bool
	engines []DecodeEngine
}

func (f *fakeDecoderFactory) CanDecode(c Chroma) bool { return c == f.chroma }

func (f *fakeDecoderFactory) NewDecodeEngine(_ ImageFormat) (DecodeEngine, error) {
	var eng DecodeEngine
	if f.flusher {
		eng = &flushingEngine{fakeDecodeEngine: fakeDecodeEngine{fmtOut: f.fmtOut}}
	} else {
		eng = &fakeDecodeEngine{fmtOut: f.fmtOut, noPicture: f.noPic}
	}
	f.engines = append(f.engines, eng)
	return eng, nil
}

type fakeTransformEngine struct {
	fmtOut     ImageFormat
	fail       bool
	closeCount int
	runs       int
}

func (e *fakeTransformEngine) Transform(_ context.Context, _ *Picture, alloc Allocator) (*Picture, error) {
	e.runs++
	if e.fail {
		return nil, errors.New("transform blew up")
	}
	return alloc.Allocate(e.fmtOut)
}

func (e *fakeTransformEngine) OutputFormat() ImageFormat { return e.fmtOut }
func (e *fakeTransformEngine) Close() error              { e.closeCount++; return nil }

type fakeTransformFactory struct {
	fail    bool // engines fail at Transform time
	engines []*fakeTransformEngine
}

func (f *fakeTransformFactory) CanTransform(_, _ ImageFormat) bool { return true }

func (f *fakeTransformFactory) NewTransformEngine(_, output ImageFormat) (TransformEngine, error) {
	eng := &fakeTransformEngine{fmtOut: output, fail: f.fail}
	f.engines = append(f.engines, eng)
	return eng, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

const testChroma = Chroma("codec-a")

var nativeFormat = ImageFormat{Chroma: ChromaRGBA, Width: 100, Height: 100}

func newTestHandler(t *testing.T, dec *fakeDecoderFactory, xf *fakeTransformFactory) *Handler {
	t.Helper()
	reg := NewRegistry()
	if dec != nil {
		reg.RegisterDecoder(dec)
	}
	if xf != nil {
		reg.RegisterTransform(xf)
	}
	h := NewHandler(reg)
	t.Cleanup(func() { h.Close() })
	return h
}

func payload() *Payload { return NewPayload([]byte{0xde, 0xad, 0xbe, 0xef}) }

// ── tests ─────────────────────────────────────────────────────────────────────

func TestRead_DecoderCreatedOnce(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	for i := 0; i < 3; i++ {
		var fmtOut ImageFormat
		pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		pic.Release()
	}
	if len(dec.engines) != 1 {
		t.Errorf("decoder engines created: got %d, want 1", len(dec.engines))
	}
}

func TestRead_DecoderGeometryChangeDoesNotInvalidate(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	for _, w := range []int{100, 640, 12} {
		var fmtOut ImageFormat
		pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma, Width: w}, &fmtOut)
		if err != nil {
			t.Fatalf("read w=%d: %v", w, err)
		}
		pic.Release()
	}
	// Reuse is keyed on the input chroma only; width changes are ignored.
	if len(dec.engines) != 1 {
		t.Errorf("decoder engines created: got %d, want 1", len(dec.engines))
	}
}

func TestRead_ChromaChangeRebuildsDecoder(t *testing.T) {
	decA := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	decB := &fakeDecoderFactory{chroma: Chroma("codec-b"), fmtOut: nativeFormat}
	reg := NewRegistry()
	reg.RegisterDecoder(decA)
	reg.RegisterDecoder(decB)
	h := NewHandler(reg)
	defer h.Close()

	var fmtOut ImageFormat
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	pic.Release()

	fmtOut = ImageFormat{}
	pic, err = h.Read(context.Background(), payload(), ImageFormat{Chroma: "codec-b"}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	pic.Release()

	if len(decA.engines) != 1 || len(decB.engines) != 1 {
		t.Fatalf("engines created: a=%d b=%d, want 1 each", len(decA.engines), len(decB.engines))
	}
	if got := decA.engines[0].(*fakeDecodeEngine).closeCount; got != 1 {
		t.Errorf("old decoder close count: got %d, want 1", got)
	}
}

func TestRead_TransformSkippedWhenFormatsMatch(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	xf := &fakeTransformFactory{}
	h := newTestHandler(t, dec, xf)

	var fmtOut ImageFormat // fully unspecified: resolves to the native format
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	defer pic.Release()

	if len(xf.engines) != 0 {
		t.Errorf("transform engines created: got %d, want 0", len(xf.engines))
	}
	raw := dec.engines[0].(*fakeDecodeEngine).lastPic
	if pic != raw {
		t.Error("expected the raw decoder output to be returned directly")
	}
}

func TestRead_OutputFormatResolvedFromDecoder(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	var fmtOut ImageFormat
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	defer pic.Release()

	if fmtOut != nativeFormat {
		t.Errorf("resolved output format: got %+v, want %+v", fmtOut, nativeFormat)
	}
}

func TestRead_PartialOutputFormatKeepsSpecifiedFields(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	xf := &fakeTransformFactory{}
	h := newTestHandler(t, dec, xf)

	fmtOut := ImageFormat{Width: 50} // chroma+height filled in, width kept
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	defer pic.Release()

	want := ImageFormat{Chroma: ChromaRGBA, Width: 50, Height: 100}
	if !fmtOut.EqualPixels(want) {
		t.Errorf("resolved output format: got %+v, want %+v", fmtOut, want)
	}
	if len(xf.engines) != 1 {
		t.Errorf("transform engines created: got %d, want 1", len(xf.engines))
	}
}

func TestRead_TransformCacheInvalidation(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	xf := &fakeTransformFactory{}
	h := newTestHandler(t, dec, xf)

	formatA := ImageFormat{Chroma: ChromaRGBA, Width: 50, Height: 50}
	formatB := ImageFormat{Chroma: ChromaGray, Width: 50, Height: 50}

	read := func(want ImageFormat) {
		t.Helper()
		fmtOut := want
		pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
		if err != nil {
			t.Fatal(err)
		}
		pic.Release()
	}

	read(formatA)
	read(formatA) // reused
	read(formatB) // rebuild 1
	read(formatA) // rebuild 2

	if len(xf.engines) != 3 {
		t.Fatalf("transform engines created: got %d, want 3", len(xf.engines))
	}
	if xf.engines[0].closeCount != 1 || xf.engines[1].closeCount != 1 {
		t.Error("expected each displaced transform engine to be closed exactly once")
	}
	if xf.engines[0].runs != 2 {
		t.Errorf("first engine runs: got %d, want 2", xf.engines[0].runs)
	}
}

func TestRead_NoPictureIsNotError(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat, noPic: true}
	h := newTestHandler(t, dec, nil)

	var fmtOut ImageFormat
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatalf("no-picture outcome must not be an error, got %v", err)
	}
	if pic != nil {
		t.Fatal("expected no picture")
	}
	if h.dec == nil {
		t.Error("decode binding must survive a no-picture outcome")
	}
	if got := dec.engines[0].(*fakeDecodeEngine).closeCount; got != 0 {
		t.Errorf("decoder closed %d times, want 0", got)
	}
}

func TestRead_FlushDrainsHeldPicture(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat, flusher: true}
	h := newTestHandler(t, dec, nil)

	var fmtOut ImageFormat
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	if pic == nil {
		t.Fatal("expected the flushed picture")
	}
	defer pic.Release()

	eng := dec.engines[0].(*flushingEngine)
	if eng.decodes != 1 || eng.flushes != 1 {
		t.Errorf("decodes=%d flushes=%d, want 1 and 1", eng.decodes, eng.flushes)
	}
}

func TestRead_TransformCreateFailureReleasesPicture(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil) // no transform factory registered

	fmtOut := ImageFormat{Chroma: ChromaGray, Width: 10, Height: 10}
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if !errors.Is(err, apperrors.ErrNoSuitableEngine) {
		t.Fatalf("error: got %v, want ErrNoSuitableEngine", err)
	}
	if pic != nil {
		t.Fatal("no picture may escape a failed read")
	}

	decoded := dec.engines[0].(*fakeDecodeEngine).lastPic
	if !decoded.Released() {
		t.Error("decoded picture must be released when transform creation fails")
	}
	if h.xfrm != nil {
		t.Error("transform slot must stay empty after a failed creation")
	}
}

func TestRead_TransformRunFailureReleasesPicture(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	xf := &fakeTransformFactory{fail: true}
	h := newTestHandler(t, dec, xf)

	fmtOut := ImageFormat{Chroma: ChromaGray, Width: 10, Height: 10}
	_, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err == nil {
		t.Fatal("expected transform failure")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryTransform) {
		t.Errorf("category: got %v", err)
	}
	if decoded := dec.engines[0].(*fakeDecodeEngine).lastPic; !decoded.Released() {
		t.Error("decoded picture must be released when the transform fails")
	}
}

func TestRead_NoDecoderForChroma(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	var fmtOut ImageFormat
	_, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: "codec-x"}, &fmtOut)
	if !errors.Is(err, apperrors.ErrNoSuitableEngine) {
		t.Fatalf("error: got %v, want ErrNoSuitableEngine", err)
	}
	if len(dec.engines) != 0 {
		t.Error("no engine may be created for an unresolvable chroma")
	}
}

func TestRead_EmptyPayload(t *testing.T) {
	h := newTestHandler(t, &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}, nil)

	var fmtOut ImageFormat
	if _, err := h.Read(context.Background(), NewPayload(nil), ImageFormat{Chroma: testChroma}, &fmtOut); !errors.Is(err, apperrors.ErrEmptyPayload) {
		t.Errorf("nil data: got %v, want ErrEmptyPayload", err)
	}
	if _, err := h.Read(context.Background(), nil, ImageFormat{Chroma: testChroma}, &fmtOut); !errors.Is(err, apperrors.ErrEmptyPayload) {
		t.Errorf("nil payload: got %v, want ErrEmptyPayload", err)
	}
}

func TestRead_StampsPayloadTimestamps(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	p := payload()
	var fmtOut ImageFormat
	pic, err := h.Read(context.Background(), p, ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	pic.Release()

	if p.PTS.IsZero() || p.DTS.IsZero() {
		t.Error("payload timestamps must be stamped at decode time")
	}
	if p.PTS != p.DTS {
		t.Error("PTS and DTS must be stamped with the same instant")
	}
}

func TestHandler_CloseCascades(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: testChroma, fmtOut: nativeFormat}
	xf := &fakeTransformFactory{}
	h := newTestHandler(t, dec, xf)

	fmtOut := ImageFormat{Chroma: ChromaGray, Width: 10, Height: 10}
	pic, err := h.Read(context.Background(), payload(), ImageFormat{Chroma: testChroma}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	pic.Release()

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil { // idempotent
		t.Fatal(err)
	}
	if got := dec.engines[0].(*fakeDecodeEngine).closeCount; got != 1 {
		t.Errorf("decoder close count: got %d, want 1", got)
	}
	if got := xf.engines[0].closeCount; got != 1 {
		t.Errorf("transform close count: got %d, want 1", got)
	}
}

func TestWrite_NotImplemented(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	if _, err := h.Write(context.Background(), nil, ImageFormat{}, &ImageFormat{}); !errors.Is(err, apperrors.ErrNotImplemented) {
		t.Errorf("Write: got %v, want ErrNotImplemented", err)
	}
	if err := h.WriteFile(context.Background(), nil, ImageFormat{}, &ImageFormat{}, "out.jpg"); !errors.Is(err, apperrors.ErrNotImplemented) {
		t.Errorf("WriteFile: got %v, want ErrNotImplemented", err)
	}
}

func TestReadFile(t *testing.T) {
	dec := &fakeDecoderFactory{chroma: ChromaJPEG, fmtOut: nativeFormat}
	h := newTestHandler(t, dec, nil)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "red.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	// Chroma left unset: sniffed from the file's magic bytes.
	var fmtOut ImageFormat
	pic, err := h.ReadFile(context.Background(), path, ImageFormat{}, &fmtOut)
	if err != nil {
		t.Fatal(err)
	}
	pic.Release()
	if len(dec.engines) != 1 {
		t.Error("sniffed jpeg payload should have resolved the jpeg decoder")
	}
}

func TestReadFile_Missing(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	var fmtOut ImageFormat
	pic, err := h.ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.png"), ImageFormat{}, &fmtOut)
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryIO) {
		t.Errorf("category: got %v, want io", err)
	}
	if pic != nil {
		t.Error("no picture may be produced on an IO failure")
	}
}
