package core

import (
	"context"
	"time"
)

// Allocator hands out picture storage on behalf of an engine.  Engines never
// allocate pictures themselves; the Handler registers its buffer manager as
// the allocator for every engine it creates.
type Allocator interface {
	// Allocate returns a Picture sized for the given resolved format.
	Allocate(format ImageFormat) (*Picture, error)
}

// DecodeEngine turns compressed payload bytes into a Picture in the engine's
// native output format.  One instance decodes one stream of payloads; the
// Handler caches an instance for as long as the requested input chroma stays
// the same.  Implementations live in engines/decode/.
type DecodeEngine interface {
	// DecodeOne feeds one payload to the decoder.  Ownership of the payload
	// transfers in.  A (nil, nil) return means "no picture produced yet" and
	// is a legitimate outcome, not an error: some formats need more input
	// before a picture can be emitted.
	DecodeOne(ctx context.Context, payload *Payload, alloc Allocator) (*Picture, error)

	// OutputFormat returns the negotiated output format.  It is unresolved
	// (zero) until the first successful decode.
	OutputFormat() ImageFormat

	// Close releases the decoder instance.  Safe to call on a partially
	// constructed engine.
	Close() error
}

// Flusher is implemented by decode engines whose parser can hold a picture
// back until drained.  The Handler calls Flush only after DecodeOne produced
// nothing, never speculatively.
type Flusher interface {
	Flush(ctx context.Context, alloc Allocator) (*Picture, error)
}

// TransformEngine converts pictures from one fixed format to another (chroma
// conversion and/or resize).  Implementations live in engines/transform/.
type TransformEngine interface {
	// Transform converts src into a newly allocated Picture.  src remains
	// owned by the caller; engines only read it.
	Transform(ctx context.Context, src *Picture, alloc Allocator) (*Picture, error)

	// OutputFormat returns the engine's actual output format, which may
	// refine fields the caller left unspecified at creation time.
	OutputFormat() ImageFormat

	Close() error
}

// DecodeEngineFactory builds decode engines for the chromas it supports.
type DecodeEngineFactory interface {
	// CanDecode reports whether the factory handles the given input chroma.
	CanDecode(chroma Chroma) bool
	// NewDecodeEngine creates a fresh decoder negotiated for input.
	NewDecodeEngine(input ImageFormat) (DecodeEngine, error)
}

// TransformEngineFactory builds transform engines for format pairs it can
// convert between.
type TransformEngineFactory interface {
	CanTransform(input, output ImageFormat) bool
	NewTransformEngine(input, output ImageFormat) (TransformEngine, error)
}

// Resolver locates a concrete engine implementation for a format request.
// The Handler treats it as a black box with no visibility into how
// implementations are matched.
type Resolver interface {
	// ResolveDecoder returns a fresh decode engine for input, or false when
	// no registered implementation handles input.Chroma.
	ResolveDecoder(input ImageFormat) (DecodeEngine, bool)
	// ResolveTransform returns a fresh transform engine converting input to
	// output, or false when no registered implementation can.
	ResolveTransform(input, output ImageFormat) (TransformEngine, bool)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives performance observations from the Handler.
type MetricsCollector interface {
	RecordStageTime(stage string, d time.Duration)
	RecordRebuild(engine string)
	RecordError(stage string, category string)
}

// Hook is an optional observer invoked around the decode and transform stages.
type Hook interface {
	BeforeStage(ctx context.Context, stage string, format ImageFormat)
	AfterStage(ctx context.Context, stage string, format ImageFormat, d time.Duration, err error)
}
