package core

import "sync"

// ── Registry ──────────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe Resolver backed by statically registered
// engine factories.  Decoders are keyed by input chroma; transform factories
// are probed in registration order and the first one accepting the format
// pair wins.
type DefaultRegistry struct {
	mu         sync.RWMutex
	decoders   []DecodeEngineFactory
	transforms []TransformEngineFactory
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry { return &DefaultRegistry{} }

// RegisterDecoder appends a decode engine factory.
func (r *DefaultRegistry) RegisterDecoder(f DecodeEngineFactory) {
	r.mu.Lock()
	r.decoders = append(r.decoders, f)
	r.mu.Unlock()
}

// RegisterTransform appends a transform engine factory.
func (r *DefaultRegistry) RegisterTransform(f TransformEngineFactory) {
	r.mu.Lock()
	r.transforms = append(r.transforms, f)
	r.mu.Unlock()
}

// ResolveDecoder instantiates a decoder for input from the first factory that
// claims input.Chroma.  A factory that claims the chroma but fails to build
// an engine ends resolution; the Handler surfaces that as "format not
// supported".
func (r *DefaultRegistry) ResolveDecoder(input ImageFormat) (DecodeEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.decoders {
		if !f.CanDecode(input.Chroma) {
			continue
		}
		eng, err := f.NewDecodeEngine(input)
		if err != nil {
			return nil, false
		}
		return eng, true
	}
	return nil, false
}

// ResolveTransform instantiates a transform engine for the pair from the
// first factory that accepts it.
func (r *DefaultRegistry) ResolveTransform(input, output ImageFormat) (TransformEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.transforms {
		if !f.CanTransform(input, output) {
			continue
		}
		eng, err := f.NewTransformEngine(input, output)
		if err != nil {
			return nil, false
		}
		return eng, true
	}
	return nil, false
}
