package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryDecode    Category = "decode"
	CategoryTransform Category = "transform"
	CategoryAlloc     Category = "alloc"
	CategoryResolve   Category = "resolve"
	CategoryIO        Category = "io"
	CategoryInput     Category = "input"
	CategoryEncode    Category = "encode"
)

// HandlerError is the structured error type used throughout the module.
type HandlerError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// New creates a HandlerError.
func New(category Category, op string, err error) *HandlerError {
	return &HandlerError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Category == cat
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrNoSuitableEngine  = errors.New("no suitable engine for format")
	ErrAllocationFailed  = errors.New("picture allocation failed")
	ErrNotImplemented    = errors.New("not implemented")
	ErrEmptyPayload      = errors.New("empty payload")
	ErrInvalidDimensions = errors.New("invalid dimensions")
)
