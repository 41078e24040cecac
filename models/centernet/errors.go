package centernet

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies decode failures.
type ErrorKind string

const (
	// KindShape marks heatmap/offset/wh tensors whose rank, dtype or dimensions disagree.
	KindShape ErrorKind = "shape"
	// KindConfig marks an invalid decoder configuration.
	KindConfig ErrorKind = "config"
)

var (
	// ErrShape matches any error of kind KindShape with errors.Is.
	ErrShape = errors.New("bad input shape")
	// ErrConfig matches any error of kind KindConfig with errors.Is.
	ErrConfig = errors.New("bad configuration")
)

// Error is the single structured error returned by the decoder.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("centernet %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrShape:
		return e.Kind == KindShape
	case ErrConfig:
		return e.Kind == KindConfig
	}
	return false
}

func shapeErrorf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindShape, Op: op, Err: errors.Errorf(format, args...)}
}

func configErrorf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConfig, Op: op, Err: errors.Errorf(format, args...)}
}
