package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType = errors.New("codec: unsupported value type")
	ErrReservedKey     = errors.New("codec: reserved marker key")
	ErrMalformed       = errors.New("codec: malformed encoded value")
)

// DecodeError locates a malformed node inside an encoded value.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: decode %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: decode %s: %s", e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}
