package codec

import (
	"errors"
	"fmt"
)

// Kind separates decode failures by what they usually point at upstream:
// transport corruption, schema drift, or a producer bug.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindMissingField
	KindArity
	KindInvalidField
)

var (
	ErrMalformed    = errors.New("codec: malformed payload")
	ErrMissingField = errors.New("codec: missing required field")
	ErrArity        = errors.New("codec: not enough operands")
	ErrInvalidField = errors.New("codec: invalid field value")
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindMissingField:
		return "missing_field"
	case KindArity:
		return "arity"
	case KindInvalidField:
		return "invalid_field"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindMissingField:
		return ErrMissingField
	case KindArity:
		return ErrArity
	case KindInvalidField:
		return ErrInvalidField
	default:
		return nil
	}
}

// DecodeError reports why a payload could not become a Request.
type DecodeError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.sentinel()
	if msg == nil {
		msg = errors.New("codec: decode failed")
	}
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", msg, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%v: %s", msg, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", msg, e.Err)
	default:
		return msg.Error()
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *DecodeError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind carried by err, or 0 when err is not a DecodeError.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func malformed(err error) error {
	return &DecodeError{Kind: KindMalformed, Err: err}
}

func missing(field string) error {
	return &DecodeError{Kind: KindMissingField, Field: field}
}

func invalid(field string, err error) error {
	return &DecodeError{Kind: KindInvalidField, Field: field, Err: err}
}
