// Package channels is the registry of input channels the processor serves.
// Each channel fixes its payload schema, the operation it builds, and the
// channel its results go to. Adding a channel means adding a constant and a
// row to the table below; nothing else changes.
package channels

import (
	"fmt"

	"github.com/drblury/opflow/internal/codec"
	"github.com/drblury/opflow/internal/operation"
	errspkg "github.com/drblury/opflow/internal/runtime/errors"
)

// Channel identifies a known input channel.
type Channel int

const (
	Minus Channel = iota
	Plus
	Times
	Divide
	Negate

	count
)

type decodeFunc func(raw []byte) (codec.Request, error)

type route struct {
	name   string
	output string
	decode decodeFunc
}

func binary(build codec.BinaryBuilder) decodeFunc {
	return func(raw []byte) (codec.Request, error) { return codec.DecodeBinary(raw, build) }
}

func unary(build codec.UnaryBuilder) decodeFunc {
	return func(raw []byte) (codec.Request, error) { return codec.DecodeUnary(raw, build) }
}

// Indexed by Channel. Every row needs a name, an output and a decoder.
var table = [count]route{
	Minus: {
		name:   "MINUS",
		output: "MINUS_RESULT",
		decode: binary(func(l, r float64) operation.Operation { return operation.Subtract{Left: l, Right: r} }),
	},
	Plus: {
		name:   "PLUS",
		output: "PLUS_RESULT",
		decode: binary(func(l, r float64) operation.Operation { return operation.Add{Left: l, Right: r} }),
	},
	Times: {
		name:   "TIMES",
		output: "TIMES_RESULT",
		decode: binary(func(l, r float64) operation.Operation { return operation.Multiply{Left: l, Right: r} }),
	},
	Divide: {
		name:   "DIVIDE",
		output: "DIVIDE_RESULT",
		decode: binary(func(l, r float64) operation.Operation { return operation.Divide{Left: l, Right: r} }),
	},
	Negate: {
		name:   "NEGATE",
		output: "NEGATE_RESULT",
		decode: unary(func(v float64) operation.Operation { return operation.Negate{Value: v} }),
	},
}

var byName = func() map[string]Channel {
	m := make(map[string]Channel, len(table))
	for i, s := range table {
		m[s.name] = Channel(i)
	}
	return m
}()

// UnknownChannelError carries the channel identity that matched nothing.
type UnknownChannelError struct {
	Name string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("%v: %q", errspkg.ErrUnknownChannel, e.Name)
}

func (e *UnknownChannelError) Unwrap() error {
	return errspkg.ErrUnknownChannel
}

// Resolve maps a channel identity to a Channel by exact, case-sensitive match.
func Resolve(name string) (Channel, error) {
	c, ok := byName[name]
	if !ok {
		return 0, &UnknownChannelError{Name: name}
	}
	return c, nil
}

// All returns every registered channel in declaration order.
func All() []Channel {
	out := make([]Channel, count)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Names returns every registered input channel name.
func Names() []string {
	out := make([]string, count)
	for i, s := range table {
		out[i] = s.name
	}
	return out
}

func (c Channel) valid() bool {
	return c >= 0 && c < count
}

// Name is the canonical input channel name.
func (c Channel) Name() string {
	if !c.valid() {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return table[c].name
}

func (c Channel) String() string {
	return c.Name()
}

// OutputName is the channel results for c are published to.
func (c Channel) OutputName() string {
	if !c.valid() {
		return ""
	}
	return table[c].output
}

// Decode parses raw with the schema registered for c.
func (c Channel) Decode(raw []byte) (codec.Request, error) {
	if !c.valid() {
		return codec.Request{}, &UnknownChannelError{Name: c.Name()}
	}
	return table[c].decode(raw)
}
