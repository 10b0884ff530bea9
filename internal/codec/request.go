// Package codec turns channel payloads into requests and results into
// response payloads. Both directions are pure: the same input always gives
// the same output or the same error kind.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/drblury/opflow/internal/operation"
	"github.com/drblury/opflow/internal/runtime/jsoncodec"
)

// Request is one unit of work decoded from an input channel.
type Request struct {
	ID        ID
	Operation operation.Operation
}

// BinaryBuilder constructs a two-operand operation.
type BinaryBuilder func(left, right float64) operation.Operation

// UnaryBuilder constructs a one-operand operation.
type UnaryBuilder func(value float64) operation.Operation

// rawField keeps the undecoded bytes of one JSON member so presence, null and
// type problems can be told apart per field.
type rawField []byte

func (r *rawField) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func (r rawField) absent() bool {
	return len(r) == 0 || string(r) == "null"
}

type binaryPayload struct {
	ID       rawField `json:"id"`
	Operands rawField `json:"operands"`
}

type unaryPayload struct {
	ID      rawField `json:"id"`
	Operand rawField `json:"operand"`
}

// DecodeBinary reads {"id": <u128>, "operands": [<f64>, <f64>, ...]}. At least
// two operands are required; any after the second are ignored.
func DecodeBinary(raw []byte, build BinaryBuilder) (Request, error) {
	var p binaryPayload
	if err := unmarshalObject(raw, &p); err != nil {
		return Request{}, err
	}
	id, err := decodeID(p.ID)
	if err != nil {
		return Request{}, err
	}
	if p.Operands.absent() {
		return Request{}, missing("operands")
	}
	var operands []rawField
	if err := jsoncodec.Unmarshal(p.Operands, &operands); err != nil {
		return Request{}, invalid("operands", err)
	}
	if len(operands) < 2 {
		return Request{}, &DecodeError{
			Kind:  KindArity,
			Field: "operands",
			Err:   fmt.Errorf("got %d, need at least 2", len(operands)),
		}
	}
	left, err := decodeOperand(operands[0], 0)
	if err != nil {
		return Request{}, err
	}
	right, err := decodeOperand(operands[1], 1)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: id, Operation: build(left, right)}, nil
}

// DecodeUnary reads {"id": <u128>, "operand": <f64>}.
func DecodeUnary(raw []byte, build UnaryBuilder) (Request, error) {
	var p unaryPayload
	if err := unmarshalObject(raw, &p); err != nil {
		return Request{}, err
	}
	id, err := decodeID(p.ID)
	if err != nil {
		return Request{}, err
	}
	if p.Operand.absent() {
		return Request{}, missing("operand")
	}
	var value Number
	if err := value.UnmarshalJSON(bytes.TrimSpace(p.Operand)); err != nil {
		return Request{}, invalid("operand", err)
	}
	return Request{ID: id, Operation: build(float64(value))}, nil
}

func unmarshalObject(raw []byte, v any) error {
	if !jsoncodec.Valid(raw) {
		return malformed(errors.New("not valid JSON"))
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return malformed(errors.New("payload is not a JSON object"))
	}
	if err := jsoncodec.Unmarshal(trimmed, v); err != nil {
		return malformed(err)
	}
	return nil
}

func decodeID(raw rawField) (ID, error) {
	if raw.absent() {
		return ID{}, missing("id")
	}
	var id ID
	if err := id.UnmarshalJSON(bytes.TrimSpace(raw)); err != nil {
		return ID{}, invalid("id", err)
	}
	return id, nil
}

func decodeOperand(raw rawField, index int) (float64, error) {
	if raw.absent() {
		return 0, invalid("operands", fmt.Errorf("operand %d is null", index))
	}
	var n Number
	if err := n.UnmarshalJSON(bytes.TrimSpace(raw)); err != nil {
		return 0, invalid("operands", fmt.Errorf("operand %d: %w", index, err))
	}
	return float64(n), nil
}
