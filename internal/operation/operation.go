// Package operation holds the arithmetic the processor evaluates. It knows
// nothing about channels, wire formats, or brokers.
package operation

import "fmt"

// Operation is a closed set of variants. Only types in this package satisfy it.
type Operation interface {
	isOperation()
}

// Subtract evaluates Left - Right.
type Subtract struct {
	Left, Right float64
}

// Add evaluates Left + Right.
type Add struct {
	Left, Right float64
}

// Multiply evaluates Left * Right.
type Multiply struct {
	Left, Right float64
}

// Divide evaluates Left / Right. Division by zero follows IEEE-754.
type Divide struct {
	Left, Right float64
}

// Negate evaluates -Value.
type Negate struct {
	Value float64
}

func (Subtract) isOperation() {}
func (Add) isOperation()      {}
func (Multiply) isOperation() {}
func (Divide) isOperation()   {}
func (Negate) isOperation()   {}

// Eval is total over the variants: NaN and infinities propagate and nothing is rejected.
func Eval(op Operation) float64 {
	switch o := op.(type) {
	case Subtract:
		return o.Left - o.Right
	case Add:
		return o.Left + o.Right
	case Multiply:
		return o.Left * o.Right
	case Divide:
		return o.Left / o.Right
	case Negate:
		return -o.Value
	default:
		panic(fmt.Sprintf("operation: unhandled variant %T", op))
	}
}

// Name returns a stable lowercase label for logs and metrics.
func Name(op Operation) string {
	switch op.(type) {
	case Subtract:
		return "subtract"
	case Add:
		return "add"
	case Multiply:
		return "multiply"
	case Divide:
		return "divide"
	case Negate:
		return "negate"
	default:
		return "unknown"
	}
}
