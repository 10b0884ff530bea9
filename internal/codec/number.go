package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Non-finite doubles travel as these strings, following the protobuf JSON
// mapping, because JSON numbers cannot express them.
const (
	nanString    = "NaN"
	posInfString = "Infinity"
	negInfString = "-Infinity"
)

// Number is a float64 on the wire.
type Number float64

// MarshalJSON writes finite values as JSON numbers and non-finite values as
// "NaN", "Infinity" or "-Infinity".
func (n Number) MarshalJSON() ([]byte, error) {
	return appendNumber(nil, float64(n)), nil
}

// UnmarshalJSON is the inverse of MarshalJSON. Literals outside the float64
// range are rejected instead of being rounded to infinity.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := string(b)
	switch s {
	case `"` + nanString + `"`:
		*n = Number(math.NaN())
		return nil
	case `"` + posInfString + `"`:
		*n = Number(math.Inf(1))
		return nil
	case `"` + negInfString + `"`:
		*n = Number(math.Inf(-1))
		return nil
	case "null":
		return errors.New("operand is null")
	}
	if len(s) > 0 && s[0] == '"' {
		return fmt.Errorf("operand %s is not a number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("operand %s: %w", s, err)
	}
	*n = Number(f)
	return nil
}

func appendNumber(b []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return strconv.AppendQuote(b, nanString)
	case math.IsInf(f, 1):
		return strconv.AppendQuote(b, posInfString)
	case math.IsInf(f, -1):
		return strconv.AppendQuote(b, negInfString)
	}

	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b = strconv.AppendFloat(b, f, format, -1, 64)
	if format == 'e' {
		// e-07 -> e-7
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}
