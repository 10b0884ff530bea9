package codec

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

var errIDRange = errors.New("id exceeds 128 bits")

// ID is an opaque 128-bit unsigned correlation token. It is carried from the
// request to the response untouched.
type ID struct {
	Hi, Lo uint64
}

// IDFromUint64 builds an ID that fits in 64 bits.
func IDFromUint64(v uint64) ID {
	return ID{Lo: v}
}

// ParseID parses a base-10 unsigned integer of at most 128 bits.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, errors.New("id is empty")
	}
	var id ID
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return ID{}, fmt.Errorf("id %q is not an unsigned integer", s)
		}
		next, ok := id.mulAdd(uint64(c - '0'))
		if !ok {
			return ID{}, errIDRange
		}
		id = next
	}
	return id, nil
}

func (id ID) mulAdd(digit uint64) (ID, bool) {
	hiCarry, hi := bits.Mul64(id.Hi, 10)
	if hiCarry != 0 {
		return ID{}, false
	}
	loHi, lo := bits.Mul64(id.Lo, 10)
	hi, carry := bits.Add64(hi, loHi, 0)
	if carry != 0 {
		return ID{}, false
	}
	lo, carry = bits.Add64(lo, digit, 0)
	hi, carry = bits.Add64(hi, 0, carry)
	if carry != 0 {
		return ID{}, false
	}
	return ID{Hi: hi, Lo: lo}, true
}

// String renders the ID in base 10.
func (id ID) String() string {
	if id.Hi == 0 {
		return strconv.FormatUint(id.Lo, 10)
	}
	var buf [39]byte
	i := len(buf)
	hi, lo := id.Hi, id.Lo
	for hi != 0 || lo != 0 {
		var rem uint64
		hi, rem = hi/10, hi%10
		lo, rem = bits.Div64(rem, lo, 10)
		i--
		buf[i] = byte('0' + rem)
	}
	return string(buf[i:])
}

// MarshalJSON writes the ID as an unquoted integer literal.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts an integer literal or a quoted base-10 string, since
// many producers cannot emit integers wider than 53 bits.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
