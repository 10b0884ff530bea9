package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeResponse(t *testing.T) {
	out := EncodeResponse(IDFromUint64(42), 7.25)
	assert.JSONEq(t, `{"id":42,"result":7.25}`, string(out))
}

func TestEncodeResponseNonFinite(t *testing.T) {
	assert.JSONEq(t, `{"id":1,"result":"NaN"}`, string(EncodeResponse(IDFromUint64(1), math.NaN())))
	assert.JSONEq(t, `{"id":1,"result":"Infinity"}`, string(EncodeResponse(IDFromUint64(1), math.Inf(1))))
	assert.JSONEq(t, `{"id":1,"result":"-Infinity"}`, string(EncodeResponse(IDFromUint64(1), math.Inf(-1))))
}

func TestEncodeResponseIsDeterministic(t *testing.T) {
	id := ID{Hi: 9, Lo: 12345}
	assert.Equal(t, EncodeResponse(id, -0.5), EncodeResponse(id, -0.5))
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse(EncodeResponse(ID{Hi: 1, Lo: 2}, math.Inf(-1)))
	require.NoError(t, err)
	assert.Equal(t, ID{Hi: 1, Lo: 2}, resp.ID)
	assert.True(t, math.IsInf(float64(resp.Result), -1))
}
