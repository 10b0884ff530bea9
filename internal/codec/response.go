package codec

import (
	"fmt"

	"github.com/drblury/opflow/internal/runtime/jsoncodec"
)

// Response is the payload published for every evaluated request.
type Response struct {
	ID     ID     `json:"id"`
	Result Number `json:"result"`
}

// EncodeResponse serializes {"id": <u128>, "result": <f64>}. Every float64,
// including NaN and the infinities, has an encoding, so there is no error path.
func EncodeResponse(id ID, result float64) []byte {
	out, err := jsoncodec.Marshal(Response{ID: id, Result: Number(result)})
	if err != nil {
		panic(fmt.Sprintf("codec: encode response %s: %v", id, err))
	}
	return out
}

// DecodeResponse parses a published response payload.
func DecodeResponse(raw []byte) (Response, error) {
	var r Response
	if err := jsoncodec.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	return r, nil
}
