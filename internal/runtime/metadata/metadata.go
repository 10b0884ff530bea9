package metadata

import idspkg "github.com/drblury/opflow/internal/runtime/ids"

// Keys set on every published result.
const (
	KeyRequestID     = "request_id"
	KeySourceChannel = "source_channel"
	KeyCorrelationID = "correlation_id"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// ForResult builds the headers of a result message. The correlation id is
// carried over from the request, or minted when the request had none.
// Nothing else from the request is forwarded.
func ForResult(request Metadata, requestID, sourceChannel string) Metadata {
	return New(
		KeyRequestID, requestID,
		KeySourceChannel, sourceChannel,
		KeyCorrelationID, idspkg.CorrelationID(request[KeyCorrelationID]),
	)
}
