package runtime

import (
	"errors"

	"github.com/drblury/opflow/internal/codec"
	errspkg "github.com/drblury/opflow/internal/runtime/errors"
)

// FailureKind labels why a message did not complete. It is the
// failure_kind field of every failure report and a metrics label.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureUnknownChannel     FailureKind = "unknown_channel"
	FailureDecodeMalformed    FailureKind = "decode_malformed"
	FailureDecodeMissingField FailureKind = "decode_missing_field"
	FailureDecodeArity        FailureKind = "decode_arity"
	FailureDecodeInvalidField FailureKind = "decode_invalid_field"
	FailurePublish            FailureKind = "publish"
	FailureCommit             FailureKind = "commit"
	FailureConsumer           FailureKind = "consumer"
	FailureUnknown            FailureKind = "unknown"
)

// ClassifyFailure maps a channel resolution or decode error to its kind.
// Errors from later stages are labelled by the stage that saw them.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, errspkg.ErrUnknownChannel) {
		return FailureUnknownChannel
	}
	switch codec.KindOf(err) {
	case codec.KindMalformed:
		return FailureDecodeMalformed
	case codec.KindMissingField:
		return FailureDecodeMissingField
	case codec.KindArity:
		return FailureDecodeArity
	case codec.KindInvalidField:
		return FailureDecodeInvalidField
	}
	return FailureUnknown
}

// Outcome is what happened to one delivery.
type Outcome int

const (
	// OutcomeProcessed: result published and the delivery committed.
	OutcomeProcessed Outcome = iota + 1
	// OutcomeDropped: unknown channel or undecodable payload; released
	// without commit and without redelivery.
	OutcomeDropped
	// OutcomePublishFailed: released for redelivery.
	OutcomePublishFailed
	// OutcomeCommitFailed: result published, commit failed; the delivery
	// will be seen again.
	OutcomeCommitFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDropped:
		return "dropped"
	case OutcomePublishFailed:
		return "publish_failed"
	case OutcomeCommitFailed:
		return "commit_failed"
	default:
		return "unknown"
	}
}
