package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired        = sterrors.New("opflow: configuration is required")
	ErrLoggerRequired        = sterrors.New("opflow: logger is required")
	ErrConsumerRequired      = sterrors.New("opflow: consumer is required")
	ErrProducerRequired      = sterrors.New("opflow: producer is required")
	ErrBrokersRequired       = sterrors.New("opflow: broker addresses are required")
	ErrConsumerGroupRequired = sterrors.New("opflow: consumer group is required")
	ErrInputChannelsRequired = sterrors.New("opflow: at least one input channel is required")
	ErrInvalidWorkerCount    = sterrors.New("opflow: worker count must be at least 1")
	ErrUnknownChannel        = sterrors.New("opflow: unknown channel")
	ErrConsumerClosed        = sterrors.New("opflow: consumer is closed")
	ErrNotSubscribed         = sterrors.New("opflow: consumer is not subscribed")
	ErrForeignDelivery       = sterrors.New("opflow: delivery does not belong to this consumer")
	ErrPublishRejected       = sterrors.New("opflow: publish rejected by broker")
)

// ConfigValidationError wraps the joined problems found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("opflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
