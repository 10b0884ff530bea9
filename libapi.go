package opflow

import (
	"context"

	"github.com/drblury/opflow/internal/channels"
	"github.com/drblury/opflow/internal/codec"
	"github.com/drblury/opflow/internal/operation"
	runtimepkg "github.com/drblury/opflow/internal/runtime"
	configpkg "github.com/drblury/opflow/internal/runtime/config"
	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	idspkg "github.com/drblury/opflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/opflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/opflow/internal/runtime/metadata"
	"github.com/drblury/opflow/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	Pool             = runtimepkg.Pool
	PoolDependencies = runtimepkg.PoolDependencies
	Worker           = runtimepkg.Worker
	Metrics          = runtimepkg.Metrics
	Outcome          = runtimepkg.Outcome
	FailureKind      = runtimepkg.FailureKind

	Channel             = channels.Channel
	UnknownChannelError = channels.UnknownChannelError

	Operation = operation.Operation
	Subtract  = operation.Subtract
	Add       = operation.Add
	Multiply  = operation.Multiply
	Divide    = operation.Divide
	Negate    = operation.Negate

	ID          = codec.ID
	Request     = codec.Request
	Response    = codec.Response
	DecodeError = codec.DecodeError

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Transport contract
	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
	Consumer              = transport.Consumer
	Producer              = transport.Producer
	Delivery              = transport.Delivery
	Disposition           = transport.Disposition
)

var (
	DefaultConfig  = configpkg.Default
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	NewWorker  = runtimepkg.NewWorker
	NewMetrics = runtimepkg.NewMetrics

	ClassifyFailure = runtimepkg.ClassifyFailure

	ResolveChannel = channels.Resolve
	ChannelNames   = channels.Names
	Channels       = channels.All

	Eval           = operation.Eval
	EncodeResponse = codec.EncodeResponse
	DecodeResponse = codec.DecodeResponse
	ParseID        = codec.ParseID

	// Modular transport registry. Import the broker packages, or
	// "github.com/drblury/opflow/transport/transports" for all of them,
	// to register their builders.
	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	ErrConfigRequired        = errspkg.ErrConfigRequired
	ErrLoggerRequired        = errspkg.ErrLoggerRequired
	ErrConsumerRequired      = errspkg.ErrConsumerRequired
	ErrProducerRequired      = errspkg.ErrProducerRequired
	ErrInputChannelsRequired = errspkg.ErrInputChannelsRequired
	ErrUnknownChannel        = errspkg.ErrUnknownChannel

	ErrMalformed    = codec.ErrMalformed
	ErrMissingField = codec.ErrMissingField
	ErrArity        = codec.ErrArity
	ErrInvalidField = codec.ErrInvalidField

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewMetadata          = metadatapkg.New
	CreateULID           = idspkg.CreateULID
)

// Input channels.
const (
	ChannelMinus  = channels.Minus
	ChannelPlus   = channels.Plus
	ChannelTimes  = channels.Times
	ChannelDivide = channels.Divide
	ChannelNegate = channels.Negate
)

// Per-message outcomes reported by the worker.
const (
	OutcomeProcessed     = runtimepkg.OutcomeProcessed
	OutcomeDropped       = runtimepkg.OutcomeDropped
	OutcomePublishFailed = runtimepkg.OutcomePublishFailed
	OutcomeCommitFailed  = runtimepkg.OutcomeCommitFailed
)

// Delivery dispositions for Consumer.Release.
const (
	DispositionDrop      = transport.DispositionDrop
	DispositionRedeliver = transport.DispositionRedeliver
)

// Metadata keys set on every result message.
const (
	MetadataKeyRequestID     = metadatapkg.KeyRequestID
	MetadataKeySourceChannel = metadatapkg.KeySourceChannel
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
)

func NewPool(conf *Config, logger ServiceLogger, deps PoolDependencies) (*Pool, error) {
	return runtimepkg.NewPool(conf, logger, deps)
}

// Run validates conf, builds a pool on the default transport registry and
// blocks until ctx is cancelled or every worker has failed.
func Run(ctx context.Context, conf *Config, logger ServiceLogger) error {
	pool, err := runtimepkg.NewPool(conf, logger, runtimepkg.PoolDependencies{})
	if err != nil {
		return err
	}
	return pool.Run(ctx)
}
