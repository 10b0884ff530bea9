// Package opflow is a streaming arithmetic request/response processor. It
// consumes typed work requests from named input channels of a broker,
// evaluates the operation the channel names, and publishes the result to the
// channel's fixed output channel.
//
// Delivery is at-least-once: a request is committed only after its result
// has been accepted by the broker. Requests that can never succeed, such as
// an undecodable payload or an unknown channel, are reported and skipped
// without producing output.
//
// # Channels
//
//	MINUS  {id, operands[2]} -> MINUS_RESULT  {id, result}
//	PLUS   {id, operands[2]} -> PLUS_RESULT
//	TIMES  {id, operands[2]} -> TIMES_RESULT
//	DIVIDE {id, operands[2]} -> DIVIDE_RESULT
//	NEGATE {id, operand}     -> NEGATE_RESULT
//
// Request ids are unsigned 128-bit integers. Results that are not finite are
// written as the strings "NaN", "Infinity" and "-Infinity".
//
// # Transports
//
// The broker is chosen by Config.PubSubSystem from the transport registry:
//   - kafka: consumer groups with manual offset commit (IBM/sarama)
//   - memory: in-process partitioned log for tests and local runs
//   - channel: Watermill Go channels
//   - rabbitmq: durable AMQP queues per consumer group
//   - nats: core NATS with queue groups
//   - aws: SNS topics fanned out to per-group SQS queues, LocalStack aware
//
// Import "github.com/drblury/opflow/transport/transports" to register all of
// them, or a single broker package to keep the binary small.
//
// # Running
//
// Pool runs Config.Workers independent workers, each with its own consumer
// and producer, and exposes Prometheus metrics on /metrics when enabled. The
// opflow command in cmd/opflow wraps it with flags and OPFLOW_* environment
// variables.
package opflow
