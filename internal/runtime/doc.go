/*
Package runtime runs the request/response pipeline of opflow.

# Pipeline

A Worker owns one consumer/producer pair and moves each delivery through

	fetch -> resolve channel -> decode -> evaluate -> encode -> publish -> commit

strictly one message at a time. The input is committed only after the broker
has accepted the result, so a crash between the two yields a duplicate result
rather than a lost one. Messages that can never succeed (unknown channel,
undecodable payload) are released without commit; a publish failure releases
the message for redelivery.

# Pool (pool.go)

Pool builds one transport per worker through a transport.Builder and runs the
workers concurrently. Workers share nothing but the Prometheus collectors.
A worker whose consumer fails stops alone; Pool.Run reports the joined errors
once every worker has returned.

# Observability

  - failure.go: FailureKind labels and per-message Outcome
  - metrics.go: Prometheus collectors under opflow_pipeline_*
  - worker.go: one OpenTelemetry span per message

# Sub-packages

  - config/: pool configuration, validation and OPFLOW_* environment overlay
  - errors/: sentinel errors and ConfigValidationError
  - ids/: ULIDs for message and correlation IDs
  - jsoncodec/: JSON marshaling backed by sonic
  - logging/: ServiceLogger and Watermill adapters
  - metadata/: message header helpers
*/
package runtime
