package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/opflow/internal/channels"
	"github.com/drblury/opflow/internal/codec"
	"github.com/drblury/opflow/internal/operation"
	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/opflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/opflow/internal/runtime/metadata"
	"github.com/drblury/opflow/transport"
)

const tracerName = "github.com/drblury/opflow/internal/runtime"

// Worker is one sequential fetch, decode, evaluate, publish, commit loop.
// It owns its consumer and producer exclusively and closes both when Run
// returns.
type Worker struct {
	id       int
	consumer transport.Consumer
	producer transport.Producer
	channels []string
	logger   loggingpkg.ServiceLogger
	metrics  *Metrics
	tracer   trace.Tracer
}

// NewWorker binds a transport pair to a worker. metrics may be nil.
func NewWorker(id int, tr transport.Transport, inputChannels []string, logger loggingpkg.ServiceLogger, metrics *Metrics) (*Worker, error) {
	if tr.Consumer == nil {
		return nil, errspkg.ErrConsumerRequired
	}
	if tr.Producer == nil {
		return nil, errspkg.ErrProducerRequired
	}
	if len(inputChannels) == 0 {
		return nil, errspkg.ErrInputChannelsRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Worker{
		id:       id,
		consumer: tr.Consumer,
		producer: tr.Producer,
		channels: append([]string(nil), inputChannels...),
		logger:   logger.With(loggingpkg.LogFields{"worker": id}),
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// ID returns the worker's index in its pool.
func (w *Worker) ID() int { return w.id }

// Run subscribes and processes deliveries until ctx is cancelled, which
// returns nil, or the consumer fails, which is fatal and returned.
// Cancellation is observed between deliveries only.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := w.close(); cerr != nil {
			w.logger.Error("Failed to release broker resources", cerr, nil)
			err = errors.Join(err, cerr)
		}
	}()

	if err := w.consumer.Subscribe(ctx, w.channels); err != nil {
		w.reportConsumerFailure(err)
		return fmt.Errorf("worker %d: subscribe: %w", w.id, err)
	}
	w.logger.Info("Worker started", loggingpkg.LogFields{"channels": w.channels})

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker stopping", nil)
			return nil
		}
		d, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker stopping", nil)
				return nil
			}
			w.reportConsumerFailure(err)
			return fmt.Errorf("worker %d: fetch: %w", w.id, err)
		}
		// The delivery runs to commit or release even if ctx ends meanwhile.
		w.process(context.WithoutCancel(ctx), d)
	}
}

func (w *Worker) close() error {
	return transport.Transport{Consumer: w.consumer, Producer: w.producer}.Close()
}

// process takes one delivery from Received to Acknowledged, or to a
// release when a stage fails.
func (w *Worker) process(ctx context.Context, d *transport.Delivery) Outcome {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "ProcessRequest",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", d.Channel),
			attribute.Int("messaging.partition", int(d.Partition)),
			attribute.Int64("messaging.offset", d.Offset),
			attribute.Int("opflow.worker", w.id),
		),
	)
	defer span.End()

	outcome := w.handle(ctx, span, d)
	span.SetAttributes(attribute.String("opflow.outcome", outcome.String()))
	w.metrics.observe(d.Channel, outcome, time.Since(start))
	return outcome
}

func (w *Worker) handle(ctx context.Context, span trace.Span, d *transport.Delivery) Outcome {
	ch, err := channels.Resolve(d.Channel)
	if err != nil {
		return w.drop(span, d, err)
	}
	req, err := ch.Decode(d.Payload)
	if err != nil {
		return w.drop(span, d, err)
	}

	requestID := req.ID.String()
	span.SetAttributes(
		attribute.String("opflow.request_id", requestID),
		attribute.String("opflow.operation", operation.Name(req.Operation)),
	)

	result := operation.Eval(req.Operation)
	payload := codec.EncodeResponse(req.ID, result)
	target := ch.OutputName()

	md := metadatapkg.ForResult(d.Metadata, requestID, d.Channel)
	if err := w.producer.Publish(ctx, target, payload, md); err != nil {
		w.fail(span, err)
		w.metrics.publishFailure(d.Channel)
		w.logger.Error("Failed to publish result; input left uncommitted for redelivery", err, loggingpkg.LogFields{
			"channel":        d.Channel,
			"target_channel": target,
			"request_id":     requestID,
			"failure_kind":   FailurePublish,
			"partition":      d.Partition,
			"offset":         d.Offset,
		})
		if rerr := w.consumer.Release(d, transport.DispositionRedeliver); rerr != nil {
			w.logger.Error("Failed to release delivery for redelivery", rerr, loggingpkg.LogFields{
				"channel":    d.Channel,
				"request_id": requestID,
			})
		}
		return OutcomePublishFailed
	}

	if err := w.consumer.Commit(ctx, d); err != nil {
		w.fail(span, err)
		w.logger.Error("Failed to commit after publish; result may be published again", err, loggingpkg.LogFields{
			"channel":      d.Channel,
			"request_id":   requestID,
			"failure_kind": FailureCommit,
			"partition":    d.Partition,
			"offset":       d.Offset,
		})
		return OutcomeCommitFailed
	}

	w.logger.Debug("Request processed", loggingpkg.LogFields{
		"channel":        d.Channel,
		"target_channel": target,
		"request_id":     requestID,
		"result":         strconv.FormatFloat(result, 'g', -1, 64),
	})
	return OutcomeProcessed
}

// drop reports a delivery that can never succeed and releases it without
// commit or redelivery.
func (w *Worker) drop(span trace.Span, d *transport.Delivery, cause error) Outcome {
	kind := ClassifyFailure(cause)
	w.fail(span, cause)
	w.metrics.decodeFailure(d.Channel, kind)
	fields := loggingpkg.LogFields{
		"channel":       d.Channel,
		"payload_bytes": len(d.Payload),
		"failure_kind":  kind,
		"partition":     d.Partition,
		"offset":        d.Offset,
	}
	// Offset brokers leave a dropped record uncommitted; queue brokers ack it.
	if p, ok := w.consumer.(transport.CapabilitiesProvider); ok {
		fields["acked"] = !p.Capabilities().DropLeavesUncommitted()
	}
	w.logger.Error("Dropping message that cannot be decoded", cause, fields)
	if err := w.consumer.Release(d, transport.DispositionDrop); err != nil {
		w.logger.Error("Failed to release dropped delivery", err, loggingpkg.LogFields{"channel": d.Channel})
	}
	return OutcomeDropped
}

func (w *Worker) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (w *Worker) reportConsumerFailure(err error) {
	w.logger.Error("Consumer failed; worker terminating", err, loggingpkg.LogFields{
		"failure_kind": FailureConsumer,
		"channels":     w.channels,
	})
}
