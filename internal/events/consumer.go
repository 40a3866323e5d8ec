package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body. A nil error acks the delivery; an
// error marked with Permanent dead-letters it; any other error requeues it.
type HandlerFunc func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	Queue string
	Tag   string
	// HandleTimeout bounds one handler invocation.
	HandleTimeout time.Duration
	// RequeueDelay is waited before requeueing a failed delivery, so a broken
	// dependency does not turn redelivery into a hot loop.
	RequeueDelay time.Duration
}

const (
	outcomeAck        = "ack"
	outcomeRequeue    = "requeue"
	outcomeDeadLetter = "dead_letter"
)

type Consumer struct {
	cfg     ConsumerConfig
	handler HandlerFunc
	logger  *zap.Logger

	processed metric.Int64Counter
	duration  metric.Float64Histogram

	done chan struct{}
}

func newConsumer(cfg ConsumerConfig, handler HandlerFunc, logger *zap.Logger) (*Consumer, error) {
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 30 * time.Second
	}
	meter := otel.Meter(tracerName)
	processed, err := meter.Int64Counter("agroflow.messages.processed",
		metric.WithDescription("Deliveries settled by the consumer, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	duration, err := meter.Float64Histogram("agroflow.messages.handle.duration",
		metric.WithDescription("Handler latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}
	return &Consumer{
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With(zap.String("queue", cfg.Queue)),
		processed: processed,
		duration:  duration,
		done:      make(chan struct{}),
	}, nil
}

// StartConsumer declares the topology and consumes cfg.Queue with manual
// acks and a prefetch of one, so deliveries are handled strictly one at a
// time. It returns once consuming has started.
func StartConsumer(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, handler HandlerFunc, logger *zap.Logger) (*Consumer, error) {
	c, err := newConsumer(cfg, handler, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(
		cfg.Queue,
		cfg.Tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", cfg.Queue, err)
	}

	go func() {
		defer close(c.done)
		defer func() { _ = ch.Close() }()
		c.run(ctx, msgs)
	}()

	c.logger.Info("consumer started", zap.String("tag", cfg.Tag))
	return c, nil
}

// Done is closed once the consumer stopped and its in-flight delivery, if
// any, was settled.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle runs the handler and settles the delivery. Shutdown does not cancel
// an in-flight handler; only HandleTimeout does.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) string {
	hctx := extractTrace(context.WithoutCancel(ctx), d.Headers)
	hctx, cancel := context.WithTimeout(hctx, c.cfg.HandleTimeout)
	defer cancel()

	hctx, span := otel.Tracer(tracerName).Start(hctx, "process "+c.cfg.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.cfg.Queue),
			attribute.String("messaging.message.id", d.MessageId),
			attribute.Bool("messaging.rabbitmq.redelivered", d.Redelivered),
		))
	defer span.End()

	log := c.logger.With(
		zap.String("message_id", d.MessageId),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Bool("redelivered", d.Redelivered),
	)

	start := time.Now()
	err := c.handler(hctx, d.Body)
	c.duration.Record(hctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("queue", c.cfg.Queue)))

	outcome := outcomeAck
	var settleErr error
	switch {
	case err == nil:
		settleErr = d.Ack(false)
	case IsPermanent(err):
		outcome = outcomeDeadLetter
		log.Error("handle message, dead-lettering", zap.Error(err))
		settleErr = d.Nack(false, false)
	default:
		outcome = outcomeRequeue
		log.Warn("handle message, requeueing", zap.Error(err))
		c.waitRequeueDelay(ctx)
		settleErr = d.Nack(false, true)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if settleErr != nil {
		log.Error("settle delivery", zap.String("outcome", outcome), zap.Error(settleErr))
	}

	c.processed.Add(hctx, 1, metric.WithAttributes(
		attribute.String("queue", c.cfg.Queue),
		attribute.String("outcome", outcome),
	))
	return outcome
}

func (c *Consumer) waitRequeueDelay(ctx context.Context) {
	if c.cfg.RequeueDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.RequeueDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
