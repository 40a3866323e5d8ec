package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
)

const tracerName = "github.com/andreasstove999/agroflow-system/internal/events"

var ErrNotConfirmed = errors.New("broker did not confirm publish")

type Publisher struct {
	conn    *amqp.Connection
	appID   string
	timeout time.Duration

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher opens a confirm-mode channel and declares the topology so a
// publish never fails due to missing infra.
func NewPublisher(conn *amqp.Connection, appID string) (*Publisher, error) {
	p := &Publisher{conn: conn, appID: appID, timeout: 5 * time.Second}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}

// channel returns the publishing channel, reopening it after a channel-level
// error closed it.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// PublishHarvestCreated publishes ev to the harvest exchange and waits for the
// broker confirm.
func (p *Publisher) PublishHarvestCreated(ctx context.Context, ev contracts.HarvestCreated) error {
	body, err := contracts.EncodeHarvestCreated(ev)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "publish "+HarvestExchange,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", HarvestExchange),
			attribute.Int64("agroflow.harvest_id", ev.HarvestID),
		))
	defer span.End()

	if err := p.publish(ctx, harvestCreatedPublishing(ctx, ev, body, p.appID, time.Now())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(pubCtx, HarvestExchange, "", false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	acked, err := dc.WaitContext(pubCtx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", msg.Type, err)
	}
	if !acked {
		return fmt.Errorf("%s %s: %w", msg.Type, msg.MessageId, ErrNotConfirmed)
	}
	return nil
}

func harvestCreatedPublishing(ctx context.Context, ev contracts.HarvestCreated, body []byte, appID string, now time.Time) amqp.Publishing {
	headers := amqp.Table{}
	injectTrace(ctx, headers)
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.HarvestUUID,
		Type:         contracts.EventTypeHarvestCreated,
		AppId:        appID,
		Timestamp:    now.UTC(),
		Body:         body,
	}
}
