package events

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
)

func TestHarvestCreatedPublishing(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	ev := contracts.HarvestCreated{HarvestID: 42, HarvestUUID: testHarvestUUID, Producto: "maiz", Toneladas: decimal.NewFromInt(10)}
	body, err := contracts.EncodeHarvestCreated(ev)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	msg := harvestCreatedPublishing(ctx, ev, body, "registry-service", now)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, contracts.EventTypeHarvestCreated, msg.Type)
	assert.Equal(t, testHarvestUUID, msg.MessageId)
	assert.Equal(t, "registry-service", msg.AppId)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.JSONEq(t, `{"harvestId":42,"harvestUuid":"`+testHarvestUUID+`","producto":"maiz","toneladas":10}`, string(msg.Body))

	extracted := extractTrace(context.Background(), msg.Headers)
	assert.Equal(t, traceID, trace.SpanContextFromContext(extracted).TraceID())
}
