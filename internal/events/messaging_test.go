package events

import (
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  map[string][2]string // queue -> {exchange, key}
	failOn    string
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{
		exchanges: map[string]string{},
		queues:    map[string]amqp.Table{},
		bindings:  map[string][2]string{},
	}
}

func (c *recordingChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if name == c.failOn {
		return errors.New("channel closed")
	}
	c.exchanges[name] = kind
	return nil
}

func (c *recordingChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if name == c.failOn {
		return amqp.Queue{}, errors.New("precondition failed")
	}
	c.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *recordingChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.bindings[name] = [2]string{exchange, key}
	return nil
}

func TestDeclareTopology(t *testing.T) {
	t.Parallel()

	ch := newRecordingChannel()
	require.NoError(t, DeclareTopology(ch))

	assert.Equal(t, amqp.ExchangeFanout, ch.exchanges[HarvestExchange])
	assert.Equal(t, amqp.ExchangeDirect, ch.exchanges[DeadLetterExchange])

	for _, q := range []string{BillingQueue, InventoryQueue} {
		require.Contains(t, ch.queues, q)
		assert.Equal(t, DeadLetterExchange, ch.queues[q]["x-dead-letter-exchange"])
		assert.Equal(t, q, ch.queues[q]["x-dead-letter-routing-key"])
		assert.Equal(t, [2]string{HarvestExchange, ""}, ch.bindings[q])

		dlq := DeadLetterQueue(q)
		require.Contains(t, ch.queues, dlq)
		assert.Equal(t, [2]string{DeadLetterExchange, q}, ch.bindings[dlq])
	}
}

func TestDeclareTopology_Error(t *testing.T) {
	t.Parallel()

	ch := newRecordingChannel()
	ch.failOn = InventoryQueue
	err := DeclareTopology(ch)
	require.ErrorContains(t, err, InventoryQueue)
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.True(t, IsPermanent(fmt.Errorf("handle: %w", err)))
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}
