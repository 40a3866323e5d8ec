package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// HarvestExchange fans every harvest-created event out to all service queues.
	HarvestExchange    = "agroflow.harvest.created"
	DeadLetterExchange = "agroflow.dlx"

	BillingQueue   = "harvest_queue"
	InventoryQueue = "inventory_queue"
)

// HarvestQueues lists the queues bound to HarvestExchange.
var HarvestQueues = []string{BillingQueue, InventoryQueue}

func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// topologyChannel is the subset of *amqp.Channel used to declare topology.
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology declares the exchanges, every service queue and its
// dead-letter queue. Publisher and consumers all call it, so whichever side
// starts first creates the queues and no event is lost to a missing binding.
func DeclareTopology(ch topologyChannel) error {
	if err := ch.ExchangeDeclare(HarvestExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", HarvestExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", DeadLetterExchange, err)
	}

	for _, q := range HarvestQueues {
		dlq := DeadLetterQueue(q)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, q, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", dlq, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": q,
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare %s: %w", q, err)
		}
		if err := ch.QueueBind(q, "", HarvestExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", q, err)
		}
	}
	return nil
}
