package broker

import (
	"fmt"

	"restaurant-system/internal/xpkg/events"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Exchange struct {
	Name string
	Kind string
}

// Queue is a durable queue bound to Exchange by RoutingKey. DeadLetter
// routes rejected messages to the dlx exchange.
type Queue struct {
	Name       string
	Exchange   string
	RoutingKey string
	DeadLetter bool
}

type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
}

// DomainTopology is the full wire contract: three topic exchanges with one
// queue per transition, the notifications fanout and the dead-letter sink.
func DomainTopology() Topology {
	return Topology{
		Exchanges: []Exchange{
			{Name: events.ExchangeOrders, Kind: amqp.ExchangeTopic},
			{Name: events.ExchangePayments, Kind: amqp.ExchangeTopic},
			{Name: events.ExchangeFiscal, Kind: amqp.ExchangeTopic},
			{Name: events.ExchangeNotifications, Kind: amqp.ExchangeFanout},
			{Name: events.ExchangeDeadLetter, Kind: amqp.ExchangeFanout},
		},
		Queues: []Queue{
			{Name: events.QueueOrdersCreated, Exchange: events.ExchangeOrders, RoutingKey: events.KeyOrderCreated, DeadLetter: true},
			{Name: events.QueueOrdersUpdated, Exchange: events.ExchangeOrders, RoutingKey: events.KeyOrderUpdated, DeadLetter: true},
			{Name: events.QueueOrdersCancelled, Exchange: events.ExchangeOrders, RoutingKey: events.KeyOrderCancelled, DeadLetter: true},

			{Name: events.QueuePaymentsCompleted, Exchange: events.ExchangePayments, RoutingKey: events.KeyPaymentCompleted, DeadLetter: true},
			{Name: events.QueuePaymentsFailed, Exchange: events.ExchangePayments, RoutingKey: events.KeyPaymentFailed, DeadLetter: true},
			{Name: events.QueuePaymentsRefunded, Exchange: events.ExchangePayments, RoutingKey: events.KeyPaymentRefunded, DeadLetter: true},

			{Name: events.QueueReceiptSent, Exchange: events.ExchangeFiscal, RoutingKey: events.KeyReceiptSent, DeadLetter: true},
			{Name: events.QueueReceiptConfirmed, Exchange: events.ExchangeFiscal, RoutingKey: events.KeyReceiptConfirmed, DeadLetter: true},
			{Name: events.QueueReceiptFailed, Exchange: events.ExchangeFiscal, RoutingKey: events.KeyReceiptFailed, DeadLetter: true},

			{Name: events.QueueDeadLetter, Exchange: events.ExchangeDeadLetter},
		},
	}
}

// WithQueue returns a copy of t with q appended.
func (t Topology) WithQueue(q Queue) Topology {
	queues := make([]Queue, 0, len(t.Queues)+1)
	queues = append(queues, t.Queues...)
	return Topology{Exchanges: t.Exchanges, Queues: append(queues, q)}
}

// QueuesOf lists the queues bound to exchange, in declaration order.
func (t Topology) QueuesOf(exchange string) []Queue {
	var out []Queue
	for _, q := range t.Queues {
		if q.Exchange == exchange {
			out = append(out, q)
		}
	}
	return out
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates every exchange, queue and binding. Declarations are
// idempotent on the broker side.
func (t Topology) Declare(ch declarer) error {
	for _, e := range t.Exchanges {
		err := ch.ExchangeDeclare(
			e.Name, // name
			e.Kind, // type
			true,   // durable
			false,  // auto-deleted
			false,  // internal
			false,  // no-wait
			nil,    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.Name, err)
		}
	}

	for _, q := range t.Queues {
		var args amqp.Table
		if q.DeadLetter {
			args = amqp.Table{"x-dead-letter-exchange": events.ExchangeDeadLetter}
		}
		if _, err := ch.QueueDeclare(
			q.Name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			args,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}

		if err := ch.QueueBind(q.Name, q.RoutingKey, q.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.Name, q.Exchange, err)
		}
	}
	return nil
}
