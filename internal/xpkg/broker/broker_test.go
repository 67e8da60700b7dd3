package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant-system/internal/xpkg/config"
	"restaurant-system/internal/xpkg/events"
	"restaurant-system/internal/xpkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// route returns the queues a message published to exchange with key would
// land in.
func route(topo Topology, exchange, key string) []string {
	kind := ""
	for _, e := range topo.Exchanges {
		if e.Name == exchange {
			kind = e.Kind
		}
	}

	var out []string
	for _, q := range topo.QueuesOf(exchange) {
		if kind == amqp.ExchangeFanout || q.RoutingKey == key {
			out = append(out, q.Name)
		}
	}
	return out
}

func TestDomainTopologyRoutes(t *testing.T) {
	topo := DomainTopology()

	tests := []struct {
		exchange, key string
		want          string
	}{
		{events.ExchangeOrders, events.KeyOrderCreated, events.QueueOrdersCreated},
		{events.ExchangeOrders, events.KeyOrderUpdated, events.QueueOrdersUpdated},
		{events.ExchangeOrders, events.KeyOrderCancelled, events.QueueOrdersCancelled},
		{events.ExchangePayments, events.KeyPaymentCompleted, events.QueuePaymentsCompleted},
		{events.ExchangePayments, events.KeyPaymentFailed, events.QueuePaymentsFailed},
		{events.ExchangePayments, events.KeyPaymentRefunded, events.QueuePaymentsRefunded},
		{events.ExchangeFiscal, events.KeyReceiptSent, events.QueueReceiptSent},
		{events.ExchangeFiscal, events.KeyReceiptConfirmed, events.QueueReceiptConfirmed},
		{events.ExchangeFiscal, events.KeyReceiptFailed, events.QueueReceiptFailed},
	}
	for _, tt := range tests {
		got := route(topo, tt.exchange, tt.key)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("route(%s, %s) = %v, want [%s]", tt.exchange, tt.key, got, tt.want)
		}
	}

	if got := route(topo, events.ExchangeOrders, "order.unknown"); len(got) != 0 {
		t.Errorf("unbound key routed to %v", got)
	}
}

func TestFanoutRoutesToEverySubscriber(t *testing.T) {
	topo := DomainTopology().
		WithQueue(Queue{Name: "notifications.pos", Exchange: events.ExchangeNotifications}).
		WithQueue(Queue{Name: "notifications.kds", Exchange: events.ExchangeNotifications})

	got := route(topo, events.ExchangeNotifications, "")
	if len(got) != 2 || got[0] != "notifications.pos" || got[1] != "notifications.kds" {
		t.Fatalf("fanout route = %v", got)
	}
	if len(DomainTopology().QueuesOf(events.ExchangeNotifications)) != 0 {
		t.Fatal("WithQueue must not mutate the receiver")
	}
}

type fakeDeclarer struct {
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  map[string]string
	failOn    string
}

func newFakeDeclarer() *fakeDeclarer {
	return &fakeDeclarer{
		exchanges: map[string]string{},
		queues:    map[string]amqp.Table{},
		bindings:  map[string]string{},
	}
}

func (f *fakeDeclarer) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if !durable {
		return errors.New("exchange must be durable")
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeDeclarer) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if name == f.failOn {
		return amqp.Queue{}, errors.New("declare refused")
	}
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings[name] = exchange + "/" + key
	return nil
}

func TestDeclare(t *testing.T) {
	f := newFakeDeclarer()
	if err := DomainTopology().Declare(f); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	if f.exchanges[events.ExchangeOrders] != amqp.ExchangeTopic {
		t.Errorf("orders exchange kind = %q", f.exchanges[events.ExchangeOrders])
	}
	if f.exchanges[events.ExchangeNotifications] != amqp.ExchangeFanout {
		t.Errorf("notifications exchange kind = %q", f.exchanges[events.ExchangeNotifications])
	}
	if f.bindings[events.QueuePaymentsCompleted] != "payments/payment.completed" {
		t.Errorf("payments.completed binding = %q", f.bindings[events.QueuePaymentsCompleted])
	}
	if f.queues[events.QueueReceiptFailed]["x-dead-letter-exchange"] != events.ExchangeDeadLetter {
		t.Errorf("fiscal.receipt.failed has no dead-letter exchange")
	}
	if f.queues[events.QueueDeadLetter] != nil {
		t.Errorf("dead-letter queue must not dead-letter to itself")
	}
}

func TestDeclareSurfacesErrors(t *testing.T) {
	f := newFakeDeclarer()
	f.failOn = events.QueuePaymentsFailed
	if err := DomainTopology().Declare(f); err == nil {
		t.Fatal("expected declare error")
	}
}

type fakeAck struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestDispatchAcksOnSuccess(t *testing.T) {
	ack := &fakeAck{}
	d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, RoutingKey: events.KeyOrderCreated, Body: []byte(`{}`), Timestamp: time.Now()}

	var got Message
	Dispatch(context.Background(), d, func(_ context.Context, msg Message) error {
		got = msg
		return nil
	}, logger.Nop())

	if len(ack.acked) != 1 || ack.acked[0] != 7 || len(ack.nacked) != 0 {
		t.Fatalf("acked=%v nacked=%v", ack.acked, ack.nacked)
	}
	if got.RoutingKey != events.KeyOrderCreated || string(got.Body) != `{}` {
		t.Fatalf("handler saw %+v", got)
	}
}

func TestDispatchNacksWithoutRequeueOnError(t *testing.T) {
	ack := &fakeAck{}
	d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 3}

	Dispatch(context.Background(), d, func(context.Context, Message) error {
		return errors.New("handler failed")
	}, logger.Nop())

	if len(ack.acked) != 0 {
		t.Fatalf("failed message was acked")
	}
	if len(ack.nacked) != 1 || ack.requeue[0] {
		t.Fatalf("nacked=%v requeue=%v, want one nack without requeue", ack.nacked, ack.requeue)
	}
}

func TestURL(t *testing.T) {
	got := URL(&config.RabbitMQ{User: "guest", Password: "guest", Host: "mq", Port: "5672", VHost: "restaurant"})
	if got != "amqp://guest:guest@mq:5672/restaurant" {
		t.Fatalf("URL = %q", got)
	}
}
