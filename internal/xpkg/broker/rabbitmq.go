package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"restaurant-system/internal/xpkg/config"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// in seconds
	ReconnInterval = 5
	ConfirmTimeout = 5
)

// Message is the part of a delivery handlers care about.
type Message struct {
	MessageID   string
	Exchange    string
	RoutingKey  string
	Body        []byte
	Timestamp   time.Time
	Redelivered bool
}

// Handler processes one message. A nil return acks the delivery, an error
// nacks it without requeue so the broker dead-letters it.
type Handler func(ctx context.Context, msg Message) error

type RabbitMQ struct {
	ctx      context.Context
	cfg      *config.RabbitMQ
	topology Topology
	mylog    logger.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	pubCh        *amqp.Channel
	reconnecting bool
}

// New connects, opens a confirm-mode publishing channel and declares the
// topology.
func New(ctx context.Context, cfg *config.RabbitMQ, topology Topology, mylog logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		ctx:      ctx,
		cfg:      cfg,
		topology: topology,
		mylog:    mylog,
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrMBConn, err)
	}
	return r, nil
}

func URL(cfg *config.RabbitMQ) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.VHost,
	}
	return u.String()
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(URL(r.cfg))
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := r.topology.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.pubCh = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) IsAlive() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return xerrors.ErrMBConn
	}
	if r.pubCh == nil || r.pubCh.IsClosed() {
		return xerrors.ErrMBCh
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubCh != nil && !r.pubCh.IsClosed() {
		if err := r.pubCh.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// Publish sends payload as a persistent JSON message and waits for the
// broker confirm. Any failure is returned wrapped in ErrPublish.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	log := r.mylog.Action("publish").With("exchange", exchange, "routing_key", routingKey)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", xerrors.ErrPublish, err)
	}

	if err := r.IsAlive(); err != nil {
		log.Error("connection with rabbitmq is closed", err)
		go r.reconnect(r.ctx)
		return fmt.Errorf("%w: %v", xerrors.ErrPublish, err)
	}

	ctx, cancel := context.WithTimeout(ctx, ConfirmTimeout*time.Second)
	defer cancel()

	r.mu.Lock()
	ch := r.pubCh
	r.mu.Unlock()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			MessageId:    uuid.NewString(),
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrPublish, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrPublish, err)
	}
	if !acked {
		return fmt.Errorf("%w: %w", xerrors.ErrPublish, xerrors.ErrNoConfirm)
	}

	log.Debug("message published", "bytes", len(body))
	return nil
}

// Consume delivers messages from queue to h one at a time, so ordering
// within the queue is kept. It resubscribes after a lost connection and
// returns when ctx is done.
func (r *RabbitMQ) Consume(ctx context.Context, queue, consumer string, prefetch int, h Handler) error {
	log := r.mylog.Action("consume").With("queue", queue, "consumer", consumer)

	for {
		deliveries, ch, err := r.subscribe(ctx, queue, consumer, prefetch)
		if err != nil {
			log.Error("failed to subscribe", err)
			go r.reconnect(r.ctx)
		} else {
			log.Info("consumer started")
			r.drain(ctx, deliveries, h, log)
			ch.Close()
		}

		select {
		case <-ctx.Done():
			log.Info("consumer stopped")
			return nil
		case <-time.After(ReconnInterval * time.Second):
		}
	}
}

func (r *RabbitMQ) subscribe(ctx context.Context, queue, consumer string, prefetch int) (<-chan amqp.Delivery, *amqp.Channel, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, nil, xerrors.ErrMBConn
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, consumer, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return deliveries, ch, nil
}

func (r *RabbitMQ) drain(ctx context.Context, deliveries <-chan amqp.Delivery, h Handler, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			Dispatch(ctx, d, h, log)
		}
	}
}

// Dispatch runs h for d and settles the delivery: ack on success, nack
// without requeue on error.
func Dispatch(ctx context.Context, d amqp.Delivery, h Handler, log logger.Logger) {
	msg := Message{
		MessageID:   d.MessageId,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Timestamp:   d.Timestamp,
		Redelivered: d.Redelivered,
	}
	log = log.With("message_id", msg.MessageID, "routing_key", msg.RoutingKey)

	if err := h(ctx, msg); err != nil {
		log.Error("handler failed, sending to dead letter queue", err)
		if err := d.Nack(false, false); err != nil {
			log.Error("failed to nack", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to ack", err)
		return
	}
	log.Debug("message acknowledged")
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(ReconnInterval * time.Second)
	defer t.Stop()
	log := r.mylog.Action("rabbitmq_reconnecting")

	for {
		select {
		case <-t.C:
			err := r.connect()
			if err == nil {
				log.Info("rabbitmq reconnected")
				return
			}
			log.Error("rabbitmq failed to reconnect", err)
		case <-ctx.Done():
			return
		}
	}
}
