package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"restaurant-system/internal/notsub/app/core"
	"restaurant-system/internal/xpkg/broker"
	"restaurant-system/internal/xpkg/config"
	"restaurant-system/internal/xpkg/events"
	"restaurant-system/internal/xpkg/logger"
)

// Topology is the domain topology plus the subscriber's queue bound to the
// notifications fanout.
func Topology(p core.SubscriberParams) broker.Topology {
	return broker.DomainTopology().WithQueue(broker.Queue{
		Name:       p.QueueName(),
		Exchange:   events.ExchangeNotifications,
		DeadLetter: true,
	})
}

type Notification struct {
	cfg    *config.Config
	params core.SubscriberParams
	mylog  logger.Logger
	mb     *broker.RabbitMQ
	out    io.Writer
	ctx    context.Context
	appCtx context.Context

	mu sync.Mutex
}

func NewNotification(
	ctx context.Context,
	appCtx context.Context,
	cfg *config.Config,
	params core.SubscriberParams,
	mylog logger.Logger,
) *Notification {
	return &Notification{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		params: params,
		mylog:  mylog.With("subscriber", params.Subscriber),
		out:    os.Stdout,
	}
}

// Run consumes the subscriber queue until ctx is done.
func (n *Notification) Run() error {
	mylog := n.mylog.Action("Run-notifications")

	if err := n.initializeRabbitMQ(); err != nil {
		mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		return err
	}
	mylog.Action("mb_connected").Info("Successful message broker connection", "queue", n.params.QueueName())

	return n.mb.Consume(n.ctx, n.params.QueueName(), n.params.Subscriber, n.params.Prefetch, n.Handle)
}

func (n *Notification) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.mylog.Action("graceful_shutdown_started").Info("Shutting down")

	if n.mb != nil {
		if err := n.mb.Close(); err != nil {
			n.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
			return fmt.Errorf("mb close: %w", err)
		}
		n.mylog.Action("mb_closed").Info("Message broker closed")
	}

	n.mylog.Action("graceful_shutdown_completed").Info("Successfully shut down")
	return nil
}

// Handle displays one notification. A payload that does not decode is
// rejected and goes to the dead letter queue.
func (n *Notification) Handle(_ context.Context, msg broker.Message) error {
	var note events.Notification
	if err := json.Unmarshal(msg.Body, &note); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}

	log := n.mylog.WithGroup("details").With("order_id", note.OrderID, "subject", note.Subject, "source", note.Source)
	log.Action("notification_received").Info("Received notification")

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "[%s] %s: %s\n", note.Timestamp.Format(time.RFC3339), note.Subject, note.Message)
	return err
}

func (n *Notification) initializeRabbitMQ() error {
	mb, err := broker.New(n.appCtx, n.cfg.RMQ, Topology(n.params), n.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	n.mu.Lock()
	n.mb = mb
	n.mu.Unlock()
	return nil
}
