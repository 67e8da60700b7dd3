package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restaurant-system/internal/dispatcher/app/core"
	ordercore "restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/dto"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/broker"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/events"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
)

// FiscalService is the part of the fiscal service the dispatcher drives.
type FiscalService interface {
	Create(ctx context.Context, actor auth.Actor, req dto.CreateReceiptRequest) (models.Receipt, error)
	Send(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error)
	GetByOrderAndType(ctx context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error)
}

// Handlers holds one broker.Handler per domain queue. Every handler may see
// the same message more than once.
type Handlers struct {
	fiscal    FiscalService
	publisher ordercore.IPublisher
	source    string
	mylog     logger.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func New(fiscal FiscalService, publisher ordercore.IPublisher, source string, mylog logger.Logger) *Handlers {
	return &Handlers{
		fiscal:    fiscal,
		publisher: publisher,
		source:    source,
		mylog:     mylog,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// Routes maps each queue to its handler.
func (h *Handlers) Routes() map[string]broker.Handler {
	return map[string]broker.Handler{
		events.QueueOrdersCreated:   h.OrderCreated,
		events.QueueOrdersUpdated:   h.OrderStatusChanged,
		events.QueueOrdersCancelled: h.OrderStatusChanged,

		events.QueuePaymentsCompleted: h.PaymentCompleted,
		events.QueuePaymentsFailed:    h.PaymentFailed,
		events.QueuePaymentsRefunded:  h.PaymentRefunded,

		events.QueueReceiptSent:      h.ReceiptChanged,
		events.QueueReceiptConfirmed: h.ReceiptChanged,
		events.QueueReceiptFailed:    h.ReceiptChanged,
	}
}

func (h *Handlers) OrderCreated(ctx context.Context, msg broker.Message) error {
	var e events.OrderCreated
	if err := decode(msg, &e); err != nil {
		return err
	}
	return h.notify(ctx, e.OrderID, "order_created", string(models.StatusPending),
		fmt.Sprintf("Order %s (%s) received for %s, total %s", e.Number, e.Type, e.Customer.Name, e.TotalAmount.StringFixed(2)))
}

func (h *Handlers) OrderStatusChanged(ctx context.Context, msg broker.Message) error {
	var e events.OrderStatusChanged
	if err := decode(msg, &e); err != nil {
		return err
	}
	text := fmt.Sprintf("Order %s: status changed from '%s' to '%s' by %s", e.Number, e.OldStatus, e.Status, e.ChangedBy)
	if e.Reason != "" {
		text += ": " + e.Reason
	}
	return h.notify(ctx, e.OrderID, "order_status_changed", e.Status, text)
}

// PaymentCompleted issues and sends the sale receipt for the order.
func (h *Handlers) PaymentCompleted(ctx context.Context, msg broker.Message) error {
	var e events.PaymentEvent
	if err := decode(msg, &e); err != nil {
		return err
	}
	return h.issueReceipt(ctx, dto.CreateReceiptRequest{OrderID: e.OrderID, Type: models.ReceiptSale})
}

// PaymentRefunded issues and sends a refund receipt for the refund payment.
func (h *Handlers) PaymentRefunded(ctx context.Context, msg broker.Message) error {
	var e events.PaymentEvent
	if err := decode(msg, &e); err != nil {
		return err
	}
	refundID := e.PaymentID
	return h.issueReceipt(ctx, dto.CreateReceiptRequest{OrderID: e.OrderID, Type: models.ReceiptRefund, PaymentID: &refundID})
}

func (h *Handlers) PaymentFailed(ctx context.Context, msg broker.Message) error {
	var e events.PaymentEvent
	if err := decode(msg, &e); err != nil {
		return err
	}
	text := fmt.Sprintf("Payment %s of %s (%s) failed", e.PaymentID, e.Amount.StringFixed(2), e.Type)
	if e.Reason != "" {
		text += ": " + e.Reason
	}
	return h.notify(ctx, e.OrderID, "payment_failed", e.Status, text)
}

func (h *Handlers) ReceiptChanged(ctx context.Context, msg broker.Message) error {
	var e events.ReceiptEvent
	if err := decode(msg, &e); err != nil {
		return err
	}
	text := fmt.Sprintf("Fiscal receipt %s (%s, %s) is %s", e.Number, e.Type, e.Amount.StringFixed(2), e.Status)
	if e.ErrorMessage != "" {
		text += ": " + e.ErrorMessage
	}
	return h.notify(ctx, e.OrderID, "receipt_"+e.Status, e.Status, text)
}

// issueReceipt creates the receipt and sends it. A receipt that already
// exists is sent only while still pending, so redelivery never issues or
// submits twice.
func (h *Handlers) issueReceipt(ctx context.Context, req dto.CreateReceiptRequest) error {
	mylog := h.mylog.Action("issue_receipt").With("order_id", req.OrderID, "type", req.Type)

	r, err := h.fiscal.Create(ctx, auth.System, req)
	if errors.Is(err, ordercore.ErrReceiptExists) {
		r, err = h.fiscal.GetByOrderAndType(ctx, req.OrderID, req.Type)
		if err != nil {
			return err
		}
		if r.Status != models.ReceiptPending {
			mylog.Info("Receipt already handled", "receipt_id", r.ID, "status", r.Status)
			return nil
		}
		mylog.Info("Resuming pending receipt", "receipt_id", r.ID)
	} else if err != nil {
		return err
	}

	sent, err := h.fiscal.Send(ctx, auth.System, r.ID)
	switch {
	case err == nil:
	case errors.Is(err, xerrors.ErrPublish):
		mylog.Warn("Receipt stored but its event was not published", "receipt_id", sent.ID, "status", sent.Status)
		return nil
	case errors.Is(err, ordercore.ErrConflict):
		// Another consumer sent it first.
		mylog.Info("Receipt already sent", "receipt_id", r.ID)
		return nil
	default:
		return err
	}
	mylog.Info("Receipt submitted", "receipt_id", sent.ID, "status", sent.Status)
	return nil
}

func (h *Handlers) notify(ctx context.Context, orderID uuid.UUID, subject, status, text string) error {
	n := events.Notification{
		ID:        h.newID(),
		Source:    h.source,
		OrderID:   orderID,
		Subject:   subject,
		Message:   text,
		Status:    status,
		Timestamp: h.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, core.WaitTime*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, events.ExchangeNotifications, "", n); err != nil {
		return fmt.Errorf("forward notification: %w", err)
	}
	h.mylog.Action("notification_forwarded").Debug("Notification forwarded", "order_id", orderID, "subject", subject)
	return nil
}

func decode(msg broker.Message, dst any) error {
	if err := json.Unmarshal(msg.Body, dst); err != nil {
		return fmt.Errorf("unmarshal %s message: %w", msg.RoutingKey, err)
	}
	return nil
}
