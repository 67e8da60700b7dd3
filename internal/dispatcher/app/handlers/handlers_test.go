package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	ordercore "restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/dto"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/broker"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/events"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeFiscal struct {
	mu       sync.Mutex
	receipts map[string]models.Receipt
	creates  []dto.CreateReceiptRequest
	sends    []uuid.UUID
	sendErr  error
}

func newFakeFiscal() *fakeFiscal {
	return &fakeFiscal{receipts: map[string]models.Receipt{}}
}

func key(orderID uuid.UUID, t models.ReceiptType) string {
	return orderID.String() + "/" + string(t)
}

func (f *fakeFiscal) Create(_ context.Context, actor auth.Actor, req dto.CreateReceiptRequest) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if actor != auth.System {
		return models.Receipt{}, ordercore.ErrForbidden
	}
	f.creates = append(f.creates, req)
	k := key(req.OrderID, req.Type)
	if _, ok := f.receipts[k]; ok {
		return models.Receipt{}, ordercore.ErrReceiptExists
	}
	r := models.Receipt{ID: uuid.New(), OrderID: req.OrderID, PaymentID: req.PaymentID, Type: req.Type, Status: models.ReceiptPending}
	f.receipts[k] = r
	return r, nil
}

func (f *fakeFiscal) Send(_ context.Context, _ auth.Actor, id uuid.UUID) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, id)
	for k, r := range f.receipts {
		if r.ID != id {
			continue
		}
		if r.Status != models.ReceiptPending {
			return models.Receipt{}, ordercore.ErrIllegalTransition
		}
		r.Status = models.ReceiptSent
		f.receipts[k] = r
		return r, f.sendErr
	}
	return models.Receipt{}, ordercore.ErrReceiptNotFound
}

func (f *fakeFiscal) GetByOrderAndType(_ context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[key(orderID, t)]
	if !ok {
		return models.Receipt{}, ordercore.ErrReceiptNotFound
	}
	return r, nil
}

type published struct {
	exchange, key string
	payload       any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{exchange, key, payload})
	return nil
}

func message(t *testing.T, key string, payload any) broker.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return broker.Message{MessageID: uuid.NewString(), RoutingKey: key, Body: body}
}

func newHandlers() (*Handlers, *fakeFiscal, *fakePublisher) {
	fiscal := newFakeFiscal()
	pub := &fakePublisher{}
	return New(fiscal, pub, "dispatcher-test", logger.Nop()), fiscal, pub
}

func TestPaymentCompletedIssuesSaleReceiptOnce(t *testing.T) {
	h, fiscal, _ := newHandlers()
	orderID := uuid.New()
	msg := message(t, events.KeyPaymentCompleted, events.PaymentEvent{
		PaymentID: uuid.New(), OrderID: orderID, Amount: decimal.RequireFromString("370"), Status: "completed",
	})

	// Redelivery of the same event must not send twice.
	for i := 0; i < 2; i++ {
		if err := h.PaymentCompleted(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	r, err := fiscal.GetByOrderAndType(context.Background(), orderID, models.ReceiptSale)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.ReceiptSent {
		t.Fatalf("status = %s, want sent", r.Status)
	}
	if len(fiscal.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(fiscal.sends))
	}
}

func TestPendingReceiptIsResumed(t *testing.T) {
	h, fiscal, _ := newHandlers()
	orderID := uuid.New()
	// A previous delivery created the receipt but died before sending it.
	if _, err := fiscal.Create(context.Background(), auth.System, dto.CreateReceiptRequest{OrderID: orderID, Type: models.ReceiptSale}); err != nil {
		t.Fatal(err)
	}

	msg := message(t, events.KeyPaymentCompleted, events.PaymentEvent{PaymentID: uuid.New(), OrderID: orderID})
	if err := h.PaymentCompleted(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(fiscal.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(fiscal.sends))
	}
}

func TestPaymentRefundedReferencesRefund(t *testing.T) {
	h, fiscal, _ := newHandlers()
	orderID, refundID := uuid.New(), uuid.New()
	msg := message(t, events.KeyPaymentRefunded, events.PaymentEvent{PaymentID: refundID, OrderID: orderID, Type: "refund"})

	if err := h.PaymentRefunded(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(fiscal.creates) != 1 {
		t.Fatalf("creates = %d", len(fiscal.creates))
	}
	req := fiscal.creates[0]
	if req.Type != models.ReceiptRefund || req.PaymentID == nil || *req.PaymentID != refundID {
		t.Fatalf("create request = %+v", req)
	}
}

func TestSendPublishFailureIsAcked(t *testing.T) {
	h, fiscal, _ := newHandlers()
	fiscal.sendErr = fmt.Errorf("%w: broker down", xerrors.ErrPublish)

	msg := message(t, events.KeyPaymentCompleted, events.PaymentEvent{PaymentID: uuid.New(), OrderID: uuid.New()})
	if err := h.PaymentCompleted(context.Background(), msg); err != nil {
		t.Fatalf("publish failure after send should ack, got %v", err)
	}
}

func TestStorageFailureIsNacked(t *testing.T) {
	h, _, _ := newHandlers()
	h.fiscal = failingFiscal{}

	msg := message(t, events.KeyPaymentCompleted, events.PaymentEvent{PaymentID: uuid.New(), OrderID: uuid.New()})
	if err := h.PaymentCompleted(context.Background(), msg); !errors.Is(err, ordercore.ErrStorage) {
		t.Fatalf("err = %v, want storage failure", err)
	}
}

type failingFiscal struct{ FiscalService }

// Only an existing receipt for the pair is looked up; other failures go back
// to the broker.
func TestCreateFailuresOtherThanExistingReceiptAreNacked(t *testing.T) {
	for _, createErr := range []error{ordercore.ErrStaleState, ordercore.ErrNumberTaken} {
		t.Run(createErr.Error(), func(t *testing.T) {
			h, fiscal, _ := newHandlers()
			h.fiscal = erroringFiscal{FiscalService: fiscal, err: createErr}

			msg := message(t, events.KeyPaymentCompleted, events.PaymentEvent{PaymentID: uuid.New(), OrderID: uuid.New()})
			if err := h.PaymentCompleted(context.Background(), msg); !errors.Is(err, createErr) {
				t.Fatalf("err = %v, want %v", err, createErr)
			}
			if len(fiscal.sends) != 0 {
				t.Fatalf("sends = %d, want 0", len(fiscal.sends))
			}
		})
	}
}

type erroringFiscal struct {
	FiscalService
	err error
}

func (f erroringFiscal) Create(context.Context, auth.Actor, dto.CreateReceiptRequest) (models.Receipt, error) {
	return models.Receipt{}, f.err
}

func (f erroringFiscal) GetByOrderAndType(context.Context, uuid.UUID, models.ReceiptType) (models.Receipt, error) {
	return models.Receipt{}, errors.New("unexpected lookup")
}

func (failingFiscal) Create(context.Context, auth.Actor, dto.CreateReceiptRequest) (models.Receipt, error) {
	return models.Receipt{}, ordercore.ErrStorage
}

func TestNotificationsGoToFanout(t *testing.T) {
	h, _, pub := newHandlers()
	orderID := uuid.New()

	tests := []struct {
		name    string
		handler broker.Handler
		msg     broker.Message
		subject string
		text    string
	}{
		{
			name:    "order created",
			handler: h.OrderCreated,
			msg: message(t, events.KeyOrderCreated, events.OrderCreated{
				OrderID: orderID, Number: "ORD-1", Type: "takeaway", TotalAmount: decimal.RequireFromString("370"),
				Customer: events.Customer{Name: "Aigerim"},
			}),
			subject: "order_created",
			text:    "Order ORD-1 (takeaway) received for Aigerim, total 370.00",
		},
		{
			name:    "order cancelled",
			handler: h.OrderStatusChanged,
			msg: message(t, events.KeyOrderCancelled, events.OrderStatusChanged{
				OrderID: orderID, Number: "ORD-1", OldStatus: "pending", Status: "cancelled", ChangedBy: "m-1", Reason: "no stock",
			}),
			subject: "order_status_changed",
			text:    "from 'pending' to 'cancelled' by m-1: no stock",
		},
		{
			name:    "payment failed",
			handler: h.PaymentFailed,
			msg: message(t, events.KeyPaymentFailed, events.PaymentEvent{
				PaymentID: uuid.New(), OrderID: orderID, Amount: decimal.RequireFromString("10"), Type: "card", Status: "failed",
			}),
			subject: "payment_failed",
			text:    "of 10.00 (card) failed",
		},
		{
			name:    "receipt failed",
			handler: h.ReceiptChanged,
			msg: message(t, events.KeyReceiptFailed, events.ReceiptEvent{
				ReceiptID: uuid.New(), OrderID: orderID, Number: "R-1", Type: "sale", Status: "failed",
				Amount: decimal.RequireFromString("370"), ErrorMessage: "registrar unavailable",
			}),
			subject: "receipt_failed",
			text:    "is failed: registrar unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub.msgs = nil
			if err := tt.handler(context.Background(), tt.msg); err != nil {
				t.Fatal(err)
			}
			if len(pub.msgs) != 1 {
				t.Fatalf("published %d messages", len(pub.msgs))
			}
			got := pub.msgs[0]
			if got.exchange != events.ExchangeNotifications {
				t.Fatalf("exchange = %s", got.exchange)
			}
			n := got.payload.(events.Notification)
			if n.Subject != tt.subject || n.OrderID != orderID || n.Source != "dispatcher-test" {
				t.Fatalf("notification = %+v", n)
			}
			if !strings.Contains(n.Message, tt.text) {
				t.Fatalf("message %q does not contain %q", n.Message, tt.text)
			}
		})
	}
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	h, fiscal, pub := newHandlers()
	bad := broker.Message{RoutingKey: events.KeyPaymentCompleted, Body: []byte("{not json")}

	for queue, handler := range h.Routes() {
		if err := handler(context.Background(), bad); err == nil {
			t.Fatalf("%s accepted malformed payload", queue)
		}
	}
	if len(fiscal.creates) != 0 || len(pub.msgs) != 0 {
		t.Fatal("malformed payload had side effects")
	}
}

func TestNotificationPublishFailureIsNacked(t *testing.T) {
	h, _, pub := newHandlers()
	pub.err = xerrors.ErrPublish

	msg := message(t, events.KeyOrderCreated, events.OrderCreated{OrderID: uuid.New(), Number: "ORD-2"})
	if err := h.OrderCreated(context.Background(), msg); !errors.Is(err, xerrors.ErrPublish) {
		t.Fatalf("err = %v", err)
	}
}

func TestRoutesCoverDomainQueues(t *testing.T) {
	h, _, _ := newHandlers()
	routes := h.Routes()

	for _, q := range broker.DomainTopology().Queues {
		if q.Exchange == events.ExchangeDeadLetter {
			continue
		}
		if _, ok := routes[q.Name]; !ok {
			t.Errorf("no handler for queue %s", q.Name)
		}
	}
	if len(routes) != 9 {
		t.Fatalf("routes = %d, want 9", len(routes))
	}
}
