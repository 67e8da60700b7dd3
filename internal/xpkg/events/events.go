// Package events holds the broker wire contract shared by publishers and
// consumers: exchange names, routing keys, queue names and payloads.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ExchangeOrders        = "orders"
	ExchangePayments      = "payments"
	ExchangeFiscal        = "fiscal"
	ExchangeNotifications = "notifications"
	ExchangeDeadLetter    = "dlx"
)

const (
	KeyOrderCreated   = "order.created"
	KeyOrderUpdated   = "order.updated"
	KeyOrderCancelled = "order.cancelled"

	KeyPaymentCompleted = "payment.completed"
	KeyPaymentFailed    = "payment.failed"
	KeyPaymentRefunded  = "payment.refunded"

	KeyReceiptSent      = "receipt.sent"
	KeyReceiptConfirmed = "receipt.confirmed"
	KeyReceiptFailed    = "receipt.failed"
)

const (
	QueueOrdersCreated   = "orders.created"
	QueueOrdersUpdated   = "orders.updated"
	QueueOrdersCancelled = "orders.cancelled"

	QueuePaymentsCompleted = "payments.completed"
	QueuePaymentsFailed    = "payments.failed"
	QueuePaymentsRefunded  = "payments.refunded"

	QueueReceiptSent      = "fiscal.receipt.sent"
	QueueReceiptConfirmed = "fiscal.receipt.confirmed"
	QueueReceiptFailed    = "fiscal.receipt.failed"

	QueueDeadLetter = "dead-letter"
)

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type OrderCreated struct {
	OrderID     uuid.UUID       `json:"order_id"`
	Number      string          `json:"number"`
	Type        string          `json:"type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Customer    Customer        `json:"customer"`
	Timestamp   time.Time       `json:"timestamp"`
}

// OrderStatusChanged is published as order.updated or order.cancelled.
type OrderStatusChanged struct {
	OrderID   uuid.UUID `json:"order_id"`
	Number    string    `json:"number"`
	OldStatus string    `json:"old_status"`
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentEvent struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	OrderID           uuid.UUID       `json:"order_id"`
	Amount            decimal.Decimal `json:"amount"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	OrderPaymentState string          `json:"order_payment_status"`
	OriginalPaymentID *uuid.UUID      `json:"original_payment_id,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

type ReceiptEvent struct {
	ReceiptID    uuid.UUID       `json:"receipt_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	Number       string          `json:"number"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Notification is what presentation-side subscribers receive from the
// notifications fanout.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	OrderID   uuid.UUID `json:"order_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
