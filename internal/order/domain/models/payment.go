package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCard   PaymentType = "card"
	PaymentOnline PaymentType = "online"
	PaymentMixed  PaymentType = "mixed"
	PaymentRefund PaymentType = "refund"
)

// Valid reports whether t can be used for a new capture. Refund rows are
// only created by the refund operation.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentCash, PaymentCard, PaymentOnline, PaymentMixed:
		return true
	}
	return false
}

type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
	PaymentRefunded  PaymentState = "refunded"
)

type Payment struct {
	ID                    uuid.UUID       `json:"id"`
	OrderID               uuid.UUID       `json:"order_id"`
	Type                  PaymentType     `json:"type"`
	Status                PaymentState    `json:"status"`
	Amount                decimal.Decimal `json:"amount"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	TerminalID            string          `json:"terminal_id,omitempty"`
	OriginalPaymentID     *uuid.UUID      `json:"original_payment_id,omitempty"`
	Reason                string          `json:"reason,omitempty"`
	ProcessedBy           string          `json:"processed_by,omitempty"`
	ProcessedAt           *time.Time      `json:"processed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (p Payment) IsRefund() bool {
	return p.Type == PaymentRefund
}

// NetPaid is captured money minus refunded money. A capture that was later
// marked refunded still counts as captured; its refund rows offset it.
func NetPaid(payments []Payment) decimal.Decimal {
	net := decimal.Zero
	for _, p := range payments {
		switch {
		case p.IsRefund() && p.Status == PaymentRefunded:
			net = net.Sub(p.Amount)
		case !p.IsRefund() && (p.Status == PaymentCompleted || p.Status == PaymentRefunded):
			net = net.Add(p.Amount)
		}
	}
	return net
}

// DerivePaymentStatus is the order's aggregate payment state.
func DerivePaymentStatus(total decimal.Decimal, payments []Payment) PaymentStatus {
	if NetPaid(payments).GreaterThanOrEqual(total) {
		return PaymentStatusPaid
	}
	return PaymentStatusPending
}

// RefundedSoFar sums refund rows that point at original.
func RefundedSoFar(original uuid.UUID, payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		if p.IsRefund() && p.OriginalPaymentID != nil && *p.OriginalPaymentID == original {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}
