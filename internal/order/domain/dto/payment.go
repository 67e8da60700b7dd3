package dto

import (
	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	OrderID               uuid.UUID          `json:"order_id"`
	Type                  models.PaymentType `json:"type"`
	Amount                decimal.Decimal    `json:"amount"`
	ExternalTransactionID string             `json:"external_transaction_id,omitempty"`
	TerminalID            string             `json:"terminal_id,omitempty"`
}

type ProcessPaymentRequest struct {
	Status                models.PaymentState `json:"status"`
	ExternalTransactionID string              `json:"external_transaction_id,omitempty"`
	TerminalID            string              `json:"terminal_id,omitempty"`
}

// RefundPaymentRequest refunds the whole remaining amount when Amount is
// nil.
type RefundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

type PaymentResponse struct {
	Payment            models.Payment       `json:"payment"`
	OriginalPayment    *models.Payment      `json:"original_payment,omitempty"`
	OrderPaymentStatus models.PaymentStatus `json:"order_payment_status,omitempty"`
	Warning            string               `json:"warning,omitempty"`
}
