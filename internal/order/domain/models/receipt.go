package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReceiptType string

const (
	ReceiptSale   ReceiptType = "sale"
	ReceiptReturn ReceiptType = "return"
	ReceiptRefund ReceiptType = "refund"
)

func (t ReceiptType) Valid() bool {
	switch t {
	case ReceiptSale, ReceiptReturn, ReceiptRefund:
		return true
	}
	return false
}

type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptSent      ReceiptStatus = "sent"
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptFailed    ReceiptStatus = "failed"
)

type Receipt struct {
	ID                uuid.UUID          `json:"id"`
	OrderID           uuid.UUID          `json:"order_id"`
	PaymentID         *uuid.UUID         `json:"payment_id,omitempty"`
	Number            string             `json:"number"`
	Type              ReceiptType        `json:"type"`
	Status            ReceiptStatus      `json:"status"`
	Amount            decimal.Decimal    `json:"amount"`
	StorageSerial     string             `json:"storage_serial"`
	DocumentNumber    string             `json:"document_number"`
	SignNumber        string             `json:"sign_number"`
	QRPayload         string             `json:"qr_payload"`
	Payload           ReceiptPayload     `json:"payload"`
	RegistrarResponse *RegistrarResponse `json:"registrar_response,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	RetryCount        int                `json:"retry_count"`
	SentAt            *time.Time         `json:"sent_at,omitempty"`
	ConfirmedAt       *time.Time         `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ReceiptPayload is the document submitted to the registrar.
type ReceiptPayload struct {
	OrderNumber string               `json:"order_number"`
	Operation   int                  `json:"operation"`
	Items       []ReceiptPayloadItem `json:"items"`
	Subtotal    decimal.Decimal      `json:"subtotal"`
	TaxAmount   decimal.Decimal      `json:"tax_amount"`
	Total       decimal.Decimal      `json:"total"`
	Customer    Customer             `json:"customer"`
	IssuedAt    time.Time            `json:"issued_at"`
}

type ReceiptPayloadItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type RegistrarResponse struct {
	RegistrarID string    `json:"registrar_id"`
	Code        int       `json:"code"`
	Message     string    `json:"message"`
	AcceptedAt  time.Time `json:"accepted_at"`
}
