package dto

import (
	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
)

type CreateReceiptRequest struct {
	OrderID   uuid.UUID          `json:"order_id"`
	Type      models.ReceiptType `json:"type"`
	PaymentID *uuid.UUID         `json:"payment_id,omitempty"`
}

type ReceiptResponse struct {
	models.Receipt
	Warning string `json:"warning,omitempty"`
}
