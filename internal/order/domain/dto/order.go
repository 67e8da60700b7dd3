package dto

import (
	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Type            models.OrderType `json:"type"`
	Customer        models.Customer  `json:"customer"`
	DeliveryAddress string           `json:"delivery_address,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	Items           []Item           `json:"items"`
}

type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Modifiers []string  `json:"modifiers,omitempty"`
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
	Notes  string             `json:"notes,omitempty"`
}

type AssignCourierRequest struct {
	CourierID string `json:"courier_id"`
}

// OrderResponse is returned by order mutations. Warning is set when the
// order was stored but its event could not be published.
type OrderResponse struct {
	models.Order
	Warning string `json:"warning,omitempty"`
}
