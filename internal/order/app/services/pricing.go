package services

import (
	"restaurant-system/internal/order/domain/models"

	"github.com/shopspring/decimal"
)

type Pricing struct {
	TaxRate     decimal.Decimal
	DeliveryFee decimal.Decimal
}

type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DeliveryFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Quote computes the order totals from already priced items. Tax is taken
// on the subtotal and rounded half-up to cents.
func (p Pricing) Quote(items []models.OrderItem, orderType models.OrderType, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}

	fee := decimal.Zero
	if orderType == models.OrderTypeDelivery {
		fee = p.DeliveryFee.Round(2)
	}

	tax := subtotal.Mul(p.TaxRate).Round(2)
	discount = discount.Round(2)

	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DeliveryFee:    fee,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Add(fee).Sub(discount),
	}
}
