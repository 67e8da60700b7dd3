package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/dto"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/events"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NumberGenerator issues human-readable, creation-ordered numbers.
type NumberGenerator interface {
	OrderNumber() string
	ReceiptNumber() string
}

// numberAttempts bounds how often Create regenerates a number that clashed
// with a stored one.
const numberAttempts = 3

type OrderService struct {
	orderRepo core.IOrderRepo
	catalog   core.ICatalog
	publisher core.IPublisher
	policy    *Policy
	pricing   Pricing
	numbers   NumberGenerator
	mylog     logger.Logger
	now       func() time.Time
}

func NewOrderService(
	orderRepo core.IOrderRepo,
	catalog core.ICatalog,
	publisher core.IPublisher,
	policy *Policy,
	pricing Pricing,
	numbers NumberGenerator,
	mylogger logger.Logger,
) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		catalog:   catalog,
		publisher: publisher,
		policy:    policy,
		pricing:   pricing,
		numbers:   numbers,
		mylog:     mylogger,
		now:       time.Now,
	}
}

// Create validates the request against the catalog, prices it and stores
// the order with its items atomically. Nothing is written when any line is
// invalid.
func (os *OrderService) Create(ctx context.Context, actor auth.Actor, req dto.CreateOrderRequest) (models.Order, error) {
	mylog := os.mylog.Action("create_order")

	if err := os.policy.Authorize(actor, ActOrderCreate, Resource{Kind: "order"}); err != nil {
		return models.Order{}, err
	}
	if err := os.ValidateOrder(req); err != nil {
		return models.Order{}, err
	}

	items, err := os.priceItems(ctx, req.Items)
	if err != nil {
		return models.Order{}, err
	}

	totals := os.pricing.Quote(items, req.Type, req.DiscountAmount)
	if totals.TotalAmount.IsNegative() {
		return models.Order{}, core.Validationf("discount %s exceeds order amount", totals.DiscountAmount)
	}

	now := os.now().UTC()
	order := models.Order{
		ID:             uuid.New(),
		Number:         os.numbers.OrderNumber(),
		Type:           req.Type,
		Status:         models.StatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		DiscountAmount: totals.DiscountAmount,
		DeliveryFee:    totals.DeliveryFee,
		TotalAmount:    totals.TotalAmount,
		Customer: models.Customer{
			Name:  strings.TrimSpace(req.Customer.Name),
			Phone: strings.TrimSpace(req.Customer.Phone),
			Email: strings.TrimSpace(req.Customer.Email),
		},
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		CashierID:       actor.ID,
		Notes:           req.Notes,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	var saved models.Order
	for attempt := 1; ; attempt++ {
		saved, err = os.orderRepo.Create(ctx, order, actor.ID)
		if !errors.Is(err, core.ErrNumberTaken) || attempt == numberAttempts {
			break
		}
		mylog.Warn("Order number taken, regenerating", "order_number", order.Number, "attempt", attempt)
		order.Number = os.numbers.OrderNumber()
	}
	if err != nil {
		mylog.Error("Failed to save order record in db", err)
		return models.Order{}, err
	}
	mylog = mylog.WithGroup("details").With("order_id", saved.ID, "order_number", saved.Number, "total_amount", saved.TotalAmount)
	mylog.Info("Order created successfully")

	evt := events.OrderCreated{
		OrderID:     saved.ID,
		Number:      saved.Number,
		Type:        string(saved.Type),
		TotalAmount: saved.TotalAmount,
		Customer: events.Customer{
			Name:  saved.Customer.Name,
			Phone: saved.Customer.Phone,
			Email: saved.Customer.Email,
		},
		Timestamp: saved.CreatedAt,
	}
	if err := publish(ctx, os.publisher, mylog, events.ExchangeOrders, events.KeyOrderCreated, evt); err != nil {
		return saved, err
	}
	return saved, nil
}

func (os *OrderService) priceItems(ctx context.Context, lines []dto.Item) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(lines))
	for i, line := range lines {
		product, err := os.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, core.Validationf("item %d: product %s does not exist", i+1, line.ProductID)
			}
			return nil, fmt.Errorf("item %d: lookup product: %w", i+1, err)
		}
		if !product.Available {
			return nil, core.Validationf("item %d: product %s (%s) is unavailable", i+1, product.Name, product.ID)
		}

		modifiers := make([]string, 0, len(line.Modifiers))
		for _, m := range line.Modifiers {
			modifiers = append(modifiers, strings.TrimSpace(m))
		}

		unit := product.Price.Round(2)
		items = append(items, models.OrderItem{
			ID:         uuid.New(),
			ProductID:  product.ID,
			Name:       product.Name,
			SKU:        product.SKU,
			UnitPrice:  unit,
			Quantity:   line.Quantity,
			Modifiers:  modifiers,
			TotalPrice: unit.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}
	return items, nil
}

func (os *OrderService) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return os.orderRepo.Get(ctx, id)
}

func (os *OrderService) History(ctx context.Context, id uuid.UUID) ([]models.StatusLog, error) {
	if _, err := os.orderRepo.Get(ctx, id); err != nil {
		return nil, err
	}
	return os.orderRepo.History(ctx, id)
}

// UpdateStatus moves the order one step forward or cancels it. Anything
// else is a conflict.
func (os *OrderService) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.UpdateStatusRequest) (models.Order, error) {
	mylog := os.mylog.Action("update_order_status").With("order_id", id, "new_status", req.Status)

	if !req.Status.Valid() {
		return models.Order{}, core.Validationf("unknown order status %q", req.Status)
	}
	if len(req.Notes) > core.MaxNotesLen {
		return models.Order{}, core.Validationf("notes longer than %d characters", core.MaxNotesLen)
	}
	if err := os.policy.Authorize(actor, ActOrderUpdateStatus, Resource{Kind: "order", ID: id.String(), Status: string(req.Status)}); err != nil {
		return models.Order{}, err
	}

	current, err := os.orderRepo.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !models.CanTransition(current.Status, req.Status) {
		return models.Order{}, fmt.Errorf("%w: order %s cannot move from %s to %s", core.ErrIllegalTransition, current.Number, current.Status, req.Status)
	}

	updated, err := os.orderRepo.UpdateStatus(ctx, id, current.Status, req.Status, actor.ID, req.Notes)
	if err != nil {
		mylog.Error("Failed to update order status", err)
		return models.Order{}, err
	}
	mylog.Info("Order status updated", "old_status", current.Status)

	key := events.KeyOrderUpdated
	if updated.Status == models.StatusCancelled {
		key = events.KeyOrderCancelled
	}
	evt := events.OrderStatusChanged{
		OrderID:   updated.ID,
		Number:    updated.Number,
		OldStatus: string(current.Status),
		Status:    string(updated.Status),
		ChangedBy: actor.ID,
		Reason:    req.Notes,
		Timestamp: updated.UpdatedAt,
	}
	if err := publish(ctx, os.publisher, mylog, events.ExchangeOrders, key, evt); err != nil {
		return updated, err
	}
	return updated, nil
}

func (os *OrderService) AssignCourier(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.AssignCourierRequest) (models.Order, error) {
	courierID := strings.TrimSpace(req.CourierID)
	if courierID == "" {
		return models.Order{}, core.Validationf("courier_id: %v", core.ErrFieldIsEmpty)
	}
	if err := os.policy.Authorize(actor, ActOrderAssignCourier, Resource{Kind: "order", ID: id.String()}); err != nil {
		return models.Order{}, err
	}

	order, err := os.orderRepo.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if order.Type != models.OrderTypeDelivery {
		return models.Order{}, core.Validationf("order %s is %s, couriers are only assigned to delivery orders", order.Number, order.Type)
	}
	if order.Status.Terminal() {
		return models.Order{}, fmt.Errorf("%w: order %s is already %s", core.ErrIllegalTransition, order.Number, order.Status)
	}

	updated, err := os.orderRepo.AssignCourier(ctx, id, courierID)
	if err != nil {
		return models.Order{}, err
	}
	os.mylog.Action("courier_assigned").Info("Courier assigned", "order_id", id, "courier_id", courierID)
	return updated, nil
}

// ValidateOrder validates order json against predefined rules
func (os *OrderService) ValidateOrder(order dto.CreateOrderRequest) error {
	if err := os.validateCustomer(order.Customer); err != nil {
		return core.Validationf("invalid customer: %v", err)
	}
	if err := os.validateOrderType(order); err != nil {
		return core.Validationf("invalid order type: %v", err)
	}
	if err := os.validateOrderItems(order.Items); err != nil {
		return core.Validationf("invalid order items: %v", err)
	}
	if order.DiscountAmount.IsNegative() {
		return core.Validationf("discount_amount cannot be negative: %s", order.DiscountAmount)
	}
	if len(order.Notes) > core.MaxNotesLen {
		return core.Validationf("notes longer than %d characters", core.MaxNotesLen)
	}
	return nil
}

func (os *OrderService) validateCustomer(c models.Customer) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("name: %w", core.ErrFieldIsEmpty)
	}
	if n := len([]rune(name)); n < core.MinCustomerNameLen || n > core.MaxCustomerNameLen {
		return fmt.Errorf("name must be in range [%d, %d] characters", core.MinCustomerNameLen, core.MaxCustomerNameLen)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("malformed email %q", c.Email)
	}
	return nil
}

func (os *OrderService) validateOrderType(order dto.CreateOrderRequest) error {
	if order.Type == "" {
		return core.ErrFieldIsEmpty
	}
	if !order.Type.Valid() {
		return fmt.Errorf("undefined type: %s", order.Type)
	}

	if order.Type == models.OrderTypeDelivery {
		address := strings.TrimSpace(order.DeliveryAddress)
		if address == "" {
			return fmt.Errorf("delivery_address: %w", core.ErrFieldIsEmpty)
		}
		if n := len(address); n < core.MinDeliveryAddressLen || n > core.MaxDeliveryAddressLen {
			return fmt.Errorf("address length: %d, must be in range [%d, %d]", n, core.MinDeliveryAddressLen, core.MaxDeliveryAddressLen)
		}
	}
	return nil
}

func (os *OrderService) validateOrderItems(items []dto.Item) error {
	n := len(items)
	if n == 0 {
		return core.ErrFieldIsEmpty
	}
	if n < core.MinItems || n > core.MaxItems {
		return fmt.Errorf("amount of items: %d, must be in range [%d, %d]", n, core.MinItems, core.MaxItems)
	}

	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("item %d: product_id: %w", i+1, core.ErrFieldIsEmpty)
		}
		if item.Quantity < core.MinItemQuantity || item.Quantity > core.MaxItemQuantity {
			return fmt.Errorf("item %d: quantity: %d, must be in range [%d, %d]", i+1, item.Quantity, core.MinItemQuantity, core.MaxItemQuantity)
		}
		if len(item.Modifiers) > core.MaxModifiers {
			return fmt.Errorf("item %d: at most %d modifiers allowed", i+1, core.MaxModifiers)
		}
		for _, m := range item.Modifiers {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("item %d: empty modifier", i+1)
			}
		}
	}
	return nil
}
