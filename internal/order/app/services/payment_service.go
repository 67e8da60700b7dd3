package services

import (
	"context"
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
)

const maxReasonLen = 500

type PaymentService struct {
	paymentRepo core.IPaymentRepo
	orderRepo   core.IOrderRepo
	publisher   core.IPublisher
	policy      *Policy
	mylog       logger.Logger
	now         func() time.Time
}

func NewPaymentService(
	paymentRepo core.IPaymentRepo,
	orderRepo core.IOrderRepo,
	publisher core.IPublisher,
	policy *Policy,
	mylogger logger.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		publisher:   publisher,
		policy:      policy,
		mylog:       mylogger,
		now:         time.Now,
	}
}

// Create records a pending capture against an order. The amount may not
// exceed the order total.
func (ps *PaymentService) Create(ctx context.Context, actor auth.Actor, req dto.CreatePaymentRequest) (models.Payment, error) {
	mylog := ps.mylog.Action("create_payment").With("order_id", req.OrderID)

	if err := ps.policy.Authorize(actor, ActPaymentCreate, Resource{Kind: "payment"}); err != nil {
		return models.Payment{}, err
	}
	if req.OrderID == uuid.Nil {
		return models.Payment{}, core.Validationf("order_id: %v", core.ErrFieldIsEmpty)
	}
	if !req.Type.Valid() {
		return models.Payment{}, core.Validationf("unknown payment type %q", req.Type)
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return models.Payment{}, core.Validationf("amount must be positive, got %s", req.Amount)
	}

	order, err := ps.orderRepo.Get(ctx, req.OrderID)
	if err != nil {
		return models.Payment{}, err
	}
	if order.Status == models.StatusCancelled {
		return models.Payment{}, fmt.Errorf("%w: order %s is cancelled", core.ErrIllegalTransition, order.Number)
	}
	if amount.GreaterThan(order.TotalAmount) {
		return models.Payment{}, core.Validationf("amount %s exceeds order total %s", amount, order.TotalAmount)
	}

	now := ps.now().UTC()
	p := models.Payment{
		ID:                    uuid.New(),
		OrderID:               order.ID,
		Type:                  req.Type,
		Status:                models.PaymentPending,
		Amount:                amount,
		ExternalTransactionID: strings.TrimSpace(req.ExternalTransactionID),
		TerminalID:            strings.TrimSpace(req.TerminalID),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	saved, err := ps.paymentRepo.Create(ctx, p)
	if err != nil {
		mylog.Error("Failed to save payment", err)
		return models.Payment{}, err
	}
	mylog.Info("Payment created", "payment_id", saved.ID, "amount", saved.Amount, "type", saved.Type)
	return saved, nil
}

func (ps *PaymentService) Get(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return ps.paymentRepo.Get(ctx, id)
}

func (ps *PaymentService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := ps.orderRepo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return ps.paymentRepo.ListByOrder(ctx, orderID)
}

// Process settles a pending payment as completed or failed and publishes
// the outcome. The order payment status is recomputed in the same
// transaction as the payment update.
func (ps *PaymentService) Process(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.ProcessPaymentRequest) (core.PaymentResult, error) {
	mylog := ps.mylog.Action("process_payment").With("payment_id", id, "status", req.Status)

	if req.Status != models.PaymentCompleted && req.Status != models.PaymentFailed {
		return core.PaymentResult{}, core.Validationf("status must be %s or %s, got %q", models.PaymentCompleted, models.PaymentFailed, req.Status)
	}
	if err := ps.policy.Authorize(actor, ActPaymentProcess, Resource{Kind: "payment", ID: id.String()}); err != nil {
		return core.PaymentResult{}, err
	}

	res, err := ps.paymentRepo.Process(ctx, id, core.PaymentUpdate{
		Status:                req.Status,
		ExternalTransactionID: strings.TrimSpace(req.ExternalTransactionID),
		TerminalID:            strings.TrimSpace(req.TerminalID),
		ProcessedBy:           actor.ID,
	})
	if err != nil {
		mylog.Error("Failed to process payment", err)
		return core.PaymentResult{}, err
	}
	mylog.Info("Payment processed", "order_id", res.Order.ID, "order_payment_status", res.PaymentStatus)

	key := events.KeyPaymentCompleted
	if res.Payment.Status == models.PaymentFailed {
		key = events.KeyPaymentFailed
	}
	if err := publish(ctx, ps.publisher, mylog, events.ExchangePayments, key, paymentEvent(res, ps.now())); err != nil {
		return res, err
	}
	return res, nil
}

// Refund writes a refund row against a completed capture. Without an
// explicit amount the whole remaining amount is refunded; cumulative
// refunds never exceed the original.
func (ps *PaymentService) Refund(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.RefundPaymentRequest) (core.PaymentResult, error) {
	mylog := ps.mylog.Action("refund_payment").With("payment_id", id)

	if err := ps.policy.Authorize(actor, ActPaymentRefund, Resource{Kind: "payment", ID: id.String()}); err != nil {
		return core.PaymentResult{}, err
	}
	if len(req.Reason) > maxReasonLen {
		return core.PaymentResult{}, core.Validationf("reason longer than %d characters", maxReasonLen)
	}

	original, err := ps.paymentRepo.Get(ctx, id)
	if err != nil {
		return core.PaymentResult{}, err
	}
	if original.IsRefund() {
		return core.PaymentResult{}, core.Validationf("payment %s is itself a refund", id)
	}
	if original.Status != models.PaymentCompleted {
		return core.PaymentResult{}, fmt.Errorf("%w: payment %s is %s, only completed payments can be refunded", core.ErrIllegalTransition, id, original.Status)
	}

	siblings, err := ps.paymentRepo.ListByOrder(ctx, original.OrderID)
	if err != nil {
		return core.PaymentResult{}, err
	}
	remaining := original.Amount.Sub(models.RefundedSoFar(original.ID, siblings))

	amount := remaining
	if req.Amount != nil {
		amount = req.Amount.Round(2)
	}
	if !amount.IsPositive() {
		return core.PaymentResult{}, core.Validationf("refund amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(remaining) {
		return core.PaymentResult{}, core.Validationf("refund amount %s exceeds refundable amount %s", amount, remaining)
	}

	now := ps.now().UTC()
	originalID := original.ID
	refund := models.Payment{
		ID:                uuid.New(),
		OrderID:           original.OrderID,
		Type:              models.PaymentRefund,
		Status:            models.PaymentRefunded,
		Amount:            amount,
		OriginalPaymentID: &originalID,
		Reason:            strings.TrimSpace(req.Reason),
		ProcessedBy:       actor.ID,
		ProcessedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	res, err := ps.paymentRepo.Refund(ctx, refund)
	if err != nil {
		mylog.Error("Failed to refund payment", err)
		return core.PaymentResult{}, err
	}
	mylog.Info("Payment refunded", "refund_id", res.Payment.ID, "amount", amount, "order_payment_status", res.PaymentStatus)

	if err := publish(ctx, ps.publisher, mylog, events.ExchangePayments, events.KeyPaymentRefunded, paymentEvent(res, now)); err != nil {
		return res, err
	}
	return res, nil
}

func paymentEvent(res core.PaymentResult, now time.Time) events.PaymentEvent {
	return events.PaymentEvent{
		PaymentID:         res.Payment.ID,
		OrderID:           res.Payment.OrderID,
		Amount:            res.Payment.Amount,
		Type:              string(res.Payment.Type),
		Status:            string(res.Payment.Status),
		OrderPaymentState: string(res.PaymentStatus),
		OriginalPaymentID: res.Payment.OriginalPaymentID,
		Reason:            res.Payment.Reason,
		Timestamp:         now.UTC(),
	}
}
