package services

import (
	"context"
	"errors"
	"fmt"
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

type FiscalService struct {
	receiptRepo core.IReceiptRepo
	orderRepo   core.IOrderRepo
	paymentRepo core.IPaymentRepo
	registrar   core.IRegistrar
	publisher   core.IPublisher
	policy      *Policy
	numbers     NumberGenerator
	timeout     time.Duration
	mylog       logger.Logger

	now       func() time.Time
	fiscalIDs func() models.FiscalIDs
}

func NewFiscalService(
	receiptRepo core.IReceiptRepo,
	orderRepo core.IOrderRepo,
	paymentRepo core.IPaymentRepo,
	registrar core.IRegistrar,
	publisher core.IPublisher,
	policy *Policy,
	numbers NumberGenerator,
	timeout time.Duration,
	mylogger logger.Logger,
) *FiscalService {
	return &FiscalService{
		receiptRepo: receiptRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		registrar:   registrar,
		publisher:   publisher,
		policy:      policy,
		numbers:     numbers,
		timeout:     timeout,
		mylog:       mylogger,
		now:         time.Now,
		fiscalIDs:   models.MockFiscalIDs,
	}
}

// Create issues a pending receipt for an order. A sale receipt is for the
// order total; refund and return receipts are for the referenced refund
// payment. A second receipt of the same type for the order is rejected
// with ErrReceiptExists.
func (fs *FiscalService) Create(ctx context.Context, actor auth.Actor, req dto.CreateReceiptRequest) (models.Receipt, error) {
	mylog := fs.mylog.Action("create_receipt").With("order_id", req.OrderID, "type", req.Type)

	if err := fs.policy.Authorize(actor, ActReceiptCreate, Resource{Kind: "receipt"}); err != nil {
		return models.Receipt{}, err
	}
	if req.OrderID == uuid.Nil {
		return models.Receipt{}, core.Validationf("order_id: %v", core.ErrFieldIsEmpty)
	}
	if !req.Type.Valid() {
		return models.Receipt{}, core.Validationf("unknown receipt type %q", req.Type)
	}

	order, err := fs.orderRepo.Get(ctx, req.OrderID)
	if err != nil {
		return models.Receipt{}, err
	}

	amount, err := fs.receiptAmount(ctx, order, req)
	if err != nil {
		return models.Receipt{}, err
	}

	now := fs.now().UTC()
	ids := fs.fiscalIDs()
	r := models.Receipt{
		ID:             uuid.New(),
		OrderID:        order.ID,
		PaymentID:      req.PaymentID,
		Number:         fs.numbers.ReceiptNumber(),
		Type:           req.Type,
		Status:         models.ReceiptPending,
		Amount:         amount,
		StorageSerial:  ids.StorageSerial,
		DocumentNumber: ids.DocumentNumber,
		SignNumber:     ids.SignNumber,
		QRPayload:      models.QRPayload(now, amount, ids, req.Type.Operation()),
		Payload:        buildPayload(order, req.Type, amount, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var saved models.Receipt
	for attempt := 1; ; attempt++ {
		saved, err = fs.receiptRepo.Create(ctx, r)
		if !errors.Is(err, core.ErrNumberTaken) || attempt == numberAttempts {
			break
		}
		mylog.Warn("Receipt number taken, regenerating", "number", r.Number, "attempt", attempt)
		r.Number = fs.numbers.ReceiptNumber()
	}
	if err != nil {
		if !errors.Is(err, core.ErrConflict) {
			mylog.Error("Failed to save receipt", err)
		}
		return models.Receipt{}, err
	}
	mylog.Info("Receipt created", "receipt_id", saved.ID, "number", saved.Number, "amount", saved.Amount)
	return saved, nil
}

func (fs *FiscalService) receiptAmount(ctx context.Context, order models.Order, req dto.CreateReceiptRequest) (decimal.Decimal, error) {
	if req.Type == models.ReceiptSale {
		if req.PaymentID != nil {
			return decimal.Zero, core.Validationf("sale receipts do not reference a payment")
		}
		return order.TotalAmount, nil
	}

	if req.PaymentID == nil {
		return decimal.Zero, core.Validationf("%s receipt requires payment_id of the refund", req.Type)
	}
	p, err := fs.paymentRepo.Get(ctx, *req.PaymentID)
	if err != nil {
		return decimal.Zero, err
	}
	if p.OrderID != order.ID {
		return decimal.Zero, core.Validationf("payment %s does not belong to order %s", p.ID, order.Number)
	}
	if !p.IsRefund() {
		return decimal.Zero, core.Validationf("payment %s is not a refund", p.ID)
	}
	return p.Amount, nil
}

func buildPayload(order models.Order, t models.ReceiptType, amount decimal.Decimal, issuedAt time.Time) models.ReceiptPayload {
	items := make([]models.ReceiptPayloadItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.ReceiptPayloadItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.TotalPrice,
		})
	}
	return models.ReceiptPayload{
		OrderNumber: order.Number,
		Operation:   t.Operation(),
		Items:       items,
		Subtotal:    order.Subtotal,
		TaxAmount:   order.TaxAmount,
		Total:       amount,
		Customer:    order.Customer,
		IssuedAt:    issuedAt,
	}
}

// Send submits a pending receipt to the registrar. The outcome, sent or
// failed, is stored on the receipt and returned to the caller; a
// registrar error is never returned as an error.
func (fs *FiscalService) Send(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error) {
	mylog := fs.mylog.Action("send_receipt").With("receipt_id", id)

	if err := fs.policy.Authorize(actor, ActReceiptSend, Resource{Kind: "receipt", ID: id.String()}); err != nil {
		return models.Receipt{}, err
	}

	r, err := fs.receiptRepo.Get(ctx, id)
	if err != nil {
		return models.Receipt{}, err
	}
	if r.Status != models.ReceiptPending {
		return models.Receipt{}, fmt.Errorf("%w: receipt %s is %s, only pending receipts can be sent", core.ErrIllegalTransition, r.Number, r.Status)
	}

	resp, submitErr := fs.submit(ctx, r)

	now := fs.now().UTC()
	r.UpdatedAt = now
	key := events.KeyReceiptSent
	if submitErr != nil {
		mylog.Warn("Registrar rejected receipt", "error", submitErr.Error())
		r.Status = models.ReceiptFailed
		r.ErrorMessage = submitErr.Error()
		key = events.KeyReceiptFailed
	} else {
		r.Status = models.ReceiptSent
		r.RegistrarResponse = &resp
		r.ErrorMessage = ""
		r.SentAt = &now
	}

	// The registrar has seen the receipt; its outcome is stored even when
	// the caller has gone away or the registrar used up the caller's time.
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), core.WaitTime*time.Second)
	defer cancel()

	saved, err := fs.receiptRepo.Save(octx, r, models.ReceiptPending)
	if err != nil {
		mylog.Error("Failed to store registrar outcome", err)
		return models.Receipt{}, err
	}
	mylog.Info("Receipt submitted", "status", saved.Status)

	if err := publish(octx, fs.publisher, mylog, events.ExchangeFiscal, key, receiptEvent(saved)); err != nil {
		return saved, err
	}
	return saved, nil
}

func (fs *FiscalService) submit(ctx context.Context, r models.Receipt) (models.RegistrarResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, fs.timeout)
	defer cancel()

	resp, err := fs.registrar.Submit(ctx, r)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return resp, fmt.Errorf("registrar did not answer within %s", fs.timeout)
		}
		if errors.Is(err, context.Canceled) {
			return resp, fmt.Errorf("registrar call abandoned: %w", err)
		}
		return resp, err
	}
	return resp, nil
}

// Retry returns a failed receipt to pending so it can be sent again.
func (fs *FiscalService) Retry(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error) {
	if err := fs.policy.Authorize(actor, ActReceiptRetry, Resource{Kind: "receipt", ID: id.String()}); err != nil {
		return models.Receipt{}, err
	}

	r, err := fs.receiptRepo.Get(ctx, id)
	if err != nil {
		return models.Receipt{}, err
	}
	if r.Status != models.ReceiptFailed {
		return models.Receipt{}, fmt.Errorf("%w: receipt %s is %s, only failed receipts can be retried", core.ErrIllegalTransition, r.Number, r.Status)
	}

	r.Status = models.ReceiptPending
	r.ErrorMessage = ""
	r.RetryCount++
	r.UpdatedAt = fs.now().UTC()

	saved, err := fs.receiptRepo.Save(ctx, r, models.ReceiptFailed)
	if err != nil {
		return models.Receipt{}, err
	}
	fs.mylog.Action("retry_receipt").Info("Receipt reset to pending", "receipt_id", id, "retry_count", saved.RetryCount)
	return saved, nil
}

// Confirm records the registrar's acknowledgement of a sent receipt.
func (fs *FiscalService) Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error) {
	mylog := fs.mylog.Action("confirm_receipt").With("receipt_id", id)

	if err := fs.policy.Authorize(actor, ActReceiptConfirm, Resource{Kind: "receipt", ID: id.String()}); err != nil {
		return models.Receipt{}, err
	}

	r, err := fs.receiptRepo.Get(ctx, id)
	if err != nil {
		return models.Receipt{}, err
	}
	if r.Status != models.ReceiptSent {
		return models.Receipt{}, fmt.Errorf("%w: receipt %s is %s, only sent receipts can be confirmed", core.ErrIllegalTransition, r.Number, r.Status)
	}

	now := fs.now().UTC()
	r.Status = models.ReceiptConfirmed
	r.ConfirmedAt = &now
	r.UpdatedAt = now

	saved, err := fs.receiptRepo.Save(ctx, r, models.ReceiptSent)
	if err != nil {
		return models.Receipt{}, err
	}
	mylog.Info("Receipt confirmed")

	if err := publish(ctx, fs.publisher, mylog, events.ExchangeFiscal, events.KeyReceiptConfirmed, receiptEvent(saved)); err != nil {
		return saved, err
	}
	return saved, nil
}

func (fs *FiscalService) Get(ctx context.Context, id uuid.UUID) (models.Receipt, error) {
	return fs.receiptRepo.Get(ctx, id)
}

func (fs *FiscalService) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error) {
	return fs.receiptRepo.GetByOrderAndType(ctx, orderID, t)
}

func (fs *FiscalService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error) {
	if _, err := fs.orderRepo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return fs.receiptRepo.ListByOrder(ctx, orderID)
}

func receiptEvent(r models.Receipt) events.ReceiptEvent {
	return events.ReceiptEvent{
		ReceiptID:    r.ID,
		OrderID:      r.OrderID,
		Number:       r.Number,
		Type:         string(r.Type),
		Status:       string(r.Status),
		Amount:       r.Amount,
		ErrorMessage: r.ErrorMessage,
		Timestamp:    r.UpdatedAt,
	}
}
