package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"
	xerrors "restaurant-system/internal/xpkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memCatalog map[uuid.UUID]models.Product

func (c memCatalog) GetProduct(_ context.Context, id uuid.UUID) (models.Product, error) {
	p, ok := c[id]
	if !ok {
		return models.Product{}, core.ErrProductNotFound
	}
	return p, nil
}

// memStore backs the order, payment and receipt fakes so payment writes
// can recompute the order payment status like the Postgres repos do.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]models.Order
	logs     map[uuid.UUID][]models.StatusLog
	payments []models.Payment
	receipts map[uuid.UUID]models.Receipt
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[uuid.UUID]models.Order{},
		logs:     map[uuid.UUID][]models.StatusLog{},
		receipts: map[uuid.UUID]models.Receipt{},
	}
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, o models.Order, changedBy string) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return models.Order{}, fmt.Errorf("%w: quantity check", core.ErrStorage)
		}
	}
	for _, ex := range r.s.orders {
		if ex.Number == o.Number {
			return models.Order{}, core.ErrNumberTaken
		}
	}
	r.s.orders[o.ID] = o
	r.s.logs[o.ID] = append(r.s.logs[o.ID], models.StatusLog{OrderID: o.ID, Status: o.Status, ChangedBy: changedBy, ChangedAt: o.CreatedAt})
	return o, nil
}

func (r memOrders) Get(_ context.Context, id uuid.UUID) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return models.Order{}, core.ErrOrderNotFound
	}
	return o, nil
}

func (r memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus, changedBy, notes string) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return models.Order{}, core.ErrOrderNotFound
	}
	if o.Status != from {
		return models.Order{}, core.ErrStaleState
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	r.s.orders[id] = o
	r.s.logs[id] = append(r.s.logs[id], models.StatusLog{OrderID: id, Status: to, ChangedBy: changedBy, Notes: notes, ChangedAt: o.UpdatedAt})
	return o, nil
}

func (r memOrders) AssignCourier(_ context.Context, id uuid.UUID, courierID string) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return models.Order{}, core.ErrOrderNotFound
	}
	o.CourierID = courierID
	r.s.orders[id] = o
	return o, nil
}

func (r memOrders) History(_ context.Context, id uuid.UUID) ([]models.StatusLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.StatusLog(nil), r.s.logs[id]...), nil
}

type memPayments struct{ s *memStore }

func (r memPayments) Create(_ context.Context, p models.Payment) (models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments = append(r.s.payments, p)
	return p, nil
}

func (r memPayments) Get(_ context.Context, id uuid.UUID) (models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Payment{}, core.ErrPaymentNotFound
}

func (r memPayments) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byOrder(orderID), nil
}

func (r memPayments) byOrder(orderID uuid.UUID) []models.Payment {
	var out []models.Payment
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

// put writes the order's payments back after a rule was applied to them.
func (r memPayments) put(payments []models.Payment) {
	for _, p := range payments {
		found := false
		for i := range r.s.payments {
			if r.s.payments[i].ID == p.ID {
				r.s.payments[i] = p
				found = true
			}
		}
		if !found {
			r.s.payments = append(r.s.payments, p)
		}
	}
}

func (r memPayments) recompute(orderID uuid.UUID) (models.Order, models.PaymentStatus) {
	o := r.s.orders[orderID]
	o.PaymentStatus = models.DerivePaymentStatus(o.TotalAmount, r.byOrder(orderID))
	r.s.orders[orderID] = o
	return o, o.PaymentStatus
}

func (r memPayments) Process(_ context.Context, id uuid.UUID, upd core.PaymentUpdate) (core.PaymentResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var orderID uuid.UUID
	for _, p := range r.s.payments {
		if p.ID == id {
			orderID = p.OrderID
		}
	}
	payments := r.byOrder(orderID)
	i, err := core.SettlePayment(payments, id, upd, time.Now().UTC())
	if err != nil {
		return core.PaymentResult{}, err
	}
	r.put(payments)
	o, st := r.recompute(orderID)
	return core.PaymentResult{Payment: payments[i], Order: o, PaymentStatus: st}, nil
}

func (r memPayments) Refund(_ context.Context, refund models.Payment) (core.PaymentResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out, err := core.ApplyRefund(r.byOrder(refund.OrderID), refund)
	if err != nil {
		return core.PaymentResult{}, err
	}
	r.put(out.Payments)
	o, st := r.recompute(refund.OrderID)
	return core.PaymentResult{Payment: refund, Original: &out.Original, Order: o, PaymentStatus: st}, nil
}

type memReceipts struct{ s *memStore }

func (r memReceipts) Create(_ context.Context, rc models.Receipt) (models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.receipts {
		if ex.OrderID == rc.OrderID && ex.Type == rc.Type {
			return models.Receipt{}, core.ErrReceiptExists
		}
		if ex.Number == rc.Number {
			return models.Receipt{}, core.ErrNumberTaken
		}
	}
	r.s.receipts[rc.ID] = rc
	return rc, nil
}

func (r memReceipts) Get(_ context.Context, id uuid.UUID) (models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.receipts[id]
	if !ok {
		return models.Receipt{}, core.ErrReceiptNotFound
	}
	return rc, nil
}

func (r memReceipts) GetByOrderAndType(_ context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rc := range r.s.receipts {
		if rc.OrderID == orderID && rc.Type == t {
			return rc, nil
		}
	}
	return models.Receipt{}, core.ErrReceiptNotFound
}

func (r memReceipts) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Receipt
	for _, rc := range r.s.receipts {
		if rc.OrderID == orderID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r memReceipts) Save(ctx context.Context, rc models.Receipt, from models.ReceiptStatus) (models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.receipts[rc.ID]
	if !ok {
		return models.Receipt{}, core.ErrReceiptNotFound
	}
	if cur.Status != from {
		return models.Receipt{}, core.ErrStaleState
	}
	r.s.receipts[rc.ID] = rc
	return rc, nil
}

type published struct {
	exchange, key string
	payload       any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrPublish, p.err)
	}
	p.msgs = append(p.msgs, published{exchange, key, payload})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.key)
	}
	return out
}

type fakeRegistrar struct {
	err   error
	block bool
	calls int
}

func (f *fakeRegistrar) Submit(ctx context.Context, r models.Receipt) (models.RegistrarResponse, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return models.RegistrarResponse{}, ctx.Err()
	}
	if f.err != nil {
		return models.RegistrarResponse{}, f.err
	}
	return models.RegistrarResponse{RegistrarID: "REG-" + r.Number, Code: 0, Message: "accepted", AcceptedAt: time.Now().UTC()}, nil
}

type seqNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *seqNumbers) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

func (s *seqNumbers) OrderNumber() string   { return fmt.Sprintf("ORD-%019d", s.next()) }
func (s *seqNumbers) ReceiptNumber() string { return fmt.Sprintf("FR-%019d", s.next()) }

// stuckNumbers repeats each number once before moving on, like a second
// process configured with the same generator state.
type stuckNumbers struct {
	seqNumbers
	last   string
	repeat bool
}

func (s *stuckNumbers) take(next func() string) string {
	s.mu.Lock()
	repeat, last := s.repeat, s.last
	s.repeat = !s.repeat
	s.mu.Unlock()
	if repeat {
		return last
	}
	n := next()
	s.mu.Lock()
	s.last = n
	s.mu.Unlock()
	return n
}

func (s *stuckNumbers) OrderNumber() string   { return s.take(s.seqNumbers.OrderNumber) }
func (s *stuckNumbers) ReceiptNumber() string { return s.take(s.seqNumbers.ReceiptNumber) }

var errRegistrarDown = errors.New("registrar unavailable")
