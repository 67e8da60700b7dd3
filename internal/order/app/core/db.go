package core

import (
	"context"

	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IDB interface {
	Close() error
	IsAlive(ctx context.Context) error
	Pool() *pgxpool.Pool
}

// ICatalog is the product lookup collaborator. Unknown ids return
// ErrNotFound.
type ICatalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error)
}

type IOrderRepo interface {
	// Create writes the order, its items and the first status log row in
	// one transaction.
	Create(ctx context.Context, order models.Order, changedBy string) (models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (models.Order, error)
	// UpdateStatus moves the order from -> to only if it is still in from;
	// otherwise ErrConflict.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, changedBy, notes string) (models.Order, error)
	AssignCourier(ctx context.Context, id uuid.UUID, courierID string) (models.Order, error)
	History(ctx context.Context, id uuid.UUID) ([]models.StatusLog, error)
}

// PaymentResult is a payment write together with the recomputed order
// payment status.
type PaymentResult struct {
	Payment       models.Payment
	Original      *models.Payment
	Order         models.Order
	PaymentStatus models.PaymentStatus
}

type IPaymentRepo interface {
	Create(ctx context.Context, p models.Payment) (models.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	// Process settles a pending payment and recomputes the order payment
	// status in the same transaction.
	Process(ctx context.Context, id uuid.UUID, upd PaymentUpdate) (PaymentResult, error)
	// Refund inserts the refund row, marks the original refunded when fully
	// refunded and recomputes the order payment status, atomically.
	Refund(ctx context.Context, refund models.Payment) (PaymentResult, error)
}

type PaymentUpdate struct {
	Status                models.PaymentState
	ExternalTransactionID string
	TerminalID            string
	ProcessedBy           string
}

type IReceiptRepo interface {
	// Create returns ErrReceiptExists when a receipt for (order, type)
	// exists and ErrNumberTaken when the receipt number is already used.
	Create(ctx context.Context, r models.Receipt) (models.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (models.Receipt, error)
	GetByOrderAndType(ctx context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error)
	// Save persists the mutable receipt fields if the stored status is
	// still from; otherwise ErrConflict.
	Save(ctx context.Context, r models.Receipt, from models.ReceiptStatus) (models.Receipt, error)
}
