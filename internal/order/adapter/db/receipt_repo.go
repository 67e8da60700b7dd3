package db

import (
	"context"
	"fmt"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ReceiptRepo struct {
	db core.IDB
}

func NewReceiptRepo(db core.IDB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

const receiptColumns = `
	id, order_id, payment_id, number, type, status, amount,
	storage_serial, document_number, sign_number, qr_payload,
	payload, registrar_response, COALESCE(error_message, ''), retry_count,
	sent_at, confirmed_at, created_at, updated_at`

func scanReceipt(row pgx.Row) (models.Receipt, error) {
	var r models.Receipt
	err := row.Scan(
		&r.ID, &r.OrderID, &r.PaymentID, &r.Number, &r.Type, &r.Status, &r.Amount,
		&r.StorageSerial, &r.DocumentNumber, &r.SignNumber, &r.QRPayload,
		&r.Payload, &r.RegistrarResponse, &r.ErrorMessage, &r.RetryCount,
		&r.SentAt, &r.ConfirmedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// Create relies on the (order_id, type) unique constraint; two concurrent
// inserts for the same pair cannot both succeed. Only that constraint maps
// to ErrReceiptExists, a number clash is ErrNumberTaken.
func (rr *ReceiptRepo) Create(ctx context.Context, r models.Receipt) (models.Receipt, error) {
	_, err := rr.db.Pool().Exec(ctx, `
		INSERT INTO fiscal_receipts (
			id, order_id, payment_id, number, type, status, amount,
			storage_serial, document_number, sign_number, qr_payload,
			payload, registrar_response, error_message, retry_count,
			sent_at, confirmed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		r.ID, r.OrderID, r.PaymentID, r.Number, r.Type, r.Status, r.Amount,
		r.StorageSerial, r.DocumentNumber, r.SignNumber, r.QRPayload,
		r.Payload, r.RegistrarResponse, r.ErrorMessage, r.RetryCount,
		r.SentAt, r.ConfirmedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return models.Receipt{}, mapErr(err, nil, core.ErrReceiptExists)
	}
	return r, nil
}

func (rr *ReceiptRepo) Get(ctx context.Context, id uuid.UUID) (models.Receipt, error) {
	r, err := scanReceipt(rr.db.Pool().QueryRow(ctx, `SELECT `+receiptColumns+` FROM fiscal_receipts WHERE id = $1`, id))
	if err != nil {
		return models.Receipt{}, mapErr(err, core.ErrReceiptNotFound, nil)
	}
	return r, nil
}

func (rr *ReceiptRepo) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, t models.ReceiptType) (models.Receipt, error) {
	r, err := scanReceipt(rr.db.Pool().QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM fiscal_receipts WHERE order_id = $1 AND type = $2`, orderID, t))
	if err != nil {
		return models.Receipt{}, mapErr(err, core.ErrReceiptNotFound, nil)
	}
	return r, nil
}

func (rr *ReceiptRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error) {
	rows, err := rr.db.Pool().Query(ctx,
		`SELECT `+receiptColumns+` FROM fiscal_receipts WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	receipts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Receipt, error) {
		return scanReceipt(row)
	})
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	return receipts, nil
}

// Save writes the mutable fields only while the stored status is still
// from, so two callers racing on the same transition cannot both win.
func (rr *ReceiptRepo) Save(ctx context.Context, r models.Receipt, from models.ReceiptStatus) (models.Receipt, error) {
	tag, err := rr.db.Pool().Exec(ctx, `
		UPDATE fiscal_receipts
		SET status = $1, registrar_response = $2, error_message = $3, retry_count = $4,
			sent_at = $5, confirmed_at = $6, updated_at = $7
		WHERE id = $8 AND status = $9
	`, r.Status, r.RegistrarResponse, r.ErrorMessage, r.RetryCount,
		r.SentAt, r.ConfirmedAt, r.UpdatedAt, r.ID, from)
	if err != nil {
		return models.Receipt{}, mapErr(err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		if _, err := rr.Get(ctx, r.ID); err != nil {
			return models.Receipt{}, err
		}
		return models.Receipt{}, fmt.Errorf("%w: receipt %s is no longer %s", core.ErrStaleState, r.Number, from)
	}
	return r, nil
}
