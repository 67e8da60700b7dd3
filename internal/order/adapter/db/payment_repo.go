package db

import (
	"context"
	"fmt"
	"time"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"
	xdb "restaurant-system/internal/xpkg/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PaymentRepo struct {
	db core.IDB
}

func NewPaymentRepo(db core.IDB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = `
	id, order_id, type, status, amount,
	COALESCE(external_transaction_id, ''), COALESCE(terminal_id, ''),
	original_payment_id, COALESCE(reason, ''), COALESCE(processed_by, ''),
	processed_at, created_at, updated_at`

func scanPayment(row pgx.Row) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Type, &p.Status, &p.Amount,
		&p.ExternalTransactionID, &p.TerminalID,
		&p.OriginalPaymentID, &p.Reason, &p.ProcessedBy,
		&p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func collectPayments(rows pgx.Rows) ([]models.Payment, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Payment, error) {
		return scanPayment(row)
	})
}

const insertPaymentSQL = `
	INSERT INTO payments (
		id, order_id, type, status, amount,
		external_transaction_id, terminal_id, original_payment_id, reason,
		processed_by, processed_at, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (pr *PaymentRepo) Create(ctx context.Context, p models.Payment) (models.Payment, error) {
	_, err := pr.db.Pool().Exec(ctx, insertPaymentSQL, paymentArgs(p)...)
	if err != nil {
		return models.Payment{}, mapErr(err, nil, nil)
	}
	return p, nil
}

func paymentArgs(p models.Payment) []any {
	return []any{
		p.ID, p.OrderID, p.Type, p.Status, p.Amount,
		p.ExternalTransactionID, p.TerminalID, p.OriginalPaymentID, p.Reason,
		p.ProcessedBy, p.ProcessedAt, p.CreatedAt, p.UpdatedAt,
	}
}

func (pr *PaymentRepo) Get(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	p, err := scanPayment(pr.db.Pool().QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return models.Payment{}, mapErr(err, core.ErrPaymentNotFound, nil)
	}
	return p, nil
}

func (pr *PaymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := pr.db.Pool().Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	return payments, nil
}

// lockOrder takes the order row lock first, then every payment row of the
// order. All payment writes lock in this order.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (models.Order, []models.Payment, error) {
	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return models.Order{}, nil, mapErr(err, core.ErrOrderNotFound, nil)
	}

	rows, err := tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at, id FOR UPDATE`, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return models.Order{}, nil, err
	}
	return o, payments, nil
}

// recompute stores the derived order payment status.
func recompute(ctx context.Context, tx pgx.Tx, o models.Order, payments []models.Payment) (models.Order, error) {
	status := models.DerivePaymentStatus(o.TotalAmount, payments)
	if status == o.PaymentStatus {
		return o, nil
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`, status, now, o.ID); err != nil {
		return models.Order{}, fmt.Errorf("update order payment status: %w", err)
	}
	o.PaymentStatus = status
	o.UpdatedAt = now
	return o, nil
}

func (pr *PaymentRepo) orderOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := pr.db.Pool().QueryRow(ctx, `SELECT order_id FROM payments WHERE id = $1`, id).Scan(&orderID)
	if err != nil {
		return uuid.Nil, mapErr(err, core.ErrPaymentNotFound, nil)
	}
	return orderID, nil
}

// Process settles a pending payment and recomputes the order payment
// status under the same locks.
func (pr *PaymentRepo) Process(ctx context.Context, id uuid.UUID, upd core.PaymentUpdate) (core.PaymentResult, error) {
	orderID, err := pr.orderOf(ctx, id)
	if err != nil {
		return core.PaymentResult{}, err
	}

	var res core.PaymentResult
	err = xdb.WithTx(ctx, pr.db.Pool(), func(tx pgx.Tx) error {
		order, payments, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		i, err := core.SettlePayment(payments, id, upd, time.Now().UTC())
		if err != nil {
			return err
		}
		p := payments[i]

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = $1, external_transaction_id = $2, terminal_id = $3,
				processed_by = $4, processed_at = $5, updated_at = $6
			WHERE id = $7
		`, p.Status, p.ExternalTransactionID, p.TerminalID, p.ProcessedBy, p.ProcessedAt, p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		order, err = recompute(ctx, tx, order, payments)
		if err != nil {
			return err
		}
		res = core.PaymentResult{Payment: p, Order: order, PaymentStatus: order.PaymentStatus}
		return nil
	})
	if err != nil {
		return core.PaymentResult{}, mapErr(err, core.ErrPaymentNotFound, nil)
	}
	return res, nil
}

// Refund inserts the refund row, marks the original refunded once the
// cumulative refunds reach its amount, and recomputes the order payment
// status. The refundable remainder is rechecked under the row locks.
func (pr *PaymentRepo) Refund(ctx context.Context, refund models.Payment) (core.PaymentResult, error) {
	if refund.OriginalPaymentID == nil {
		return core.PaymentResult{}, core.Validationf("refund without original payment")
	}

	var res core.PaymentResult
	err := xdb.WithTx(ctx, pr.db.Pool(), func(tx pgx.Tx) error {
		order, payments, err := lockOrder(ctx, tx, refund.OrderID)
		if err != nil {
			return err
		}

		out, err := core.ApplyRefund(payments, refund)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, insertPaymentSQL, paymentArgs(refund)...); err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}
		original := out.Original
		if out.OriginalRefunded {
			if _, err := tx.Exec(ctx, `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`,
				original.Status, original.UpdatedAt, original.ID); err != nil {
				return fmt.Errorf("mark original refunded: %w", err)
			}
		}

		order, err = recompute(ctx, tx, order, out.Payments)
		if err != nil {
			return err
		}
		res = core.PaymentResult{Payment: refund, Original: &original, Order: order, PaymentStatus: order.PaymentStatus}
		return nil
	})
	if err != nil {
		return core.PaymentResult{}, mapErr(err, core.ErrPaymentNotFound, nil)
	}
	return res, nil
}
