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

type OrderRepo struct {
	db core.IDB
}

func NewOrderRepo(db core.IDB) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `
	id, number, type, status, payment_status,
	subtotal, tax_amount, discount_amount, delivery_fee, total_amount,
	customer_name, COALESCE(customer_phone, ''), COALESCE(customer_email, ''),
	COALESCE(delivery_address, ''), COALESCE(cashier_id, ''), COALESCE(courier_id, ''),
	COALESCE(notes, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.Type, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.DeliveryFee, &o.TotalAmount,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email,
		&o.DeliveryAddress, &o.CashierID, &o.CourierID,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create writes the order, its items and the first status log row in one
// transaction.
func (or *OrderRepo) Create(ctx context.Context, order models.Order, changedBy string) (models.Order, error) {
	err := xdb.WithTx(ctx, or.db.Pool(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, number, type, status, payment_status,
				subtotal, tax_amount, discount_amount, delivery_fee, total_amount,
				customer_name, customer_phone, customer_email, delivery_address,
				cashier_id, notes, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`,
			order.ID, order.Number, order.Type, order.Status, order.PaymentStatus,
			order.Subtotal, order.TaxAmount, order.DiscountAmount, order.DeliveryFee, order.TotalAmount,
			order.Customer.Name, order.Customer.Phone, order.Customer.Email, order.DeliveryAddress,
			order.CashierID, order.Notes, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		// Insert each item associated with the order
		for i, item := range order.Items {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_items (
					id, order_id, product_id, name, sku,
					unit_price, quantity, modifiers, total_price, position
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, item.ID, order.ID, item.ProductID, item.Name, item.SKU,
				item.UnitPrice, item.Quantity, item.Modifiers, item.TotalPrice, i)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", i+1, err)
			}
		}

		return insertStatusLog(ctx, tx, order.ID, order.Status, changedBy, "", order.CreatedAt)
	})
	if err != nil {
		return models.Order{}, mapErr(err, nil, nil)
	}
	return order, nil
}

func insertStatusLog(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status models.OrderStatus, changedBy, notes string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, status, changedBy, notes, at)
	if err != nil {
		return fmt.Errorf("insert order status log: %w", err)
	}
	return nil
}

func (or *OrderRepo) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	pool := or.db.Pool()

	o, err := scanOrder(pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return models.Order{}, mapErr(err, core.ErrOrderNotFound, nil)
	}

	rows, err := pool.Query(ctx, `
		SELECT id, order_id, product_id, name, sku, unit_price, quantity, modifiers, total_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return models.Order{}, mapErr(err, nil, nil)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderItem, error) {
		var it models.OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.SKU, &it.UnitPrice, &it.Quantity, &it.Modifiers, &it.TotalPrice)
		return it, err
	})
	if err != nil {
		return models.Order{}, mapErr(err, nil, nil)
	}
	return o, nil
}

// UpdateStatus is a conditional update: it only applies while the order
// is still in from. Zero affected rows means someone else moved it first.
func (or *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, changedBy, notes string) (models.Order, error) {
	now := time.Now().UTC()
	err := xdb.WithTx(ctx, or.db.Pool(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`, to, now, id, from)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return core.ErrOrderNotFound
			}
			return fmt.Errorf("%w: order %s is no longer %s", core.ErrStaleState, id, from)
		}
		return insertStatusLog(ctx, tx, id, to, changedBy, notes, now)
	})
	if err != nil {
		return models.Order{}, mapErr(err, core.ErrOrderNotFound, nil)
	}
	return or.Get(ctx, id)
}

func (or *OrderRepo) AssignCourier(ctx context.Context, id uuid.UUID, courierID string) (models.Order, error) {
	tag, err := or.db.Pool().Exec(ctx, `
		UPDATE orders SET courier_id = $1, updated_at = NOW()
		WHERE id = $2 AND status NOT IN ('delivered', 'cancelled')
	`, courierID, id)
	if err != nil {
		return models.Order{}, mapErr(err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		if _, err := or.Get(ctx, id); err != nil {
			return models.Order{}, err
		}
		return models.Order{}, fmt.Errorf("%w: order %s is closed", core.ErrStaleState, id)
	}
	return or.Get(ctx, id)
}

func (or *OrderRepo) History(ctx context.Context, id uuid.UUID) ([]models.StatusLog, error) {
	rows, err := or.db.Pool().Query(ctx, `
		SELECT order_id, status, changed_by, COALESCE(notes, ''), changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at, id
	`, id)
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StatusLog, error) {
		var l models.StatusLog
		err := row.Scan(&l.OrderID, &l.Status, &l.ChangedBy, &l.Notes, &l.ChangedAt)
		return l, err
	})
	if err != nil {
		return nil, mapErr(err, nil, nil)
	}
	return logs, nil
}
