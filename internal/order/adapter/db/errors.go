package db

import (
	"errors"
	"fmt"

	"restaurant-system/internal/order/app/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// numberKeys are the unique constraints on generated numbers. A clash on one
// of them says nothing about the row itself.
var numberKeys = map[string]bool{
	"orders_number_key":          true,
	"fiscal_receipts_number_key": true,
}

// mapErr translates driver errors into the service taxonomy. notFound is
// returned for pgx.ErrNoRows, conflict for unique violations other than a
// generated number clash.
func mapErr(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if numberKeys[pgErr.ConstraintName] {
				return fmt.Errorf("%w (%s)", core.ErrNumberTaken, pgErr.ConstraintName)
			}
			if conflict != nil {
				return fmt.Errorf("%w (%s)", conflict, pgErr.ConstraintName)
			}
			return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation, pgCheckViolation:
			return fmt.Errorf("%w: %s violated", core.ErrValidation, pgErr.ConstraintName)
		}
	}

	// already classified by the transaction body
	for _, known := range []error{core.ErrNotFound, core.ErrConflict, core.ErrValidation, core.ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", core.ErrStorage, err)
}
