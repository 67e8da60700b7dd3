package db

import (
	"context"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"

	"github.com/google/uuid"
)

// CatalogRepo reads products. The catalog is owned elsewhere; this side
// never writes it.
type CatalogRepo struct {
	db core.IDB
}

func NewCatalogRepo(db core.IDB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (cr *CatalogRepo) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	var p models.Product
	err := cr.db.Pool().QueryRow(ctx, `
		SELECT id, name, sku, price, available
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Available)
	if err != nil {
		return models.Product{}, mapErr(err, core.ErrProductNotFound, nil)
	}
	return p, nil
}
