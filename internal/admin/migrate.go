package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"restaurant-system/internal/order/adapter/cache"
	"restaurant-system/internal/xpkg/config"
	xdb "restaurant-system/internal/xpkg/db"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SeedProduct is one catalog entry in a seed file.
type SeedProduct struct {
	ID        uuid.UUID       `yaml:"id"`
	Name      string          `yaml:"name"`
	SKU       string          `yaml:"sku"`
	Price     decimal.Decimal `yaml:"price"`
	Available *bool           `yaml:"available"`
}

type seedFile struct {
	Products []SeedProduct `yaml:"products"`
}

// Migrate applies the schema and, with --seed, upserts catalog products.
func Migrate(ctx context.Context, mylog logger.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	seedPath := fs.String("seed", "", "optional yaml file with products to upsert")

	if err := fs.Parse(args); err != nil {
		return xerrors.ErrParseCmd
	}
	if *showHelp {
		fs.Usage()
		return xerrors.ErrHelp
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	var products []SeedProduct
	if *seedPath != "" {
		if products, err = LoadSeed(*seedPath); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	d, err := xdb.Start(ctx, cfg.DB, mylog)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrDBConn, err)
	}
	defer d.Close()

	if err := d.Migrate(ctx); err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(products))
	err = xdb.WithTx(ctx, d.Pool(), func(tx pgx.Tx) error {
		for _, p := range products {
			// an existing sku keeps its stored id
			var id uuid.UUID
			if err := tx.QueryRow(ctx, `
				INSERT INTO products (id, name, sku, price, available)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (sku) DO UPDATE
				SET name = EXCLUDED.name, price = EXCLUDED.price, available = EXCLUDED.available
				RETURNING id
			`, p.ID, p.Name, p.SKU, p.Price, *p.Available).Scan(&id); err != nil {
				return fmt.Errorf("upsert product %s: %w", p.SKU, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	mylog.Action("catalog_seeded").Info("Products upserted", "count", len(products))

	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("catalog seeded but cache not invalidated: %w", err)
	}
	defer rdb.Close()
	return dropCached(ctx, rdb, ids, mylog)
}

// dropCached removes the seeded products from the catalog cache so order
// services pick up the new price and availability at once.
func dropCached(ctx context.Context, rdb cache.Store, ids []uuid.UUID, mylog logger.Logger) error {
	if err := cache.Invalidate(ctx, rdb, ids...); err != nil {
		mylog.Action("cache_invalidation_failed").Error("Failed to drop cached products", err)
		return fmt.Errorf("catalog seeded but cache not invalidated: %w", err)
	}
	mylog.Action("cache_invalidated").Info("Cached products dropped", "count", len(ids))
	return nil
}

// LoadSeed reads and validates a seed file. Products without an id get a
// random one; availability defaults to true.
func LoadSeed(path string) ([]SeedProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Products))
	for i := range f.Products {
		p := &f.Products[i]
		if p.Name == "" || p.SKU == "" {
			return nil, fmt.Errorf("product %d: name and sku are required", i)
		}
		if seen[p.SKU] {
			return nil, fmt.Errorf("product %d: duplicate sku %s", i, p.SKU)
		}
		seen[p.SKU] = true
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %s: negative price", p.SKU)
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Available == nil {
			available := true
			p.Available = &available
		}
	}
	if len(f.Products) == 0 {
		return nil, errors.New("seed file has no products")
	}
	return f.Products, nil
}
