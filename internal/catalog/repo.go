package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orderflow/orderflow-go/internal/redisx"
)

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	InvalidateProduct(ctx context.Context, id string)
}

// Repo reads products through a short-TTL Redis cache; stock mutations go
// through the Ledger, which is why Invalidate exists.
type Repo struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

func (r *Repo) GetProduct(ctx context.Context, id string) (Product, error) {
	key := fmt.Sprintf(redisx.KeyProduct, id)
	if r.Redis != nil {
		if s, err := r.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var p Product
			if json.Unmarshal([]byte(s), &p) == nil {
				return p, nil
			}
		}
	}

	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, description, price, stock, is_active, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}

	if r.Redis != nil {
		if b, err := json.Marshal(p); err == nil {
			_ = r.Redis.Set(ctx, key, b, redisx.TTLProductCache).Err()
		}
	}
	return p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, price, stock, is_active, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, description, price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.IsActive).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) InvalidateProduct(ctx context.Context, id string) {
	if r.Redis == nil {
		return
	}
	_ = r.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProduct, id)).Err()
}
