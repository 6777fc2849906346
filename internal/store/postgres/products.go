package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

const productColumns = `id, name, description, price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getProduct(ctx context.Context, q querier, id domain.ProductID, lock bool) (domain.Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products(name, description, price, stock) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.Price, p.Stock,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	return getProduct(ctx, s.pool, id, false)
}

func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, id domain.ProductID, mutate func(p *domain.Product) error) (domain.Product, error) {
	var out domain.Product
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		p, err := getProduct(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`UPDATE products SET name=$2, description=$3, price=$4, stock=$5, updated_at=now()
			WHERE id=$1 RETURNING updated_at`,
			id, p.Name, p.Description, p.Price, p.Stock,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return err
		}
		p.ID = id
		out = p
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ProductNotFound(id)
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, id domain.ProductID, amount int) (domain.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`UPDATE products SET stock=stock-$2, updated_at=now() WHERE id=$1 AND stock >= $2
		RETURNING `+productColumns,
		id, amount,
	))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, err
	}

	cur, err := getProduct(ctx, s.pool, id, false)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{}, &domain.InsufficientStockError{ProductID: id, ProductName: cur.Name, Requested: amount, Available: cur.Stock}
}
