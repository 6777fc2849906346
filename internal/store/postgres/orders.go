package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

func getOrder(ctx context.Context, q querier, id domain.OrderID) (domain.Order, error) {
	var o domain.Order
	err := q.QueryRow(ctx,
		`SELECT id, total_price, status, created_at, updated_at FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Status.Valid() {
		return domain.Order{}, fmt.Errorf("order %d: unknown status %q", o.ID, o.Status)
	}

	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()

	o.Items = []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	return getOrder(ctx, s.pool, id)
}

func (s *Store) DeleteOrder(ctx context.Context, id domain.OrderID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.OrderNotFound(id)
	}
	return nil
}
