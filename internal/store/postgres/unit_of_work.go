package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/outbox"
	"github.com/nazeru/shop-orders-go/pkg/tx/pgerr"
)

type unitOfWork struct {
	tx pgx.Tx
}

// LockProducts takes row locks in ascending id order so that two orders over
// the same products cannot deadlock on lock acquisition.
func (u *unitOfWork) LockProducts(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error) {
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, int64(id))
	}

	rows, err := u.tx.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ProductID]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (u *unitOfWork) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := u.tx.QueryRow(ctx,
		`INSERT INTO orders(total_price, status) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		o.TotalPrice, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := u.tx.QueryRow(ctx,
			`INSERT INTO order_items(order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4) RETURNING id`,
			o.ID, it.ProductID, it.Quantity, it.Price,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) DecrementStock(ctx context.Context, id domain.ProductID, qty int) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE products SET stock=stock-$2, updated_at=now() WHERE id=$1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		cur, err := getProduct(ctx, u.tx, id, false)
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{ProductID: id, ProductName: cur.Name, Requested: qty, Available: cur.Stock}
	}
	return nil
}

func (u *unitOfWork) OrderByIdempotencyKey(ctx context.Context, key string) (domain.Order, bool, error) {
	var id domain.OrderID
	err := u.tx.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE idempotency_key=$1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	o, err := getOrder(ctx, u.tx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func (u *unitOfWork) SaveIdempotencyKey(ctx context.Context, key string, id domain.OrderID) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO order_idempotency(idempotency_key, order_id) VALUES ($1, $2)`, key, id)
	if pgerr.IsUniqueViolation(err) {
		return errIdempotencyRace
	}
	return err
}

func (u *unitOfWork) AppendEvent(ctx context.Context, topic string, evt contracts.Event) error {
	return outbox.Insert(ctx, u.tx, evt.EventID, topic, evt.OrderID, evt)
}
