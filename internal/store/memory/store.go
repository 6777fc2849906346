// Package memory is a process-local store used by tests and by the service
// when no database is configured. All writes go through one mutex, which makes
// every unit of work serializable.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
	ordertx "github.com/nazeru/shop-orders-go/internal/order/tx"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/outbox"
)

type Store struct {
	mu sync.RWMutex

	products map[domain.ProductID]domain.Product
	orders   map[domain.OrderID]domain.Order
	idem     map[string]domain.OrderID
	outbox   []outbox.Record

	nextProductID domain.ProductID
	nextOrderID   domain.OrderID
	nextItemID    domain.OrderItemID
	nextOutboxID  int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		products: make(map[domain.ProductID]domain.Product),
		orders:   make(map[domain.OrderID]domain.Order),
		idem:     make(map[string]domain.OrderID),

		nextProductID: 1,
		nextOrderID:   1,
		nextItemID:    1,
		nextOutboxID:  1,

		now: func() time.Time { return time.Now().UTC() },
	}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.ID = s.nextProductID
	p.CreatedAt, p.UpdatedAt = now, now
	s.nextProductID++
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id domain.ProductID) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, offset, limit int) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.ProductID, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	total := len(ids)
	offset = max(offset, 0)
	if offset >= total {
		return []domain.Product{}, total, nil
	}
	end := offset + min(limit, total-offset)
	res := make([]domain.Product, 0, end-offset)
	for _, id := range ids[offset:end] {
		res = append(res, s.products[id])
	}
	return res, total, nil
}

func (s *Store) UpdateProduct(_ context.Context, id domain.ProductID, mutate func(p *domain.Product) error) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	if err := mutate(&p); err != nil {
		return domain.Product{}, err
	}
	p.ID = id
	p.CreatedAt = s.products[id].CreatedAt
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id domain.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.ProductNotFound(id)
	}
	delete(s.products, id)
	for oid, o := range s.orders {
		kept := slices.DeleteFunc(slices.Clone(o.Items), func(it domain.OrderItem) bool { return it.ProductID == id })
		if len(kept) != len(o.Items) {
			o.Items = kept
			s.orders[oid] = o
		}
	}
	return nil
}

func (s *Store) DecrementStock(_ context.Context, id domain.ProductID, amount int) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	if p.Stock < amount {
		return domain.Product{}, &domain.InsufficientStockError{ProductID: id, ProductName: p.Name, Requested: amount, Available: p.Stock}
	}
	p.Stock -= amount
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *Store) GetOrder(_ context.Context, id domain.OrderID) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	return cloneOrder(o), nil
}

func (s *Store) DeleteOrder(_ context.Context, id domain.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return domain.OrderNotFound(id)
	}
	delete(s.orders, id)
	for k, oid := range s.idem {
		if oid == id {
			delete(s.idem, k)
		}
	}
	return nil
}

// OrderCount and ItemCount report how many rows the order tables would hold.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.orders {
		n += len(o.Items)
	}
	return n
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) IsRetryable(error) bool { return false }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow ordertx.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uow := &unitOfWork{
		s:        s,
		products: make(map[domain.ProductID]domain.Product),
		idem:     make(map[string]domain.OrderID),
		now:      s.now(),

		nextOrderID: s.nextOrderID,
		nextItemID:  s.nextItemID,
	}
	if err := fn(ctx, uow); err != nil {
		return err
	}
	uow.apply()
	return nil
}

// unitOfWork stages every write; apply copies them into the store. Dropping
// it without apply is the rollback.
type unitOfWork struct {
	s   *Store
	now time.Time

	products map[domain.ProductID]domain.Product
	orders   []domain.Order
	idem     map[string]domain.OrderID
	events   []outbox.Record

	nextOrderID domain.OrderID
	nextItemID  domain.OrderItemID
}

func (u *unitOfWork) product(id domain.ProductID) (domain.Product, bool) {
	if p, ok := u.products[id]; ok {
		return p, true
	}
	p, ok := u.s.products[id]
	return p, ok
}

func (u *unitOfWork) LockProducts(_ context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error) {
	out := make(map[domain.ProductID]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := u.product(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (u *unitOfWork) InsertOrder(_ context.Context, o *domain.Order) error {
	o.ID = u.nextOrderID
	u.nextOrderID++
	o.CreatedAt, o.UpdatedAt = u.now, u.now
	for i := range o.Items {
		o.Items[i].ID = u.nextItemID
		o.Items[i].OrderID = o.ID
		u.nextItemID++
	}
	u.orders = append(u.orders, cloneOrder(*o))
	return nil
}

func (u *unitOfWork) DecrementStock(_ context.Context, id domain.ProductID, qty int) error {
	p, ok := u.product(id)
	if !ok {
		return domain.ProductNotFound(id)
	}
	if p.Stock < qty {
		return &domain.InsufficientStockError{ProductID: id, ProductName: p.Name, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	p.UpdatedAt = u.now
	u.products[id] = p
	return nil
}

func (u *unitOfWork) OrderByIdempotencyKey(_ context.Context, key string) (domain.Order, bool, error) {
	id, ok := u.idem[key]
	if !ok {
		id, ok = u.s.idem[key]
	}
	if !ok {
		return domain.Order{}, false, nil
	}
	for _, o := range u.orders {
		if o.ID == id {
			return cloneOrder(o), true, nil
		}
	}
	o, ok := u.s.orders[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	return cloneOrder(o), true, nil
}

func (u *unitOfWork) SaveIdempotencyKey(_ context.Context, key string, id domain.OrderID) error {
	if _, ok := u.s.idem[key]; ok {
		return fmt.Errorf("idempotency key %q already used", key)
	}
	u.idem[key] = id
	return nil
}

func (u *unitOfWork) AppendEvent(_ context.Context, topic string, evt contracts.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	u.events = append(u.events, outbox.Record{
		EventID:   evt.EventID,
		Topic:     topic,
		Key:       evt.OrderID,
		Payload:   data,
		CreatedAt: u.now,
	})
	return nil
}

func (u *unitOfWork) apply() {
	s := u.s
	for id, p := range u.products {
		s.products[id] = p
	}
	for _, o := range u.orders {
		s.orders[o.ID] = o
	}
	for k, id := range u.idem {
		s.idem[k] = id
	}
	for _, rec := range u.events {
		rec.ID = s.nextOutboxID
		s.nextOutboxID++
		s.outbox = append(s.outbox, rec)
	}
	s.nextOrderID = u.nextOrderID
	s.nextItemID = u.nextItemID
}

func (s *Store) FetchPending(_ context.Context, limit int) ([]outbox.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbox.Record
	for _, rec := range s.outbox {
		if rec.SentAt == nil {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			now := s.now()
			s.outbox[i].SentAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox record %d not found", id)
}
