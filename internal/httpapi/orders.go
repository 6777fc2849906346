package httpapi

import (
	"fmt"
	"net/http"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
	ordertx "github.com/nazeru/shop-orders-go/internal/order/tx"
	"github.com/nazeru/shop-orders-go/pkg/idempotency"
)

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	key := idempotency.Key(r)
	if !idempotency.Valid(key) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be at most %d characters", idempotency.Header, idempotency.MaxKeyLength), "")
		return
	}

	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	items := make([]ordertx.ItemRequest, 0, len(req.Items))
	for i, it := range req.Items {
		id := it.ProductID
		if id == nil {
			id = it.Product
		}
		if id == nil {
			writeError(w, http.StatusBadRequest, "product_id is required", fmt.Sprintf("items[%d].product_id", i))
			return
		}
		items = append(items, ordertx.ItemRequest{ProductID: domain.ProductID(*id), Quantity: it.Quantity})
	}

	o, replayed, err := s.Engine.CreateOrderIdempotent(r.Context(), key, items)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toOrderResponse(o))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := s.Orders.GetOrder(r.Context(), domain.OrderID(id))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Orders.DeleteOrder(r.Context(), domain.OrderID(id)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
