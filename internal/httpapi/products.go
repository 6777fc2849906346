package httpapi

import (
	"net/http"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size")
	if !ok {
		return
	}
	if r.URL.Query().Has("page") && page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1", "page")
		return
	}
	if r.URL.Query().Has("page_size") && size < 1 {
		writeError(w, http.StatusBadRequest, "page_size must be >= 1", "page_size")
		return
	}

	res, err := s.Catalog.List(r.Context(), catalog.Page{Number: page, Size: size})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := productPageResponse{
		Count:    res.Count,
		Page:     res.Page,
		PageSize: res.PageSize,
		Results:  make([]productResponse, 0, len(res.Results)),
	}
	for _, p := range res.Results {
		out.Results = append(out.Results, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stock == nil {
		writeError(w, http.StatusBadRequest, "stock is required", "stock")
		return
	}

	p, err := s.Catalog.Create(r.Context(), catalog.NewProduct{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       *req.Stock,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.Catalog.Get(r.Context(), domain.ProductID(id))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.Catalog.Update(r.Context(), domain.ProductID(id), req.patch())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Catalog.Delete(r.Context(), domain.ProductID(id)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
