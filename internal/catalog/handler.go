package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow-go/internal/auth"
	"github.com/orderflow/orderflow-go/internal/httpx"
)

type Handler struct {
	Store  ProductStore
	Ledger Ledger
	Log    zerolog.Logger
}

type StockRequest struct {
	Units int `json:"units"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsActive    *bool           `json:"is_active"`
}

func (h *Handler) Register(r *chi.Mux, jwtSecret string) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(jwtSecret))
		pr.Post("/products/{id}/reserve", h.reserve)
		pr.Post("/products/{id}/release", h.release)

		pr.Group(func(ar chi.Router) {
			ar.Use(auth.Require(auth.PermManageCatalog))
			ar.Post("/products", h.createProduct)
		})
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ps)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, ErrProductNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" || req.Price.IsNegative() || req.Stock < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p := Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		IsActive:    active,
	}
	if err := h.Store.CreateProduct(ctx, &p); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.mutateStock(w, r, h.Ledger.Reserve)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.mutateStock(w, r, h.Ledger.Release)
}

func (h *Handler) mutateStock(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string, units int) error) {
	id := chi.URLParam(r, "id")
	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Units <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "units must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := op(ctx, id, req.Units)
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.WriteError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, ErrInsufficientStock):
		httpx.WriteError(w, http.StatusConflict, "insufficient stock")
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		h.Store.InvalidateProduct(ctx, id)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
