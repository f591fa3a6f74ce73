package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow-go/internal/auth"
	"github.com/orderflow/orderflow-go/internal/catalogclient"
	"github.com/orderflow/orderflow-go/internal/httpx"
)

type Handler struct {
	Svc *Service
}

type OrderItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          Status              `json:"status"`
	Total           decimal.Decimal     `json:"total"`
	ShippingAddress string              `json:"shipping_address"`
	Notes           string              `json:"notes"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []OrderItemResponse `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Register(r *chi.Mux, jwtSecret string) {
	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(jwtSecret))

		pr.Post("/orders", h.createOrder)
		pr.Get("/orders", h.listOrders)
		pr.Get("/orders/{id}", h.getOrder)
		pr.Post("/orders/{id}/cancel", h.cancelOrder)

		pr.Group(func(ar chi.Router) {
			ar.Use(auth.Require(auth.PermManageOrders))
			ar.Get("/admin/orders", h.adminList)
			ar.Get("/admin/orders/{id}", h.adminGet)
			ar.Put("/admin/orders/{id}/status", h.adminUpdateStatus)
		})
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var in CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(in.Items) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, ErrEmptyOrder.Error())
		return
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "each item needs a product_id and a positive quantity")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	o, err := h.Svc.CreateOrder(ctx, id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	out, err := h.Svc.ListOwn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	o, err := h.Svc.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	o, err := h.Svc.Cancel(ctx, id, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &st
	}
	out, err := h.Svc.AdminList(r.Context(), status, r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) adminGet(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	next, err := ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

// writeServiceError maps the error taxonomy onto HTTP so clients can tell
// "not found" from "not yours" from "wrong status".
func writeServiceError(w http.ResponseWriter, err error) {
	var te *TransitionError
	var nc *NotCancellableError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAccessDenied):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidQuantity),
		errors.As(err, &te), errors.As(err, &nc):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalogclient.ErrProductNotFound),
		errors.Is(err, catalogclient.ErrProductInactive):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalogclient.ErrInsufficientStock),
		errors.Is(err, ErrStaleOrder):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalogclient.ErrUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func toResponse(o *Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal(),
		})
	}
	return OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Total:           o.Total,
		ShippingAddress: o.ShippingAddress,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           items,
	}
}
