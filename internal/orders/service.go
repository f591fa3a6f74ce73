package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow-go/internal/auth"
	"github.com/orderflow/orderflow-go/internal/catalogclient"
	"github.com/orderflow/orderflow-go/internal/events"
	"github.com/orderflow/orderflow-go/internal/metrics"
)

// Repository is what the service needs from persistence. Create commits the
// saga's journal rows in the same transaction as the order.
type Repository interface {
	Create(ctx context.Context, o *Order, sagaID string, evt events.Envelope, topic string) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]OrderSummary, error)
	List(ctx context.Context, status *Status, userID string) ([]OrderSummary, error)
	UpdateStatus(ctx context.Context, o *Order) error
	UpdateStatusWithEvent(ctx context.Context, o *Order, evt events.Envelope, topic string) error
}

// Catalog is the outbound port to the catalog service.
type Catalog interface {
	FetchProduct(ctx context.Context, token, productID string) (catalogclient.ProductInfo, error)
	ReserveStock(ctx context.Context, token, productID string, units int) error
	ReleaseStock(ctx context.Context, token, productID string, units int) error
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	ShippingAddress string        `json:"shipping_address"`
	Notes           string        `json:"notes"`
	Items           []ItemRequest `json:"items"`
}

type Service struct {
	Repo    Repository
	Journal Journal
	Catalog Catalog
	Metrics *metrics.OrderMetrics
	Log     zerolog.Logger
	// Producer names this service in event envelopes.
	Producer string
}

// reservation is the in-memory ledger entry for one saga run; used only for
// compensation, never persisted (the journal is the durable twin).
type reservation struct {
	productID string
	qty       int
}

// CreateOrder runs the order-creation saga: items are validated and reserved
// one at a time in request order; the first failure releases everything
// reserved so far and aborts. No partial order is ever persisted.
func (s *Service) CreateOrder(ctx context.Context, id auth.Identity, in CreateOrderInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrInvalidQuantity)
		}
	}

	sagaID := uuid.NewString()
	var reserved []reservation
	items := make([]OrderItem, 0, len(in.Items))

	for _, req := range in.Items {
		p, err := s.Catalog.FetchProduct(ctx, id.Token, req.ProductID)
		if err != nil {
			s.releaseReserved(ctx, id.Token, sagaID, reserved)
			s.countOrder("failed")
			return nil, err
		}
		if !p.IsActive {
			s.releaseReserved(ctx, id.Token, sagaID, reserved)
			s.countOrder("failed")
			return nil, fmt.Errorf("product %s: %w", p.Name, catalogclient.ErrProductInactive)
		}

		if err := s.Catalog.ReserveStock(ctx, id.Token, req.ProductID, req.Quantity); err != nil {
			s.releaseReserved(ctx, id.Token, sagaID, reserved)
			s.countReservation("rejected")
			s.countOrder("failed")
			if errors.Is(err, catalogclient.ErrInsufficientStock) {
				return nil, fmt.Errorf("product %s: %w", p.Name, catalogclient.ErrInsufficientStock)
			}
			return nil, err
		}
		s.countReservation("granted")

		reserved = append(reserved, reservation{productID: req.ProductID, qty: req.Quantity})
		if err := s.Journal.Record(ctx, sagaID, req.ProductID, req.Quantity); err != nil {
			// journal is a backstop; the in-memory ledger still compensates
			s.Log.Error().Err(err).Str("saga_id", sagaID).Str("product_id", req.ProductID).
				Msg("failed to journal reservation")
		}

		items = append(items, OrderItem{
			ID:          uuid.NewString(),
			ProductID:   req.ProductID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    req.Quantity,
		})
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}

	now := time.Now().UTC()
	order := &Order{
		ID:              uuid.NewString(),
		UserID:          id.UserID,
		Status:          StatusPending,
		Total:           total,
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Notes,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	evt, err := s.lifecycleEvent(events.EventOrderCreated, order)
	if err != nil {
		s.releaseReserved(ctx, id.Token, sagaID, reserved)
		s.countOrder("failed")
		return nil, ErrPersistence
	}
	if err := s.Repo.Create(ctx, order, sagaID, evt, events.TopicOrderCreated); err != nil {
		// reservations are orphaned now, release them before surfacing
		s.Log.Error().Err(err).Str("order_id", order.ID).Msg("failed to save order, releasing reserved stock")
		s.releaseReserved(ctx, id.Token, sagaID, reserved)
		s.countOrder("failed")
		return nil, ErrPersistence
	}

	s.countOrder("created")
	s.Log.Info().Str("order_id", order.ID).Str("user_id", id.UserID).
		Str("total", total.String()).Msg("order created")
	return order, nil
}

// releaseReserved compensates every reservation taken so far. Individual
// release failures are logged and swallowed: they must never mask the error
// that triggered the rollback, and the loop visits every entry regardless.
// Entries whose release fails stay RESERVED in the journal for the reaper.
func (s *Service) releaseReserved(ctx context.Context, token, sagaID string, reserved []reservation) {
	for _, r := range reserved {
		if err := s.Catalog.ReleaseStock(ctx, token, r.productID, r.qty); err != nil {
			s.Log.Error().Err(err).Str("product_id", r.productID).Int("units", r.qty).
				Msg("failed to release reserved stock")
			continue
		}
		s.countCompensation()
		s.Log.Info().Str("product_id", r.productID).Int("units", r.qty).Msg("released reserved stock")
		if err := s.Journal.MarkReleased(ctx, sagaID, r.productID); err != nil {
			s.Log.Error().Err(err).Str("saga_id", sagaID).Str("product_id", r.productID).
				Msg("failed to mark reservation released")
		}
	}
}

// Cancel reverses a Pending or Confirmed order: best-effort stock release per
// item, status flip, cancellation event.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, orderID string) (*Order, error) {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != id.UserID {
		return nil, ErrAccessDenied
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return nil, &NotCancellableError{Current: o.Status}
	}

	for _, it := range o.Items {
		if err := s.Catalog.ReleaseStock(ctx, id.Token, it.ProductID, it.Quantity); err != nil {
			s.Log.Error().Err(err).Str("order_id", orderID).Str("product_id", it.ProductID).
				Msg("failed to release stock on cancellation")
		}
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()

	evt, err := s.lifecycleEvent(events.EventOrderCancelled, o)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateStatusWithEvent(ctx, o, evt, events.TopicOrderCancelled); err != nil {
		return nil, err
	}
	if err := s.Journal.ReleaseForOrder(ctx, orderID); err != nil {
		s.Log.Error().Err(err).Str("order_id", orderID).Msg("failed to close journal on cancellation")
	}

	s.Log.Info().Str("order_id", orderID).Str("user_id", id.UserID).Msg("order cancelled")
	return o, nil
}

// UpdateStatus applies an admin transition after checking the state machine.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, &TransitionError{From: o.Status, To: next}
	}

	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, o); err != nil {
		return nil, err
	}

	s.Log.Info().Str("order_id", orderID).Str("status", string(next)).Msg("order status updated")
	return o, nil
}

// Get returns an order scoped to its owner.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID string) (*Order, error) {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != id.UserID {
		return nil, ErrAccessDenied
	}
	return o, nil
}

func (s *Service) ListOwn(ctx context.Context, id auth.Identity) ([]OrderSummary, error) {
	return s.Repo.ListByUser(ctx, id.UserID)
}

func (s *Service) AdminGet(ctx context.Context, orderID string) (*Order, error) {
	return s.Repo.GetByID(ctx, orderID)
}

func (s *Service) AdminList(ctx context.Context, status *Status, userID string) ([]OrderSummary, error) {
	return s.Repo.List(ctx, status, userID)
}

func (s *Service) lifecycleEvent(eventType string, o *Order) (events.Envelope, error) {
	items := make([]events.OrderItemEvent, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItemEvent{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
		})
	}
	switch eventType {
	case events.EventOrderCreated:
		return events.NewEnvelope(eventType, s.Producer, o.ID,
			events.OrderCreatedPayload{OrderID: o.ID, UserID: o.UserID, Items: items})
	default:
		return events.NewEnvelope(eventType, s.Producer, o.ID,
			events.OrderCancelledPayload{OrderID: o.ID, UserID: o.UserID, Items: items})
	}
}

func (s *Service) countOrder(outcome string) {
	if s.Metrics != nil {
		s.Metrics.OrdersCreated.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countReservation(outcome string) {
	if s.Metrics != nil {
		s.Metrics.Reservations.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countCompensation() {
	if s.Metrics != nil {
		s.Metrics.Compensations.Inc()
	}
}
