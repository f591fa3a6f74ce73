package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow-go/internal/events"
	"github.com/orderflow/orderflow-go/internal/outbox"
)

// PGRepo persists orders on pgxpool. Lifecycle events go into the outbox in
// the same transaction as the state change they announce.
type PGRepo struct {
	DB *pgxpool.Pool
}

// Create persists the order, its items, the outbox event, and the journal
// commit for sagaID in one transaction. Committing the journal here closes
// the crash window where a persisted order still had RESERVED rows that the
// reaper would release out from under it.
func (r *PGRepo) Create(ctx context.Context, o *Order, sagaID string, evt events.Envelope, topic string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total, shipping_address, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.Status, o.Total, o.ShippingAddress, o.Notes, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for pos, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, unit_price, qty, pos)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, pos)
		if err != nil {
			return err
		}
	}

	if err := outbox.Insert(ctx, tx, evt.EventID, topic, o.ID, evt); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE order_reservations SET status = $3, order_id = $2, updated_at = now()
		WHERE saga_id = $1 AND status = $4`,
		sagaID, o.ID, reservationCommitted, reservationReserved)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, status, total, shipping_address, notes, version, created_at, updated_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.ShippingAddress, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, qty
		FROM order_items WHERE order_id = $1 ORDER BY pos`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]OrderSummary, error) {
	return r.list(ctx, `
		SELECT o.id, o.status, o.total, count(i.id), o.created_at
		FROM orders o LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = $1
		GROUP BY o.id ORDER BY o.created_at DESC`, userID)
}

// List is the admin view; status and userID are optional filters.
func (r *PGRepo) List(ctx context.Context, status *Status, userID string) ([]OrderSummary, error) {
	q := `
		SELECT o.id, o.status, o.total, count(i.id), o.created_at
		FROM orders o LEFT JOIN order_items i ON i.order_id = o.id`
	var args []any
	where := ""
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(" o.status = $%d", len(args))
	}
	if userID != "" {
		if where != "" {
			where += " AND"
		}
		args = append(args, userID)
		where += fmt.Sprintf(" o.user_id = $%d", len(args))
	}
	if where != "" {
		q += " WHERE" + where
	}
	q += " GROUP BY o.id ORDER BY o.created_at DESC"
	return r.list(ctx, q, args...)
}

func (r *PGRepo) list(ctx context.Context, q string, args ...any) ([]OrderSummary, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(&s.ID, &s.Status, &s.Total, &s.ItemCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-swap on the version counter; a stale writer
// gets ErrStaleOrder instead of silently winning.
func (r *PGRepo) UpdateStatus(ctx context.Context, o *Order) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $4`,
		o.ID, o.Status, o.UpdatedAt, o.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, o.ID)
	}
	o.Version++
	return nil
}

// UpdateStatusWithEvent is UpdateStatus plus an outbox row, in one tx.
func (r *PGRepo) UpdateStatusWithEvent(ctx context.Context, o *Order, evt events.Envelope, topic string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $4`,
		o.ID, o.Status, o.UpdatedAt, o.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, o.ID)
	}
	if err := outbox.Insert(ctx, tx, evt.EventID, topic, o.ID, evt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *PGRepo) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleOrder
}
