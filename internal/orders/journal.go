package orders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalEntry is one remote stock decrement taken by a saga run. Entries are
// the durable backstop behind the in-memory reservation ledger: a crash
// between reservation and order persistence leaves RESERVED rows with no
// order, which the reaper eventually releases. Flipping a saga's rows to
// COMMITTED happens inside the order-create transaction (PGRepo.Create), so a
// persisted order can never be left with RESERVED rows for the reaper to
// double-release.
type JournalEntry struct {
	ID        int64
	SagaID    string
	ProductID string
	Quantity  int
}

const (
	reservationReserved  = "RESERVED"
	reservationCommitted = "COMMITTED"
	reservationReleased  = "RELEASED"
)

type Journal interface {
	// Record journals a reservation right after the remote decrement
	// succeeded.
	Record(ctx context.Context, sagaID, productID string, qty int) error
	// MarkReleased closes one reservation after its compensating release.
	MarkReleased(ctx context.Context, sagaID, productID string) error
	// ReleaseForOrder closes all reservations of a cancelled order.
	ReleaseForOrder(ctx context.Context, orderID string) error
	// Stale returns RESERVED entries older than cutoff that never got an
	// order row.
	Stale(ctx context.Context, cutoff time.Time, limit int) ([]JournalEntry, error)
	MarkEntryReleased(ctx context.Context, id int64) error
}

type PGJournal struct {
	DB *pgxpool.Pool
}

func (j *PGJournal) Record(ctx context.Context, sagaID, productID string, qty int) error {
	_, err := j.DB.Exec(ctx, `
		INSERT INTO order_reservations(saga_id, product_id, qty, status)
		VALUES ($1, $2, $3, $4)`, sagaID, productID, qty, reservationReserved)
	return err
}

func (j *PGJournal) MarkReleased(ctx context.Context, sagaID, productID string) error {
	_, err := j.DB.Exec(ctx, `
		UPDATE order_reservations SET status = $3, updated_at = now()
		WHERE saga_id = $1 AND product_id = $2 AND status = $4`,
		sagaID, productID, reservationReleased, reservationReserved)
	return err
}

func (j *PGJournal) ReleaseForOrder(ctx context.Context, orderID string) error {
	_, err := j.DB.Exec(ctx, `
		UPDATE order_reservations SET status = $2, updated_at = now()
		WHERE order_id = $1 AND status = $3`,
		orderID, reservationReleased, reservationCommitted)
	return err
}

func (j *PGJournal) Stale(ctx context.Context, cutoff time.Time, limit int) ([]JournalEntry, error) {
	rows, err := j.DB.Query(ctx, `
		SELECT id, saga_id, product_id, qty FROM order_reservations
		WHERE status = $1 AND order_id IS NULL AND created_at < $2
		ORDER BY id LIMIT $3`, reservationReserved, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.SagaID, &e.ProductID, &e.Quantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *PGJournal) MarkEntryReleased(ctx context.Context, id int64) error {
	_, err := j.DB.Exec(ctx, `
		UPDATE order_reservations SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`, id, reservationReleased, reservationReserved)
	return err
}
