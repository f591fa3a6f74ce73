package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Ledger holds the per-product stock count. Reserve and Release are each one
// atomic statement at the database, so arbitrary concurrent callers cannot
// oversubscribe stock without any application-level locking.
type Ledger interface {
	Reserve(ctx context.Context, productID string, units int) error
	Release(ctx context.Context, productID string, units int) error
}

type PGLedger struct {
	DB  *pgxpool.Pool
	Log zerolog.Logger
}

// Reserve decrements stock only if the predicate stock >= units holds at the
// moment of the update. Two concurrent reservations for the last unit can
// never both succeed: the database serializes the conditional write.
func (l *PGLedger) Reserve(ctx context.Context, productID string, units int) error {
	ct, err := l.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, units)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// disambiguate for the caller: missing row vs concurrent depletion
		var exists bool
		if err := l.DB.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			l.Log.Warn().Str("product_id", productID).Msg("reserve on unknown product")
			return ErrProductNotFound
		}
		l.Log.Warn().Str("product_id", productID).Int("units", units).Msg("insufficient stock")
		return ErrInsufficientStock
	}
	l.Log.Info().Str("product_id", productID).Int("units", units).Msg("stock reserved")
	return nil
}

// Release increments stock unconditionally; reservation and release are a
// symmetric counter, there is no upper bound.
func (l *PGLedger) Release(ctx context.Context, productID string, units int) error {
	ct, err := l.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, units)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		l.Log.Warn().Str("product_id", productID).Msg("release on unknown product")
		return ErrProductNotFound
	}
	l.Log.Info().Str("product_id", productID).Int("units", units).Msg("stock released")
	return nil
}
