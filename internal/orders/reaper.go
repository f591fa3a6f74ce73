package orders

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/orderflow-go/internal/catalogclient"
)

// Reaper releases reservations abandoned by a crash between the remote stock
// decrement and order persistence. Inline compensation is the fast path; the
// reaper turns it from best-effort into eventually-guaranteed.
type Reaper struct {
	Journal  Journal
	Catalog  Catalog
	Token    string // service credential, there is no user request behind these releases
	TTL      time.Duration
	Interval time.Duration
	Log      zerolog.Logger
}

func (r *Reaper) Run(ctx context.Context) error {
	// without a credential every release would 401 and rows would stay
	// RESERVED forever; refuse to start instead of failing silently
	if r.Token == "" {
		return errors.New("reaper needs a service token to call the catalog")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.Log.Error().Err(err).Msg("reservation sweep failed")
			}
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.TTL)
	entries, err := r.Journal.Stale(ctx, cutoff, 100)
	if err != nil {
		return err
	}
	for _, e := range entries {
		err := r.Catalog.ReleaseStock(ctx, r.Token, e.ProductID, e.Quantity)
		if err != nil && !errors.Is(err, catalogclient.ErrProductNotFound) {
			// keep the row RESERVED, retry next sweep
			r.Log.Warn().Err(err).Str("saga_id", e.SagaID).Str("product_id", e.ProductID).
				Msg("orphaned reservation release failed")
			continue
		}
		if err := r.Journal.MarkEntryReleased(ctx, e.ID); err != nil {
			return err
		}
		r.Log.Info().Str("saga_id", e.SagaID).Str("product_id", e.ProductID).
			Int("units", e.Quantity).Msg("released orphaned reservation")
	}
	return nil
}
