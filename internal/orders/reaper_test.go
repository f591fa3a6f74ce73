package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/orderflow-go/internal/catalogclient"
)

func TestReaperRunRequiresToken(t *testing.T) {
	r := &Reaper{Journal: newFakeJournal(), Catalog: newFakeCatalog(), TTL: time.Minute, Log: zerolog.Nop()}
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("Run must refuse to start without a service token; unauthenticated releases would 401 forever")
	}
}

func TestReaperSweepReleasesOrphans(t *testing.T) {
	cat := newFakeCatalog(
		catalogclient.ProductInfo{ID: "P1", Name: "Keyboard", Stock: 3, IsActive: true},
		catalogclient.ProductInfo{ID: "P2", Name: "Mouse", Stock: 0, IsActive: true},
	)
	jr := newFakeJournal()
	jr.stale = []JournalEntry{
		{ID: 1, SagaID: "saga-1", ProductID: "P1", Quantity: 2},
		{ID: 2, SagaID: "saga-2", ProductID: "P2", Quantity: 1},
	}

	r := &Reaper{Journal: jr, Catalog: cat, Token: "svc-token", TTL: time.Minute, Log: zerolog.Nop()}
	if err := r.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if got := cat.stock("P1"); got != 5 {
		t.Errorf("P1 stock = %d, want 5", got)
	}
	if got := cat.stock("P2"); got != 1 {
		t.Errorf("P2 stock = %d, want 1", got)
	}
	if len(jr.released) != 2 {
		t.Errorf("released entries = %v, want both marked", jr.released)
	}
}

func TestReaperSweepSkipsDeletedProducts(t *testing.T) {
	// a reservation against a product that no longer exists is settled, not
	// retried forever
	cat := newFakeCatalog()
	jr := newFakeJournal()
	jr.stale = []JournalEntry{{ID: 7, SagaID: "saga-7", ProductID: "gone", Quantity: 1}}

	r := &Reaper{Journal: jr, Catalog: cat, Token: "svc-token", TTL: time.Minute, Log: zerolog.Nop()}
	if err := r.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(jr.released) != 1 || jr.released[0] != 7 {
		t.Errorf("released = %v, want entry 7 closed", jr.released)
	}
}

func TestReaperSweepKeepsEntryOnReleaseFailure(t *testing.T) {
	cat := newFakeCatalog(catalogclient.ProductInfo{ID: "P1", Name: "Keyboard", Stock: 3, IsActive: true})
	cat.releaseErr["P1"] = fmt.Errorf("%w: broker down", catalogclient.ErrUnavailable)
	jr := newFakeJournal()
	jr.stale = []JournalEntry{{ID: 9, SagaID: "saga-9", ProductID: "P1", Quantity: 2}}

	r := &Reaper{Journal: jr, Catalog: cat, Token: "svc-token", TTL: time.Minute, Log: zerolog.Nop()}
	if err := r.sweep(context.Background()); err != nil {
		t.Fatalf("sweep must not fail on a release error: %v", err)
	}
	if len(jr.released) != 0 {
		t.Errorf("entry must stay RESERVED for the next sweep, released = %v", jr.released)
	}
}
