package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow-go/internal/auth"
)

const testSecret = "test-secret"

type memStore struct {
	mu       sync.Mutex
	products map[string]Product
}

func (s *memStore) GetProduct(ctx context.Context, id string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (s *memStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) CreateProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("p-%d", len(s.products)+1)
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	return nil
}

func (s *memStore) InvalidateProduct(ctx context.Context, id string) {}

// memLedger applies the same conditional-decrement rule as the SQL ledger.
type memLedger struct {
	store *memStore
}

func (l *memLedger) Reserve(ctx context.Context, id string, units int) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	p, ok := l.store.products[id]
	if !ok {
		return ErrProductNotFound
	}
	if p.Stock < units {
		return ErrInsufficientStock
	}
	p.Stock -= units
	l.store.products[id] = p
	return nil
}

func (l *memLedger) Release(ctx context.Context, id string, units int) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	p, ok := l.store.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock += units
	l.store.products[id] = p
	return nil
}

func newTestServer(t *testing.T, products ...Product) (*httptest.Server, *memStore) {
	t.Helper()
	store := &memStore{products: map[string]Product{}}
	for _, p := range products {
		store.products[p.ID] = p
	}
	r := chi.NewRouter()
	h := &Handler{Store: store, Ledger: &memLedger{store: store}, Log: zerolog.Nop()}
	h.Register(r, testSecret)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, "user-1", role, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func postStock(t *testing.T, srv *httptest.Server, tok, path string, units int) *http.Response {
	t.Helper()
	body, _ := json.Marshal(StockRequest{Units: units})
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetProduct(t *testing.T) {
	srv, _ := newTestServer(t, Product{ID: "p-1", Name: "Keyboard", Price: decimal.NewFromInt(10), Stock: 5, IsActive: true})

	resp, err := srv.Client().Get(srv.URL + "/products/p-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Keyboard" || p.Stock != 5 {
		t.Errorf("product = %+v", p)
	}

	resp2, err := srv.Client().Get(srv.URL + "/products/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing product status = %d, want 404", resp2.StatusCode)
	}
}

func TestReserveEndpoint(t *testing.T) {
	srv, store := newTestServer(t, Product{ID: "p-1", Name: "Keyboard", Stock: 5, IsActive: true})
	tok := token(t, auth.RoleCustomer)

	cases := []struct {
		name  string
		path  string
		units int
		want  int
	}{
		{"ok", "/products/p-1/reserve", 2, http.StatusOK},
		{"insufficient", "/products/p-1/reserve", 100, http.StatusConflict},
		{"missing product", "/products/nope/reserve", 1, http.StatusNotFound},
		{"zero units", "/products/p-1/reserve", 0, http.StatusBadRequest},
		{"negative units", "/products/p-1/reserve", -3, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postStock(t, srv, tok, tc.path, tc.units)
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	p, _ := store.GetProduct(context.Background(), "p-1")
	if p.Stock != 3 {
		t.Errorf("stock = %d, want 3 (only the successful reserve applied)", p.Stock)
	}
}

func TestReleaseEndpoint(t *testing.T) {
	srv, store := newTestServer(t, Product{ID: "p-1", Name: "Keyboard", Stock: 3, IsActive: true})
	tok := token(t, auth.RoleCustomer)

	if resp := postStock(t, srv, tok, "/products/p-1/release", 2); resp.StatusCode != http.StatusOK {
		t.Errorf("release status = %d, want 200", resp.StatusCode)
	}
	if resp := postStock(t, srv, tok, "/products/nope/release", 1); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing product release status = %d, want 404", resp.StatusCode)
	}

	p, _ := store.GetProduct(context.Background(), "p-1")
	if p.Stock != 5 {
		t.Errorf("stock = %d, want 5", p.Stock)
	}
}

func TestStockEndpointsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t, Product{ID: "p-1", Name: "Keyboard", Stock: 5, IsActive: true})

	if resp := postStock(t, srv, "", "/products/p-1/reserve", 1); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	if resp := postStock(t, srv, "garbage", "/products/p-1/reserve", 1); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(CreateProductRequest{Name: "Webcam", Price: decimal.NewFromInt(49), Stock: 10})
	do := func(tok string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/products", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if got := do(token(t, auth.RoleCustomer)); got != http.StatusForbidden {
		t.Errorf("customer create: status = %d, want 403", got)
	}
	if got := do(token(t, auth.RoleAdmin)); got != http.StatusCreated {
		t.Errorf("admin create: status = %d, want 201", got)
	}
}

// Concurrent reserves must never oversell: with stock N and many competing
// single-unit reserves, exactly N may succeed.
func TestConcurrentReservesNeverOversell(t *testing.T) {
	const stock = 16
	const attempts = 64

	srv, store := newTestServer(t, Product{ID: "p-1", Name: "Keyboard", Stock: stock, IsActive: true})
	tok := token(t, auth.RoleCustomer)

	var wg sync.WaitGroup
	granted := make(chan int, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(StockRequest{Units: 1})
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/products/p-1/reserve", bytes.NewReader(body))
			if err != nil {
				return
			}
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := srv.Client().Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				granted <- 1
			}
		}()
	}
	wg.Wait()
	close(granted)

	var ok int
	for range granted {
		ok++
	}
	if ok != stock {
		t.Errorf("granted %d reserves, want exactly %d", ok, stock)
	}
	p, _ := store.GetProduct(context.Background(), "p-1")
	if p.Stock != 0 {
		t.Errorf("stock = %d, want 0", p.Stock)
	}
}
