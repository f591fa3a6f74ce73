package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

// Failure taxonomy surfaced to the orders service. Everything the network can
// do wrong collapses into ErrUnavailable; business failures stay distinct so
// the saga can report precisely which product failed and why.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not available")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnavailable       = errors.New("catalog service unavailable")
)

type ProductInfo struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive bool            `json:"is_active"`
}

type stockRequest struct {
	Units int `json:"units"`
}

// Client talks to the catalog service over HTTP, forwarding the caller's
// bearer credential so the catalog authorizes as the original user.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		// no client-level timeout: lifetime is the request context's
		HTTP: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

func (c *Client) FetchProduct(ctx context.Context, token, productID string) (ProductInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.BaseURL, productID), nil)
	if err != nil {
		return ProductInfo{}, err
	}
	setBearer(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ProductInfo{}, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	default:
		return ProductInfo{}, statusErr(resp)
	}

	var p ProductInfo
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return ProductInfo{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return p, nil
}

func (c *Client) ReserveStock(ctx context.Context, token, productID string, units int) error {
	return c.postStock(ctx, token, productID, "reserve", units)
}

func (c *Client) ReleaseStock(ctx context.Context, token, productID string, units int) error {
	return c.postStock(ctx, token, productID, "release", units)
}

func (c *Client) postStock(ctx context.Context, token, productID, op string, units int) error {
	body, err := json.Marshal(stockRequest{Units: units})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/products/%s/%s", c.BaseURL, productID, op), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	setBearer(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	case http.StatusConflict:
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	default:
		return statusErr(resp)
	}
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func statusErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("catalog returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
}
