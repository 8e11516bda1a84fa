package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Login exchanges a username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, nil, request{method: http.MethodPost, path: "/api/auth/login", body: body}, &out); err != nil {
		return LoginResult{}, err
	}
	if out.AccessToken == "" {
		return LoginResult{}, fmt.Errorf("apiclient: login response without token")
	}
	return out, nil
}

// ListProducts returns the whole catalogue.
func (c *Client) ListProducts(ctx context.Context, creds Credentials) ([]Product, error) {
	var out []Product
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/products"}, &out)
	return out, err
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, creds Credentials, id int64) (Product, error) {
	var out Product
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/products/" + itoa(id), route: "/api/products/{id}"}, &out)
	return out, err
}

// CreateProduct adds a product.
func (c *Client) CreateProduct(ctx context.Context, creds Credentials, in ProductInput) (Product, error) {
	var out Product
	err := c.do(ctx, creds, request{method: http.MethodPost, path: "/api/products", body: in}, &out)
	return out, err
}

// UpdateProduct replaces a product's attributes.
func (c *Client) UpdateProduct(ctx context.Context, creds Credentials, id int64, in ProductInput) (Product, error) {
	var out Product
	err := c.do(ctx, creds, request{method: http.MethodPut, path: "/api/products/" + itoa(id), route: "/api/products/{id}", body: in}, &out)
	return out, err
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, creds Credentials, id int64) error {
	return c.do(ctx, creds, request{method: http.MethodDelete, path: "/api/products/" + itoa(id), route: "/api/products/{id}"}, nil)
}

// CreateBill records a sale.
func (c *Client) CreateBill(ctx context.Context, creds Credentials, lines []BillLine) (Bill, error) {
	var out Bill
	body := struct {
		Items []BillLine `json:"items"`
	}{Items: lines}
	err := c.do(ctx, creds, request{method: http.MethodPost, path: "/api/bills", body: body}, &out)
	return out, err
}

// ListBills returns every bill in the store.
func (c *Client) ListBills(ctx context.Context, creds Credentials) ([]Bill, error) {
	var out []Bill
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/bills"}, &out)
	return out, err
}

// MyBills returns the bills created by the caller.
func (c *Client) MyBills(ctx context.Context, creds Credentials) ([]Bill, error) {
	var out []Bill
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/bills/my-bills"}, &out)
	return out, err
}

// GetBill returns one bill with its lines.
func (c *Client) GetBill(ctx context.Context, creds Credentials, id int64) (Bill, error) {
	var out Bill
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/bills/" + itoa(id), route: "/api/bills/{id}"}, &out)
	return out, err
}

// DailySales returns the sales report for day.
func (c *Client) DailySales(ctx context.Context, creds Credentials, day time.Time) (DailySales, error) {
	var out DailySales
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/reports/sales/daily", query: reportQuery(day)}, &out)
	return out, err
}

// DailyProfit returns the profit report for day.
func (c *Client) DailyProfit(ctx context.Context, creds Credentials, day time.Time) (DailyProfit, error) {
	var out DailyProfit
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/reports/profit/daily", query: reportQuery(day)}, &out)
	return out, err
}

// Ping checks that the API answers at its root.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, nil, request{method: http.MethodGet, path: "/"}, nil)
}

func reportQuery(day time.Time) url.Values {
	if day.IsZero() {
		return nil
	}
	return url.Values{"report_date": []string{day.Format(time.DateOnly)}}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
