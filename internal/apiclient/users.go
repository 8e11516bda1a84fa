package apiclient

import (
	"context"
	"net/http"

	"github.com/storedesk/storedesk/internal/access"
)

// ListUsers returns every account.
func (c *Client) ListUsers(ctx context.Context, creds Credentials) ([]access.UserProfile, error) {
	var out []access.UserProfile
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/users"}, &out)
	return out, err
}

// GetUser returns one account.
func (c *Client) GetUser(ctx context.Context, creds Credentials, id int64) (access.UserProfile, error) {
	var out access.UserProfile
	err := c.do(ctx, creds, request{method: http.MethodGet, path: "/api/users/" + itoa(id), route: "/api/users/{id}"}, &out)
	return out, err
}

// CreateUser opens an account.
func (c *Client) CreateUser(ctx context.Context, creds Credentials, in NewUser) (access.UserProfile, error) {
	var out access.UserProfile
	err := c.do(ctx, creds, request{method: http.MethodPost, path: "/api/users", body: in}, &out)
	return out, err
}

// UpdateUser applies a partial update to an account.
func (c *Client) UpdateUser(ctx context.Context, creds Credentials, id int64, in UserChanges) (access.UserProfile, error) {
	var out access.UserProfile
	err := c.do(ctx, creds, request{method: http.MethodPut, path: "/api/users/" + itoa(id), route: "/api/users/{id}", body: in}, &out)
	return out, err
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, creds Credentials, id int64) error {
	return c.do(ctx, creds, request{method: http.MethodDelete, path: "/api/users/" + itoa(id), route: "/api/users/{id}"}, nil)
}
