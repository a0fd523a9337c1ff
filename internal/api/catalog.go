package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/amrut/notifydesk/internal/model"
)

// The catalog endpoints return loosely shaped JSON that is only hashed
// for change detection and handed through to subscribers, so they are
// decoded into generic values.

// GetCategories fetches the public category list.
func (c *Client) GetCategories(ctx context.Context) (any, error) {
	return c.getData(ctx, "/categories", "")
}

// GetProductsByCategory fetches the products of one category.
func (c *Client) GetProductsByCategory(ctx context.Context, categoryID string) (any, error) {
	if categoryID == "" {
		return nil, fmt.Errorf("category id is required")
	}
	return c.getData(ctx, "/products/category/"+url.PathEscape(categoryID), "")
}

// GetUserOrders fetches the orders placed by the logged-in user.
func (c *Client) GetUserOrders(ctx context.Context, creds model.Credentials) (any, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}
	return c.getData(ctx, "/orders/user/"+url.PathEscape(creds.UserID), creds.Token)
}

// GetSliders fetches the home-screen slider entries.
func (c *Client) GetSliders(ctx context.Context) (any, error) {
	return c.getData(ctx, "/slider", "")
}

func (c *Client) getData(ctx context.Context, path, token string) (any, error) {
	var out any
	if err := c.get(ctx, path, token, &out); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	return out, nil
}
