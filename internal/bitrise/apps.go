package bitrise

import (
	"context"
	"fmt"
	"strings"
)

type userResponse struct {
	Data User `json:"data"`
}

type appListResponse struct {
	Data   []App  `json:"data"`
	Paging Paging `json:"paging"`
}

type appResponse struct {
	Data App `json:"data"`
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp userResponse
	if err := c.get(ctx, "/me", &resp); err != nil {
		return User{}, err
	}

	return resp.Data, nil
}

// ListApps returns up to limit apps visible to the token.
func (c *Client) ListApps(ctx context.Context, limit int) ([]App, error) {
	var resp appListResponse
	if err := c.get(ctx, fmt.Sprintf("/apps?limit=%d", limit), &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GetApp returns one app by slug.
func (c *Client) GetApp(ctx context.Context, slug string) (App, error) {
	var resp appResponse
	if err := c.get(ctx, "/apps/"+slug, &resp); err != nil {
		return App{}, err
	}

	return resp.Data, nil
}

// FindAppByName returns the first app whose title matches name
// case-insensitively, or nil when no app matches.
func (c *Client) FindAppByName(ctx context.Context, name string) (*App, error) {
	const searchLimit = 50

	apps, err := c.ListApps(ctx, searchLimit)
	if err != nil {
		return nil, err
	}

	for i := range apps {
		if strings.EqualFold(apps[i].Title, name) {
			return &apps[i], nil
		}
	}

	return nil, nil
}
