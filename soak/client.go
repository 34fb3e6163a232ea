package soak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pricefuse/models"
)

// Client samples a running engine over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL, e.g. "http://localhost:8090".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Snapshot fetches one point-in-time view of the engine state.
func (c *Client) Snapshot(ctx context.Context) (models.SoakSnapshot, error) {
	var snap models.SoakSnapshot
	err := c.getJSON(ctx, "/api/soak/snapshot", &snap)
	return snap, err
}

// Policy fetches the quorum and threshold configuration the engine is
// running with, recorded in the report so stored runs stay comparable.
func (c *Client) Policy(ctx context.Context) (models.PolicySnapshot, error) {
	var policy models.PolicySnapshot
	err := c.getJSON(ctx, "/api/policy", &policy)
	return policy, err
}
