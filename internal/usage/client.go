package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultClientTimeout = 10 * time.Second

// Client is a Gate backed by a remote usage endpoint: GET checks, POST consumes,
// and 403 on POST means the quota is exhausted.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient targets endpoint, e.g. https://app.example/api/usage.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, httpClient: &http.Client{Timeout: defaultClientTimeout}}
}

func (c *Client) Check(ctx context.Context, account string) (Record, error) {
	rec, status, err := c.do(ctx, http.MethodGet, account)
	if err != nil {
		return Record{}, err
	}
	if status != http.StatusOK {
		return Record{}, fmt.Errorf("check usage: http %d", status)
	}
	return rec, nil
}

func (c *Client) Consume(ctx context.Context, account string) (Record, error) {
	rec, status, err := c.do(ctx, http.MethodPost, account)
	if err != nil {
		return Record{}, err
	}
	switch {
	case status == http.StatusForbidden:
		return rec, ErrQuotaExceeded
	case status < 200 || status >= 300:
		return Record{}, fmt.Errorf("consume usage: http %d", status)
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, account string) (Record, int, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Record{}, 0, fmt.Errorf("parse usage endpoint: %w", err)
	}
	q := u.Query()
	q.Set("account", account)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return Record{}, 0, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, 0, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	var rec Record
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusForbidden {
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return Record{}, resp.StatusCode, fmt.Errorf("decode usage: %w", err)
		}
	}
	return rec, resp.StatusCode, nil
}
