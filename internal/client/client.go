// Package client is a Go client for the expenses REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/core"
)

// ErrNetwork wraps transport failures: the server could not be reached or
// the response could not be read.
var ErrNetwork = errors.New("network error")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL, the API root such as
// "http://localhost:3000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "expenses-client/1",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Dashboard is what the browser client shows: the filtered list and the
// balance over every expense.
type Dashboard struct {
	Expenses []core.Expense
	Balance  core.Money
}

// List returns all expenses, or only those in category when it is non-empty.
func (c *Client) List(ctx context.Context, category string) ([]core.Expense, error) {
	path := "/expenses"
	if category != "" {
		path += "?" + url.Values{"category": {category}}.Encode()
	}
	var out []core.Expense
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Expense{}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id int64) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodGet, expensePath(id), nil, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPost, "/expenses", in, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodPut, expensePath(id), in, &out)
	return out, err
}

// Delete removes an expense and returns the server's confirmation message.
func (c *Client) Delete(ctx context.Context, id int64) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodDelete, expensePath(id), nil, &out)
	return out.Message, err
}

// Balance sums the unfiltered list.
func (c *Client) Balance(ctx context.Context) (core.Money, error) {
	all, err := c.List(ctx, "")
	if err != nil {
		return core.Money{}, err
	}
	return core.Sum(all), nil
}

// Health probes the server and its database. An unhealthy server still
// returns its Health body together with the *APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Dashboard fetches the filtered list and the balance concurrently.
func (c *Client) Dashboard(ctx context.Context, category string) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.List(gctx, category)
		d.Expenses = items
		return err
	})
	g.Go(func() error {
		total, err := c.Balance(gctx)
		d.Balance = total
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func expensePath(id int64) string {
	return "/expenses/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
