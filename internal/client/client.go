// Package client talks to a running colindex server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/retry"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// Client is a remote store. It satisfies the uploader's target and the indexer's store, so files
// and record streams can be ingested into a server the same way as into a local database.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	// retry applies to idempotent reads; writes are retried by the uploader.
	retry *retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets a logger for request failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry retries read requests that fail with a transient error.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = &p }
}

// New creates a client for the server at baseURL (for example http://localhost:6380).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid server URL %q", models.ErrConfiguration, baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateCollection creates or, with recreate, replaces a collection.
func (c *Client) CreateCollection(ctx context.Context, cfg models.CollectionConfig, recreate bool) (*models.CollectionInfo, error) {
	var info models.CollectionInfo
	body := models.NewCreateCollectionRequest(cfg, recreate)
	if err := c.do(ctx, http.MethodPost, collectionPath(cfg.Name), body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Collection describes one collection.
func (c *Client) Collection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	var info models.CollectionInfo
	if err := c.read(ctx, http.MethodGet, collectionPath(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteCollection drops a collection. A missing collection is not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, collectionPath(name), nil, nil)
}

// Collections lists every collection.
func (c *Client) Collections(ctx context.Context) ([]*models.CollectionInfo, error) {
	var infos []*models.CollectionInfo
	if err := c.read(ctx, http.MethodGet, "/collections", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Upsert sends one batch of records.
func (c *Client) Upsert(ctx context.Context, collection string, records []*models.VectorRecord) error {
	return c.do(ctx, http.MethodPost, pointsPath(collection), &models.UpsertPointsRequest{Points: records}, nil)
}

// Delete removes records by id and returns how many existed.
func (c *Client) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	req := &models.DeletePointsRequest{IDs: make([]models.PointID, len(ids))}
	for i, id := range ids {
		req.IDs[i] = models.PointID(id)
	}
	return c.deletePoints(ctx, collection, req)
}

// DeleteWhere removes every record matching filter.
func (c *Client) DeleteWhere(ctx context.Context, collection string, filter *models.Filter) (int, error) {
	return c.deletePoints(ctx, collection, &models.DeletePointsRequest{Filter: filter})
}

func (c *Client) deletePoints(ctx context.Context, collection string, req *models.DeletePointsRequest) (int, error) {
	var out models.CountResult
	if err := c.do(ctx, http.MethodPost, pointsPath(collection)+"/delete", req, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Search runs a vector or text query on the server. A zero TopK leaves top_k out of the request
// so the server's default applies.
func (c *Client) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	body := &models.SearchBody{Vector: q.Vectors, Text: q.Text, Filter: q.Filter}
	if q.TopK != 0 {
		topK := q.TopK
		body.TopK = &topK
	}
	var resp models.SearchResponse
	if err := c.read(ctx, http.MethodPost, "/search/"+url.PathEscape(q.Collection), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the server's status report.
func (c *Client) Status(ctx context.Context) (*models.ServiceStatus, error) {
	var status models.ServiceStatus
	if err := c.read(ctx, http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func collectionPath(name string) string { return "/collection/" + url.PathEscape(name) }
func pointsPath(name string) string     { return "/points/" + url.PathEscape(name) }

// read is do with the configured retry policy.
func (c *Client) read(ctx context.Context, method, path string, body, out any) error {
	if c.retry == nil {
		return c.do(ctx, method, path, body, out)
	}
	_, err := c.retry.DoNotify(ctx, func(ctx context.Context, _ int) error {
		return c.do(ctx, method, path, body, out)
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", models.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Result json.RawMessage  `json:"result"`
		Status string           `json:"status"`
		Error  string           `json:"error"`
		Kind   models.ErrorKind `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= http.StatusInternalServerError || isTimeout(err) {
			return fmt.Errorf("%w: %s %s: status %d", models.ErrTransient, method, path, resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response from %s %s (status %d): %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Status == "error" {
		return responseError(resp.StatusCode, env.Kind, env.Error)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode result of %s %s: %w", method, path, err)
		}
	}
	return nil
}

// responseError rebuilds the server's error class so callers can branch with errors.Is.
func responseError(status int, kind models.ErrorKind, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: server returned %d: %s", models.ErrTransient, status, msg)
	}
	sentinel := models.ErrorForKind(kind)
	if sentinel == nil {
		switch status {
		case http.StatusNotFound:
			sentinel = models.ErrNotFound
		case http.StatusConflict:
			sentinel = models.ErrConflict
		default:
			sentinel = models.ErrConfiguration
		}
	}
	// The message already carries the sentinel's text.
	return &remoteError{sentinel: sentinel, msg: msg}
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
