// Package restclient implements the authenticated REST transport over the
// Hypothes.is search and annotation endpoints.
package restclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyposync/hyposync/internal/syncerr"
)

const (
	// sslRetries is the number of times a transport/SSL failure is
	// retried with no backoff before surfacing a TransportError.
	sslRetries = 5

	defaultDomain = "hypothes.is"
)

// Client is an authenticated HTTP client for the Hypothes.is REST API.
type Client struct {
	domain     string
	token      string
	httpClient *http.Client

	// baseURLOverride lets tests point the client at an httptest.Server
	// (plain HTTP) instead of deriving https://{domain}/api.
	baseURLOverride string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (used by tests to
// point at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDomain overrides the default "hypothes.is" domain.
func WithDomain(domain string) Option {
	return func(c *Client) { c.domain = domain }
}

// NewClient creates a REST client authenticated with the given bearer
// token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		domain: defaultDomain,
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) baseURL() string {
	if c.baseURLOverride != "" {
		return c.baseURLOverride
	}
	return fmt.Sprintf("https://%s/api", c.domain)
}

// WithBaseURLOverride points the client at a literal base URL (including
// scheme), bypassing the https://{domain}/api derivation. Intended for
// tests against an httptest.Server.
func WithBaseURLOverride(base string) Option {
	return func(c *Client) { c.baseURLOverride = base }
}

// Row is one decoded JSON object from a REST response body.
type Row = map[string]any

// SearchResult is the raw decoded body of a GET /search response.
type SearchResult struct {
	Total int   `json:"total"`
	Rows  []Row `json:"rows"`
}

// SearchParams builds the query string for GET /search.
type SearchParams struct {
	Group       string
	User        string
	Sort        string // default "updated"
	Order       string // "asc" | "desc"
	Limit       int    // max 200
	SearchAfter string
	Offset      int // compat only, unused for new code
}

func (p SearchParams) values() url.Values {
	v := url.Values{}
	if p.Group != "" {
		v.Set("group", p.Group)
	}
	if p.User != "" {
		v.Set("user", p.User)
	}
	sort := p.Sort
	if sort == "" {
		sort = "updated"
	}
	v.Set("sort", sort)
	if p.Order != "" {
		v.Set("order", p.Order)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.SearchAfter != "" {
		v.Set("search_after", p.SearchAfter)
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	return v
}

// Search performs a single GET /search call and returns the decoded body.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	u := c.baseURL() + "/search?" + params.values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := c.do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) annotationURL(id string) string {
	return fmt.Sprintf("%s/annotations/%s", c.baseURL(), url.PathEscape(id))
}

// Get retrieves one annotation by id.
func (c *Client) Get(ctx context.Context, id string) (Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.annotationURL(id), nil)
	if err != nil {
		return nil, err
	}
	var row Row
	if err := c.do(ctx, req, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Head issues a HEAD request for one annotation (existence check).
func (c *Client) Head(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.annotationURL(id), nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// Post creates a new annotation.
func (c *Client) Post(ctx context.Context, payload Row) (Row, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/annotations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var row Row
	if err := c.do(ctx, req, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Patch updates an existing annotation.
func (c *Client) Patch(ctx context.Context, id string, payload Row) (Row, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.annotationURL(id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var row Row
	if err := c.do(ctx, req, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes an annotation by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.annotationURL(id), nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// do executes req with auth headers, SSL retry, and 429 backoff, then
// decodes the JSON body into out (skipped if out is nil).
func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	correlationID := uuid.New().String()
	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	resp, err := c.doWithSSLRetry(ctx, req, &logger)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return &syncerr.NotOkError{Status: resp.StatusCode, Reason: string(body)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// doWithSSLRetry retries transport-level TLS/connection failures up to
// sslRetries times with no backoff, then does the separate 429 handling
// with exponential backoff.
func (c *Client) doWithSSLRetry(ctx context.Context, req *http.Request, logger *zerolog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= sslRetries; attempt++ {
		reqClone, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		c.injectHeaders(reqClone)

		resp, err := c.httpClient.Do(reqClone)
		if err == nil {
			return c.handleRateLimit(ctx, reqClone, resp, logger)
		}

		if !isTLSFailure(err) {
			return nil, err
		}

		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("transport/SSL failure, retrying with no backoff")
	}

	return nil, &syncerr.TransportError{Cause: lastErr}
}

func (c *Client) injectHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
}

// handleRateLimit retries a 429 response with exponential backoff
// (honoring Retry-After when present). This is a distinct recoverable
// condition from the SSL-retry path above; it does not replace it.
func (c *Client) handleRateLimit(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger) (*http.Response, error) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}
	resp.Body.Close()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	bctx := backoff.WithContext(b, ctx)

	var final *http.Response
	op := func() error {
		reqClone, err := cloneRequest(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.injectHeaders(reqClone)

		r, err := c.httpClient.Do(reqClone)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			if retryAfter := parseRetryAfter(r.Header.Get("Retry-After")); retryAfter > 0 {
				logger.Warn().Dur("retryAfter", retryAfter).Msg("rate limited, honoring Retry-After")
				time.Sleep(retryAfter)
			}
			return errors.New("rate limited")
		}
		final = r
		return nil
	}

	if err := backoff.Retry(op, bctx); err != nil {
		return nil, fmt.Errorf("rate limited after retries: %w", err)
	}
	return final, nil
}

func isTLSFailure(err error) bool {
	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isTLSFailure(urlErr.Err)
	}
	// net/http wraps most TLS handshake failures as opaque errors; a
	// substring check on the error text is the pragmatic fallback the
	// standard library itself recommends for this case.
	msg := err.Error()
	for _, sub := range []string{"tls:", "x509:", "certificate", "handshake"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	clone, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		clone.Header[k] = v
	}
	return clone, nil
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
