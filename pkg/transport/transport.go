// Package transport issues the SDK's HTTP round trips against the chat
// service. It knows nothing about the chat protocol itself: callers hand it
// a fully described request and get back status, headers and body.
//
// Connections are not held between calls. Every round trip opens, fully
// drains and releases its own connection, and is bounded by the client
// timeout.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a round trip when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Trust overrides TLS verification for a single round trip. A non-nil CA is
// used as the sole trust anchor; InsecureSkipVerify disables verification
// entirely.
type Trust struct {
	InsecureSkipVerify bool
	CA                 []byte
}

// Request describes one HTTP round trip.
type Request struct {
	Method string
	URL    string
	// Query is merged into any query string already present in URL.
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded when non-nil.
	Body interface{}
	// Trust, when set, replaces the TLS trust configuration for this call.
	Trust *Trust
}

// Response is the outcome of a completed round trip. Non-2xx statuses are
// not errors at this layer; the protocol engine decides what each status
// means.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client executes Requests. It is safe for concurrent use.
type Client struct {
	appKey  string
	timeout time.Duration
	base    *http.Client
	logger  zerolog.Logger
}

type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.base = hc
		}
	}
}

// WithLogger sets the logger used for round-trip tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a transport client carrying the application key used for
// query-string authentication.
func New(appKey string, opts ...Option) *Client {
	c := &Client{
		appKey:  appKey,
		timeout: DefaultTimeout,
		base:    &http.Client{},
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Qualify turns an opaque service link into a callable URL: the path gains a
// .json suffix and the fixed authentication query parameters v=1 and appKey.
func (c *Client) Qualify(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse service link %q", link)
	}
	u.Path += ".json"
	q := u.Query()
	q.Set("v", "1")
	q.Set("appKey", c.appKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AuthQuery returns a fresh copy of the fixed authentication query
// parameters appended to every authenticated call.
func (c *Client) AuthQuery() url.Values {
	return url.Values{"v": {"1"}, "appKey": {c.appKey}}
}

// Do executes a single round trip. The returned error covers transport
// failures only (connect, timeout, body read); HTTP error statuses come back
// in the Response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := req.URL
	if len(req.Query) > 0 {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse url %q", req.URL)
		}
		q := parsed.Query()
		for k, vs := range req.Query {
			q[k] = vs
		}
		parsed.RawQuery = q.Encode()
		target = parsed.String()
	}

	logger := c.logger.With().
		Str("request_id", uuid.NewString()).
		Str("method", req.Method).
		Str("url", target).
		Logger()

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode request body")
		}
		bodyReader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	client := c.base
	if req.Trust != nil {
		client, err = c.clientForTrust(req.Trust)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("round trip failed")
		return nil, errors.Wrap(err, "request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read response body")
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("body_length", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("round trip complete")

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// clientForTrust builds a one-shot http.Client honoring a per-call TLS trust
// override.
func (c *Client) clientForTrust(trust *Trust) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: trust.InsecureSkipVerify, //nolint:gosec // explicit caller opt-in
	}
	if len(trust.CA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(trust.CA) {
			return nil, errors.New("could not parse trust anchor certificate")
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}
