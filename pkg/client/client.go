// Package client provides the Gemini generateContent client with an
// optional Redis response cache and a typed error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/gemini-mind/pkg/cache"
	"github.com/Sternrassler/gemini-mind/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Gemini client operations.
var (
	geminiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gemini_requests_total",
		Help: "Total generateContent calls by model and outcome (HTTP status, cache_hit or transport_error)",
	}, []string{"model", "status"})

	geminiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gemini_request_duration_seconds",
		Help:    "Gemini HTTP round trip duration in seconds by model",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})

	geminiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gemini_errors_total",
		Help: "Total Gemini client errors by taxonomy kind",
	}, []string{"kind"})
)

// bodySnippetLen caps the raw body echoed in decode errors.
const bodySnippetLen = 100

// ResponseCache is the cache contract the client needs. *cache.Manager
// implements it.
type ResponseCache interface {
	Get(ctx context.Context, fingerprint string) (string, bool)
	Set(ctx context.Context, fingerprint, value string) bool
}

// Client is the Gemini client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cache      ResponseCache
	manager    *cache.Manager // owned cache, nil when injected or disabled
	config     Config
	baseURL    string
	logger     zerolog.Logger
}

type clientOptions struct {
	overrides  Overrides
	httpClient *http.Client
	cache      ResponseCache
	baseURL    string
	logger     *zerolog.Logger
}

// Option customizes a Client at construction.
type Option func(*clientOptions)

// WithOverrides applies o on top of the Config passed to New before it is
// validated.
func WithOverrides(o Overrides) Option {
	return func(opts *clientOptions) { opts.overrides = o }
}

// WithHTTPClient replaces the transport (for testing or custom TLS).
// The caller is responsible for its timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *clientOptions) { opts.httpClient = httpClient }
}

// WithCache replaces the Redis cache manager. It is consulted only when
// Config.CacheEnabled is set.
func WithCache(c ResponseCache) Option {
	return func(opts *clientOptions) { opts.cache = c }
}

// WithBaseURL points the client at another API host, e.g. a mock server.
func WithBaseURL(baseURL string) Option {
	return func(opts *clientOptions) { opts.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *clientOptions) { opts.logger = &logger }
}

// New creates a new Gemini client. The effective configuration (cfg plus
// any overrides) must validate; otherwise a KindConfiguration error is
// returned and no connection is attempted.
func New(cfg Config, opts ...Option) (*Client, error) {
	o := clientOptions{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = o.overrides.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger := logging.NewLogger(logging.ComponentClient)
	if o.logger != nil {
		logger = *o.logger
	}

	c := &Client{
		httpClient: o.httpClient,
		config:     cfg,
		baseURL:    o.baseURL,
		logger:     logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if cfg.CacheEnabled {
		if o.cache != nil {
			c.cache = o.cache
		} else {
			c.manager = cache.NewManager(context.Background(), cfg.CacheConfig(), logging.NewLogger(logging.ComponentCache))
			c.cache = c.manager
		}
	}

	return c, nil
}

// GenerateContent sends text to the model and returns the interpreted
// response. With caching enabled an identical earlier call (same text,
// model, system instruction and options) is answered from the cache
// without contacting the API.
func (c *Client) GenerateContent(ctx context.Context, text string, opts GenerateOptions) (*Response, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, c.fail(c.config.DefaultModel, err)
	}

	model := opts.Model
	if model == "" {
		model = c.config.DefaultModel
	}

	fingerprint := Fingerprint(text, model, opts.SystemInstruction, opts.Options)

	// Step 1: Check Cache
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, fingerprint); ok {
			c.logger.Debug().
				Str("model", model).
				Str("fingerprint", fingerprint).
				Msg("Cache hit")
			geminiRequestsTotal.WithLabelValues(model, "cache_hit").Inc()
			return c.fromCache(model, cached)
		}
	}

	// Step 2: Build Request
	payload, err := json.Marshal(buildRequestBody(text, opts.SystemInstruction, opts.Options))
	if err != nil {
		return nil, c.fail(model, &Error{Kind: KindError, Message: "encode request body", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpointURL(c.baseURL, c.config.APIVersion, model, c.config.APIKey), bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(model, &Error{Kind: KindError, Message: "create request", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Step 3: Execute HTTP Request
	c.logger.Debug().
		Str("model", model).
		Str("fingerprint", fingerprint).
		Msg("Executing Gemini request")

	startTime := time.Now()
	raw, status, err := c.roundTrip(req)
	geminiRequestDuration.WithLabelValues(model).Observe(time.Since(startTime).Seconds())
	if err != nil {
		geminiRequestsTotal.WithLabelValues(model, "transport_error").Inc()
		return nil, c.fail(model, c.classifyTransportError(err))
	}
	geminiRequestsTotal.WithLabelValues(model, strconv.Itoa(status)).Inc()

	// Step 4: Classify Response
	if status < 200 || status > 299 {
		return nil, c.fail(model, classifyStatus(status, raw))
	}

	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil, c.fail(model, &Error{Kind: KindResponse, StatusCode: status, Message: "Empty response received from API"})
	}

	decoded, err := decodePayload(body)
	if err != nil {
		return nil, c.fail(model, &Error{
			Kind:       KindResponse,
			StatusCode: status,
			Message:    "Failed to parse API response. Response body: " + snippet(body),
			Err:        err,
		})
	}

	// Step 5: Update Cache (error payloads included, they re-raise on hit)
	if c.cache != nil {
		c.cache.Set(ctx, fingerprint, string(raw))
	}

	resp, err := NewResponse(decoded)
	if err != nil {
		return nil, c.fail(model, err)
	}
	return resp, nil
}

func (c *Client) fromCache(model, cached string) (*Response, error) {
	decoded, err := decodePayload(cached)
	if err != nil {
		return nil, c.fail(model, &Error{
			Kind:    KindResponse,
			Message: "Failed to parse cached response. Cached body: " + snippet(cached),
			Err:     err,
		})
	}

	resp, err := NewResponse(decoded)
	if err != nil {
		return nil, c.fail(model, err)
	}
	return resp, nil
}

// roundTrip executes req and reads the whole body.
func (c *Client) roundTrip(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

// classifyStatus maps a non-2xx response onto the taxonomy, preferring the
// API's own error message when the body carries one.
func classifyStatus(status int, body []byte) *Error {
	message := "API request failed with status " + strconv.Itoa(status)
	if apiMessage := nestedErrorMessage(body); apiMessage != "" {
		message = "API error: " + apiMessage
	}

	var e *Error
	switch {
	case status == http.StatusTooManyRequests:
		e = newError(KindRateLimit, "Rate limit exceeded: %s", message)
	case status == http.StatusNotFound:
		e = newError(KindNotFound, "Requested resource or model not found: %s", message)
	case status >= 400 && status <= 499:
		e = newError(KindAPI, "%s", message)
	case status >= 500 && status <= 599:
		e = newError(KindService, "Gemini API service error: %s", message)
	default:
		e = newError(KindError, "%s", message)
	}
	e.StatusCode = status
	return e
}

// classifyTransportError maps an error from the HTTP round trip onto the
// taxonomy.
func (c *Client) classifyTransportError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Message: "Request timed out after " + c.config.Timeout.String(), Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindError, Message: "Request cancelled", Err: err}
	case isConnectionFailure(err):
		return &Error{Kind: KindConnection, Message: "Connection to Gemini API failed", Err: err}
	default:
		return &Error{Kind: KindError, Message: "Request failed", Err: err}
	}
}

func isConnectionFailure(err error) bool {
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// fail records err for observability and returns it unchanged.
func (c *Client) fail(model string, err error) error {
	kind := KindOf(err)
	geminiErrorsTotal.WithLabelValues(string(kind)).Inc()

	event := c.logger.Warn()
	if kind == KindError || kind.Refines(KindConnection) {
		event = c.logger.Error()
	}
	event.Err(err).
		Str("model", model).
		Str("error_kind", string(kind)).
		Msg("Gemini request failed")

	return err
}

func decodePayload(body string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// nestedErrorMessage extracts error.message from an error body, or "".
func nestedErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return envelope.Error.Message
}

// snippet returns at most bodySnippetLen runes of s.
func snippet(s string) string {
	if utf8.RuneCountInString(s) <= bodySnippetLen {
		return s
	}
	return string([]rune(s)[:bodySnippetLen])
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Cache returns the Redis cache manager owned by the client, or nil when
// caching is disabled or a custom cache was injected.
func (c *Client) Cache() *cache.Manager {
	return c.manager
}

// Close closes the client and releases the cache connection.
func (c *Client) Close() error {
	if c.manager != nil {
		return c.manager.Close()
	}
	return nil
}
