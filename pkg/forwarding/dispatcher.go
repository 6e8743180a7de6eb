package forwarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/logger"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single outbound call
const DefaultTimeout = 30 * time.Second

const maxResponseBody = 1 << 20

// Observer receives the outcome of every forward. *metrics.Metrics implements it.
type Observer interface {
	ObserveForward(endpoint string, success bool, duration time.Duration)
}

// Result is the outcome of one forwarding attempt
type Result struct {
	Success    bool          `json:"success"`
	Endpoint   Endpoint      `json:"endpoint"`
	Category   string        `json:"category"`
	StatusCode int           `json:"statusCode,omitempty"`
	Response   any           `json:"response,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration"`
}

// Dispatcher posts leads to their category's endpoint
type Dispatcher struct {
	router     *Router
	httpClient *http.Client
	logger     logger.Logger
	observer   Observer
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient replaces the default instrumented client
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithTimeout sets the per-call timeout of the default client
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers a metrics observer
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher. The default client traces outbound
// calls and gives up after DefaultTimeout.
func NewDispatcher(router *Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router: router,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Forward sends one lead. It never returns an error: every failure, including
// a non-2xx answer or a timeout, is described by the returned Result.
func (d *Dispatcher) Forward(ctx context.Context, lead *models.Lead) *Result {
	start := time.Now()
	endpoint := d.router.Select(lead.Category)
	result := &Result{Endpoint: endpoint, Category: lead.Category}

	defer func() {
		result.Duration = time.Since(start)
		result.DurationMS = result.Duration.Milliseconds()
		if d.observer != nil {
			d.observer.ObserveForward(string(endpoint), result.Success, result.Duration)
		}
	}()

	url := d.router.URL(endpoint)
	if url == "" {
		result.Error = fmt.Sprintf("%s endpoint is not configured", endpoint)
		d.logger.Error("lead forward skipped", "leadid", lead.LeadID, "endpoint", endpoint, "error", result.Error)
		return result
	}

	body, err := json.Marshal(TransformLead(lead))
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal payload: %v", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		result.Error = err.Error()
		d.logger.Warn("lead forward failed", "leadid", lead.LeadID, "endpoint", endpoint, "error", err)
		return result
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		result.Error = fmt.Sprintf("failed to read response: %v", err)
		return result
	}
	result.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody))
		d.logger.Warn("lead forward rejected", "leadid", lead.LeadID, "endpoint", endpoint, "status", resp.StatusCode)
		return result
	}

	result.Success = true
	result.Response = decodeBody(respBody)
	d.logger.Info("lead forwarded", "leadid", lead.LeadID, "endpoint", endpoint, "duration_ms", time.Since(start).Milliseconds())
	return result
}

// decodeBody keeps JSON bodies as raw JSON and anything else as text
func decodeBody(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
