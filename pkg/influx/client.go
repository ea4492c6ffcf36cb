// Package influx executes planned Flux queries against a tenant's store.
package influx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/metrics"
	"github.com/vjranagit/dashboard/pkg/query"
	"github.com/vjranagit/dashboard/pkg/tenant"
)

const (
	queryPath = "/api/v2/query"

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 4 << 10
)

// Config configures the store client.
type Config struct {
	// URL is the store base URL, e.g. "http://influxdb:8086".
	URL string

	// Timeout bounds one query (default: 30s).
	Timeout time.Duration

	// Gzip requests compressed responses.
	Gzip bool

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client performs exactly one HTTP call per Execute. It does not retry;
// the polling layer re-invokes on its own schedule.
type Client struct {
	base    *url.URL
	http    *http.Client
	gzip    bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a store client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("store url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid store url %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: cfg.Transport},
		gzip:    cfg.Gzip,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "store-client"),
	}, nil
}

// Execute runs plan with creds and returns the raw annotated CSV body.
func (c *Client) Execute(ctx context.Context, plan query.Plan, creds tenant.Credentials) (string, error) {
	if !creds.Complete() {
		return "", errs.CredentialsIncomplete()
	}

	start := time.Now()
	body, err := c.do(ctx, plan, creds)
	c.observe(plan.Shape(), time.Since(start), err)
	if err != nil {
		c.logger.Warn("store query failed",
			"store", plan.Store(), "series", plan.Series(), "shape", plan.Shape().String(), "error", err.Error())
		return "", err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, plan query.Plan, creds tenant.Credentials) (string, error) {
	endpoint := *c.base
	endpoint.Path += queryPath
	endpoint.RawQuery = url.Values{"org": {creds.Org}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(plan.Text()))
	if err != nil {
		return "", errors.Wrap(err, "build store request")
	}
	req.Header.Set("Authorization", "Token "+creds.Token)
	req.Header.Set("Content-Type", "application/vnd.flux")
	req.Header.Set("Accept", "text/csv")
	if c.gzip {
		// Setting the header disables the transport's transparent decoding,
		// so the body is decompressed below.
		req.Header.Set("Accept-Encoding", "gzip")
	}

	c.logger.Debug("store query", "org", creds.Org, "shape", plan.Shape().String(), "flux", plan.Text())

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", errs.Timeout(err)
		}
		return "", errs.Transport(0, err.Error())
	}
	defer resp.Body.Close()

	// The status decides auth failures even when the body cannot be decoded.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errs.Unauthenticated(fmt.Sprintf("store rejected token of org %q (HTTP %d)", creds.Org, resp.StatusCode))
	}

	reader, err := c.bodyReader(resp)
	if err != nil {
		return "", errs.Transport(resp.StatusCode, err.Error())
	}
	defer reader.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(reader, maxErrorBody))
		return "", errs.Transport(resp.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		if isTimeout(err) {
			return "", errs.Timeout(err)
		}
		return "", errs.Transport(resp.StatusCode, "read body: "+err.Error())
	}
	return string(data), nil
}

func (c *Client) bodyReader(resp *http.Response) (io.ReadCloser, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.NopCloser(resp.Body), nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, nil
}

func (c *Client) observe(shape query.Shape, elapsed time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrTimeout):
		outcome = "timeout"
	case errs.ClassOf(err) == errs.ClassAuth:
		outcome = "auth"
	default:
		outcome = "error"
	}
	c.metrics.StoreRequests.WithLabelValues(shape.String(), outcome).Inc()
	c.metrics.StoreLatency.WithLabelValues(shape.String()).Observe(elapsed.Seconds())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
