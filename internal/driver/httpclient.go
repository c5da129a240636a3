package driver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/riddopic/distcloud/pkg/logging"
)

// HTTPClient wraps a retryable HTTP client shared by every driver
// implementation in this package. Transient failures (network errors,
// 5xx responses) are retried with backoff; 4xx responses are returned
// immediately as fatal, matching the retryable-vs-fatal split in §4.1
// and §7.
type HTTPClient struct {
	rc      *retryablehttp.Client
	timeout time.Duration
}

// NewHTTPClient builds an HTTPClient with the given session timeout and
// retry budget.
func NewHTTPClient(timeout time.Duration, retryMax int) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	return &HTTPClient{rc: rc, timeout: timeout}
}

// Do issues req (built with a plain *http.Request) within the client's
// session timeout, retrying transient failures. The caller owns closing
// the response body.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rreq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build retryable request: %w", err)
	}
	rreq.Header = req.Header

	resp, err := c.rc.Do(rreq)
	if err != nil {
		logging.Warn("driver.httpclient", "request to %s failed after retries: %v", req.URL, err)
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: %d: %s", req.Method, req.URL, resp.StatusCode, string(body))
	}
	return resp, nil
}
