package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/riddopic/distcloud/internal/model"
)

// VimHTTPClient is an HTTP-backed VimClient.
type VimHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewVimHTTPClient builds a VimHTTPClient.
func NewVimHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *VimHTTPClient {
	return &VimHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *VimHTTPClient) authedRequest(ctx context.Context, region, method, path string, body string) (*http.Response, error) {
	tok, err := c.ident.Token(ctx, region, model.EndpointIdentity)
	if err != nil {
		return nil, fmt.Errorf("vim auth for %s: %w", region, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL(region)+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Token", tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(ctx, req)
}

func (c *VimHTTPClient) CreateStrategy(ctx context.Context, region string, opts map[string]string) error {
	payload, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/orchestration/strategies", string(payload))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *VimHTTPClient) QueryStrategy(ctx context.Context, region string) (VimStrategyState, error) {
	resp, err := c.authedRequest(ctx, region, http.MethodGet, "/v1/orchestration/strategies", "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode vim strategy state for %s: %w", region, err)
	}
	return VimStrategyState(body.State), nil
}

func (c *VimHTTPClient) ApplyStrategy(ctx context.Context, region string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/orchestration/strategies/actions", `{"action":"apply-all"}`)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *VimHTTPClient) AbortStrategy(ctx context.Context, region string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/orchestration/strategies/actions", `{"action":"abort"}`)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *VimHTTPClient) DeleteStrategy(ctx context.Context, region string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodDelete, "/v1/orchestration/strategies", "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
