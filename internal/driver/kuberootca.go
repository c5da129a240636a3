package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riddopic/distcloud/internal/model"
)

// KubeRootCAHTTPClient is an HTTP-backed KubeRootCAClient.
type KubeRootCAHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewKubeRootCAHTTPClient builds a KubeRootCAHTTPClient.
func NewKubeRootCAHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *KubeRootCAHTTPClient {
	return &KubeRootCAHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *KubeRootCAHTTPClient) authedRequest(ctx context.Context, region, method, path string, body any, out any) error {
	tok, err := c.ident.Token(ctx, region, model.EndpointKubeRootCA)
	if err != nil {
		return fmt.Errorf("kube-rootca auth for %s: %w", region, err)
	}

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL(region)+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", tok.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *KubeRootCAHTTPClient) RootCAFingerprint(ctx context.Context, region string) (string, error) {
	var result struct {
		Fingerprint string `json:"fingerprint"`
	}
	err := c.authedRequest(ctx, region, http.MethodGet, "/v1/kube_rootca/fingerprint", nil, &result)
	return result.Fingerprint, err
}

func (c *KubeRootCAHTTPClient) UpdateHostTrustBundles(ctx context.Context, region, fingerprint string) error {
	return c.authedRequest(ctx, region, http.MethodPost, "/v1/kube_rootca/hosts", map[string]string{"fingerprint": fingerprint}, nil)
}

func (c *KubeRootCAHTTPClient) RestartPods(ctx context.Context, region string) error {
	return c.authedRequest(ctx, region, http.MethodPost, "/v1/kube_rootca/pods/restart", nil, nil)
}
