package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/riddopic/distcloud/internal/model"
)

// PatchingHTTPClient is an HTTP-backed PatchingClient.
type PatchingHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewPatchingHTTPClient builds a PatchingHTTPClient.
func NewPatchingHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *PatchingHTTPClient {
	return &PatchingHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *PatchingHTTPClient) authedRequest(ctx context.Context, region, method, path string) (*http.Response, error) {
	tok, err := c.ident.Token(ctx, region, model.EndpointPatching)
	if err != nil {
		return nil, fmt.Errorf("patching auth for %s: %w", region, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL(region)+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Token", tok.AccessToken)
	return c.http.Do(ctx, req)
}

func (c *PatchingHTTPClient) QueryPatches(ctx context.Context, region string, state *model.PatchState) ([]model.Patch, error) {
	path := "/v1/query"
	if state != nil {
		path += "?" + url.Values{"show": {string(*state)}}.Encode()
	}

	resp, err := c.authedRequest(ctx, region, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var patches []model.Patch
	if err := json.NewDecoder(resp.Body).Decode(&patches); err != nil {
		return nil, fmt.Errorf("decode patches for %s: %w", region, err)
	}
	return patches, nil
}

func (c *PatchingHTTPClient) QueryHosts(ctx context.Context, region string) ([]string, error) {
	resp, err := c.authedRequest(ctx, region, http.MethodGet, "/v1/query_hosts")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var hosts []string
	if err := json.NewDecoder(resp.Body).Decode(&hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

func (c *PatchingHTTPClient) UploadPatch(ctx context.Context, region, patchID string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/upload/"+patchID)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *PatchingHTTPClient) ApplyPatch(ctx context.Context, region, patchID string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/apply/"+patchID)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *PatchingHTTPClient) RemovePatch(ctx context.Context, region, patchID string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/remove/"+patchID)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *PatchingHTTPClient) CommitPatch(ctx context.Context, region, patchID string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodPost, "/v1/commit/"+patchID)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *PatchingHTTPClient) DeletePatch(ctx context.Context, region, patchID string) error {
	resp, err := c.authedRequest(ctx, region, http.MethodDelete, "/v1/delete/"+patchID)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
