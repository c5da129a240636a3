package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riddopic/distcloud/internal/model"
)

// IdentityResource is a subcloud-side identity object (user, project, or
// role) as returned by the identity service.
type IdentityResource struct {
	ID   string
	Data map[string]any
}

// IdentityResourceClient abstracts the identity-service CRUD surface the
// sync engine's identity resource handlers drive. resourceType is one of
// "users", "projects", "roles".
type IdentityResourceClient interface {
	List(ctx context.Context, region, resourceType string) ([]IdentityResource, error)
	Create(ctx context.Context, region, resourceType string, data map[string]any) (string, error)
	Update(ctx context.Context, region, resourceType, subcloudResourceID string, data map[string]any) error
	Delete(ctx context.Context, region, resourceType, subcloudResourceID string) error
}

// IdentityResourceHTTPClient is an HTTP-backed IdentityResourceClient.
type IdentityResourceHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewIdentityResourceHTTPClient builds an IdentityResourceHTTPClient.
func NewIdentityResourceHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *IdentityResourceHTTPClient {
	return &IdentityResourceHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *IdentityResourceHTTPClient) authedRequest(ctx context.Context, region, method, path string, body any, out any) error {
	tok, err := c.ident.Token(ctx, region, model.EndpointIdentity)
	if err != nil {
		return fmt.Errorf("identity auth for %s: %w", region, err)
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

func (c *IdentityResourceHTTPClient) List(ctx context.Context, region, resourceType string) ([]IdentityResource, error) {
	var items []IdentityResource
	err := c.authedRequest(ctx, region, http.MethodGet, "/v3/"+resourceType, nil, &items)
	return items, err
}

func (c *IdentityResourceHTTPClient) Create(ctx context.Context, region, resourceType string, data map[string]any) (string, error) {
	var created IdentityResource
	if err := c.authedRequest(ctx, region, http.MethodPost, "/v3/"+resourceType, data, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *IdentityResourceHTTPClient) Update(ctx context.Context, region, resourceType, subcloudResourceID string, data map[string]any) error {
	return c.authedRequest(ctx, region, http.MethodPatch, "/v3/"+resourceType+"/"+subcloudResourceID, data, nil)
}

func (c *IdentityResourceHTTPClient) Delete(ctx context.Context, region, resourceType, subcloudResourceID string) error {
	return c.authedRequest(ctx, region, http.MethodDelete, "/v3/"+resourceType+"/"+subcloudResourceID, nil, nil)
}
