package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SysinvHTTPClient is an HTTP-backed SysinvClient.
type SysinvHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewSysinvHTTPClient builds a SysinvHTTPClient.
func NewSysinvHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *SysinvHTTPClient {
	return &SysinvHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *SysinvHTTPClient) authedGet(ctx context.Context, region, path string, out any) error {
	tok, err := c.ident.Token(ctx, region, "sysinv")
	if err != nil {
		return fmt.Errorf("sysinv auth for %s: %w", region, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(region)+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", tok.AccessToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *SysinvHTTPClient) ListLoads(ctx context.Context, region string) ([]Load, error) {
	var loads []Load
	err := c.authedGet(ctx, region, "/v1/loads", &loads)
	return loads, err
}

func (c *SysinvHTTPClient) ListUpgrades(ctx context.Context, region string) ([]Upgrade, error) {
	var upgrades []Upgrade
	err := c.authedGet(ctx, region, "/v1/upgrade", &upgrades)
	return upgrades, err
}

func (c *SysinvHTTPClient) GetSystem(ctx context.Context, region string) (System, error) {
	var sys System
	err := c.authedGet(ctx, region, "/v1/isystems", &sys)
	return sys, err
}

func (c *SysinvHTTPClient) ListServiceGroups(ctx context.Context, region string) ([]ServiceGroup, error) {
	var groups []ServiceGroup
	err := c.authedGet(ctx, region, "/v1/servicegroup", &groups)
	return groups, err
}

func (c *SysinvHTTPClient) ListApplications(ctx context.Context, region string) ([]Application, error) {
	var apps []Application
	err := c.authedGet(ctx, region, "/v1/apps", &apps)
	return apps, err
}

func (c *SysinvHTTPClient) ListKubeVersions(ctx context.Context, region string) ([]KubeVersion, error) {
	var versions []KubeVersion
	err := c.authedGet(ctx, region, "/v1/kube_versions", &versions)
	return versions, err
}

func (c *SysinvHTTPClient) ListKubeUpgrades(ctx context.Context, region string) ([]KubeUpgrade, error) {
	var upgrades []KubeUpgrade
	err := c.authedGet(ctx, region, "/v1/kube_upgrade", &upgrades)
	return upgrades, err
}
