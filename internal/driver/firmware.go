package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riddopic/distcloud/internal/model"
)

// FirmwareHTTPClient is an HTTP-backed FirmwareClient.
type FirmwareHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewFirmwareHTTPClient builds a FirmwareHTTPClient.
func NewFirmwareHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *FirmwareHTTPClient {
	return &FirmwareHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *FirmwareHTTPClient) authedRequest(ctx context.Context, region, method, path string, body any, out any) error {
	tok, err := c.ident.Token(ctx, region, model.EndpointFirmware)
	if err != nil {
		return fmt.Errorf("firmware auth for %s: %w", region, err)
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

func (c *FirmwareHTTPClient) DeviceImageFingerprints(ctx context.Context, region string) ([]string, error) {
	var fingerprints []string
	err := c.authedRequest(ctx, region, http.MethodGet, "/v1/device_images", nil, &fingerprints)
	return fingerprints, err
}

func (c *FirmwareHTTPClient) ApplyDeviceImages(ctx context.Context, region string, fingerprints []string) error {
	return c.authedRequest(ctx, region, http.MethodPost, "/v1/device_images/apply", fingerprints, nil)
}
