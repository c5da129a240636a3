package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riddopic/distcloud/internal/model"
)

// FmHTTPClient is an HTTP-backed FmClient.
type FmHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	ident   IdentityClient
}

// NewFmHTTPClient builds an FmHTTPClient.
func NewFmHTTPClient(httpClient *HTTPClient, baseURL func(region string) string, ident IdentityClient) *FmHTTPClient {
	return &FmHTTPClient{http: httpClient, baseURL: baseURL, ident: ident}
}

func (c *FmHTTPClient) AlarmSummary(ctx context.Context, region string) (AlarmSummary, error) {
	tok, err := c.ident.Token(ctx, region, model.EndpointIdentity)
	if err != nil {
		return AlarmSummary{}, fmt.Errorf("fm auth for %s: %w", region, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(region)+"/v1/alarms/summary", nil)
	if err != nil {
		return AlarmSummary{}, err
	}
	req.Header.Set("X-Auth-Token", tok.AccessToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return AlarmSummary{}, err
	}
	defer resp.Body.Close()

	var summary AlarmSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return AlarmSummary{}, fmt.Errorf("decode alarm summary for %s: %w", region, err)
	}
	return summary, nil
}
