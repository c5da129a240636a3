package driver

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/riddopic/distcloud/internal/model"
	"github.com/riddopic/distcloud/pkg/logging"
)

// nearExpiryFloorSeconds and nearExpiryCeilSeconds bound the uniform
// distribution [300, 480) a token's remaining lifetime is compared
// against to decide whether it needs pre-renewal. Drawing the threshold
// itself from a range, in steps of 20s, spreads renewals for hundreds of
// subclouds across audit cycles instead of bunching them all at once.
const (
	nearExpiryFloorSeconds = 300
	nearExpiryCeilSeconds  = 480
	nearExpiryStepSeconds  = 20
)

// tokenKey identifies a cached token slot; renewal is idempotent per key.
type tokenKey struct {
	region   string
	endpoint model.EndpointType
}

// IdentityHTTPClient is an HTTP-backed IdentityClient. It caches issued
// tokens per (region, endpoint) and renews them when they are absent or
// judged "near expiry" (see isNearExpiry).
type IdentityHTTPClient struct {
	http    *HTTPClient
	baseURL func(region string) string
	rng     func() int // returns a near-expiry threshold in seconds

	mu     sync.Mutex
	tokens map[tokenKey]Token
	inFlight map[tokenKey]chan struct{}
}

// NewIdentityHTTPClient builds an IdentityHTTPClient. baseURL resolves a
// region to its identity service base URL.
func NewIdentityHTTPClient(httpClient *HTTPClient, baseURL func(region string) string) *IdentityHTTPClient {
	return &IdentityHTTPClient{
		http:     httpClient,
		baseURL:  baseURL,
		rng:      defaultNearExpiryThreshold,
		tokens:   make(map[tokenKey]Token),
		inFlight: make(map[tokenKey]chan struct{}),
	}
}

// defaultNearExpiryThreshold draws a value from [300, 480) in steps of
// 20, per §4.1.
func defaultNearExpiryThreshold() int {
	steps := (nearExpiryCeilSeconds - nearExpiryFloorSeconds) / nearExpiryStepSeconds
	n, err := rand.Int(rand.Reader, big.NewInt(int64(steps)))
	if err != nil {
		return nearExpiryFloorSeconds
	}
	return nearExpiryFloorSeconds + int(n.Int64())*nearExpiryStepSeconds
}

// Endpoint returns the identity service's admin endpoint for region.
func (c *IdentityHTTPClient) Endpoint(ctx context.Context, region string) (string, error) {
	return c.baseURL(region) + "/v3", nil
}

// Token returns a valid bearer token for (region, endpoint), renewing it
// if absent or near expiry. Concurrent callers for the same key await a
// single in-flight renewal rather than each issuing their own request.
func (c *IdentityHTTPClient) Token(ctx context.Context, region string, endpoint model.EndpointType) (Token, error) {
	key := tokenKey{region: region, endpoint: endpoint}

	c.mu.Lock()
	tok, ok := c.tokens[key]
	needsRenew := !ok || c.isNearExpiry(tok)
	if !needsRenew {
		c.mu.Unlock()
		return tok, nil
	}

	if wait, inFlight := c.inFlight[key]; inFlight {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
		c.mu.Lock()
		tok = c.tokens[key]
		c.mu.Unlock()
		return tok, nil
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	c.mu.Unlock()

	tok, err := c.renew(ctx, region, endpoint)

	c.mu.Lock()
	if err == nil {
		c.tokens[key] = tok
	}
	delete(c.inFlight, key)
	close(done)
	c.mu.Unlock()

	return tok, err
}

// isNearExpiry reports whether tok's remaining lifetime is below a
// randomized threshold in [300, 480) seconds.
func (c *IdentityHTTPClient) isNearExpiry(tok Token) bool {
	remaining := time.Until(tok.Expiry)
	threshold := time.Duration(c.rng()) * time.Second
	return remaining < threshold
}

// renew issues a new token request to the identity service.
func (c *IdentityHTTPClient) renew(ctx context.Context, region string, endpoint model.EndpointType) (Token, error) {
	base, err := c.Endpoint(ctx, region)
	if err != nil {
		return Token{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/tokens", nil)
	if err != nil {
		return Token{}, err
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Token{}, fmt.Errorf("renew token for %s/%s: %w", region, endpoint, err)
	}
	defer resp.Body.Close()

	accessToken := resp.Header.Get("X-Subject-Token")
	expiry := extractExpiry(accessToken)

	logging.Info("driver.identity", "renewed token for region=%s endpoint=%s expiry=%s", region, endpoint, expiry)
	return Token{AccessToken: accessToken, Expiry: expiry}, nil
}

// extractExpiry reads the exp claim from a JWT-shaped access token. If
// the token cannot be parsed (the identity service may issue opaque
// tokens), a one-hour expiry is assumed so near-expiry renewal still
// eventually fires.
func extractExpiry(accessToken string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(accessToken, claims)
	if err != nil {
		return time.Now().Add(time.Hour)
	}
	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return time.Now().Add(time.Hour)
	}
	return time.Unix(int64(expFloat), 0)
}

// asOAuth2Token converts a Token into the oauth2.Token shape used to
// interoperate with any OAuth-aware transport the identity service might
// sit behind.
func asOAuth2Token(t Token) *oauth2.Token {
	return &oauth2.Token{AccessToken: t.AccessToken, Expiry: t.Expiry, TokenType: "Bearer"}
}
