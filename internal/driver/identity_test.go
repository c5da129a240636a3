package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsNearExpiryUsesThresholdFunc(t *testing.T) {
	c := &IdentityHTTPClient{rng: func() int { return 400 }}

	farFuture := Token{Expiry: time.Now().Add(10 * time.Minute)}
	assert.False(t, c.isNearExpiry(farFuture))

	nearExpiry := Token{Expiry: time.Now().Add(200 * time.Second)}
	assert.True(t, c.isNearExpiry(nearExpiry))
}

func TestDefaultNearExpiryThresholdInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := defaultNearExpiryThreshold()
		assert.GreaterOrEqual(t, v, nearExpiryFloorSeconds)
		assert.Less(t, v, nearExpiryCeilSeconds)
		assert.Zero(t, v%nearExpiryStepSeconds)
	}
}

func TestExtractExpiryFallsBackOnOpaqueToken(t *testing.T) {
	before := time.Now()
	exp := extractExpiry("not-a-jwt")
	assert.True(t, exp.After(before.Add(59*time.Minute)))
}
