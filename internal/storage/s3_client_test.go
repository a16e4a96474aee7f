package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewClientRequiresBucket rejects incomplete settings.
func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
	assert.False(t, S3Config{Region: "us-east-1"}.Configured())
}

// TestPresignGetUsesCustomEndpoint signs path-style URLs against the configured endpoint.
func TestPresignGetUsesCustomEndpoint(t *testing.T) {
	c, err := NewClient(context.Background(), S3Config{
		Region:     "us-east-1",
		Bucket:     "debug",
		AccessKey:  "key",
		SecretKey:  "secret",
		Endpoint:   "http://localhost:9000",
		PresignTTL: time.Minute,
	})
	require.NoError(t, err)

	u, err := c.PresignGet(context.Background(), "dumps/a.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/debug/dumps/a.json?"), u)
}

// TestNilClient guards against use before configuration.
func TestNilClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.PutObject(context.Background(), "k", nil, "application/json"))
}
