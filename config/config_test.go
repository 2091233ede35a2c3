package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BASIC_AUTH_CREDS", "")
	t.Setenv("ACCOUNTS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, "api", cfg.Fetch.Source)
	assert.Equal(t, 20, cfg.Fetch.PerAccountLimit)
	assert.Equal(t, 15*time.Second, cfg.Delivery.SinkTimeout)
	assert.Equal(t, 100, cfg.Delivery.DedupCapacity)
	assert.Empty(t, cfg.GetCreds())
	assert.False(t, cfg.MailgunEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ACCOUNTS", "alice,bob")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("BASIC_AUTH_CREDS", "admin:secret, ops : hunter2")
	t.Setenv("WEBHOOK_URL", "http://hooks.local/in")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, cfg.Accounts)
	assert.Equal(t, 90*time.Second, cfg.PollInterval)
	assert.Equal(t, "http://hooks.local/in", cfg.Delivery.WebhookURL)
	assert.Equal(t, map[string]string{"admin": "secret", "ops": "hunter2"}, cfg.GetCreds())
}

func TestLoadRejectsMalformedCreds(t *testing.T) {
	t.Setenv("BASIC_AUTH_CREDS", "admin-without-password")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delimited by a colon")
}
