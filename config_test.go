package mqttsvc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
default_qos: 1
connect_timeout: 5s
subscribe_timeout: 1500ms
status:
  topic: clients/status
  connected: online
  disconnected: offline
  qos: 2
  retained: true
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, AtLeastOnce, cfg.DefaultQoS)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.SubscribeTimeout)
	assert.Equal(t, 30*time.Second, cfg.UnsubscribeTimeout)
	assert.Equal(t, 60*time.Second, cfg.DisconnectTimeout)

	require.NotNil(t, cfg.Status)
	assert.Equal(t, "clients/status", cfg.Status.StatusTopic())
	assert.True(t, cfg.Status.StatusRetained())
	q, ok := cfg.Status.StatusQoS()
	require.True(t, ok)
	assert.Equal(t, ExactlyOnce, q)
}

func TestParseConfigRejectsInvalidQoS(t *testing.T) {
	_, err := ParseConfig([]byte("default_qos: 3\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestParseConfigRejectsWildcardStatusTopic(t *testing.T) {
	_, err := ParseConfig([]byte("status:\n  topic: clients/#\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disconnect_timeout: 2s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DisconnectTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
