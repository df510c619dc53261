package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/srishina/mqttsvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"MQTTSVC_BROKER_URL", "MQTTSVC_CLIENT_ID", "MQTTSVC_USERNAME", "MQTTSVC_PASSWORD"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
client:
  id: sensor-gateway
  role: subscriber
broker:
  brokers: ["ws://broker.local:8080/mqtt"]
  username: gw
  auto_reconnect: false
service:
  default_qos: 1
  subscribe_timeout: 5s
  status:
    topic: clients/status
    connected: "{client_id} online"
    disconnected: "{client_id} offline"
    retained: true
reconnect:
  initial_delay: 2s
  max_delay: 40s
subscriptions:
  - topic: devices/+/state
    qos: 1
  - topic: alarms/#
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sensor-gateway", cfg.Client.ID)
	assert.Equal(t, mqttsvc.RoleSubscriber, cfg.Client.Role)
	assert.Equal(t, []string{"ws://broker.local:8080/mqtt"}, cfg.Broker.Brokers)
	assert.Equal(t, "gw", cfg.Broker.Username)
	// keys absent from the file keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Broker.KeepAlive)
	assert.Equal(t, mqttsvc.AtLeastOnce, cfg.Service.DefaultQoS)
	assert.Equal(t, 5*time.Second, cfg.Service.SubscribeTimeout)
	assert.Equal(t, 60*time.Second, cfg.Service.DisconnectTimeout)
	require.NotNil(t, cfg.Service.Status)
	assert.Equal(t, "clients/status", cfg.Service.Status.Topic)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 40*time.Second, cfg.Reconnect.MaxDelay)
	require.Len(t, cfg.Subscriptions, 2)
	assert.Equal(t, mqttsvc.AtLeastOnce, cfg.Subscriptions[0].QoS)
	assert.Equal(t, mqttsvc.AtMostOnce, cfg.Subscriptions[1].QoS)
	assert.Equal(t, mqttsvc.ClientIdentity{ClientID: "sensor-gateway", Role: mqttsvc.RoleSubscriber}, cfg.Identity())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cfg.Client.ID, "mqttsvc-"))
	assert.Equal(t, mqttsvc.RolePubSub, cfg.Client.Role)
	assert.Equal(t, []string{"tcp://localhost:1883"}, cfg.Broker.Brokers)
	assert.Equal(t, mqttsvc.DefaultConfig(), cfg.Service)

	other, err := Load("")
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Client.ID, other.Client.ID)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTTSVC_BROKER_URL", "tcp://a:1883,ssl://b:8883")
	t.Setenv("MQTTSVC_CLIENT_ID", "from-env")
	t.Setenv("MQTTSVC_USERNAME", "user")
	t.Setenv("MQTTSVC_PASSWORD", "secret")

	path := writeConfig(t, `
client:
  id: from-file
broker:
  brokers: ["tcp://file:1883"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Client.ID)
	assert.Equal(t, []string{"tcp://a:1883", "ssl://b:8883"}, cfg.Broker.Brokers)
	assert.Equal(t, "user", cfg.Broker.Username)
	assert.Equal(t, "secret", cfg.Broker.Password)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadUnknownRole(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "client:\n  role: observer\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, mqttsvc.ErrValidation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad broker scheme", func(c *Config) { c.Broker.Brokers = []string{"http://x"} }, "unsupported scheme"},
		{"bad default qos", func(c *Config) { c.Service.DefaultQoS = 3 }, "default"},
		{"zero reconnect delay", func(c *Config) { c.Reconnect.InitialDelay = 0 }, "reconnect.initial_delay"},
		{"reconnect disabled ignores delay", func(c *Config) {
			c.Reconnect.Enabled = false
			c.Reconnect.InitialDelay = 0
		}, ""},
		{"empty subscription topic", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{Topic: " "}}
		}, "subscriptions[0].topic"},
		{"malformed subscription filter", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{Topic: "a/b"}, {Topic: "a/#/b"}}
		}, `subscriptions[1].topic "a/#/b"`},
		{"partial wildcard", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{Topic: "a/b+"}}
		}, "subscriptions[0].topic"},
		{"subscription qos", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{Topic: "a", QoS: 5}}
		}, "subscriptions[0].qos"},
		{"publisher with subscriptions", func(c *Config) {
			c.Client.Role = mqttsvc.RolePublisher
			c.Subscriptions = []SubscriptionConfig{{Topic: "a"}}
		}, "not allowed for role publisher"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Client.ID = "c1"
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, mqttsvc.ErrValidation)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	logger := cfg.NewLogger()
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)

	cfg.Logging.Format = "text"
	assert.IsType(t, &log.TextFormatter{}, cfg.NewLogger().Formatter)
}
