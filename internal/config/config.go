// Package config loads the settings of the mqttsvc command from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/srishina/mqttsvc"
	"github.com/srishina/mqttsvc/internal/mqttutil"
	"github.com/srishina/mqttsvc/paho"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the mqttsvc command
type Config struct {
	Client        ClientConfig         `yaml:"client"`
	Broker        paho.Config          `yaml:"broker"`
	Service       mqttsvc.Config       `yaml:"service"`
	Reconnect     ReconnectConfig      `yaml:"reconnect"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Logging       LoggingConfig        `yaml:"logging"`
}

// ClientConfig identifies the client towards the broker. An empty ID is
// replaced by a generated one.
type ClientConfig struct {
	ID   string                 `yaml:"id"`
	Role mqttsvc.ConnectionRole `yaml:"role"`
}

// ReconnectConfig drives the exponential backoff used after failed or
// lost connections
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// SubscriptionConfig is a topic filter subscribed at startup
type SubscriptionConfig struct {
	Topic string      `yaml:"topic"`
	QoS   mqttsvc.QoS `yaml:"qos"`
}

// LoggingConfig selects the logrus level and formatter
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration for a pub/sub client on a local broker
func Default() *Config {
	return &Config{
		Client:  ClientConfig{Role: mqttsvc.RolePubSub},
		Broker:  paho.DefaultConfig(),
		Service: mqttsvc.DefaultConfig(),
		Reconnect: ReconnectConfig{
			Enabled:      true,
			InitialDelay: time.Second,
			MaxDelay:     20 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from path. Settings missing from the file
// keep their defaults, MQTTSVC_* environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Client.ID == "" {
		cfg.Client.ID = "mqttsvc-" + uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTSVC_BROKER_URL"); v != "" {
		cfg.Broker.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MQTTSVC_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}
	if v := os.Getenv("MQTTSVC_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("MQTTSVC_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []string

	id := mqttsvc.ClientIdentity{ClientID: c.Client.ID, Role: c.Client.Role}
	if err := id.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Broker.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Service.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Reconnect.Enabled && c.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "reconnect.initial_delay must be positive")
	}
	for i, s := range c.Subscriptions {
		if strings.TrimSpace(s.Topic) == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].topic is required", i))
		} else if err := mqttutil.ValidateSubscribeTopic(s.Topic); err != nil {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].topic %q: %v", i, s.Topic, err))
		}
		if !s.QoS.Valid() {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].qos must be 0, 1, or 2", i))
		}
	}
	if len(c.Subscriptions) > 0 && !c.Client.Role.CanReceive() {
		errs = append(errs, fmt.Sprintf("subscriptions are not allowed for role %s", c.Client.Role))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", mqttsvc.ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}

// Identity returns the client identity described by the configuration
func (c *Config) Identity() mqttsvc.ClientIdentity {
	return mqttsvc.ClientIdentity{ClientID: c.Client.ID, Role: c.Client.Role}
}

// NewLogger builds a logrus logger writing to stderr with the configured
// level and format
func (c *Config) NewLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	if level, err := log.ParseLevel(c.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Logging.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}
