package paho

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/srishina/mqttsvc"
)

// Config contains the broker connection settings of a Transport
type Config struct {
	// Brokers are tried in order, schemes tcp, ssl, tls, ws and wss are supported
	Brokers           []string      `yaml:"brokers"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	PersistentSession bool          `yaml:"persistent_session"`
	KeepAlive         time.Duration `yaml:"keep_alive"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	// AutoReconnect lets the transport re-establish lost connections itself
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	Will                 *Will         `yaml:"will"`
	TLS                  TLSConfig     `yaml:"tls"`
}

// Will is the message the broker publishes when the client disappears
type Will struct {
	Topic    string      `yaml:"topic"`
	Payload  string      `yaml:"payload"`
	QoS      mqttsvc.QoS `yaml:"qos"`
	Retained bool        `yaml:"retained"`
}

// TLSConfig selects the certificates for ssl, tls and wss brokers
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// DefaultConfig returns the settings used for a local broker
func DefaultConfig() Config {
	return Config{
		Brokers:              []string{"tcp://localhost:1883"},
		KeepAlive:            30 * time.Second,
		PingTimeout:          10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ConnectTimeout:       30 * time.Second,
		MaxReconnectInterval: time.Minute,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if len(c.Brokers) == 0 {
		c.Brokers = def.Brokers
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = def.MaxReconnectInterval
	}
}

var supportedSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

// Validate checks the broker URLs and the will message
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: at least one broker must be set", mqttsvc.ErrValidation)
	}
	for _, b := range c.Brokers {
		u, err := url.Parse(b)
		if err != nil {
			return fmt.Errorf("%w: broker %q: %v", mqttsvc.ErrValidation, b, err)
		}
		if !supportedSchemes[strings.ToLower(u.Scheme)] {
			return fmt.Errorf("%w: broker %q: unsupported scheme %q", mqttsvc.ErrValidation, b, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: broker %q: missing host", mqttsvc.ErrValidation, b)
		}
	}
	if c.Will != nil {
		if c.Will.Topic == "" || strings.ContainsAny(c.Will.Topic, "+#") {
			return fmt.Errorf("%w: invalid will topic %q", mqttsvc.ErrValidation, c.Will.Topic)
		}
		if !c.Will.QoS.Valid() {
			return fmt.Errorf("%w: invalid will %v", mqttsvc.ErrValidation, c.Will.QoS)
		}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls cert_file and key_file must be set together", mqttsvc.ErrValidation)
	}
	return nil
}

// tlsConfig builds the client TLS configuration, nil when nothing is configured
func (t TLSConfig) tlsConfig() (*tls.Config, error) {
	if t.CAFile == "" && t.CertFile == "" && !t.InsecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}
	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
