package mqttsvc

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Config contains the tunables of a client
type Config struct {
	// DefaultQoS is used by Subscribe, Publish without a QoS and status messages
	DefaultQoS         QoS             `yaml:"default_qos"`
	ConnectTimeout     time.Duration   `yaml:"connect_timeout"`
	SubscribeTimeout   time.Duration   `yaml:"subscribe_timeout"`
	UnsubscribeTimeout time.Duration   `yaml:"unsubscribe_timeout"`
	DisconnectTimeout  time.Duration   `yaml:"disconnect_timeout"`
	Status             *StatusMessages `yaml:"status"`
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		DefaultQoS:         AtMostOnce,
		ConnectTimeout:     30 * time.Second,
		SubscribeTimeout:   30 * time.Second,
		UnsubscribeTimeout: 30 * time.Second,
		DisconnectTimeout:  60 * time.Second,
	}
}

// applyDefaults replaces unset timeouts with the defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	if c.UnsubscribeTimeout <= 0 {
		c.UnsubscribeTimeout = def.UnsubscribeTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = def.DisconnectTimeout
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.DefaultQoS.Valid() {
		return validationErrorf("invalid default %v", c.DefaultQoS)
	}
	if c.Status != nil {
		if err := c.Status.validate(); err != nil {
			return err
		}
	}
	return nil
}

// clientOptions contains the collaborators and settings of a client
type clientOptions struct {
	config          Config
	observer        Observer
	policy          ReconnectPolicy
	scheduler       Scheduler
	statusPublisher ConnectionStatusPublisher
	handler         MessageHandler
	logger          *log.Logger
}

var defaultClientOptions = clientOptions{
	config: DefaultConfig(),
}

// ClientOption ...
type ClientOption func(*clientOptions) error

// WithConfig sets the tunables, zero timeouts are replaced by the defaults
func WithConfig(cfg Config) ClientOption {
	return func(o *clientOptions) error {
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithObserver sets the observer receiving the client's events
func WithObserver(observer Observer) ClientOption {
	return func(o *clientOptions) error {
		o.observer = observer
		return nil
	}
}

// WithReconnectPolicy reconnects the client through the scheduler at the
// times returned by the policy
func WithReconnectPolicy(policy ReconnectPolicy, scheduler Scheduler) ClientOption {
	return func(o *clientOptions) error {
		if policy == nil || scheduler == nil {
			return validationErrorf("reconnect policy and scheduler must both be set")
		}
		o.policy = policy
		o.scheduler = scheduler
		return nil
	}
}

// WithStatusPublisher publishes connection status messages, it takes
// precedence over Config.Status
func WithStatusPublisher(publisher ConnectionStatusPublisher) ClientOption {
	return func(o *clientOptions) error {
		o.statusPublisher = publisher
		return nil
	}
}

// WithMessageHandler sets the handler of arriving messages
func WithMessageHandler(handler MessageHandler) ClientOption {
	return func(o *clientOptions) error {
		o.handler = handler
		return nil
	}
}

// WithLogger logs through the given logger instead of the standard logger
func WithLogger(logger *log.Logger) ClientOption {
	return func(o *clientOptions) error {
		o.logger = logger
		return nil
	}
}
