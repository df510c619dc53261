package mqttsvc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a Config on top of DefaultConfig and validates it,
// so documents embedding a Config only need the keys they change
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	cfg := plain(DefaultConfig())
	if err := value.Decode(&cfg); err != nil {
		return err
	}
	*c = Config(cfg)
	c.applyDefaults()
	return c.Validate()
}

// LoadConfig reads a Config from a YAML file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a Config from YAML, an empty document yields DefaultConfig
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
