package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"planforge/internal/domain"
)

// Config models planforge.yaml at the project root.
type Config struct {
	ExecutionPolicy   string                         `yaml:"execution_policy"`
	MaxParallelAgents int                            `yaml:"max_parallel_agents"`
	DefaultStakes     string                         `yaml:"default_stakes"`
	Stakes            map[string]domain.StakesPolicy `yaml:"stakes"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.ExecutionPolicy != "parallel" && c.ExecutionPolicy != "serial" {
		return fmt.Errorf("config.execution_policy must be 'parallel' or 'serial'")
	}
	if c.MaxParallelAgents < 1 {
		return fmt.Errorf("config.max_parallel_agents must be at least 1")
	}
	if c.DefaultStakes == "" {
		return fmt.Errorf("config.default_stakes is required")
	}
	if _, ok := c.Stakes[c.DefaultStakes]; !ok {
		return fmt.Errorf("config.default_stakes %s not defined under stakes", c.DefaultStakes)
	}
	for name, p := range c.Stakes {
		if p.RewardTarget <= 0 || p.RewardTarget > 100 {
			return fmt.Errorf("stakes %s: reward_target must be in (0,100]", name)
		}
		if p.MaxIterations < 1 {
			return fmt.Errorf("stakes %s: max_iterations must be at least 1", name)
		}
	}
	return nil
}

// Serial reports whether the execution policy forces one job at a time.
func (c *Config) Serial() bool {
	return c.ExecutionPolicy == "serial"
}

// StakesPolicy resolves a stakes level, falling back to the default level
// and finally to the built-in table.
func (c *Config) StakesPolicy(level string) (string, domain.StakesPolicy) {
	if level == "" {
		level = c.DefaultStakes
	}
	if p, ok := c.Stakes[level]; ok {
		return level, p
	}
	if p, ok := domain.DefaultStakes[level]; ok {
		return level, p
	}
	return c.DefaultStakes, c.Stakes[c.DefaultStakes]
}

// Path returns the config file path for a project root.
func Path(root string) string {
	if root == "" {
		root = "."
	}
	return filepath.Join(root, "planforge.yaml")
}

// Load reads and validates config from the project root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	cfg := &Config{}
	_ = yaml.Unmarshal([]byte(defaultTemplate), cfg)
	return cfg
}

// GenerateDefault returns default config YAML, written on project scaffold.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `execution_policy: parallel
max_parallel_agents: 3
default_stakes: normal

stakes:
  low:
    reward_target: 70
    max_iterations: 2
  normal:
    reward_target: 80
    max_iterations: 3
  high:
    reward_target: 90
    max_iterations: 5
  critical:
    reward_target: 95
    max_iterations: 7
`
