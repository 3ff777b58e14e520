package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fleetline.yml.
type Config struct {
	Fleet struct {
		Name string `yaml:"name"`
	} `yaml:"fleet"`
	Capability struct {
		// Codes are ordered least to most restrictive. The first code is
		// the baseline "fully capable" status an event carries when no
		// blocker is active.
		Codes    []string `yaml:"codes"`
		Baseline string   `yaml:"baseline"`
	} `yaml:"capability"`
	Priorities []string `yaml:"priorities"`
	Seeding    struct {
		Debug   bool   `yaml:"debug"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"seeding"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Capability.Codes) == 0 {
		return fmt.Errorf("config.capability.codes is required")
	}
	seen := map[string]bool{}
	for _, code := range c.Capability.Codes {
		if code == "" {
			return fmt.Errorf("config.capability.codes contains an empty code")
		}
		if seen[code] {
			return fmt.Errorf("config.capability.codes contains duplicate code %s", code)
		}
		seen[code] = true
	}
	if c.Capability.Baseline == "" {
		c.Capability.Baseline = c.Capability.Codes[0]
	}
	if c.Capability.Baseline != c.Capability.Codes[0] {
		return fmt.Errorf("config.capability.baseline %s must be the least restrictive code (%s)", c.Capability.Baseline, c.Capability.Codes[0])
	}
	if len(c.Priorities) == 0 {
		return fmt.Errorf("config.priorities is required")
	}
	for _, p := range c.Priorities {
		if p == "" {
			return fmt.Errorf("config.priorities contains an empty priority")
		}
	}
	return nil
}

// SeverityRank returns the position of a capability code in the severity
// order. Higher rank means more restrictive. Unknown codes report false.
func (c *Config) SeverityRank(code string) (int, bool) {
	for i, candidate := range c.Capability.Codes {
		if candidate == code {
			return i, true
		}
	}
	return 0, false
}

// ValidPriority reports whether p is one of the configured priority levels.
func (c *Config) ValidPriority(p string) bool {
	for _, candidate := range c.Priorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fleetline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `fleet:
  name: default-fleet

capability:
  # Least to most restrictive. FMC = fully mission capable,
  # PMC = partially mission capable, NMC = not mission capable.
  codes: [FMC, PMC, NMC]
  baseline: FMC

priorities: [Low, Medium, High, Critical]

seeding:
  debug: false
  data_dir: ""
`
