package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models nomina.yml.
type Config struct {
	Cycle struct {
		AnchorWeekday string `yaml:"anchor_weekday"`
		Timezone      string `yaml:"timezone"`
	} `yaml:"cycle"`
	Ledger struct {
		EscalatedRoles []string `yaml:"escalated_roles"`
		FrontlineRoles []string `yaml:"frontline_roles"`
	} `yaml:"ledger"`
	Alerts struct {
		CodePrefix string `yaml:"code_prefix"`
	} `yaml:"alerts"`
	Log struct {
		Level string `yaml:"level"`
		Debug bool   `yaml:"debug"`
	} `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with nomina config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, ok := weekdays[strings.ToLower(c.Cycle.AnchorWeekday)]; !ok {
		return fmt.Errorf("config.cycle.anchor_weekday %q is not a weekday", c.Cycle.AnchorWeekday)
	}
	if _, err := time.LoadLocation(c.Cycle.Timezone); err != nil {
		return fmt.Errorf("config.cycle.timezone %q: %w", c.Cycle.Timezone, err)
	}
	if len(c.Ledger.EscalatedRoles) == 0 {
		return fmt.Errorf("config.ledger.escalated_roles is required")
	}
	for _, r := range append(append([]string{}, c.Ledger.EscalatedRoles...), c.Ledger.FrontlineRoles...) {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("config.ledger has empty role id")
		}
	}
	if strings.TrimSpace(c.Alerts.CodePrefix) == "" {
		return fmt.Errorf("config.alerts.code_prefix is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Anchor returns the weekday that opens each operational week.
func (c *Config) Anchor() time.Weekday {
	return weekdays[strings.ToLower(c.Cycle.AnchorWeekday)]
}

// Location returns the time zone calendar days are evaluated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Cycle.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Escalated reports whether any of roles may edit past the closing boundary.
func (c *Config) Escalated(roles []string) bool {
	for _, r := range roles {
		for _, e := range c.Ledger.EscalatedRoles {
			if r == e {
				return true
			}
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "nomina.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `cycle:
  anchor_weekday: monday
  timezone: America/Bogota

ledger:
  escalated_roles: [coordinator, admin]
  frontline_roles: [supervisor]

alerts:
  code_prefix: ALR

log:
  level: info
  debug: false

server:
  addr: ":8080"
  base_path: /v1
`
