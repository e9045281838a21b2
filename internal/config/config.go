package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "teamplan.yml"

// Config models teamplan.yml.
type Config struct {
	Planner  Planner   `yaml:"planner"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Planner tunes prioritization. Mode and strategy names are validated here as
// plain strings so the config package stays free of engine imports.
type Planner struct {
	DefaultMode          string   `yaml:"default_mode"`
	Strategy             string   `yaml:"strategy"`
	Gap                  float64  `yaml:"gap"`
	NodeLimit            int      `yaml:"node_limit"`
	TimeLimit            Duration `yaml:"time_limit"`
	BacktrackMaxProjects int      `yaml:"backtrack_max_projects"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries; hooks are enabled
// unless switched off explicitly.
func (w Webhook) Active() bool {
	return w.Enabled == nil || *w.Enabled
}

// Wants reports whether the hook subscribes to eventType. An empty list or
// "*" subscribes to everything; "plan.*" matches every plan event.
func (w Webhook) Wants(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == "*" || e == eventType {
			return true
		}
		if strings.HasSuffix(e, ".*") && strings.HasPrefix(eventType, strings.TrimSuffix(e, "*")) {
			return true
		}
	}
	return false
}

// Duration is a time.Duration written as "10s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

var (
	validModes      = []string{"naive", "sequential", "naive-deps", "greedy-with-dependencies", "greedy", "optimized", "optimal"}
	validStrategies = []string{"mip", "backtrack", "auto"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	p := c.Planner
	if p.DefaultMode != "" && !oneOf(p.DefaultMode, validModes) {
		return fmt.Errorf("config.planner.default_mode %q is not a known mode", p.DefaultMode)
	}
	if p.Strategy != "" && !oneOf(p.Strategy, validStrategies) {
		return fmt.Errorf("config.planner.strategy must be one of %s", strings.Join(validStrategies, ", "))
	}
	if p.Gap < 0 || p.Gap >= 1 {
		return fmt.Errorf("config.planner.gap must be in [0,1)")
	}
	if p.NodeLimit < 0 {
		return fmt.Errorf("config.planner.node_limit must not be negative")
	}
	if p.TimeLimit < 0 {
		return fmt.Errorf("config.planner.time_limit must not be negative")
	}
	if p.BacktrackMaxProjects < 0 {
		return fmt.Errorf("config.planner.backtrack_max_projects must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, e := range hook.Events {
			if e == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields left out of
// the file keep their default values.
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

// YAML renders c back to the file format.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const defaultTemplate = `planner:
  default_mode: optimized
  strategy: mip
  # relative optimality gap accepted by the MIP search
  gap: 0.005
  node_limit: 200000
  time_limit: 10s
  backtrack_max_projects: 16

# webhooks:
#   - url: https://example.com/hooks/teamplan
#     events: ["plan.*"]
#     secret: change-me
#     timeout_seconds: 5
webhooks: []
`
