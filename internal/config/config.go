package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

const (
	yamlName = "sitework.yml"
	tomlName = "sitework.toml"
)

// Config models sitework.yml (or sitework.toml).
type Config struct {
	Server struct {
		Addr     string `yaml:"addr" toml:"addr"`
		BasePath string `yaml:"base_path" toml:"base_path"`
	} `yaml:"server" toml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret" toml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header" toml:"allow_legacy_actor_header"`
	} `yaml:"auth" toml:"auth"`
	Visibility struct {
		SalesManager visibility.Policy `yaml:"sales_manager" toml:"sales_manager"`
	} `yaml:"visibility" toml:"visibility"`
	Tasks struct {
		Progress taskstate.ProgressPolicy `yaml:"progress" toml:"progress"`
	} `yaml:"tasks" toml:"tasks"`
	Notifications Notifications `yaml:"notifications" toml:"notifications"`
	Logging       Logging       `yaml:"logging" toml:"logging"`
}

type Notifications struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	Batch       int           `yaml:"batch" toml:"batch"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff" toml:"max_backoff"`
	Webhooks    []Webhook     `yaml:"webhooks" toml:"webhooks"`
}

// Webhook receives notifications as JSON POSTs. An empty Recipients list means every recipient.
type Webhook struct {
	ID         string        `yaml:"id" toml:"id"`
	URL        string        `yaml:"url" toml:"url"`
	Secret     string        `yaml:"secret" toml:"secret"`
	Recipients []string      `yaml:"recipients" toml:"recipients"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
}

type Logging struct {
	Level       string `yaml:"level" toml:"level"`
	Format      string `yaml:"format" toml:"format"`
	OTLP        bool   `yaml:"otlp" toml:"otlp"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if !c.Visibility.SalesManager.Valid() {
		return fmt.Errorf("config.visibility.sales_manager must be one of unrestricted, two_hop (got %q)", c.Visibility.SalesManager)
	}
	if !c.Tasks.Progress.Valid() {
		return fmt.Errorf("config.tasks.progress must be one of overwrite, monotonic (got %q)", c.Tasks.Progress)
	}
	n := c.Notifications
	if n.Interval <= 0 {
		return fmt.Errorf("config.notifications.interval must be positive")
	}
	if n.Batch <= 0 {
		return fmt.Errorf("config.notifications.batch must be positive")
	}
	if n.MaxAttempts <= 0 {
		return fmt.Errorf("config.notifications.max_attempts must be positive")
	}
	if n.BaseBackoff <= 0 || n.MaxBackoff < n.BaseBackoff {
		return fmt.Errorf("config.notifications backoff requires 0 < base_backoff <= max_backoff")
	}
	seen := map[string]bool{}
	for i, hook := range n.Webhooks {
		if hook.ID == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].id is required", i)
		}
		if seen[hook.ID] {
			return fmt.Errorf("duplicate webhook id %s", hook.ID)
		}
		seen[hook.ID] = true
		u, err := url.Parse(hook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", hook.ID, hook.URL)
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("webhook %s timeout must not be negative", hook.ID)
		}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.logging.format must be text or json (got %q)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	return nil
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, yamlName)
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace, trying sitework.yml then sitework.toml.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config %s not found; create one with sw config init", Path(workspace))
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if neither config file exists.
func LoadOptional(workspace string) (*Config, error) {
	if workspace == "" {
		workspace = "."
	}
	for _, name := range []string{yamlName, tomlName} {
		cfg, err := FromFile(filepath.Join(workspace, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return nil, nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes over the defaults and validates it.
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

// FromTOML parses config from raw TOML bytes over the defaults and validates it.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads config from path, choosing the format by extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false

visibility:
  # unrestricted: sales managers see every lead and task
  # two_hop: only their own, their team leads' and those team leads' agents'
  sales_manager: unrestricted

tasks:
  # overwrite accepts any reported progress; monotonic rejects decreases
  progress: overwrite

notifications:
  enabled: true
  interval: 2s
  batch: 50
  max_attempts: 5
  base_backoff: 5s
  max_backoff: 5m
  webhooks: []

logging:
  level: info
  format: text
  otlp: false
  service_name: sitework
`
