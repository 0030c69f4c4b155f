package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"portfolio/internal/domain"
)

// Config models portfolio.yml.
type Config struct {
	MasterData struct {
		Leaders     []string `yaml:"leaders"`
		Departments []string `yaml:"departments"`
		Statuses    []Status `yaml:"statuses"`
	} `yaml:"master_data"`
	Lifecycle struct {
		DeletedStatus  string   `yaml:"deleted_status"`
		ClosedStatuses []string `yaml:"closed_statuses"`
	} `yaml:"lifecycle"`
	Weights struct {
		ExpectedTotal   float64 `yaml:"expected_total"`
		RequireBalanced bool    `yaml:"require_balanced"`
	} `yaml:"weights"`
	Timeline struct {
		YearsBefore int `yaml:"years_before"`
		YearsAfter  int `yaml:"years_after"`
	} `yaml:"timeline"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook receives project and master data events as JSON POSTs. An empty
// Events list subscribes to every event type.
type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

func (w Webhook) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

type Status struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Lifecycle.DeletedStatus) == "" {
		return fmt.Errorf("config.lifecycle.deleted_status is required")
	}
	for _, s := range c.Lifecycle.ClosedStatuses {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config.lifecycle.closed_statuses contains an empty status")
		}
	}
	if c.Weights.ExpectedTotal <= 0 {
		return fmt.Errorf("config.weights.expected_total must be positive")
	}
	if c.Timeline.YearsBefore < 0 || c.Timeline.YearsAfter < 0 {
		return fmt.Errorf("config.timeline years must not be negative")
	}
	if err := uniqueNames("leaders", c.MasterData.Leaders); err != nil {
		return err
	}
	if err := uniqueNames("departments", c.MasterData.Departments); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, s := range c.MasterData.Statuses {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("config.master_data.statuses contains an empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("config.master_data.statuses has duplicate %s", s.Name)
		}
		seen[s.Name] = true
		if s.Color != "" && !strings.HasPrefix(s.Color, "#") {
			return fmt.Errorf("status %s color must be a hex value like #22c55e", s.Name)
		}
	}
	for i, w := range c.Webhooks {
		if !w.Active() {
			continue
		}
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func uniqueNames(field string, names []string) error {
	seen := map[string]bool{}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("config.master_data.%s contains an empty name", field)
		}
		if seen[n] {
			return fmt.Errorf("config.master_data.%s has duplicate %s", field, n)
		}
		seen[n] = true
	}
	return nil
}

// IsClosed reports whether status ends a project's active life.
func (c *Config) IsClosed(status string) bool {
	for _, s := range c.Lifecycle.ClosedStatuses {
		if s == status {
			return true
		}
	}
	return status == c.Lifecycle.DeletedStatus
}

// Seed converts the configured master data into its domain form.
func (c *Config) Seed() domain.MasterData {
	md := domain.MasterData{
		Leaders:     append([]string{}, c.MasterData.Leaders...),
		Departments: append([]string{}, c.MasterData.Departments...),
		Statuses:    make([]domain.StatusMaster, 0, len(c.MasterData.Statuses)),
	}
	for _, s := range c.MasterData.Statuses {
		md.Statuses = append(md.Statuses, domain.StatusMaster{Name: s.Name, Color: s.Color})
	}
	return md
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "portfolio.yml")
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

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// fall back to the defaults.
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

const defaultTemplate = `master_data:
  leaders: []
  departments: []
  statuses:
    - name: Planning
      color: "#3b82f6"
    - name: In Progress
      color: "#f59e0b"
    - name: On Hold
      color: "#ef4444"
    - name: Completed
      color: "#22c55e"
    - name: Closed
      color: "#6b7280"

lifecycle:
  deleted_status: Deleted
  closed_statuses: [Completed, Closed]

weights:
  expected_total: 100
  require_balanced: false

timeline:
  years_before: 1
  years_after: 2

# webhooks:
#   - url: https://hooks.example.com/portfolio
#     events: [project.created, project.deleted]
#     secret: change-me
webhooks: []
`
