package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort = 3000
	defaultEnv  = "development"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int      `yaml:"port"`
	DSN            string   `yaml:"dsn"` // MySQL DSN
	RedisURL       string   `yaml:"redis_url"`
	Env            string   `yaml:"env"` // "development" | "production"
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Scraper ScraperConfig `yaml:"scraper"`
	AI      AIConfig      `yaml:"ai"`
}

// ScraperConfig configures the external deep-scraping service.
// When Endpoint is empty the orchestrator falls back to local extraction.
type ScraperConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AIConfig configures summarization providers and the assistant identity.
type AIConfig struct {
	// AssistantUserID is the reserved system identity that authors
	// ai_response messages.
	AssistantUserID string             `yaml:"assistant_user_id"`
	Providers       []AIProvider       `yaml:"providers"`
	SummaryModel    *AIModelAssignment `yaml:"summary_model"`
}

// AIProvider is one configured model endpoint.
type AIProvider struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"` // "openai-compatible" | "anthropic"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Enabled  bool   `yaml:"enabled"`
	// CostPer1KTokens, when set, drives the estimated_cost column of
	// usage logs. Zero means "unknown" and the column stays null.
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`
}

// AIModelAssignment pins a pipeline stage to a provider (and optionally
// overrides its default model).
type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

// Load reads and validates the YAML config file.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.Scraper.TimeoutSeconds == 0 {
		c.Scraper.TimeoutSeconds = 120
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("config: dsn is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("config: redis_url is required")
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// SummaryProvider resolves the provider used for summarization, honoring
// the summary_model assignment and falling back to the first enabled
// provider. Returns nil when nothing is enabled.
func (c *AIConfig) SummaryProvider() *AIProvider {
	var providerID, overrideModel string
	if c.SummaryModel != nil {
		providerID = strings.TrimSpace(c.SummaryModel.ProviderID)
		overrideModel = strings.TrimSpace(c.SummaryModel.Model)
	}

	pick := func(p AIProvider) *AIProvider {
		selected := p
		if overrideModel != "" {
			selected.Model = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, p := range c.Providers {
			if p.Enabled && strings.TrimSpace(p.ID) == providerID {
				return pick(p)
			}
		}
	}
	for _, p := range c.Providers {
		if p.Enabled {
			return pick(p)
		}
	}
	return nil
}
