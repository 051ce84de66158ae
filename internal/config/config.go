package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config models offerline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr" mapstructure:"addr"`
		BasePath string `yaml:"base_path" mapstructure:"base_path"`
	} `yaml:"server" mapstructure:"server"`
	Database struct {
		Driver    string `yaml:"driver" mapstructure:"driver"`
		DSN       string `yaml:"dsn" mapstructure:"dsn"`
		Workspace string `yaml:"workspace" mapstructure:"workspace"`
	} `yaml:"database" mapstructure:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
		DevLogin  bool   `yaml:"dev_login" mapstructure:"dev_login"`
	} `yaml:"auth" mapstructure:"auth"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Plans      PlansConfig      `yaml:"plans" mapstructure:"plans"`
	Billing    BillingConfig    `yaml:"billing" mapstructure:"billing"`
	Log        struct {
		Mode string `yaml:"mode" mapstructure:"mode"`
	} `yaml:"log" mapstructure:"log"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

type GenerationConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

type PlansConfig struct {
	ProMonthly int `yaml:"pro_monthly" mapstructure:"pro_monthly"`
	FreeBase   int `yaml:"free_base" mapstructure:"free_base"`
}

type BillingConfig struct {
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	ProPriceID    string `yaml:"pro_price_id" mapstructure:"pro_price_id"`
	CreditPriceID string `yaml:"credit_price_id" mapstructure:"credit_price_id"`
	SuccessURL    string `yaml:"success_url" mapstructure:"success_url"`
	CancelURL     string `yaml:"cancel_url" mapstructure:"cancel_url"`
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultModel = "claude-sonnet-4-20250514"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "offerline.yml"

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %s or %s", DriverSQLite, DriverPostgres)
	}
	if c.Database.Driver == DriverPostgres && strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required for postgres")
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("llm.provider %q not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if c.Generation.MaxAttempts < 1 {
		return errors.New("generation.max_attempts must be at least 1")
	}
	if c.Generation.BaseDelay < 0 {
		return errors.New("generation.base_delay must not be negative")
	}
	if c.Plans.ProMonthly < 0 || c.Plans.FreeBase < 0 {
		return errors.New("plans quotas must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath)
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes layered over the defaults.
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

// Load reads path (if it exists) and OFFERLINE_* environment overrides through v.
// A nil v uses a fresh viper instance.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigType("yaml")
	if err := v.MergeConfig(strings.NewReader(defaultTemplate)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path == "" {
		path = DefaultPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := v.MergeConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	v.SetEnvPrefix("OFFERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api

database:
  driver: sqlite
  dsn: ""
  workspace: .

auth:
  jwt_secret: ""
  dev_login: false

llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  api_key: ""
  base_url: ""
  max_tokens: 4096

generation:
  max_attempts: 3
  base_delay: 1s

plans:
  pro_monthly: 5
  free_base: 0

billing:
  secret_key: ""
  webhook_secret: ""
  pro_price_id: ""
  credit_price_id: ""
  success_url: http://localhost:3000/dashboard?upgrade=success
  cancel_url: http://localhost:3000/dashboard?upgrade=cancelled

log:
  mode: development
`
