package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the query assistant.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys, the shared secret) must only come from
// environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Relational backend (the Applications dataset)
	SQL SQLConfig `yaml:"sql"`

	// Record-store backend (the photo/event dataset)
	Airtable AirtableConfig `yaml:"airtable"`

	// Text-generation collaborator
	LLM LLMConfig `yaml:"llm"`

	// Answer formatting toggles
	Answer AnswerConfig `yaml:"answer"`

	// Optional shared-secret check on the query endpoint
	Auth AuthConfig `yaml:"auth"`

	// Request/result size limits
	Limits LimitsConfig `yaml:"limits"`
}

// SQLConfig holds connection settings for the read-only relational backend.
type SQLConfig struct {
	// Driver selects the SQL dialect: "mssql" (default) or "postgres".
	Driver   string `yaml:"driver" env:"SQL_DRIVER" env-default:"mssql"`
	Host     string `yaml:"host" env:"SQL_SERVER" env-default:""`
	Port     int    `yaml:"port" env:"SQL_PORT" env-default:"0"` // 0 = dialect default
	Database string `yaml:"database" env:"SQL_DATABASE" env-default:""`
	Username string `yaml:"username" env:"SQL_USERNAME" env-default:""`
	Password string `yaml:"-" env:"SQL_PASSWORD"` // Secret - not in YAML

	Encrypt                bool   `yaml:"encrypt" env:"SQL_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"SQL_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	SSLMode                string `yaml:"ssl_mode" env:"SQL_SSL_MODE" env-default:"disable"`
	ConnectionTimeout      int    `yaml:"connection_timeout" env:"SQL_CONNECTION_TIMEOUT" env-default:"30"`
}

// IsConfigured returns true if enough settings are present to attempt a
// connection. The relational path degrades to canned behavior when false.
func (c *SQLConfig) IsConfigured() bool {
	return c.Host != "" && c.Database != "" && c.Username != "" && c.Password != ""
}

// AirtableConfig holds settings for the paginated record-store backend.
type AirtableConfig struct {
	APIKey  string `yaml:"-" env:"AIRTABLE_API_KEY"` // Secret - not in YAML
	BaseID  string `yaml:"base_id" env:"AIRTABLE_BASE_ID" env-default:""`
	Table   string `yaml:"table" env:"AIRTABLE_TABLE_NAME" env-default:"Photos"`
	BaseURL string `yaml:"base_url" env:"AIRTABLE_BASE_URL" env-default:"https://api.airtable.com"`

	// PageSize is the per-call page size; the service enforces MaxPageSize.
	PageSize    int `yaml:"page_size" env:"AIRTABLE_PAGE_SIZE" env-default:"50"`
	MaxPageSize int `yaml:"max_page_size" env:"AIRTABLE_MAX_PAGE_SIZE" env-default:"100"`

	// MaxScanRecords bounds how many records an aggregation may fetch.
	MaxScanRecords int `yaml:"max_scan_records" env:"AIRTABLE_MAX_SCAN_RECORDS" env-default:"1000"`
}

// IsConfigured returns true if the record-store path can be used.
func (c *AirtableConfig) IsConfigured() bool {
	return c.APIKey != "" && c.BaseID != "" && c.Table != ""
}

// LLMConfig holds settings for the text-generation collaborator.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" (default) or "anthropic".
	Provider        string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	APIKey          string  `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicAPIKey string  `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	// Model is provider-specific; empty selects the client's default.
	Model           string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	BaseURL         string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	MaxTokens       int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"150"`
	Temperature     float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// IsConfigured returns true if a credential exists for the selected provider.
// Query generation and summarization degrade to canned templates when false.
func (c *LLMConfig) IsConfigured() bool {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return c.APIKey != ""
	}
}

// AnswerConfig holds answer-formatting toggles.
type AnswerConfig struct {
	// DisableRecordSummary turns off delegate summarization on the
	// record-store path even when an LLM credential is configured.
	DisableRecordSummary bool `yaml:"disable_record_summary" env:"DISABLE_RECORD_SUMMARY" env-default:"false"`
}

// AuthConfig holds the optional shared-secret check.
type AuthConfig struct {
	SharedSecret string `yaml:"-" env:"QUERY_SHARED_SECRET"` // Secret - not in YAML
}

// Enabled returns true when requests must present the shared secret.
func (c *AuthConfig) Enabled() bool {
	return c.SharedSecret != ""
}

// LimitsConfig bounds result sizes across both backends.
type LimitsConfig struct {
	// DefaultResultLimit applies when the question names no count.
	DefaultResultLimit int `yaml:"default_result_limit" env:"DEFAULT_RESULT_LIMIT" env-default:"50"`
	// MaxResultLimit caps any requested or generated result count.
	MaxResultLimit int `yaml:"max_result_limit" env:"MAX_RESULT_LIMIT" env-default:"500"`
	// RawResultsCap bounds how many rows are echoed in the response body.
	RawResultsCap int `yaml:"raw_results_cap" env:"RAW_RESULTS_CAP" env-default:"50"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, configuration comes from the
// environment alone. The version parameter is injected at build time and set
// on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// libpq convention honored for the postgres dialect
	if cfg.SQL.Driver == "postgres" && cfg.SQL.Password == "" {
		cfg.SQL.Password = os.Getenv("PGPASSWORD")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.SQL.Driver = strings.ToLower(strings.TrimSpace(c.SQL.Driver))
	switch c.SQL.Driver {
	case "mssql", "postgres":
	default:
		return fmt.Errorf("unsupported sql driver %q (want mssql or postgres)", c.SQL.Driver)
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q (want openai or anthropic)", c.LLM.Provider)
	}

	if c.Limits.DefaultResultLimit < 1 {
		return fmt.Errorf("default_result_limit must be at least 1")
	}
	if c.Limits.MaxResultLimit < c.Limits.DefaultResultLimit {
		return fmt.Errorf("max_result_limit must be >= default_result_limit")
	}

	if c.Airtable.PageSize < 1 {
		return fmt.Errorf("airtable page_size must be at least 1")
	}
	if c.Airtable.PageSize > c.Airtable.MaxPageSize {
		c.Airtable.PageSize = c.Airtable.MaxPageSize
	}
	if c.Airtable.MaxScanRecords < 1 {
		return fmt.Errorf("airtable max_scan_records must be at least 1")
	}

	return nil
}
