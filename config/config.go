// Package config loads service configuration from an optional YAML file,
// .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/groupchat/logging"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Report store drivers.
const (
	ReportsMemory = "memory"
	ReportsSQLite = "sqlite"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Model    ModelConfig   `yaml:"model"`
	Log      LogConfig     `yaml:"log"`
	Reports  ReportsConfig `yaml:"reports"`
	Workflow string        `yaml:"workflow"`
	// MaxModelCalls bounds the model calls of a single agent turn.
	MaxModelCalls int `yaml:"max_model_calls"`
}

// ServerConfig holds the listener addresses.
type ServerConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	WebSocketAddr string `yaml:"websocket_addr"`
}

// ModelConfig selects and parameterizes the LLM.
type ModelConfig struct {
	Provider        string  `yaml:"provider"`
	Name            string  `yaml:"name"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int64   `yaml:"max_tokens"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	AzureEndpoint   string  `yaml:"azure_endpoint"`
	AzureAPIVersion string  `yaml:"azure_api_version"`
}

// LogConfig configures the slog backed logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReportsConfig selects where final reports are persisted.
type ReportsConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:      "127.0.0.1:8000",
			WebSocketAddr: "127.0.0.1:8765",
		},
		Model: ModelConfig{
			Provider:        ProviderOpenAI,
			Name:            "gpt-4o-mini",
			Temperature:     0.7,
			AzureAPIVersion: "2024-06-01",
		},
		Log:           LogConfig{Level: "info", Format: "text"},
		Reports:       ReportsConfig{Driver: ReportsMemory},
		Workflow:      "weather",
		MaxModelCalls: 10,
	}
}

// Load builds the configuration. .env files are loaded first without
// overriding the environment; the YAML file at path (optional) is expanded
// with ${VAR} references and decoded over the defaults; environment
// fallbacks fill whatever is still unset. Overrides run last, before
// validation.
func Load(path string, overrides ...func(c *Config)) (Config, error) {
	if err := LoadDotEnvForConfig(path); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	for _, fn := range overrides {
		fn(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse expands environment references in data and decodes it into cfg.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	// An empty document keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GROUPCHAT_WORKFLOW"); v != "" {
		c.Workflow = v
	}
	if v := os.Getenv("GROUPCHAT_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("GROUPCHAT_MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("GROUPCHAT_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GROUPCHAT_TEMPERATURE: %w", err)
		}
		c.Model.Temperature = t
	}
	if v := os.Getenv("GROUPCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if c.Model.AzureEndpoint == "" {
		c.Model.AzureEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if c.Model.AzureEndpoint != "" && c.Model.Provider == ProviderOpenAI {
		c.Model.Provider = ProviderAzure
	}
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderAnthropic:
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI, ProviderAzure:
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.WebSocketAddr == "" {
		return errors.New("server.websocket_addr is required")
	}
	if c.Workflow == "" {
		return errors.New("workflow is required")
	}
	if c.MaxModelCalls < 1 {
		return fmt.Errorf("max_model_calls must be positive, got %d", c.MaxModelCalls)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be within [0, 2], got %g", c.Model.Temperature)
	}
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for provider %s", c.Model.Provider)
		}
	case ProviderAzure:
		if c.Model.APIKey == "" || c.Model.AzureEndpoint == "" {
			return errors.New("model.api_key and model.azure_endpoint are required for provider azure")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown model.provider %q", c.Model.Provider)
	}
	switch c.Reports.Driver {
	case ReportsMemory:
	case ReportsSQLite:
		if c.Reports.Path == "" {
			return errors.New("reports.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown reports.driver %q", c.Reports.Driver)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c Config) Logger() logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.New(logging.Config{Level: level, Format: c.Log.Format, Component: "groupchat"})
}
