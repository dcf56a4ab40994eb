package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"GROUPCHAT_WORKFLOW", "GROUPCHAT_MODEL", "GROUPCHAT_MODEL_PROVIDER",
		"GROUPCHAT_TEMPERATURE", "GROUPCHAT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8000", cfg.Server.HTTPAddr)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.WebSocketAddr)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, 0.7, cfg.Model.Temperature)
	assert.Equal(t, "weather", cfg.Workflow)

	// The default provider needs a key.
	assert.Error(t, cfg.Validate())
	cfg.Model.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GROUPCHAT_WORKFLOW", "research")
	t.Setenv("GROUPCHAT_TEMPERATURE", "0.2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Model.APIKey)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "research", cfg.Workflow)
	assert.Equal(t, 0.2, cfg.Model.Temperature)
}

func TestLoad_AzureEndpointSwitchesProvider(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, cfg.Model.Provider)
	assert.Equal(t, "https://example.openai.azure.com", cfg.Model.AzureEndpoint)
}

func TestLoad_FileWithExpansionAndDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	writeFile(t, dir, ".env", "ANTHROPIC_API_KEY=from-dotenv\n")
	path := writeFile(t, dir, "groupchat.yaml", `
server:
  http_addr: 0.0.0.0:9000
model:
  provider: anthropic
  name: claude-3-5-haiku-latest
  api_key: ${ANTHROPIC_API_KEY}
reports:
  driver: sqlite
  path: reports.db
workflow: finance
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.WebSocketAddr)
	assert.Equal(t, "from-dotenv", cfg.Model.APIKey)
	assert.Equal(t, "finance", cfg.Workflow)
	assert.Equal(t, ReportsSQLite, cfg.Reports.Driver)
	assert.NotNil(t, cfg.Logger())
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "OPENAI_API_KEY=from-dotenv\n")
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
}

func TestParse(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse([]byte(""), &cfg))
	assert.Equal(t, Default(), cfg)

	err := Parse([]byte("unknown_key: 1\n"), &cfg)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Model.Provider = ProviderMock

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty http addr", func(c *Config) { c.Server.HTTPAddr = "" }},
		{"empty websocket addr", func(c *Config) { c.Server.WebSocketAddr = "" }},
		{"empty workflow", func(c *Config) { c.Workflow = "" }},
		{"zero model calls", func(c *Config) { c.MaxModelCalls = 0 }},
		{"temperature out of range", func(c *Config) { c.Model.Temperature = 3 }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "llama" }},
		{"azure without endpoint", func(c *Config) { c.Model.Provider = ProviderAzure; c.Model.APIKey = "k" }},
		{"sqlite without path", func(c *Config) { c.Reports.Driver = ReportsSQLite }},
		{"unknown driver", func(c *Config) { c.Reports.Driver = "s3" }},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_OverridesRunBeforeValidation(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load("")
	require.Error(t, err)

	cfg, err := Load("", func(c *Config) { c.Model.Provider = ProviderMock })
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.Model.Provider)
}
