package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Generation.BaseDelay)
	assert.Equal(t, 5, cfg.Plans.ProMonthly)
	assert.Equal(t, 0, cfg.Plans.FreeBase)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "/api", cfg.Server.BasePath)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
llm:
  provider: ollama
  model: llama3
generation:
  base_delay: 250ms
`))
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.BaseDelay)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":   "database:\n  driver: mysql\n",
		"pg dsn":   "database:\n  driver: postgres\n",
		"provider": "llm:\n  provider: cohere\n",
		"attempts": "generation:\n  max_attempts: 0\n",
		"quota":    "plans:\n  pro_monthly: -1\n",
		"basepath": "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offerline.yml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  pro_monthly: 7\nllm:\n  model: from-file\n"), 0o644))
	t.Setenv("OFFERLINE_LLM_MODEL", "from-env")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Plans.ProMonthly)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, time.Second, cfg.Generation.BaseDelay)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
}
