package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerline/internal/config"
	"offerline/internal/generator"
	"offerline/internal/llm"
	"offerline/internal/migrate"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database.Workspace = filepath.Join(t.TempDir(), "ws")
	cfg.LLM.APIKey = ""
	cfg.Billing.SecretKey = ""
	return cfg
}

func TestBuildMigratesAndWires(t *testing.T) {
	a, err := Build(testConfig(t), nil, Options{Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	v, err := migrate.Version(a.DB)
	require.NoError(t, err)
	assert.Greater(t, v, 0)

	assert.Nil(t, a.Billing.Checkout)
	assert.Equal(t, 5, a.Engine.Limiter.ProMonthly)
	assert.Equal(t, 3, a.Engine.Retry.MaxAttempts)
}

func TestBuildWithoutModelCredentials(t *testing.T) {
	a, err := Build(testConfig(t), nil, Options{Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.Engine.Generator.Generate(context.Background(), "market-research", generatorContext(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")
}

type echoModel struct{}

func (echoModel) Generate(context.Context, llm.Request) (string, error) {
	return "echo", nil
}

func TestBuildUsesInjectedModel(t *testing.T) {
	a, err := Build(testConfig(t), nil, Options{Migrate: true, Model: echoModel{}})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	out, err := a.Engine.Generator.Generate(context.Background(), "market-research", generatorContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, "echo", out)
}

func generatorContext() generator.ProjectContext {
	return generator.ProjectContext{BusinessName: "Acme Coaching"}
}
