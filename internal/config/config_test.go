package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3, cfg.LLMRetryBudget)
	assert.Len(t, cfg.LLMModels, 3)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("LLM_API_KEYS", "k1,k2,k3")
	t.Setenv("LLM_MODELS", "m1,m2")
	t.Setenv("LLM_RETRY_BUDGET", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.LLMAPIKeys)
	assert.Equal(t, []string{"m1", "m2"}, cfg.LLMModels)
	assert.Equal(t, 5, cfg.LLMRetryBudget)
}

func TestGatewayBackoff_TestEnvShortens(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := Load()
	require.NoError(t, err)
	initial, maxIv, mult := cfg.GatewayBackoff()
	assert.Equal(t, 10*time.Millisecond, initial)
	assert.Equal(t, 100*time.Millisecond, maxIv)
	assert.Equal(t, 2.0, mult)
}

func TestLoadPolicy_MissingFileUsesDefaults(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicy_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_questions: 6\nmax_questions: 7\nfollow_up_threshold: 2.5\nfollow_up_weight: 0.5\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 7, p.MaxQuestions)
	assert.Equal(t, 2.5, p.FollowUpThreshold)
	assert.Equal(t, 0.5, p.FollowUpWeight)
	// Unset fields keep defaults.
	assert.Equal(t, DefaultPolicy().HireBand, p.HireBand)
}

func TestLoadPolicy_RejectsBadWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_questions: 8\nmax_questions: 6\n"), 0o600))

	_, err := LoadPolicy(path)
	require.Error(t, err)
}

func TestLoadPolicy_RejectsInvertedBands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hire_band: 2.0\nconsider_band: 3.0\n"), 0o600))

	_, err := LoadPolicy(path)
	require.Error(t, err)
}
