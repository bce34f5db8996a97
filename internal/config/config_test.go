package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, 8, cfg.Engine.MaxSteps)
	assert.Equal(t, 1, cfg.Engine.MaxRefinements)
	assert.InDelta(t, 0.6, cfg.Engine.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 10, cfg.Retrieval.ExpandedTopK)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "buffett", cfg.Personas.Default)
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	content := []byte("engine:\n  max_steps: 12\nretrieval:\n  collection: custom_knowledge\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("QDRANT_URL", "http://qdrant.internal:6333")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Engine.MaxSteps)
	assert.Equal(t, "custom_knowledge", cfg.Retrieval.Collection)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.Retrieval.BaseURL)
}

func TestValidateRejectsBadEngine(t *testing.T) {
	cfg := &Config{
		Engine:    EngineConfig{MaxSteps: 0, ConfidenceThreshold: 0.6},
		Retrieval: RetrievalConfig{TopK: 5, ExpandedTopK: 10},
	}
	assert.Error(t, cfg.Validate())

	cfg.Engine.MaxSteps = 8
	assert.NoError(t, cfg.Validate())

	cfg.Retrieval.ExpandedTopK = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSecretWhenAuthEnforced(t *testing.T) {
	cfg := &Config{
		Engine:    EngineConfig{MaxSteps: 8, ConfidenceThreshold: 0.6},
		Retrieval: RetrievalConfig{TopK: 5, ExpandedTopK: 10},
		Auth:      AuthConfig{Enabled: true, SkipAuth: false},
	}
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}
