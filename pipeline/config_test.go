package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `clinical: data/clinical.csv
community: data/community.csv
presence_threshold: 5
min_prevalence: 3
filter:
  max_iterations: 100
  alpha: 0.01
  seed: 2023
  trees: 500
  importance: permutation
cox:
  ridge: 0.1
  stratify_by_risk: true
output: results
plots: true
`

func TestLoad(t *testing.T) {

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/clinical.csv", cfg.Clinical)
	assert.Equal(t, 5.0, cfg.PresenceThreshold)
	assert.Equal(t, 3, cfg.MinPrevalence)
	assert.Equal(t, 100, cfg.Filter.MaxIterations)
	assert.Equal(t, 0.01, cfg.Filter.Alpha)
	assert.Equal(t, int64(2023), cfg.Filter.Seed)
	assert.Equal(t, 0.1, cfg.Cox.Ridge)
	assert.True(t, cfg.Cox.StratifyByRisk)
	assert.True(t, cfg.Plots)
}

func TestLoadDefaults(t *testing.T) {

	path := filepath.Join(t.TempDir(), "config.yaml")
	minimal := "clinical: a.csv\ncommunity: b.csv\n"
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.PresenceThreshold)
	assert.Equal(t, 100, cfg.Filter.MaxIterations)
	assert.Equal(t, "permutation", cfg.Filter.Importance)
	assert.Equal(t, 500, cfg.Filter.Trees)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Clinical = "a.csv"
		cfg.Community = "b.csv"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing clinical", func(t *testing.T) {
		cfg := base()
		cfg.Clinical = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("alpha out of range", func(t *testing.T) {
		cfg := base()
		cfg.Filter.Alpha = 0.2
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("bad importance", func(t *testing.T) {
		cfg := base()
		cfg.Filter.Importance = "gini"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("negative threshold", func(t *testing.T) {
		cfg := base()
		cfg.PresenceThreshold = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("negative ridge", func(t *testing.T) {
		cfg := base()
		cfg.Cox.Ridge = -0.5
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})
}
