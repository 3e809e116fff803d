package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	clearEnvVars(t)
	chdirTemp(t)

	m, err := NewManager("")
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, "../data", cfg.DataDir)
	assert.Equal(t, 1000, cfg.Generator.NumPatients)
	assert.Equal(t, 3000, cfg.Generator.NumEncounters)
	assert.Equal(t, 2000, cfg.Generator.NumProcedures)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, uint64(42), cfg.Training.RandomState)
	assert.Equal(t, 10, cfg.Training.NIter)
	assert.Equal(t, 3, cfg.Training.CVFolds)
	assert.Equal(t, -1, cfg.Training.NJobs)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Store.ConnMaxLifetime)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)
	chdirTemp(t)

	t.Setenv("ORTHO_DATA_DIR", "/tmp/ortho-data")
	t.Setenv("ORTHO_GENERATOR_NUM_PATIENTS", "250")
	t.Setenv("ORTHO_TRAINING_N_ITER", "4")
	t.Setenv("ORTHO_LOGGING_LEVEL", "debug")

	m, err := NewManager("")
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, "/tmp/ortho-data", cfg.DataDir)
	assert.Equal(t, 250, cfg.Generator.NumPatients)
	assert.Equal(t, 4, m.GetTrainingConfig().NIter)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestNewManager_ConfigFile(t *testing.T) {
	clearEnvVars(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "orthopredict.yaml")
	content := `
data_dir: /srv/ortho
training:
  n_iter: 5
  cv_folds: 4
store:
  driver: none
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/ortho", m.GetConfig().DataDir)
	assert.Equal(t, 5, m.GetTrainingConfig().NIter)
	assert.Equal(t, 4, m.GetTrainingConfig().CVFolds)
	assert.Equal(t, "none", m.GetStoreConfig().Driver)
	assert.Equal(t, "/srv/ortho/random_forest_model.json.gz", m.ModelPath())
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	clearEnvVars(t)

	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestManager_Set(t *testing.T) {
	clearEnvVars(t)
	chdirTemp(t)

	m, err := NewManager("")
	require.NoError(t, err)

	require.NoError(t, m.Set("data_dir", "/var/lib/ortho"))

	assert.Equal(t, "/var/lib/ortho", m.GetConfig().DataDir)
	assert.Equal(t, "/var/lib/ortho/runs.db", m.SQLitePath())
	assert.Equal(t, "/abs/model.json.gz", m.DataPath("/abs/model.json.gz"))
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"no patients", "generator.num_patients", 0},
		{"missing rate of one", "generator.missing_rate", 1.0},
		{"test size out of range", "training.test_size", 1.5},
		{"single fold", "training.cv_folds", 1},
		{"zero jobs", "training.n_jobs", 0},
		{"unsupported scoring", "training.scoring", "f1"},
		{"unknown driver", "store.driver", "mongo"},
		{"postgres without url", "store.driver", "postgres"},
		{"bad log level", "logging.level", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			chdirTemp(t)

			m, err := NewManager("")
			require.NoError(t, err)
			require.NoError(t, m.Set(tt.key, tt.value))

			assert.Error(t, m.Validate())
		})
	}
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, EnvPrefix+"_") {
			// Setenv registers the restore; Unsetenv makes the key absent.
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// chdirTemp keeps a stray orthopredict.yaml in the working directory out of the test.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
