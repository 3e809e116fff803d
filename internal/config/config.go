package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ortho-predict/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. ORTHO_DATA_DIR.
const EnvPrefix = "ORTHO"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager. configFile is optional;
// when empty the usual search paths are tried and a missing file is fine.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{
		v:          viper.New(),
		configFile: configFile,
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	v := m.v

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("orthopredict")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/orthopredict/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply
	}

	return m.unmarshal()
}

func (m *Manager) unmarshal() error {
	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("data_dir", "../data")

	// Generator defaults
	v.SetDefault("generator.seed", 0)
	v.SetDefault("generator.num_patients", 1000)
	v.SetDefault("generator.num_encounters", 3000)
	v.SetDefault("generator.num_procedures", 2000)
	v.SetDefault("generator.missing_rate", 0.0)

	// Training defaults
	v.SetDefault("training.test_size", 0.2)
	v.SetDefault("training.random_state", 42)
	v.SetDefault("training.n_iter", 10)
	v.SetDefault("training.cv_folds", 3)
	v.SetDefault("training.n_jobs", -1)
	v.SetDefault("training.scoring", "accuracy")
	v.SetDefault("training.model_file", "random_forest_model.json.gz")

	v.SetDefault("recommend.cache_size", 8)

	// Run history defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "runs.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.max_open_conns", 5)
	v.SetDefault("store.max_idle_conns", 2)
	v.SetDefault("store.conn_max_lifetime", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// Set overrides a single key, e.g. from a command-line flag
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	return m.unmarshal()
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetTrainingConfig returns training configuration
func (m *Manager) GetTrainingConfig() *domain.TrainingConfig {
	return &m.config.Training
}

// GetStoreConfig returns run history configuration
func (m *Manager) GetStoreConfig() *domain.StoreConfig {
	return &m.config.Store
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// DataPath resolves a file name against the data directory. Absolute
// paths are returned unchanged.
func (m *Manager) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.config.DataDir, name)
}

// ModelPath returns the location of the persisted model bundle
func (m *Manager) ModelPath() string {
	return m.DataPath(m.config.Training.ModelFile)
}

// SQLitePath returns the location of the run history database
func (m *Manager) SQLitePath() string {
	return m.DataPath(m.config.Store.SQLitePath)
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	gen := config.Generator
	if gen.NumPatients <= 0 {
		return fmt.Errorf("invalid number of patients: %d", gen.NumPatients)
	}
	if gen.NumEncounters < 0 || gen.NumProcedures < 0 {
		return fmt.Errorf("encounter and procedure counts must not be negative")
	}
	if gen.MissingRate < 0 || gen.MissingRate >= 1 {
		return fmt.Errorf("invalid missing rate: %v", gen.MissingRate)
	}

	tr := config.Training
	if tr.TestSize <= 0 || tr.TestSize >= 1 {
		return fmt.Errorf("invalid test size: %v", tr.TestSize)
	}
	if tr.NIter <= 0 {
		return fmt.Errorf("invalid number of search iterations: %d", tr.NIter)
	}
	if tr.CVFolds < 2 {
		return fmt.Errorf("cross-validation needs at least 2 folds, got %d", tr.CVFolds)
	}
	if tr.NJobs == 0 || tr.NJobs < -1 {
		return fmt.Errorf("invalid n_jobs: %d", tr.NJobs)
	}
	if !strings.EqualFold(tr.Scoring, "accuracy") {
		return fmt.Errorf("unsupported scoring: %s", tr.Scoring)
	}
	if tr.ModelFile == "" {
		return fmt.Errorf("model file is required")
	}

	if config.Recommend.CacheSize <= 0 {
		return fmt.Errorf("invalid recommend cache size: %d", config.Recommend.CacheSize)
	}

	switch strings.ToLower(config.Store.Driver) {
	case "none":
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if config.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
