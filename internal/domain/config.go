package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Training  TrainingConfig  `mapstructure:"training"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GeneratorConfig controls synthetic dataset generation
type GeneratorConfig struct {
	Seed          uint64  `mapstructure:"seed"` // 0 seeds from the clock
	NumPatients   int     `mapstructure:"num_patients"`
	NumEncounters int     `mapstructure:"num_encounters"`
	NumProcedures int     `mapstructure:"num_procedures"`
	MissingRate   float64 `mapstructure:"missing_rate"` // fraction of non-id cells blanked
}

// TrainingConfig controls the split, the randomized search and the artifact
type TrainingConfig struct {
	TestSize    float64 `mapstructure:"test_size"`
	RandomState uint64  `mapstructure:"random_state"`
	NIter       int     `mapstructure:"n_iter"`
	CVFolds     int     `mapstructure:"cv_folds"`
	NJobs       int     `mapstructure:"n_jobs"` // -1 uses every CPU
	Scoring     string  `mapstructure:"scoring"`
	ModelFile   string  `mapstructure:"model_file"`
}

// RecommendConfig controls standalone recommendation
type RecommendConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// StoreConfig selects the run history backend
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres" or "none"
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
