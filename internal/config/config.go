package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rebeliceyang/gridfilter/internal/format"
	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
)

// AppName names the config directory and the environment prefix.
const AppName = "gridfilter"

// Config holds all application configuration
type Config struct {
	Analyzer    AnalyzerConfig          `mapstructure:"analyzer"`
	Persistence PersistenceConfig       `mapstructure:"persistence"`
	Presets     PresetsConfig           `mapstructure:"presets"`
	History     HistoryConfig           `mapstructure:"history"`
	Log         logger.Config           `mapstructure:"log"`
	IO          IOConfig                `mapstructure:"io"`
	Format      format.Options          `mapstructure:"format"`
	Postgres    models.ConnectionConfig `mapstructure:"postgres"`
}

type AnalyzerConfig struct {
	MaxUniqueValues int     `mapstructure:"max_unique_values"`
	DateSampleSize  int     `mapstructure:"date_sample_size"`
	DateThreshold   float64 `mapstructure:"date_threshold"`
}

type PersistenceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type PresetsConfig struct {
	Path string `mapstructure:"path"`
}

type HistoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// IOConfig holds table reader options. Empty values are auto-detected.
type IOConfig struct {
	Delimiter  string `mapstructure:"delimiter"`
	Encoding   string `mapstructure:"encoding"`
	Table      string `mapstructure:"table"`
	NullValues string `mapstructure:"null_values"`
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	dir := configDir()
	return &Config{
		Analyzer: AnalyzerConfig{
			MaxUniqueValues: 100,
			DateSampleSize:  100,
			DateThreshold:   0.8,
		},
		Persistence: PersistenceConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "last_filters.json"),
		},
		Presets: PresetsConfig{
			Path: filepath.Join(dir, "presets.yaml"),
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       filepath.Join(dir, "history.db"),
			MaxEntries: 1000,
		},
		Log: logger.Config{
			Level: "warn",
		},
		IO:       IOConfig{},
		Format:   format.DefaultOptions(),
		Postgres: models.ConnectionConfig{Port: 5432, Schema: "public"},
	}
}

// New returns a viper instance with defaults and environment overrides set.
// Flags can be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Add config paths in priority order
	v.AddConfigPath(configDir())
	v.AddConfigPath(".")

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := GetDefaults()
	v.SetDefault("analyzer.max_unique_values", d.Analyzer.MaxUniqueValues)
	v.SetDefault("analyzer.date_sample_size", d.Analyzer.DateSampleSize)
	v.SetDefault("analyzer.date_threshold", d.Analyzer.DateThreshold)
	v.SetDefault("persistence.enabled", d.Persistence.Enabled)
	v.SetDefault("persistence.path", d.Persistence.Path)
	v.SetDefault("presets.path", d.Presets.Path)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.max_entries", d.History.MaxEntries)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("io.delimiter", d.IO.Delimiter)
	v.SetDefault("io.encoding", d.IO.Encoding)
	v.SetDefault("io.table", d.IO.Table)
	v.SetDefault("io.null_values", d.IO.NullValues)
	v.SetDefault("format.date_layout", d.Format.DateLayout)
	v.SetDefault("format.decimals", d.Format.Decimals)
	v.SetDefault("format.locale", d.Format.Locale)
	v.SetDefault("format.true_label", d.Format.TrueLabel)
	v.SetDefault("format.false_label", d.Format.FalseLabel)
	v.SetDefault("postgres.dsn", d.Postgres.DSN)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.schema", d.Postgres.Schema)
	return v
}

// Load reads configuration into a Config. An explicit file must exist; when
// file is empty the search paths are tried and a missing file is fine.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// GetConfigPath returns the user config directory path
func GetConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

func configDir() string {
	if dir, err := GetConfigPath(); err == nil {
		return dir
	}
	return "." + AppName
}
