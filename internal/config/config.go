package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
	Load  LoadConfig  `yaml:"load" mapstructure:"load"`
	Fetch FetchConfig `yaml:"fetch" mapstructure:"fetch"`
	Tiles TilesConfig `yaml:"tiles" mapstructure:"tiles"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is a
// file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// LoadConfig configures the load command.
type LoadConfig struct {
	Schema      string `yaml:"schema" mapstructure:"schema" validate:"required"`
	Table       string `yaml:"table" mapstructure:"table" validate:"required"`
	Mode        string `yaml:"mode" mapstructure:"mode" validate:"oneof=append replace upsert"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size" validate:"min=1"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=64"`
}

// FetchConfig configures remote source downloads.
type FetchConfig struct {
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	BackoffMillis int     `yaml:"backoff_millis" mapstructure:"backoff_millis" validate:"gte=0"`
	RatePerHost   float64 `yaml:"rate_per_host" mapstructure:"rate_per_host" validate:"gte=0"`
	TempDir       string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// TilesConfig configures the tiles command.
type TilesConfig struct {
	OutputDir    string   `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	Zoom         int      `yaml:"zoom" mapstructure:"zoom" validate:"min=0,max=30"`
	User         string   `yaml:"user" mapstructure:"user"`
	MaxPerFile   int      `yaml:"max_per_file" mapstructure:"max_per_file" validate:"min=1"`
	PsqlPath     string   `yaml:"psql_path" mapstructure:"psql_path"`
	CountSources []string `yaml:"count_sources" mapstructure:"count_sources"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("load.schema", "geo")
	v.SetDefault("load.table", "features")
	v.SetDefault("load.mode", "append")
	v.SetDefault("load.batch_size", 5000)
	v.SetDefault("load.concurrency", 4)
	v.SetDefault("fetch.user_agent", "geostream/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_millis", 1000)
	v.SetDefault("fetch.rate_per_host", 5.0)
	v.SetDefault("fetch.temp_dir", "")
	v.SetDefault("tiles.output_dir", "tiles")
	v.SetDefault("tiles.zoom", 10)
	v.SetDefault("tiles.user", "")
	v.SetDefault("tiles.max_per_file", 4_000_000)
	v.SetDefault("tiles.psql_path", "psql")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
