package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Import ImportConfig `yaml:"import" mapstructure:"import"`
	Stages StagesConfig `yaml:"stages" mapstructure:"stages"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures spreadsheet parsing and the batch writer.
type ImportConfig struct {
	MaxFileMB       int     `yaml:"max_file_mb" mapstructure:"max_file_mb"`
	HeaderScanRows  int     `yaml:"header_scan_rows" mapstructure:"header_scan_rows"`
	ChunkSize       int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	MaxRows         int     `yaml:"max_rows" mapstructure:"max_rows"`
	ChunksPerSecond float64 `yaml:"chunks_per_second" mapstructure:"chunks_per_second"`
	Transactional   bool    `yaml:"transactional" mapstructure:"transactional"`
}

// StagesConfig points at an optional YAML stage table override. Default,
// when set, replaces the table's fallback stage.
type StagesConfig struct {
	File    string `yaml:"file" mapstructure:"file"`
	Default string `yaml:"default" mapstructure:"default"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MaxFileBytes returns the upload/file size limit in bytes.
func (c ImportConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) << 20
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("import.max_file_mb", 50)
	v.SetDefault("import.header_scan_rows", 10)
	v.SetDefault("import.chunk_size", 200)
	v.SetDefault("import.max_rows", 5000)
	v.SetDefault("import.chunks_per_second", 20.0)
	v.SetDefault("import.transactional", false)

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

// Validate checks that the fields a command needs are present and sane.
// Mode is one of "import", "serve", "migrate", "pipeline" or "stage".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "import", "migrate", "pipeline":
		needStore = true
	case "serve":
		needStore = true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "stage":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
	}

	if mode == "import" || mode == "serve" {
		if c.Import.ChunkSize < 1 {
			errs = append(errs, "import.chunk_size must be >= 1")
		}
		if c.Import.MaxFileMB < 1 {
			errs = append(errs, "import.max_file_mb must be >= 1")
		}
		if c.Import.HeaderScanRows < 1 {
			errs = append(errs, "import.header_scan_rows must be >= 1")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
