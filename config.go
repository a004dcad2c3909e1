package vinstore

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config is the file and environment form of the Connect options. Zero
// fields keep the defaults.
type Config struct {
	MemTableRows      int    `mapstructure:"memtable_rows"`
	ReadCacheSize     int64  `mapstructure:"read_cache_size"`
	WriteBufferSize   int    `mapstructure:"write_buffer_size"`
	MemoryLimit       int64  `mapstructure:"memory_limit"`
	FlushIORate       int64  `mapstructure:"flush_io_rate"`
	BackgroundWorkers int    `mapstructure:"background_workers"`
	Compression       string `mapstructure:"compression"`
	LogLevel          string `mapstructure:"log_level"`
	LogFormat         string `mapstructure:"log_format"`
}

var configDefaults = map[string]any{
	"memtable_rows":      0,
	"read_cache_size":    0,
	"write_buffer_size":  0,
	"memory_limit":       0,
	"flush_io_rate":      0,
	"background_workers": 0,
	"compression":        "",
	"log_level":          "",
	"log_format":         "",
}

// LoadConfig reads a YAML, TOML or JSON file (by extension) and applies
// VINSTORE_* environment overrides, e.g. VINSTORE_MEMTABLE_ROWS. An empty
// path reads the environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("vinstore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper knows about.
	for k, d := range configDefaults {
		v.SetDefault(k, d)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config %s: %w", ErrInvalidArgument, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %w", ErrInvalidArgument, err)
	}
	return cfg, nil
}

// WithConfig applies every non-zero field of cfg. Invalid values make Connect
// fail with ErrInvalidArgument.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.MemTableRows > 0 {
			o.memTableRows = cfg.MemTableRows
		}
		if cfg.ReadCacheSize > 0 {
			o.readCacheSize = cfg.ReadCacheSize
		}
		if cfg.WriteBufferSize > 0 {
			o.writeBufferSize = cfg.WriteBufferSize
		}
		if cfg.MemoryLimit > 0 {
			o.memoryLimit = cfg.MemoryLimit
		}
		if cfg.FlushIORate > 0 {
			o.flushIORate = cfg.FlushIORate
		}
		if cfg.BackgroundWorkers > 0 {
			o.backgroundWorkers = cfg.BackgroundWorkers
		}
		if cfg.Compression != "" {
			c, err := ParseCompression(strings.ToLower(cfg.Compression))
			if err != nil {
				o.err = fmt.Errorf("%w: %w", ErrInvalidArgument, err)
				return
			}
			o.compression = c
		}
		if cfg.LogLevel != "" || cfg.LogFormat != "" {
			var level slog.Level
			if cfg.LogLevel != "" {
				if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
					o.err = fmt.Errorf("%w: %w", ErrInvalidArgument, err)
					return
				}
			}
			switch strings.ToLower(cfg.LogFormat) {
			case "", "text":
				o.logger = NewTextLogger(level)
			case "json":
				o.logger = NewJSONLogger(level)
			default:
				o.err = fmt.Errorf("%w: unknown log format %q", ErrInvalidArgument, cfg.LogFormat)
			}
		}
	}
}
