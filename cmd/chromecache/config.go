package main

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CHROMECACHE"

// config holds settings merged from flags, CHROMECACHE_* variables and an
// optional config file, in that order of precedence.
type config struct {
	Dir            string        `mapstructure:"dir"`
	Workers        int           `mapstructure:"workers"`
	MaxChainLength int           `mapstructure:"max-chain-length"`
	MaxEntries     int           `mapstructure:"max-entries"`
	MaxDataSize    uint64        `mapstructure:"max-data-size"`
	TickResolution time.Duration `mapstructure:"tick-resolution"`
	Timeout        time.Duration `mapstructure:"timeout"`

	ExtractMaxBytes int64 `mapstructure:"extract-max-bytes"`
	ExtractShardLen int   `mapstructure:"extract-shard-len"`
	ExtractRaw      bool  `mapstructure:"extract-raw"`

	LogLevel      string `mapstructure:"log-level"`
	LogFormat     string `mapstructure:"log-format"`
	LogFile       string `mapstructure:"log-file"`
	LogMaxSize    int    `mapstructure:"log-max-size"`
	LogMaxBackups int    `mapstructure:"log-max-backups"`
	LogCompress   bool   `mapstructure:"log-compress"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("chromecache", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.StringP("dir", "d", "", "cache directory holding the index and data_N files")
	fs.IntP("workers", "w", 1, "bucket chains walked concurrently")
	fs.Int("max-chain-length", 0, "entries allowed in one bucket chain (0 = default)")
	fs.Int("max-entries", 0, "entries collected per scan (0 = default, -1 = unlimited)")
	fs.Uint64("max-data-size", 0, "bytes read from a single stream (0 = default)")
	fs.String("tick-resolution", "100ns", "duration of one timestamp tick")
	fs.String("timeout", "0", "overall deadline (0 = none)")
	fs.Int64("extract-max-bytes", 0, "bytes written by extract (0 = unlimited)")
	fs.Int("extract-shard-len", 2, "hex characters used for extract subdirectories")
	fs.Bool("extract-raw", false, "store bodies without removing their Content-Encoding")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "write logs to a rotating file instead of stderr")
	fs.Int("log-max-size", 100, "log file size in megabytes before rotation")
	fs.Int("log-max-backups", 10, "rotated log files kept")
	fs.Bool("log-compress", true, "gzip rotated log files")
	return fs
}

// loadConfig parses args and returns the merged configuration together with
// the remaining positional arguments.
func loadConfig(args []string) (*config, []string, error) {
	fs := newFlagSet()
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, fs.Args(), nil
}

func (c *config) validate() error {
	var errs []error
	if c.TickResolution <= 0 {
		errs = append(errs, errors.New("tick-resolution: must be positive"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}
	if c.ExtractMaxBytes < 0 {
		errs = append(errs, errors.New("extract-max-bytes: must not be negative"))
	}
	if c.ExtractShardLen < 0 {
		errs = append(errs, errors.New("extract-shard-len: must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log-format: unknown format %q", c.LogFormat))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}
	return errors.Join(errs...)
}

// durationDecodeHook accepts Go duration strings and plain numbers of
// seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(time.Duration(0))

	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return time.Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case time.Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
