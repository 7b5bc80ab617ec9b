package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/persist"
)

// configName is the config file name without extension.
const configName = ".codetree"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for codetree settings.
const envPrefix = "CODETREE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{LogFormatText, LogFormatJSON}
)

// Default values.
const (
	DefaultBackend         = cache.BackendBolt
	DefaultCodec           = persist.CodecGobLZ4
	DefaultMaxEntrySize    = "512MB"
	DefaultBranch          = "HEAD"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = LogFormatText
	DefaultSampleRatio     = 1.0
	DefaultEnvironment     = "development"
	DefaultServerAddr      = "127.0.0.1:7420"
	DefaultReadTimeout     = "30s"
	DefaultWriteTimeout    = "5m"
	DefaultShutdownTimeout = "10s"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("cache.backend", DefaultBackend)
	viperCfg.SetDefault("cache.directory", cache.DefaultDir())
	viperCfg.SetDefault("cache.codec", DefaultCodec)
	viperCfg.SetDefault("cache.max_entry_size", DefaultMaxEntrySize)

	viperCfg.SetDefault("analysis.branch", DefaultBranch)
	viperCfg.SetDefault("analysis.hidden", []string{})
	viperCfg.SetDefault("analysis.hide_vendored", false)
	viperCfg.SetDefault("analysis.aliases_file", "")
	viperCfg.SetDefault("analysis.since", "")
	viperCfg.SetDefault("analysis.until", "")
	viperCfg.SetDefault("analysis.git_binary", gitlog.DefaultGitBinary)
	viperCfg.SetDefault("analysis.timeout", "0s")

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("observability.environment", DefaultEnvironment)
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("observability.metrics_addr", "")
	viperCfg.SetDefault("observability.debug_trace", false)

	viperCfg.SetDefault("server.addr", DefaultServerAddr)
	viperCfg.SetDefault("server.read_timeout", DefaultReadTimeout)
	viperCfg.SetDefault("server.write_timeout", DefaultWriteTimeout)
	viperCfg.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
}
