// Package config provides configuration loading and validation for codetree.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/codetree/pkg/attribution"
	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/identity"
	"github.com/Sumatoshi-tech/codetree/pkg/persist"
)

// Sentinel validation errors.
var (
	ErrInvalidBackend     = errors.New("invalid cache backend")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidTime        = errors.New("invalid time")
	ErrInvalidWindow      = errors.New("since is after until")
	ErrInvalidTimeout     = errors.New("timeout must not be negative")
)

// Config holds all configuration for codetree.
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Server        ServerConfig        `mapstructure:"server"`
}

// CacheConfig selects where hydrated results are kept.
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	Directory string `mapstructure:"directory"`
	Codec     string `mapstructure:"codec"`
	// MaxEntrySize is a humanized byte size ("64MB"); "0" disables the limit.
	MaxEntrySize string `mapstructure:"max_entry_size"`
}

// MaxEntryBytes parses MaxEntrySize.
func (c CacheConfig) MaxEntryBytes() (int64, error) {
	if strings.TrimSpace(c.MaxEntrySize) == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(c.MaxEntrySize)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidSize, c.MaxEntrySize, err)
	}

	return int64(n), nil
}

// StoreOptions converts the section into cache.Options.
func (c CacheConfig) StoreOptions() (cache.Options, error) {
	limit, err := c.MaxEntryBytes()
	if err != nil {
		return cache.Options{}, err
	}

	return cache.Options{Backend: c.Backend, Dir: c.Directory, Codec: c.Codec, MaxEntrySize: limit}, nil
}

// AnalysisConfig holds what is analyzed and how results are presented.
type AnalysisConfig struct {
	Branch       string     `mapstructure:"branch"`
	Hidden       []string   `mapstructure:"hidden"`
	HideVendored bool       `mapstructure:"hide_vendored"`
	AliasesFile  string     `mapstructure:"aliases_file"`
	AliasGroups  [][]string `mapstructure:"alias_groups"`
	// Since and Until bound the credited commits: RFC 3339, YYYY-MM-DD or unix seconds.
	Since     string        `mapstructure:"since"`
	Until     string        `mapstructure:"until"`
	GitBinary string        `mapstructure:"git_binary"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// HiddenFilter returns the hidden-file filter of the section.
func (a AnalysisConfig) HiddenFilter() filetree.HiddenFilter {
	return filetree.HiddenFilter{Patterns: slices.Clone(a.Hidden), HideVendored: a.HideVendored}
}

// Window parses Since and Until.
func (a AnalysisConfig) Window() (attribution.Window, error) {
	since, err := ParseTime(a.Since)
	if err != nil {
		return attribution.Window{}, err
	}

	until, err := ParseTime(a.Until)
	if err != nil {
		return attribution.Window{}, err
	}

	if since != 0 && until != 0 && since > until {
		return attribution.Window{}, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, a.Since, a.Until)
	}

	return attribution.Window{Since: since, Until: until}, nil
}

// Aliases returns the alias groups of AliasesFile followed by the inline groups.
func (a AnalysisConfig) Aliases() ([][]string, error) {
	var groups [][]string

	if a.AliasesFile != "" {
		loaded, err := identity.LoadGroups(a.AliasesFile)
		if err != nil {
			return nil, err
		}

		groups = append(groups, loaded...)
	}

	groups = append(groups, a.AliasGroups...)

	_, err := identity.NewAliasMap(groups)
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JSON reports whether logs are emitted as JSON.
func (l LoggingConfig) JSON() bool {
	return strings.EqualFold(l.Format, LogFormatJSON)
}

// ObservabilityConfig holds tracing and metrics export settings.
type ObservabilityConfig struct {
	Environment  string            `mapstructure:"environment"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool              `mapstructure:"otlp_insecure"`
	OTLPHeaders  map[string]string `mapstructure:"otlp_headers"`
	SampleRatio  float64           `mapstructure:"sample_ratio"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	// DebugTrace samples every trace and logs attributes the exporter drops.
	DebugTrace bool `mapstructure:"debug_trace"`
}

// ServerConfig holds the HTTP settings of "codetree serve".
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendBolt, cache.BackendFile, cache.BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Cache.Backend)
	}

	_, err := persist.ParseCodec(c.Cache.Codec)
	if err != nil {
		return err
	}

	_, err = c.Cache.MaxEntryBytes()
	if err != nil {
		return err
	}

	_, err = c.Analysis.Window()
	if err != nil {
		return err
	}

	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Analysis.Timeout)
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Observability.SampleRatio)
	}

	return nil
}

// dateLayout is the short date form accepted by ParseTime.
const dateLayout = "2006-01-02"

// ParseTime parses unix seconds, RFC 3339 or YYYY-MM-DD (UTC) into unix
// seconds. An empty string yields 0, the open bound.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
