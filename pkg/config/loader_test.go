package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "codetree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBackend, cfg.Cache.Backend)
	assert.Equal(t, DefaultCodec, cfg.Cache.Codec)
	assert.Equal(t, DefaultMaxEntrySize, cfg.Cache.MaxEntrySize)
	assert.NotEmpty(t, cfg.Cache.Directory)
	assert.Equal(t, DefaultBranch, cfg.Analysis.Branch)
	assert.Equal(t, gitlog.DefaultGitBinary, cfg.Analysis.GitBinary)
	assert.Empty(t, cfg.Analysis.Hidden)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.InDelta(t, DefaultSampleRatio, cfg.Observability.SampleRatio, 0)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
cache:
  backend: file
  codec: json
  max_entry_size: 8MB
analysis:
  branch: main
  hidden: ["docs/**", "*.lock"]
  hide_vendored: true
  since: "2024-01-01"
  timeout: 90s
  alias_groups:
    - ["Alice", "alice", "Alice Smith"]
logging:
  level: debug
  format: json
observability:
  otlp_endpoint: collector:4317
  otlp_headers:
    authorization: token
  sample_ratio: 0.25
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "json", cfg.Cache.Codec)
	assert.Equal(t, "main", cfg.Analysis.Branch)
	assert.Equal(t, []string{"docs/**", "*.lock"}, cfg.Analysis.Hidden)
	assert.True(t, cfg.Analysis.HideVendored)
	assert.Equal(t, 90*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, [][]string{{"Alice", "alice", "Alice Smith"}}, cfg.Analysis.AliasGroups)
	assert.True(t, cfg.Logging.JSON())
	assert.Equal(t, "collector:4317", cfg.Observability.OTLPEndpoint)
	assert.Equal(t, map[string]string{"authorization": "token"}, cfg.Observability.OTLPHeaders)
	assert.InDelta(t, 0.25, cfg.Observability.SampleRatio, 1e-9)

	limit, err := cfg.Cache.MaxEntryBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8_000_000), limit)

	window, err := cfg.Analysis.Window()
	require.NoError(t, err)
	assert.Equal(t, int64(1704067200), window.Since)
	assert.Zero(t, window.Until)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CODETREE_CACHE_BACKEND", "memory")
	t.Setenv("CODETREE_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfig(writeConfig(t, "cache:\n  backend: file\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, "cache:\n  backend: redis\n"))
	require.ErrorIs(t, err, ErrInvalidBackend)

	_, err = LoadConfig(writeConfig(t, "cache: [unterminated\n"))
	require.Error(t, err)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestAliases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dict := filepath.Join(dir, "people.txt")
	require.NoError(t, os.WriteFile(dict, []byte("# team\nBob|bob|robert\n"), 0o600))

	a := AnalysisConfig{AliasesFile: dict, AliasGroups: [][]string{{"Alice", "alice"}}}

	groups, err := a.Aliases()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Bob", "bob", "robert"}, {"Alice", "alice"}}, groups)

	_, err = AnalysisConfig{AliasesFile: filepath.Join(dir, "missing.txt")}.Aliases()
	require.Error(t, err)
}
