package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/logging"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phasejs.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ``))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.Equal(t, logging.FormatText, cfg.LogFormat)
	assert.False(t, cfg.Compression)
	assert.False(t, cfg.FailOnException)
	assert.Empty(t, cfg.Locations)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
listen            = "127.0.0.1:9090"
workers           = 4
max_connections   = 128
log_level         = "debug"
log_format        = "json"
compression       = true
fail_on_exception = true

location "/app" {
  content_handler_code = "Nginx.rputs('inline')"
  content_handler      = "scripts/content.js"
  access_handler       = "/abs/access.js"
  post_read_handler_code = "return Nginx.NGX_DECLINED"
}

location "/" {
  log_handler_code = "console.log('done')"
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 128, cfg.MaxConnections)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.Equal(t, logging.FormatJSON, cfg.LogFormat)
	assert.True(t, cfg.Compression)
	assert.Equal(t, core.EngineConfig{Workers: 4, FailOnException: true}, cfg.EngineConfig())

	require.Len(t, cfg.Locations, 2)
	app := cfg.Locations[0]
	assert.Equal(t, "/app", app.Path)
	dir := filepath.Dir(path)
	assert.Equal(t, []core.ScriptConfig{
		{Phase: core.PhasePostRead, Origin: core.OriginInline, Source: "return Nginx.NGX_DECLINED"},
		{Phase: core.PhaseAccess, Origin: core.OriginFile, Source: "/abs/access.js"},
		{Phase: core.PhaseContent, Origin: core.OriginFile, Source: filepath.Join(dir, "scripts/content.js")},
		{Phase: core.PhaseContent, Origin: core.OriginInline, Source: "Nginx.rputs('inline')"},
	}, app.Scripts)

	assert.Equal(t, "/", cfg.Locations[1].Path)
	assert.Equal(t, []core.ScriptConfig{
		{Phase: core.PhaseLog, Origin: core.OriginInline, Source: "console.log('done')"},
	}, cfg.Locations[1].Scripts)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PHASEJS_TEST_LISTEN", ":7070")
	t.Setenv("PHASEJS_TEST_GREETING", "hi")

	cfg, err := Load(writeConfig(t, `
listen = env.PHASEJS_TEST_LISTEN

location "/" {
  content_handler_code = format("Nginx.rputs(%q)", upper(env.PHASEJS_TEST_GREETING))
}
`))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	require.Len(t, cfg.Locations, 1)
	assert.Equal(t, `Nginx.rputs("HI")`, cfg.Locations[0].Scripts[0].Source)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `listen = `, "failed to parse"},
		{"unknown top-level", `port = 80`, "failed to decode"},
		{"duplicate location", "location \"/a\" {}\nlocation \"/a\" {}", "duplicate location"},
		{"relative location", `location "a" {}`, "must start with /"},
		{"unknown handler", `location "/" { foo_handler = "x" }`, "unknown phase"},
		{"unknown attribute", `location "/" { root = "/srv" }`, "unknown attribute"},
		{"empty file handler", `location "/" { content_handler = "" }`, "must not be empty"},
		{"nested block", `location "/" { inner {} }`, "location \"/\""},
		{"bad workers", `workers = 0`, "workers must be at least 1"},
		{"bad max connections", `max_connections = -1`, "max_connections"},
		{"bad log level", `log_level = "loud"`, "log_level"},
		{"bad log format", `log_format = "xml"`, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseHandlerName(t *testing.T) {
	phase, origin, err := parseHandlerName("server_rewrite_handler_code")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseServerRewrite, phase)
	assert.Equal(t, core.OriginInline, origin)

	phase, origin, err = parseHandlerName("log_handler")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseLog, phase)
	assert.Equal(t, core.OriginFile, origin)
}
