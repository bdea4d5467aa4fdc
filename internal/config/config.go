// Package config loads the server configuration from HCL.
//
// A configuration file looks like:
//
//	listen  = ":8080"
//	workers = 4
//
//	location "/hello" {
//	  content_handler_code = "Nginx.rputs('hello')"
//	}
//
//	location "/app" {
//	  access_handler  = "scripts/access.js"
//	  content_handler = "scripts/content.ts"
//	}
//
// Handler paths are relative to the configuration file. Expressions can
// read environment variables through env, e.g. env.LISTEN_ADDR.
package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/logging"
)

// Defaults applied when the file leaves a setting out.
const (
	DefaultListen  = ":8080"
	DefaultWorkers = 1
)

// Config is a loaded and validated server configuration.
type Config struct {
	// Path is the file the configuration was read from.
	Path string

	Listen          string
	Workers         int
	MaxConnections  int
	LogLevel        logging.Level
	LogFormat       logging.Format
	Compression     bool
	FailOnException bool

	Locations []core.LocationConfig
}

// EngineConfig returns the script engine settings.
func (c *Config) EngineConfig() core.EngineConfig {
	return core.EngineConfig{Workers: c.Workers, FailOnException: c.FailOnException}
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Format = c.LogFormat
	return cfg
}

type fileConfig struct {
	Listen          *string         `hcl:"listen,optional"`
	Workers         *int            `hcl:"workers,optional"`
	MaxConnections  int             `hcl:"max_connections,optional"`
	LogLevel        string          `hcl:"log_level,optional"`
	LogFormat       string          `hcl:"log_format,optional"`
	Compression     bool            `hcl:"compression,optional"`
	FailOnException bool            `hcl:"fail_on_exception,optional"`
	Locations       []locationBlock `hcl:"location,block"`
}

type locationBlock struct {
	Path   string   `hcl:"path,label"`
	Remain hcl.Body `hcl:",remain"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := Parse(src, abs)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration source. filename names the source in
// diagnostics, and its directory anchors relative handler paths.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}

	evalCtx := newEvalContext()
	var fc fileConfig
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &fc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}

	cfg := &Config{
		Path:            filename,
		Listen:          DefaultListen,
		Workers:         DefaultWorkers,
		MaxConnections:  fc.MaxConnections,
		Compression:     fc.Compression,
		FailOnException: fc.FailOnException,
	}
	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}

	var err error
	if cfg.LogLevel, err = logging.ParseLevel(fc.LogLevel); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	if cfg.LogFormat, err = logging.ParseFormat(fc.LogFormat); err != nil {
		return nil, fmt.Errorf("log_format: %w", err)
	}

	dir := filepath.Dir(filename)
	seen := make(map[string]bool, len(fc.Locations))
	for _, lb := range fc.Locations {
		if seen[lb.Path] {
			return nil, fmt.Errorf("duplicate location %q", lb.Path)
		}
		seen[lb.Path] = true
		loc, err := decodeLocation(lb, evalCtx, dir)
		if err != nil {
			return nil, err
		}
		cfg.Locations = append(cfg.Locations, loc)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative, got %d", c.MaxConnections)
	}
	return nil
}

// decodeLocation turns the handler attributes of a location block into
// script slots, ordered by phase with the file slot first.
func decodeLocation(lb locationBlock, evalCtx *hcl.EvalContext, dir string) (core.LocationConfig, error) {
	loc := core.LocationConfig{Path: lb.Path}
	if !strings.HasPrefix(lb.Path, "/") {
		return loc, fmt.Errorf("location %q: path must start with /", lb.Path)
	}

	attrs, diags := lb.Remain.JustAttributes()
	if diags.HasErrors() {
		return loc, fmt.Errorf("location %q: %s", lb.Path, diags.Error())
	}

	for name, attr := range attrs {
		phase, origin, err := parseHandlerName(name)
		if err != nil {
			return loc, fmt.Errorf("location %q: %w", lb.Path, err)
		}
		var value string
		if diags := gohcl.DecodeExpression(attr.Expr, evalCtx, &value); diags.HasErrors() {
			return loc, fmt.Errorf("location %q: %s", lb.Path, diags.Error())
		}
		if origin == core.OriginFile {
			if value == "" {
				return loc, fmt.Errorf("location %q: %s must not be empty", lb.Path, name)
			}
			if !filepath.IsAbs(value) {
				value = filepath.Join(dir, value)
			}
		}
		loc.Scripts = append(loc.Scripts, core.ScriptConfig{Phase: phase, Origin: origin, Source: value})
	}

	slices.SortFunc(loc.Scripts, func(a, b core.ScriptConfig) int {
		if a.Phase != b.Phase {
			return cmp.Compare(a.Phase, b.Phase)
		}
		return cmp.Compare(a.Origin, b.Origin)
	})
	return loc, nil
}

// parseHandlerName maps "<phase>_handler" and "<phase>_handler_code" to a
// script slot.
func parseHandlerName(name string) (core.Phase, core.Origin, error) {
	origin := core.OriginFile
	base := name
	if trimmed, ok := strings.CutSuffix(base, "_code"); ok {
		origin = core.OriginInline
		base = trimmed
	}
	phaseName, ok := strings.CutSuffix(base, "_handler")
	if !ok {
		return 0, 0, fmt.Errorf("unknown attribute %q", name)
	}
	phase, err := core.ParsePhase(phaseName)
	if err != nil {
		return 0, 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return phase, origin, nil
}

// newEvalContext exposes environment variables as env and a few string
// functions to configuration expressions.
func newEvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"upper":     stdlib.UpperFunc,
			"lower":     stdlib.LowerFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"join":      stdlib.JoinFunc,
			"format":    stdlib.FormatFunc,
			"coalesce":  stdlib.CoalesceFunc,
		},
	}
}
