package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/phasejs/internal/core"
)

// Source is script text ready for compilation, together with the origin it
// was configured from.
type Source struct {
	Origin core.Origin
	// Path is the configured file path. Empty for inline scripts.
	Path string
	Text string
}

// Inline returns an inline source.
func Inline(text string) Source {
	return Source{Origin: core.OriginInline, Text: text}
}

// Identity names the source in diagnostics: the file path, or "inline".
func (s Source) Identity() string {
	if s.Origin == core.OriginFile && s.Path != "" {
		return s.Path
	}
	return core.OriginInline.String()
}

// FileLoader reads script files from disk. Files ending in .ts are
// transpiled to JavaScript first.
type FileLoader struct{}

var _ core.SourceLoader = FileLoader{}

// LoadScript implements core.SourceLoader.
func (FileLoader) LoadScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	src := string(data)
	if strings.EqualFold(filepath.Ext(path), ".ts") {
		return transpileTS(path, src)
	}
	return src, nil
}

// transpileTS strips TypeScript syntax from a script body. The output stays
// a plain function body: no module wrapper, top-level return allowed.
func transpileTS(path, src string) (string, error) {
	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:     esbuild.LoaderTS,
		Format:     esbuild.FormatCommonJS,
		Target:     esbuild.ES2020,
		Sourcefile: path,
	})
	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("transpiling %s: %s", filepath.Base(path), strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

// Load resolves a configured script slot into a Source. An unreadable file
// is reported as a *CompileError.
func Load(loader core.SourceLoader, sc core.ScriptConfig) (Source, error) {
	if sc.Origin == core.OriginInline {
		return Inline(sc.Source), nil
	}
	if loader == nil {
		loader = FileLoader{}
	}
	text, err := loader.LoadScript(sc.Source)
	if err != nil {
		return Source{}, &CompileError{Origin: sc.Source, Err: err}
	}
	return Source{Origin: core.OriginFile, Path: sc.Source, Text: text}, nil
}
