package host

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/phasejs"
	"github.com/cryguy/phasejs/internal/logging"
)

func newTestServer(t *testing.T, opts Options, cfg phasejs.EngineConfig, locs ...phasejs.LocationConfig) (*Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON, Output: &logs})
	engine := phasejs.NewEngine(cfg, nil, logger)
	require.NoError(t, engine.Load(locs))
	t.Cleanup(engine.Shutdown)
	return New(engine, opts, logger), &logs
}

func loc(path string, scripts ...phasejs.ScriptConfig) phasejs.LocationConfig {
	return phasejs.LocationConfig{Path: path, Scripts: scripts}
}

func inline(phase phasejs.Phase, src string) phasejs.ScriptConfig {
	return phasejs.ScriptConfig{Phase: phase, Origin: phasejs.OriginInline, Source: src}
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestContentRputs(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("hello")`)))

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestRequestURIIgnoresQuery(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/foo", inline(phasejs.PhaseContent, `Nginx.rputs(new Nginx.Request().uri)`)))

	rec := get(t, s, "/foo/bar?x=1")
	assert.Equal(t, "/foo/bar", rec.Body.String())
}

func TestSendHeaderOnly(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `Nginx.send_header(404)`)))

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestExceptionKeepsPartialResponse(t *testing.T) {
	s, logs := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("partial"); throw new Error("boom");`)))

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())

	out := logs.String()
	assert.Contains(t, out, `"msg":"script failed"`)
	assert.Contains(t, out, `"origin":"inline"`)
	assert.Contains(t, out, `"location":"/"`)
	assert.Contains(t, out, `"phase":"content"`)
	assert.Contains(t, out, "boom")
}

func TestExceptionWithoutOutput(t *testing.T) {
	src := `throw new Error("boom")`

	// Default policy: the phase succeeds with an empty response.
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, src)))
	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	s, _ = newTestServer(t, Options{}, phasejs.EngineConfig{FailOnException: true},
		loc("/", inline(phasejs.PhaseContent, src)))
	rec = get(t, s, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendHeaderInvalidStatus(t *testing.T) {
	locs := []phasejs.LocationConfig{
		loc("/bad", inline(phasejs.PhaseContent, `Nginx.send_header(42)`)),
		loc("/good", inline(phasejs.PhaseContent, `Nginx.rputs("good")`)),
	}

	s, logs := newTestServer(t, Options{}, phasejs.EngineConfig{}, locs...)
	for i := 0; i < 3; i++ {
		rec := get(t, s, "/bad")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	}
	rec := get(t, s, "/good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "good", rec.Body.String())
	assert.Contains(t, logs.String(), "invalid status 42")
	assert.NotContains(t, logs.String(), `"kind":"panic"`)

	s, _ = newTestServer(t, Options{}, phasejs.EngineConfig{FailOnException: true}, locs...)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/bad").Code)
	assert.Equal(t, "good", get(t, s, "/good").Body.String())
}

func TestResponseRejectsInvalidStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	resp := newResponse(rec, httptest.NewRequest(http.MethodGet, "/", nil), false)

	resp.SetStatus(42)
	require.ErrorIs(t, resp.SendHeader(), phasejs.ErrInvalidStatus)
	assert.False(t, resp.headerSent)

	resp.sendError(http.StatusInternalServerError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// panickyWriter panics on the first WriteHeader, like a broken connection
// layer would.
type panickyWriter struct {
	*httptest.ResponseRecorder
	panicked bool
}

func (w *panickyWriter) WriteHeader(code int) {
	if !w.panicked {
		w.panicked = true
		panic("connection layer failure")
	}
	w.ResponseRecorder.WriteHeader(code)
}

func TestPanicReplacesWorker(t *testing.T) {
	s, logs := newTestServer(t, Options{}, phasejs.EngineConfig{Workers: 1},
		loc("/",
			inline(phasejs.PhaseContent, `Nginx.rputs("hello")`),
			inline(phasejs.PhaseLog, `console.log("log phase ran")`),
		))

	w := &panickyWriter{ResponseRecorder: httptest.NewRecorder()}
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, w.panicked)
	assert.Contains(t, logs.String(), `"kind":"panic"`)
	assert.Contains(t, logs.String(), "worker replaced after a VM failure")
	assert.NotContains(t, logs.String(), "log phase ran")

	for i := 0; i < 3; i++ {
		rec := get(t, s, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	}
	assert.Contains(t, logs.String(), "log phase ran")
	assert.Equal(t, int64(1), s.engine.Stats().Replacements)
}

func TestPhaseOrderAndLogPhase(t *testing.T) {
	// Phase scripts of one location share a VM, so they can leave notes on
	// a built-in object for later phases of the same request.
	s, logs := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/",
			inline(phasejs.PhaseLog, `console.log("trail=" + Math.trail.join(","))`),
			inline(phasejs.PhaseContent, `Math.trail.push("content"); Nginx.rputs(Math.trail.join(","))`),
			inline(phasejs.PhaseAccess, `Math.trail.push("access")`),
			inline(phasejs.PhaseRewrite, `Math.trail.push("rewrite")`),
			inline(phasejs.PhasePostRead, `Math.trail = ["post_read"]`),
		))

	rec := get(t, s, "/")
	assert.Equal(t, "post_read,rewrite,access,content", rec.Body.String())
	assert.Contains(t, logs.String(), "trail=post_read,rewrite,access,content")
}

func TestFileRunsBeforeInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.js")
	require.NoError(t, os.WriteFile(path, []byte(`Math.order = ["file"]`), 0o644))

	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/",
			inline(phasejs.PhaseAccess, `Math.order.push("inline")`),
			phasejs.ScriptConfig{Phase: phasejs.PhaseAccess, Origin: phasejs.OriginFile, Source: path},
			inline(phasejs.PhaseContent, `Nginx.rputs(Math.order.join(","))`),
		))
	assert.Equal(t, "file,inline", get(t, s, "/").Body.String())
}

func TestAccessDenied(t *testing.T) {
	s, logs := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/private",
			inline(phasejs.PhaseAccess, `return Nginx.NGX_ERROR`),
			inline(phasejs.PhaseContent, `Nginx.rputs("secret")`),
			inline(phasejs.PhaseLog, `console.log("logged")`),
		))

	rec := get(t, s, "/private/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, logs.String(), "logged")
}

func TestAccessSendsOwnStatus(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/",
			inline(phasejs.PhaseAccess, `Nginx.send_header(Nginx.NGX_HTTP_FORBIDDEN); return Nginx.NGX_ERROR`),
			inline(phasejs.PhaseContent, `Nginx.rputs("secret")`),
		))

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeclinedContentFallsThrough(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `return Nginx.NGX_DECLINED`)),
		loc("/static"))

	assert.Equal(t, http.StatusNotFound, get(t, s, "/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/static/app.css").Code)
}

func TestLongestPrefixMatch(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("root")`)),
		loc("/api", inline(phasejs.PhaseContent, `Nginx.rputs("api")`)),
		loc("/api/v2", inline(phasejs.PhaseContent, `Nginx.rputs("v2")`)))

	assert.Equal(t, "root", get(t, s, "/index.html").Body.String())
	assert.Equal(t, "api", get(t, s, "/api/users").Body.String())
	assert.Equal(t, "v2", get(t, s, "/api/v2/users").Body.String())
}

func TestNoLocation(t *testing.T) {
	s, _ := newTestServer(t, Options{}, phasejs.EngineConfig{},
		loc("/app", inline(phasejs.PhaseContent, `Nginx.rputs("app")`)))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/other").Code)
}

func TestBrotliCompression(t *testing.T) {
	body := strings.Repeat("compress me ", 100)
	s, _ := newTestServer(t, Options{Compression: true}, phasejs.EngineConfig{},
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("`+body+`")`)))

	rec := get(t, s, "/", "Accept-Encoding", "gzip, br")
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	decoded, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))

	plain := get(t, s, "/", "Accept-Encoding", "gzip")
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Equal(t, body, plain.Body.String())
}

func TestAcceptsBrotli(t *testing.T) {
	assert.True(t, acceptsBrotli("br"))
	assert.True(t, acceptsBrotli("gzip, BR;q=0.5"))
	assert.False(t, acceptsBrotli("br;q=0"))
	assert.False(t, acceptsBrotli("gzip, deflate"))
	assert.False(t, acceptsBrotli(""))
}

func TestReloadSwapsScripts(t *testing.T) {
	logger := logging.Nop()
	engine := phasejs.NewEngine(phasejs.EngineConfig{Workers: 2}, nil, logger)
	require.NoError(t, engine.Load([]phasejs.LocationConfig{
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("v1")`)),
	}))
	defer engine.Shutdown()
	s := New(engine, Options{}, logger)

	assert.Equal(t, "v1", get(t, s, "/").Body.String())
	require.NoError(t, engine.Load([]phasejs.LocationConfig{
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("v2")`)),
		loc("/new", inline(phasejs.PhaseContent, `Nginx.rputs("new")`)),
	}))
	assert.Equal(t, "v2", get(t, s, "/").Body.String())
	assert.Equal(t, "new", get(t, s, "/new").Body.String())
}

func TestServeWithConnectionLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{MaxConnections: 2}, phasejs.EngineConfig{Workers: 2},
		loc("/", inline(phasejs.PhaseContent, `Nginx.rputs("served")`)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "served", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestUnavailableAfterShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := phasejs.NewEngine(phasejs.EngineConfig{}, nil, logger)
	require.NoError(t, engine.Load(nil))
	engine.Shutdown()

	rec := get(t, New(engine, Options{}, logger), "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
