package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cryguy/phasejs/internal/core"
)

// Maximum size of a single script log message.
const maxLogMessageSize = 4096

// SetupNative registers the Go-backed capability functions. Every function
// takes the request handle as its first argument; the JS side captures the
// functions in closures and removes them from globalThis (see SetupNginx).
func SetupNative(rt core.JSRuntime, b *core.Bindings) error {
	natives := []struct {
		name string
		fn   any
	}{
		{"__ngx_send_header", func(handle, status int) (int, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return 0, err
			}
			if !core.ValidStatus(status) {
				return 0, fmt.Errorf("send_header: %w %d", core.ErrInvalidStatus, status)
			}
			st.Req.SetStatus(status)
			if err := st.Req.SendHeader(); err != nil {
				st.Log.Warn("send_header failed", "status", status, "error", err)
			}
			return 0, nil
		}},
		{"__ngx_rputs", func(handle int, text string) (int, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return 0, err
			}
			body := []byte(text)
			st.Req.SetStatus(http.StatusOK)
			st.Req.SetContentLength(int64(len(body)))
			st.Req.SetContentType(DefaultContentType)
			if err := st.Req.SendHeader(); err != nil {
				st.Log.Warn("rputs: sending header failed", "error", err)
			}
			if err := st.Req.Output(body, true); err != nil {
				st.Log.Warn("rputs: output failed", "error", err)
			}
			return 0, nil
		}},
		{"__ngx_get_content_type", func(handle int) (string, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return "", err
			}
			return st.Req.ContentType(), nil
		}},
		{"__ngx_set_content_type", func(handle int, ct string) (int, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return 0, err
			}
			st.Req.SetContentType(ct)
			return 0, nil
		}},
		// The returned string is copied into the VM heap, so the script
		// never aliases host-owned request memory.
		{"__ngx_uri", func(handle int) (string, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return "", err
			}
			return st.Req.URI(), nil
		}},
		{"__ngx_log", func(handle, level int, message string) (int, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return 0, err
			}
			st.Log.Log(context.Background(), slogLevel(level), truncate(message), "source", "script")
			return 0, nil
		}},
		{"__ngx_console", func(handle int, method, message string) (int, error) {
			st, err := b.Lookup(core.Handle(handle))
			if err != nil {
				return 0, err
			}
			st.Log.Log(context.Background(), consoleLevel(method), truncate(message), "source", "console")
			return 0, nil
		}},
	}

	for _, n := range natives {
		if err := rt.RegisterFunc(n.name, n.fn); err != nil {
			return err
		}
	}
	return nil
}

func truncate(message string) string {
	if len(message) > maxLogMessageSize {
		return message[:maxLogMessageSize] + "...(truncated)"
	}
	return message
}
