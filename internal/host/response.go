package host

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/cryguy/phasejs/internal/core"
)

var errResponseComplete = errors.New("response already complete")

// response adapts an http.ResponseWriter to core.Request. Headers are held
// back until SendHeader, and the body is brotli-encoded when the client
// accepts it and compression is enabled.
type response struct {
	w http.ResponseWriter
	r *http.Request

	status        int
	contentLength int64
	contentType   string

	compress   bool
	headerSent bool
	complete   bool
	body       io.Writer
	br         *brotli.Writer
}

var _ core.Request = (*response)(nil)

func newResponse(w http.ResponseWriter, r *http.Request, compress bool) *response {
	return &response{
		w:             w,
		r:             r,
		contentLength: -1,
		compress:      compress && acceptsBrotli(r.Header.Get("Accept-Encoding")),
	}
}

func (rw *response) URI() string              { return rw.r.URL.Path }
func (rw *response) ContentType() string      { return rw.contentType }
func (rw *response) SetContentType(ct string) { rw.contentType = ct }
func (rw *response) SetStatus(status int)     { rw.status = status }
func (rw *response) SetContentLength(n int64) { rw.contentLength = n }

func (rw *response) SendHeader() error {
	if rw.headerSent {
		return core.ErrHeaderSent
	}
	status := rw.status
	if status == 0 {
		status = http.StatusOK
	}
	if !core.ValidStatus(status) {
		return fmt.Errorf("%w %d", core.ErrInvalidStatus, status)
	}
	rw.headerSent = true

	h := rw.w.Header()
	if rw.contentType != "" {
		h.Set("Content-Type", rw.contentType)
	}

	rw.body = rw.w
	switch {
	case rw.compress && bodyAllowed(status) && rw.contentLength != 0:
		h.Set("Content-Encoding", "br")
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")
		rw.br = brotli.NewWriter(rw.w)
		rw.body = rw.br
	case rw.contentLength >= 0:
		h.Set("Content-Length", strconv.FormatInt(rw.contentLength, 10))
	}

	rw.w.WriteHeader(status)
	return nil
}

func (rw *response) Output(body []byte, last bool) error {
	if rw.complete {
		return errResponseComplete
	}
	if !rw.headerSent {
		if err := rw.SendHeader(); err != nil {
			return err
		}
	}
	if len(body) > 0 {
		if _, err := rw.body.Write(body); err != nil {
			return err
		}
	}
	if last {
		return rw.finish()
	}
	return nil
}

// sendError answers with a plain-text status page if nothing was sent yet.
func (rw *response) sendError(status int) {
	if rw.headerSent {
		return
	}
	body := []byte(http.StatusText(status) + "\n")
	rw.status = status
	rw.contentType = "text/plain; charset=utf-8"
	rw.contentLength = int64(len(body))
	_ = rw.Output(body, true)
}

// finish flushes the encoder and marks the body complete.
func (rw *response) finish() error {
	if rw.complete {
		return nil
	}
	rw.complete = true
	if rw.br != nil {
		return rw.br.Close()
	}
	return nil
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

// acceptsBrotli reports whether an Accept-Encoding value lists br with a
// non-zero quality.
func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "br") {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
