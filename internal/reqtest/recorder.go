// Package reqtest provides an in-memory core.Request for tests.
package reqtest

import (
	"bytes"

	"github.com/cryguy/phasejs/internal/core"
)

// Recorder records everything bridge operations do to a request.
type Recorder struct {
	Path string

	Status           int
	ContentLength    int64
	ContentTypeValue string

	HeaderSent  bool
	HeaderCalls int
	Writes      int
	LastSeen    bool
	Body        bytes.Buffer
}

var _ core.Request = (*Recorder)(nil)

// New returns a Recorder for path.
func New(path string) *Recorder {
	return &Recorder{Path: path, ContentLength: -1}
}

func (r *Recorder) URI() string              { return r.Path }
func (r *Recorder) ContentType() string      { return r.ContentTypeValue }
func (r *Recorder) SetContentType(ct string) { r.ContentTypeValue = ct }
func (r *Recorder) SetStatus(status int)     { r.Status = status }
func (r *Recorder) SetContentLength(n int64) { r.ContentLength = n }

func (r *Recorder) SendHeader() error {
	r.HeaderCalls++
	if r.HeaderSent {
		return core.ErrHeaderSent
	}
	r.HeaderSent = true
	return nil
}

func (r *Recorder) Output(body []byte, last bool) error {
	r.Writes++
	r.Body.Write(body)
	if last {
		r.LastSeen = true
	}
	return nil
}
