package core

// Request is the host side of one in-flight HTTP transaction, as seen by
// bridge operations. Implementations need not be safe for concurrent use.
type Request interface {
	// URI returns the request path without the query string.
	URI() string

	ContentType() string
	SetContentType(ct string)

	SetStatus(status int)
	SetContentLength(n int64)

	// SendHeader transmits the response status and headers. It returns
	// ErrHeaderSent on a second call.
	SendHeader() error

	// Output streams a body chunk. last marks the final chunk.
	Output(body []byte, last bool) error
}

// SourceLoader reads script source from a file-origin path.
type SourceLoader interface {
	LoadScript(path string) (string, error)
}
