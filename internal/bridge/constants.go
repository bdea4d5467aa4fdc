package bridge

import (
	"log/slog"

	"github.com/cryguy/phasejs/internal/core"
)

// DefaultContentType is what rputs sets on the response.
const DefaultContentType = "text/html"

type constant struct {
	Name  string
	Value int
}

// hostConstants is registered on the Nginx object of every VM before any
// unit is compiled.
var hostConstants = []constant{
	{"NGX_OK", core.ResultOK},
	{"NGX_ERROR", core.ResultError},
	{"NGX_AGAIN", core.ResultAgain},
	{"NGX_BUSY", core.ResultBusy},
	{"NGX_DONE", core.ResultDone},
	{"NGX_DECLINED", core.ResultDeclined},
	{"NGX_ABORT", core.ResultAbort},

	{"NGX_HTTP_OK", 200},
	{"NGX_HTTP_CREATED", 201},
	{"NGX_HTTP_ACCEPTED", 202},
	{"NGX_HTTP_NO_CONTENT", 204},
	{"NGX_HTTP_SPECIAL_RESPONSE", 300},
	{"NGX_HTTP_MOVED_PERMANENTLY", 301},
	{"NGX_HTTP_MOVED_TEMPORARILY", 302},
	{"NGX_HTTP_SEE_OTHER", 303},
	{"NGX_HTTP_NOT_MODIFIED", 304},
	{"NGX_HTTP_TEMPORARY_REDIRECT", 307},
	{"NGX_HTTP_BAD_REQUEST", 400},
	{"NGX_HTTP_UNAUTHORIZED", 401},
	{"NGX_HTTP_FORBIDDEN", 403},
	{"NGX_HTTP_NOT_FOUND", 404},
	{"NGX_HTTP_NOT_ALLOWED", 405},
	{"NGX_HTTP_REQUEST_TIME_OUT", 408},
	{"NGX_HTTP_CONFLICT", 409},
	{"NGX_HTTP_LENGTH_REQUIRED", 411},
	{"NGX_HTTP_PRECONDITION_FAILED", 412},
	{"NGX_HTTP_REQUEST_ENTITY_TOO_LARGE", 413},
	{"NGX_HTTP_REQUEST_URI_TOO_LARGE", 414},
	{"NGX_HTTP_UNSUPPORTED_MEDIA_TYPE", 415},
	{"NGX_HTTP_RANGE_NOT_SATISFIABLE", 416},
	{"NGX_HTTP_CLOSE", 444},
	{"NGX_HTTP_NGINX_CODES", 494},
	{"NGX_HTTP_REQUEST_HEADER_TOO_LARGE", 494},
	{"NGX_HTTPS_CERT_ERROR", 495},
	{"NGX_HTTPS_NO_CERT", 496},
	{"NGX_HTTP_TO_HTTPS", 497},
	{"NGX_HTTP_CLIENT_CLOSED_REQUEST", 499},
	{"NGX_HTTP_INTERNAL_SERVER_ERROR", 500},
	{"NGX_HTTP_NOT_IMPLEMENTED", 501},
	{"NGX_HTTP_BAD_GATEWAY", 502},
	{"NGX_HTTP_SERVICE_UNAVAILABLE", 503},
	{"NGX_HTTP_GATEWAY_TIME_OUT", 504},
	{"NGX_HTTP_INSUFFICIENT_STORAGE", 507},

	{"LOG_STDERR", logStderr},
	{"LOG_EMERG", logEmerg},
	{"LOG_ALERT", logAlert},
	{"LOG_CRIT", logCrit},
	{"LOG_ERR", logErr},
	{"LOG_WARN", logWarn},
	{"LOG_NOTICE", logNotice},
	{"LOG_INFO", logInfo},
	{"LOG_DEBUG", logDebug},
}

const (
	logStderr = iota
	logEmerg
	logAlert
	logCrit
	logErr
	logWarn
	logNotice
	logInfo
	logDebug
)

// slogLevel maps a host log level to its slog equivalent.
func slogLevel(level int) slog.Level {
	switch {
	case level <= logErr:
		return slog.LevelError
	case level == logWarn:
		return slog.LevelWarn
	case level == logDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// consoleLevel maps a console method name to its slog level.
func consoleLevel(method string) slog.Level {
	switch method {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
