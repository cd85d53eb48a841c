package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// zapLogFormatter routes chi's per-request access log through the
// categorized zap logger instead of chi's own plain-text logger, so
// HTTP access lines are structured like every other subsystem's.
type zapLogFormatter struct {
	log *zap.SugaredLogger
}

func (f *zapLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &zapLogEntry{log: f.log, method: r.Method, path: r.URL.Path, reqID: middleware.GetReqID(r.Context())}
}

type zapLogEntry struct {
	log    *zap.SugaredLogger
	method string
	path   string
	reqID  string
}

func (e *zapLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.log.Infow("http request",
		"request_id", e.reqID, "method", e.method, "path", e.path,
		"status", status, "bytes", bytes, "elapsed_ms", elapsed.Milliseconds())
}

func (e *zapLogEntry) Panic(v interface{}, stack []byte) {
	e.log.Errorw("http handler panic", "request_id", e.reqID, "method", e.method, "path", e.path, "recovered", v)
}
