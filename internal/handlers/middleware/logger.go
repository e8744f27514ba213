package middleware

import (
	"net/http"
	"time"
)

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type responseData struct {
	status int
	size   int
}

type recordingWriter struct {
	http.ResponseWriter
	data responseData
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.size += size
	return size, err
}

func (w *recordingWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.status = statusCode
}

// Log every request. Server errors go to error level
// Authorization header and bodies are never logged: they carry tokens and passwords
func LoggerMiddleware(l requestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &recordingWriter{
				ResponseWriter: w,
				data:           responseData{status: http.StatusOK},
			}

			next.ServeHTTP(rw, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"duration", time.Since(start),
				"status", rw.data.status,
				"size", rw.data.size,
			}

			if rw.data.status >= http.StatusInternalServerError {
				l.Error("HTTP request failed", args...)
				return
			}
			l.Info("HTTP request", args...)
		})
	}
}
