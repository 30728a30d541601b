package httpserver

import (
	"net/http"
	"time"
)

// statusRecorder captures the response status for the summary log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging emits one summary record per request: method, path,
// status, and duration. Authentication failures get an extra warning.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info("request summary",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		if recorder.status == http.StatusUnauthorized {
			s.logger.Warn("authentication failure", "method", r.Method, "path", r.URL.Path)
		}
	})
}
