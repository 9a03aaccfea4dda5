package http

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"time"
)

// maxLoggedBody caps how much of a body is echoed to the log
const maxLoggedBody = 2048

// LoggingMiddleware logs requests and responses when verbose
type LoggingMiddleware struct {
	verbose bool
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(verbose bool) *LoggingMiddleware {
	return &LoggingMiddleware{
		verbose: verbose,
	}
}

// loggingResponseWriter captures the status and error bodies
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.body.Len() < maxLoggedBody {
		lrw.body.Write(b)
	}
	return lrw.ResponseWriter.Write(b)
}

// Middleware returns the HTTP logging middleware function
func (l *LoggingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.verbose {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		clientIP := ClientIP(r)

		log.Printf("[HTTP REQUEST] %s %s from %s", r.Method, r.URL.Path, clientIP)

		if r.Method == http.MethodPost && r.Body != nil {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				log.Printf("[HTTP REQUEST] Error reading request body: %v", err)
			} else {
				r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
				if len(bodyBytes) > 0 {
					log.Printf("[HTTP REQUEST] Body: %s", truncate(bodyBytes))
				}
			}
		}

		lrw := &loggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}

		next.ServeHTTP(lrw, r)

		log.Printf("[HTTP RESPONSE] %s %s -> %d in %v", r.Method, r.URL.Path, lrw.statusCode, time.Since(start))

		if lrw.statusCode >= 400 && lrw.body.Len() > 0 {
			log.Printf("[HTTP RESPONSE] Error body: %s", truncate(lrw.body.Bytes()))
		}
	})
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}
