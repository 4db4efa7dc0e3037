package server

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/conneroisu/comicshare/internal/access"
	"github.com/conneroisu/comicshare/internal/logging"
)

// requireLibraryAccess guards the library routes of a share. The access
// gate runs first, then the request must have arrived over TLS and carry
// Basic credentials whose password matches the share secret. Any user
// name is accepted; an empty secret disables the password check.
func (s *Service) requireLibraryAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := s.check(ctx); err != nil {
			writeError(w, err)
			return
		}

		if r.TLS == nil {
			logging.LogSecurityEvent(s.logger, ctx, "plaintext_library_request", map[string]interface{}{
				"path": r.URL.Path,
			})
			http.Error(w, "TLS required", http.StatusForbidden)
			return
		}

		if !s.authorized(r) {
			logging.LogSecurityEvent(s.logger, ctx, "bad_credentials", map[string]interface{}{
				"remote": r.RemoteAddr,
			})
			w.Header().Set("WWW-Authenticate", `Basic realm="`+s.Name()+`", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) authorized(r *http.Request) bool {
	secret := s.Config.Password
	if secret == "" {
		return true
	}
	_, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(secret)) == 1
}

// newHandler routes every share of services on one mux and wraps it with
// the common middleware.
func newHandler(services []*Service, logger logging.Logger) http.Handler {
	mux := http.NewServeMux()
	for _, s := range services {
		s.register(mux)
	}
	return requestLogger(logger, securityHeaders(access.Middleware(mux)))
}

// securityHeaders sets the response headers every route shares.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func requestLogger(logger logging.Logger, next http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
