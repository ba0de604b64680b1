package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"spectral/internal/logging"
	"spectral/internal/services"
)

const requestIDHeader = "X-Request-ID"

// requestID assigns every request a correlation id, carried on the context
// and echoed in the response, and logs request completion.
func (s *httpServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx := services.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		s.log.InfoContext(ctx, "request completed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", recorder.status),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldCorrelationID, id))
	})
}

// requireModerator guards moderation routes behind the configured bearer
// token.
func (s *httpServer) requireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.moderatorToken == "" {
			s.writeError(w, r, services.Wrap(services.ErrForbidden, "daemon", "auth",
				"moderation is disabled: no moderator token configured", nil))
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.moderatorToken)) != 1 {
			s.writeError(w, r, services.Wrap(services.ErrForbidden, "daemon", "auth",
				"moderator token required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
