package bruteforce

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/middleware"
)

// maxBodyPeek bounds how much of a login body is buffered to find the email.
const maxBodyPeek = 1 << 20

// IdentifierFunc extracts the credential identifier from a login request.
// An empty result disables the guard for that request.
type IdentifierFunc func(r *http.Request) string

// EmailFromJSONBody reads the "email" field of a JSON body and restores the
// body for the handler. The email is normalized.
func EmailFromJSONBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return auth.NormalizeEmail(payload.Email)
}

// Middleware wraps a login handler. Locked identifiers get a 429 without
// reaching the handler. Otherwise the handler's outcome, reported through
// middleware.ReportOutcome or inferred from the status (2xx success, 401 and
// 403 failure, anything else ignored), updates the record.
func (g *Guard) Middleware(identify IdentifierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identify(r)
			if identifier == "" {
				next.ServeHTTP(w, r)
				return
			}

			if st := g.Check(r.Context(), identifier); st.Locked {
				g.logger.WithContext(r.Context()).Info("Login refused, identifier locked",
					logging.String("identifier", identifier),
					logging.Duration("remaining", st.Remaining),
					logging.Err(errors.LockoutError(identifier)))
				writeLocked(w, st)
				return
			}

			ctx, slot := middleware.WithOutcome(r.Context())
			sw := middleware.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			switch outcome(slot.Outcome(), sw.Status()) {
			case middleware.OutcomeSuccess:
				g.RegisterSuccess(r.Context(), identifier)
			case middleware.OutcomeFailure:
				g.RegisterFailure(r.Context(), identifier)
			}
		})
	}
}

func outcome(reported middleware.Outcome, status int) middleware.Outcome {
	if reported != middleware.OutcomeUnknown {
		return reported
	}
	switch {
	case status >= 200 && status < 300:
		return middleware.OutcomeSuccess
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return middleware.OutcomeFailure
	default:
		return middleware.OutcomeUnknown
	}
}

func writeLocked(w http.ResponseWriter, st Status) {
	seconds := int(math.Ceil(st.Remaining.Seconds()))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "error",
		"message":       "Too many failed login attempts. Please try again later.",
		"lockedUntil":   st.LockedUntil.UTC().Format(time.RFC3339),
		"remainingTime": seconds,
	})
}
