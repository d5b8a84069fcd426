package ratelimit

import (
	"net/http"

	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/middleware"
)

// Options carries the request-identification settings shared by policies.
type Options struct {
	TrustProxyHeaders bool
	APIKeyHeader      string
}

// Limiter builds the admission filters from configuration.
type Limiter struct {
	counter  *Counter
	settings config.RateLimitSettings
	opts     Options
	logger   logging.Logger
}

func NewLimiter(counter *Counter, settings config.RateLimitSettings, opts Options, logger logging.Logger) *Limiter {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Limiter{
		counter:  counter,
		settings: settings,
		opts:     opts,
		logger:   logger.WithFields(logging.String("component", "ratelimit")),
	}
}

func (l *Limiter) GeneralPolicy() Policy {
	return Policy{
		Name:     "general",
		Prefix:   KeyPrefix + ":general",
		Window:   l.settings.General.Window,
		Limit:    l.settings.General.Limit,
		Message:  "Too many requests from this IP, please try again later.",
		Identify: byIP(l.settings.General.Limit, l.opts.TrustProxyHeaders),
		Body:     BodyRetryAfter,
	}
}

func (l *Limiter) AuthPolicy() Policy {
	return Policy{
		Name:     "auth",
		Prefix:   KeyPrefix + ":auth",
		Window:   l.settings.Auth.Window,
		Limit:    l.settings.Auth.Limit,
		Message:  "Too many authentication attempts, please try again later.",
		Identify: byIP(l.settings.Auth.Limit, l.opts.TrustProxyHeaders),
		Body:     BodyRetryAfter,
	}
}

func (l *Limiter) UploadPolicy() Policy {
	return Policy{
		Name:     "upload",
		Prefix:   KeyPrefix + ":upload",
		Window:   l.settings.Upload.Window,
		Limit:    l.settings.Upload.Limit,
		Message:  "Too many upload requests, please try again later.",
		Identify: byIP(l.settings.Upload.Limit, l.opts.TrustProxyHeaders),
		Body:     BodyRetryAfter,
	}
}

func (l *Limiter) APIKeyPolicy() Policy {
	return Policy{
		Name:     "api_key",
		Prefix:   KeyPrefix,
		Window:   l.settings.APIKey.Window,
		Limit:    l.settings.APIKey.Limit,
		Message:  "API rate limit exceeded.",
		Identify: byAPIKey(l.opts.APIKeyHeader, l.settings.APIKey.Limit),
		Headers:  true,
		Body:     BodyLimitReset,
	}
}

func (l *Limiter) RolePolicy() Policy {
	return Policy{
		Name:     "role",
		Prefix:   KeyPrefix,
		Window:   l.settings.RoleWindow,
		Message:  "Rate limit exceeded for your account tier.",
		Identify: byRole(l.settings.RoleLimits, l.opts.TrustProxyHeaders),
		Headers:  true,
		Body:     BodyLimitReset,
	}
}

func (l *Limiter) General() func(http.Handler) http.Handler { return l.Middleware(l.GeneralPolicy()) }
func (l *Limiter) Upload() func(http.Handler) http.Handler  { return l.Middleware(l.UploadPolicy()) }
func (l *Limiter) APIKey() func(http.Handler) http.Handler  { return l.Middleware(l.APIKeyPolicy()) }
func (l *Limiter) Role() func(http.Handler) http.Handler    { return l.Middleware(l.RolePolicy()) }

// Auth counts only failed attempts; see OutcomeMiddleware.
func (l *Limiter) Auth() func(http.Handler) http.Handler {
	return l.OutcomeMiddleware(l.AuthPolicy())
}

// Middleware applies p to every request: admitted requests are recorded
// before the handler runs, denied ones get a 429.
func (l *Limiter) Middleware(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.settings.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			identity, limit, ok := p.Identify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			res := l.counter.Hit(r.Context(), p.Key(identity), p.Window, limit)
			if !res.Allowed {
				l.logDenied(r, p, identity, res)
				writeDenied(w, p, res)
				return
			}

			if p.Headers && !res.Degraded {
				setRateLimitHeaders(w, res)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OutcomeMiddleware applies p in two phases. Before the handler it only
// checks capacity. Afterwards it records an event if the handler reported a
// failure through middleware.ReportOutcome, or, when the handler reported
// nothing, if the response status is not 2xx. Successful attempts never
// consume budget.
func (l *Limiter) OutcomeMiddleware(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.settings.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			identity, limit, ok := p.Identify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := p.Key(identity)
			res := l.counter.Peek(r.Context(), key, p.Window, limit)
			if !res.Allowed {
				l.logDenied(r, p, identity, res)
				writeDenied(w, p, res)
				return
			}

			ctx, slot := middleware.WithOutcome(r.Context())
			sw := middleware.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if failed(slot.Outcome(), sw.Status()) {
				l.counter.Record(r.Context(), key, p.Window, limit)
			}
		})
	}
}

func failed(o middleware.Outcome, status int) bool {
	switch o {
	case middleware.OutcomeSuccess:
		return false
	case middleware.OutcomeFailure:
		return true
	default:
		return status < 200 || status > 299
	}
}

func (l *Limiter) logDenied(r *http.Request, p Policy, identity string, res Result) {
	l.logger.WithContext(r.Context()).Info("Request throttled",
		logging.String("policy", p.Name),
		logging.String("identity", identity),
		logging.Int("limit", res.Limit),
		logging.Int("count", res.Count),
		logging.Duration("retry_after", res.RetryAfter),
		logging.Err(errors.RateLimitError(p.Name)))
}
