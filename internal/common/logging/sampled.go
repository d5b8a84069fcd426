package logging

import (
	"time"

	"golang.org/x/time/rate"
)

// Sampled forwards Warn calls to a logger at most once per interval and drops
// the rest. It is meant for hot-path conditions (a store outage seen by every
// request) where one line per interval is enough. Other levels pass through.
type Sampled struct {
	Logger
	limiter *rate.Limiter
}

// NewSampled wraps logger so that at most one warning per interval is written,
// with an initial burst of one.
func NewSampled(logger Logger, interval time.Duration) *Sampled {
	return &Sampled{
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Warn logs msg if the sampling budget allows it.
func (s *Sampled) Warn(msg string, fields ...Field) {
	if s.limiter.Allow() {
		s.Logger.Warn(msg, fields...)
	}
}
