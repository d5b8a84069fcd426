// Package bruteforce locks out a credential identifier (an email) after
// repeated failed logins, independently of the caller's IP.
//
// Per identifier the guard moves CLEAR -> ACCUMULATING -> LOCKED -> CLEAR:
// failures increment a counter, reaching the threshold sets a lockout
// deadline, and a success before the lockout clears the record. While locked
// every attempt is refused, correct password or not.
package bruteforce

import (
	"context"
	"time"

	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/utils"
	"marketplace-gateway/internal/config"
)

// KeyPrefix namespaces lockout records in the cache.
const KeyPrefix = "login_attempts"

// Record is the stored lockout state.
type Record struct {
	Count int `json:"count"`
	// LockedUntil is epoch milliseconds; zero until the threshold is reached.
	LockedUntil int64 `json:"lockedUntil"`
}

// Status describes an identifier at a point in time. LockedUntil and
// Remaining are zero unless Locked.
type Status struct {
	Identifier  string
	Count       int
	Locked      bool
	LockedUntil time.Time
	Remaining   time.Duration
}

type Guard struct {
	cache       *cache.Facade
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	logger      logging.Logger
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithLogger(logger logging.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func New(facade *cache.Facade, settings config.BruteForceSettings, opts ...Option) *Guard {
	g := &Guard{
		cache:       facade,
		maxAttempts: settings.MaxAttempts,
		lockout:     settings.Lockout,
		now:         time.Now,
		logger:      logging.GetGlobalLogger(),
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 5
	}
	if g.lockout <= 0 {
		g.lockout = 15 * time.Minute
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithFields(logging.String("component", "bruteforce"))
	return g
}

func Key(identifier string) string {
	return KeyPrefix + ":" + identifier
}

// Check returns the current status. A record whose lockout has passed is
// removed and reported as clear.
func (g *Guard) Check(ctx context.Context, identifier string) Status {
	rec, found := g.load(ctx, identifier)
	if !found {
		return Status{Identifier: identifier}
	}
	return g.status(ctx, identifier, rec)
}

func (g *Guard) status(ctx context.Context, identifier string, rec Record) Status {
	now := g.now()
	if rec.LockedUntil == 0 {
		return Status{Identifier: identifier, Count: rec.Count}
	}

	until := time.UnixMilli(rec.LockedUntil)
	if !now.Before(until) {
		g.cache.Delete(ctx, Key(identifier))
		return Status{Identifier: identifier}
	}
	return Status{
		Identifier:  identifier,
		Count:       rec.Count,
		Locked:      true,
		LockedUntil: until,
		Remaining:   until.Sub(now),
	}
}

// RegisterFailure records a failed attempt and locks the identifier once the
// threshold is reached. Failures while already locked do not extend the
// lockout.
func (g *Guard) RegisterFailure(ctx context.Context, identifier string) Status {
	rec, found := g.load(ctx, identifier)
	if found && rec.LockedUntil != 0 {
		if st := g.status(ctx, identifier, rec); st.Locked {
			return st
		}
		// The previous lockout has passed; start over.
		rec = Record{}
	}

	now := g.now()
	rec.Count++
	if rec.Count >= g.maxAttempts {
		rec.LockedUntil = now.Add(g.lockout).UnixMilli()
		g.logger.WithContext(ctx).Info("Login identifier locked",
			logging.String("identifier", identifier),
			logging.Int("attempts", rec.Count),
			logging.Time("locked_until", time.UnixMilli(rec.LockedUntil)),
			logging.Err(errors.LockoutError(identifier)))
	}

	g.cache.Set(ctx, Key(identifier), rec, utils.CeilSeconds(g.lockout))
	return g.statusOf(identifier, rec, now)
}

// RegisterSuccess clears the identifier's record.
func (g *Guard) RegisterSuccess(ctx context.Context, identifier string) {
	g.cache.Delete(ctx, Key(identifier))
}

// Reset clears the record unconditionally, lifting an active lockout.
func (g *Guard) Reset(ctx context.Context, identifier string) bool {
	return g.cache.Delete(ctx, Key(identifier))
}

func (g *Guard) load(ctx context.Context, identifier string) (Record, bool) {
	var rec Record
	if !g.cache.Get(ctx, Key(identifier), &rec) {
		return Record{}, false
	}
	return rec, true
}

func (g *Guard) statusOf(identifier string, rec Record, now time.Time) Status {
	st := Status{Identifier: identifier, Count: rec.Count}
	if rec.LockedUntil != 0 {
		st.Locked = true
		st.LockedUntil = time.UnixMilli(rec.LockedUntil)
		st.Remaining = st.LockedUntil.Sub(now)
	}
	return st
}
