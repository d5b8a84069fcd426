package middleware

import (
	"context"
	"sync"
)

// Outcome is what a handler says about the operation it performed.
type Outcome int

const (
	// OutcomeUnknown means the handler did not report; observers fall back to
	// the response status.
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// OutcomeSlot receives the outcome reported for one request.
type OutcomeSlot struct {
	mu      sync.Mutex
	outcome Outcome
}

func (s *OutcomeSlot) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *OutcomeSlot) set(o Outcome) {
	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
}

type outcomeKey struct{}

// WithOutcome registers a new observer on ctx. Observers registered further
// out in the middleware chain keep receiving reports.
func WithOutcome(ctx context.Context) (context.Context, *OutcomeSlot) {
	slot := &OutcomeSlot{}
	parent, _ := ctx.Value(outcomeKey{}).([]*OutcomeSlot)

	slots := make([]*OutcomeSlot, 0, len(parent)+1)
	slots = append(slots, parent...)
	slots = append(slots, slot)
	return context.WithValue(ctx, outcomeKey{}, slots), slot
}

// ReportOutcome tells every observer on ctx whether the guarded operation
// (a login, typically) succeeded. It is a no-op when nothing observes.
func ReportOutcome(ctx context.Context, success bool) {
	o := OutcomeFailure
	if success {
		o = OutcomeSuccess
	}
	slots, _ := ctx.Value(outcomeKey{}).([]*OutcomeSlot)
	for _, s := range slots {
		s.set(o)
	}
}
