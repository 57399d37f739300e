// Package lockout throttles face verification after repeated failures.
//
// A voter moves Clear -> Warned -> Locked as failures accumulate. Once the
// cooldown since the last failure has elapsed the voter may try again
// (EligibleAfterCooldown), but the counter only goes back to zero on a
// successful verification.
package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/models"
)

const (
	DefaultLimit    = 5
	DefaultCooldown = 5 * time.Minute
)

type State int

const (
	Clear State = iota
	Warned
	Locked
	EligibleAfterCooldown
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Warned:
		return "warned"
	case Locked:
		return "locked"
	case EligibleAfterCooldown:
		return "eligible_after_cooldown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store persists failure counters. IncrementFailures must be an atomic
// read-modify-write scoped to one voter.
type Store interface {
	FailureState(ctx context.Context, voterID uuid.UUID) (models.FailureState, error)
	IncrementFailures(ctx context.Context, voterID uuid.UUID, at time.Time) (models.FailureState, error)
	ResetFailures(ctx context.Context, voterID uuid.UUID) error
}

// Status is the policy's view of one voter at one instant.
type Status struct {
	State      State
	Failures   int
	Permitted  bool
	RetryAfter time.Duration
}

// Evaluate derives the lockout status from a failure state. It has no side effects.
func Evaluate(fs models.FailureState, limit int, cooldown time.Duration, now time.Time) Status {
	st := Status{Failures: fs.Failures, Permitted: true}
	switch {
	case fs.Failures <= 0:
		st.State = Clear
	case fs.Failures < limit:
		st.State = Warned
	case fs.LastFailedAt == nil:
		st.State = EligibleAfterCooldown
	default:
		until := fs.LastFailedAt.Add(cooldown)
		if now.Before(until) {
			st.State = Locked
			st.Permitted = false
			st.RetryAfter = until.Sub(now)
		} else {
			st.State = EligibleAfterCooldown
		}
	}
	return st
}

type Policy struct {
	store    Store
	limit    int
	cooldown time.Duration
	now      func() time.Time
}

type Option func(*Policy)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

func NewPolicy(store Store, limit int, cooldown time.Duration, opts ...Option) *Policy {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p := &Policy{store: store, limit: limit, cooldown: cooldown, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check reads the voter's current counters and reports whether an attempt is allowed.
func (p *Policy) Check(ctx context.Context, voterID uuid.UUID) (Status, error) {
	fs, err := p.store.FailureState(ctx, voterID)
	if err != nil {
		return Status{}, fmt.Errorf("read failure state: %w", err)
	}
	return Evaluate(fs, p.limit, p.cooldown, p.now()), nil
}

// MayAttempt is Check reduced to its permission bit.
func (p *Policy) MayAttempt(ctx context.Context, voterID uuid.UUID) (bool, error) {
	st, err := p.Check(ctx, voterID)
	if err != nil {
		return false, err
	}
	return st.Permitted, nil
}

// RecordFailure counts one failed verification and stamps it with the current time.
func (p *Policy) RecordFailure(ctx context.Context, voterID uuid.UUID) (Status, error) {
	now := p.now()
	fs, err := p.store.IncrementFailures(ctx, voterID, now)
	if err != nil {
		return Status{}, fmt.Errorf("record failure: %w", err)
	}
	return Evaluate(fs, p.limit, p.cooldown, now), nil
}

// RecordSuccess clears the counter and the last-failure timestamp.
func (p *Policy) RecordSuccess(ctx context.Context, voterID uuid.UUID) error {
	if err := p.store.ResetFailures(ctx, voterID); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

func (p *Policy) Limit() int              { return p.limit }
func (p *Policy) Cooldown() time.Duration { return p.cooldown }
