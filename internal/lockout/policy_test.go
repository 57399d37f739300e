package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newPolicy(t *testing.T) (*Policy, *storage.MemoryStore, *clock, uuid.UUID) {
	t.Helper()
	store := storage.NewMemoryStore()
	id := uuid.New()
	store.PutVoter(models.Voter{ID: id})
	c := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewPolicy(store, DefaultLimit, DefaultCooldown, WithClock(c.Now)), store, c, id
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time { ts := now.Add(-d); return &ts }

	tests := []struct {
		name      string
		fs        models.FailureState
		state     State
		permitted bool
		retry     time.Duration
	}{
		{"fresh", models.FailureState{}, Clear, true, 0},
		{"one failure", models.FailureState{Failures: 1, LastFailedAt: ago(time.Second)}, Warned, true, 0},
		{"below limit", models.FailureState{Failures: 4, LastFailedAt: ago(time.Second)}, Warned, true, 0},
		{"at limit in cooldown", models.FailureState{Failures: 5, LastFailedAt: ago(time.Minute)}, Locked, false, 4 * time.Minute},
		{"above limit in cooldown", models.FailureState{Failures: 9, LastFailedAt: ago(0)}, Locked, false, 5 * time.Minute},
		{"cooldown elapsed exactly", models.FailureState{Failures: 5, LastFailedAt: ago(5 * time.Minute)}, EligibleAfterCooldown, true, 0},
		{"cooldown long past", models.FailureState{Failures: 7, LastFailedAt: ago(time.Hour)}, EligibleAfterCooldown, true, 0},
		{"at limit without timestamp", models.FailureState{Failures: 5}, EligibleAfterCooldown, true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := Evaluate(tc.fs, DefaultLimit, DefaultCooldown, now)
			assert.Equal(t, tc.state, st.State)
			assert.Equal(t, tc.permitted, st.Permitted)
			assert.Equal(t, tc.retry, st.RetryAfter)
			assert.Equal(t, tc.fs.Failures, st.Failures)
		})
	}
}

func TestLockedVoterIsRefused(t *testing.T) {
	p, _, c, id := newPolicy(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit; i++ {
		_, err := p.RecordFailure(ctx, id)
		require.NoError(t, err)
	}
	c.Advance(time.Minute)

	st, err := p.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State)
	assert.False(t, st.Permitted)
	assert.Equal(t, 4*time.Minute, st.RetryAfter)

	ok, err := p.MayAttempt(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCooldownDoesNotResetCounter(t *testing.T) {
	p, store, c, id := newPolicy(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit; i++ {
		_, err := p.RecordFailure(ctx, id)
		require.NoError(t, err)
	}
	c.Advance(DefaultCooldown)

	st, err := p.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, EligibleAfterCooldown, st.State)
	assert.True(t, st.Permitted)

	fs, err := store.FailureState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, fs.Failures)

	// one more failure restarts the cooldown
	st, err = p.RecordFailure(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State)
	assert.Equal(t, DefaultLimit+1, st.Failures)
}

func TestFailuresAreMonotonicUntilSuccess(t *testing.T) {
	p, _, c, id := newPolicy(t)
	ctx := context.Background()

	prev := 0
	for i := 0; i < 8; i++ {
		st, err := p.RecordFailure(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, prev+1, st.Failures)
		prev = st.Failures
		c.Advance(10 * time.Minute)
	}

	require.NoError(t, p.RecordSuccess(ctx, id))
	st, err := p.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Clear, st.State)
	assert.Zero(t, st.Failures)
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	p, store, _, id := newPolicy(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.RecordFailure(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fs, err := store.FailureState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 25, fs.Failures)
}

func TestUnknownVoter(t *testing.T) {
	p, _, _, _ := newPolicy(t)
	_, err := p.Check(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewPolicyDefaultsLimit(t *testing.T) {
	p := NewPolicy(storage.NewMemoryStore(), 0, time.Minute)
	assert.Equal(t, DefaultLimit, p.Limit())
	assert.Equal(t, time.Minute, p.Cooldown())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "eligible_after_cooldown", EligibleAfterCooldown.String())
	assert.Equal(t, "state(42)", State(42).String())
}
