package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/storage"
)

func seeded(t *testing.T) (*storage.MemoryStore, uuid.UUID, uuid.UUID, []uuid.UUID) {
	t.Helper()
	s := storage.NewMemoryStore()
	voter, election := uuid.New(), uuid.New()
	cands := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	s.PutVoter(models.Voter{ID: voter})
	s.PutElection(models.Election{ID: election, Title: "Council"},
		models.Candidate{ID: cands[0], Name: "A"},
		models.Candidate{ID: cands[1], Name: "B"},
		models.Candidate{ID: cands[2], Name: "C"},
	)
	return s, voter, election, cands
}

func TestTryCommitOnce(t *testing.T) {
	s, voter, election, cands := seeded(t)
	l := New(s)
	fixed := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	c, err := l.TryCommit(context.Background(), voter, election, cands[0])
	require.NoError(t, err)
	assert.Equal(t, Recorded, c.Result)
	require.NotNil(t, c.Vote)
	assert.Equal(t, fixed, c.Vote.CastAt)
	assert.Equal(t, cands[0], c.Vote.CandidateID)

	c, err = l.TryCommit(context.Background(), voter, election, cands[1])
	require.NoError(t, err)
	assert.Equal(t, AlreadyVoted, c.Result)
	assert.Nil(t, c.Vote)
}

func TestTryCommitConcurrentAtMostOnce(t *testing.T) {
	s, voter, election, cands := seeded(t)
	l := New(s)

	const n = 100
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := l.TryCommit(context.Background(), voter, election, cands[i%len(cands)])
			assert.NoError(t, err)
			results[i] = c.Result
		}(i)
	}
	wg.Wait()

	recorded := 0
	for _, r := range results {
		if r == Recorded {
			recorded++
		}
	}
	assert.Equal(t, 1, recorded)

	history, err := s.ListVotesByVoter(context.Background(), voter)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

type failingStore struct{ err error }

func (f failingStore) InsertVote(context.Context, *models.Vote) error { return f.err }

func TestTryCommitPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := New(failingStore{err: boom}).TryCommit(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, boom)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "recorded", Recorded.String())
	assert.Equal(t, "already_voted", AlreadyVoted.String())
}
