// Package ledger commits ballots. Uniqueness per (voter, election) is
// enforced by the store, never by a read-then-write check here.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/storage"
)

type Result int

const (
	Recorded Result = iota
	AlreadyVoted
)

func (r Result) String() string {
	if r == AlreadyVoted {
		return "already_voted"
	}
	return "recorded"
}

// Store must reject a second vote for the same voter and election with
// storage.ErrDuplicateVote.
type Store interface {
	InsertVote(ctx context.Context, v *models.Vote) error
}

type Commit struct {
	Result Result
	Vote   *models.Vote // nil unless Recorded
}

type Ledger struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// TryCommit records the vote or reports that one already exists. Exactly one
// of any number of concurrent calls for the same voter and election returns
// Recorded.
func (l *Ledger) TryCommit(ctx context.Context, voterID, electionID, candidateID uuid.UUID) (Commit, error) {
	v := &models.Vote{
		ID:          uuid.New(),
		VoterID:     voterID,
		ElectionID:  electionID,
		CandidateID: candidateID,
		CastAt:      l.now().UTC(),
	}
	err := l.store.InsertVote(ctx, v)
	switch {
	case err == nil:
		return Commit{Result: Recorded, Vote: v}, nil
	case errors.Is(err, storage.ErrDuplicateVote):
		return Commit{Result: AlreadyVoted}, nil
	default:
		return Commit{}, fmt.Errorf("commit vote: %w", err)
	}
}
