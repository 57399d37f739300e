package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/models"
)

type voteKey struct {
	voter    uuid.UUID
	election uuid.UUID
}

type memVoter struct {
	mu sync.Mutex
	v  models.Voter
}

// MemoryStore is an in-process implementation of the Postgres store, used
// in tests of the lockout, ledger, verify and API packages.
type MemoryStore struct {
	mu         sync.RWMutex
	voters     map[uuid.UUID]*memVoter
	elections  map[uuid.UUID]models.Election
	candidates map[uuid.UUID]models.Candidate

	votes sync.Map // voteKey -> models.Vote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		voters:     make(map[uuid.UUID]*memVoter),
		elections:  make(map[uuid.UUID]models.Election),
		candidates: make(map[uuid.UUID]models.Candidate),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// PutVoter inserts or replaces a voter record.
func (s *MemoryStore) PutVoter(v models.Voter) {
	v.Template = cloneTemplate(v.Template)
	s.mu.Lock()
	s.voters[v.ID] = &memVoter{v: v}
	s.mu.Unlock()
}

func (s *MemoryStore) PutElection(e models.Election, candidates ...models.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elections[e.ID] = e
	for _, c := range candidates {
		c.ElectionID = e.ID
		s.candidates[c.ID] = c
	}
}

func (s *MemoryStore) voter(id uuid.UUID) *memVoter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voters[id]
}

func (s *MemoryStore) GetVoter(ctx context.Context, id uuid.UUID) (*models.Voter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mv := s.voter(id)
	if mv == nil {
		return nil, nil
	}
	mv.mu.Lock()
	v := mv.v
	mv.mu.Unlock()
	v.Template = cloneTemplate(v.Template)
	return &v, nil
}

func (s *MemoryStore) FailureState(ctx context.Context, voterID uuid.UUID) (models.FailureState, error) {
	if err := ctx.Err(); err != nil {
		return models.FailureState{}, err
	}
	mv := s.voter(voterID)
	if mv == nil {
		return models.FailureState{}, fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	return failureState(mv.v), nil
}

func (s *MemoryStore) IncrementFailures(ctx context.Context, voterID uuid.UUID, at time.Time) (models.FailureState, error) {
	if err := ctx.Err(); err != nil {
		return models.FailureState{}, err
	}
	mv := s.voter(voterID)
	if mv == nil {
		return models.FailureState{}, fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.v.FailedAttempts++
	mv.v.LastFailedAt = &at
	return failureState(mv.v), nil
}

func (s *MemoryStore) ResetFailures(ctx context.Context, voterID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mv := s.voter(voterID)
	if mv == nil {
		return fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
	}
	mv.mu.Lock()
	mv.v.FailedAttempts = 0
	mv.v.LastFailedAt = nil
	mv.mu.Unlock()
	return nil
}

// InsertVote is a single LoadOrStore on the (voter, election) key.
func (s *MemoryStore) InsertVote(ctx context.Context, v *models.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	_, voterOK := s.voters[v.VoterID]
	_, electionOK := s.elections[v.ElectionID]
	c, candidateOK := s.candidates[v.CandidateID]
	s.mu.RUnlock()
	if !voterOK || !electionOK || !candidateOK || c.ElectionID != v.ElectionID {
		return fmt.Errorf("insert vote: %w", ErrUnknownReference)
	}

	if _, loaded := s.votes.LoadOrStore(voteKey{voter: v.VoterID, election: v.ElectionID}, *v); loaded {
		return ErrDuplicateVote
	}
	return nil
}

func (s *MemoryStore) ListVotesByVoter(ctx context.Context, voterID uuid.UUID) ([]models.VoteHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []models.VoteHistoryEntry
	s.votes.Range(func(k, val any) bool {
		if k.(voteKey).voter != voterID {
			return true
		}
		v := val.(models.Vote)
		e := s.elections[v.ElectionID]
		c := s.candidates[v.CandidateID]
		history = append(history, models.VoteHistoryEntry{
			ElectionID:     e.ID,
			ElectionTitle:  e.Title,
			CandidateName:  c.Name,
			CandidateParty: c.Party,
			CastAt:         v.CastAt,
		})
		return true
	})
	sort.Slice(history, func(i, j int) bool { return history[i].CastAt.After(history[j].CastAt) })
	return history, nil
}

func (s *MemoryStore) ElectionResults(ctx context.Context, electionID uuid.UUID) ([]models.CandidateTally, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int)
	s.votes.Range(func(k, val any) bool {
		if k.(voteKey).election == electionID {
			counts[val.(models.Vote).CandidateID]++
		}
		return true
	})

	s.mu.RLock()
	var tallies []models.CandidateTally
	for _, c := range s.candidates {
		if c.ElectionID != electionID {
			continue
		}
		tallies = append(tallies, models.CandidateTally{CandidateID: c.ID, Name: c.Name, Party: c.Party, Votes: counts[c.ID]})
	}
	s.mu.RUnlock()

	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Votes != tallies[j].Votes {
			return tallies[i].Votes > tallies[j].Votes
		}
		return tallies[i].Name < tallies[j].Name
	})
	return tallies, nil
}

func (s *MemoryStore) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elections[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func failureState(v models.Voter) models.FailureState {
	fs := models.FailureState{Failures: v.FailedAttempts}
	if v.LastFailedAt != nil {
		t := *v.LastFailedAt
		fs.LastFailedAt = &t
	}
	return fs
}

func cloneTemplate(t biometric.Template) biometric.Template {
	if t == nil {
		return nil
	}
	return append(biometric.Template(nil), t...)
}
