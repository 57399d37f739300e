package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a committed ballot. At most one exists per (VoterID, ElectionID) and
// it is never updated or deleted.
type Vote struct {
	ID          uuid.UUID `json:"id" db:"id"`
	VoterID     uuid.UUID `json:"voter_id" db:"voter_id"`
	ElectionID  uuid.UUID `json:"election_id" db:"election_id"`
	CandidateID uuid.UUID `json:"candidate_id" db:"candidate_id"`
	CastAt      time.Time `json:"cast_at" db:"cast_at"`
}

// VoteHistoryEntry is one row of a voter's own history.
type VoteHistoryEntry struct {
	ElectionID     uuid.UUID `json:"election_id"`
	ElectionTitle  string    `json:"election_title"`
	CandidateName  string    `json:"candidate_name"`
	CandidateParty string    `json:"candidate_party"`
	CastAt         time.Time `json:"cast_at"`
}

// CandidateTally is a per-candidate vote count.
type CandidateTally struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Name        string    `json:"name"`
	Party       string    `json:"party"`
	Votes       int       `json:"votes"`
}
