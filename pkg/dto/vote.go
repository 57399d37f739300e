package dto

import "github.com/google/uuid"

// VoteResponse is the body of POST /v1/elections/:id/votes.
type VoteResponse struct {
	Outcome           string     `json:"outcome"`
	Message           string     `json:"message"`
	LivenessScore     float64    `json:"liveness_score"`
	Distance          *float64   `json:"distance,omitempty"`
	SpoofMessage      string     `json:"spoof_message,omitempty"`
	FailedAttempts    int        `json:"failed_attempts"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	VoteID            *uuid.UUID `json:"vote_id,omitempty"`
	CastAt            string     `json:"cast_at,omitempty"`
}

type VoteHistoryItem struct {
	ElectionID     uuid.UUID `json:"election_id"`
	ElectionTitle  string    `json:"election_title"`
	CandidateName  string    `json:"candidate_name"`
	CandidateParty string    `json:"candidate_party"`
	CastAt         string    `json:"cast_at"`
}

type VoteHistoryResponse struct {
	Votes []VoteHistoryItem `json:"votes"`
	Total int               `json:"total"`
}

type LockoutResponse struct {
	VoterID           uuid.UUID `json:"voter_id"`
	State             string    `json:"state"`
	FailedAttempts    int       `json:"failed_attempts"`
	Limit             int       `json:"limit"`
	Permitted         bool      `json:"permitted"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

type CandidateResult struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Name        string    `json:"name"`
	Party       string    `json:"party"`
	Votes       int       `json:"votes"`
}

type ElectionResultsResponse struct {
	ElectionID uuid.UUID         `json:"election_id"`
	Title      string            `json:"title"`
	Open       bool              `json:"open"`
	Results    []CandidateResult `json:"results"`
	TotalVotes int               `json:"total_votes"`
}

// AttemptEvent is published on the ATTEMPTS stream and pushed to WebSocket
// clients. It never carries the chosen candidate.
type AttemptEvent struct {
	ID             uuid.UUID `json:"id"`
	VoterID        uuid.UUID `json:"voter_id"`
	ElectionID     uuid.UUID `json:"election_id"`
	Outcome        string    `json:"outcome"`
	FailedAttempts int       `json:"failed_attempts"`
	LivenessScore  float64   `json:"liveness_score"`
	Distance       *float64  `json:"distance,omitempty"`
	Timestamp      string    `json:"timestamp"`
}

// EvidenceListResponse lists the stored captures of rejected attempts.
type EvidenceListResponse struct {
	VoterID    uuid.UUID `json:"voter_id"`
	ElectionID uuid.UUID `json:"election_id"`
	Keys       []string  `json:"keys"`
}
