package models

import (
	"time"

	"github.com/google/uuid"
)

type Election struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	StartsAt    time.Time `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time `json:"ends_at" db:"ends_at"`
}

// OpenAt reports whether the voting window contains t (both ends inclusive).
func (e *Election) OpenAt(t time.Time) bool {
	return !t.Before(e.StartsAt) && !t.After(e.EndsAt)
}

type Candidate struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ElectionID uuid.UUID `json:"election_id" db:"election_id"`
	Name       string    `json:"name" db:"name"`
	Party      string    `json:"party" db:"party"`
}
