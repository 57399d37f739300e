package storage

import "errors"

var (
	// ErrNotFound is returned by mutations that target a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateVote is the unique (voter_id, election_id) violation.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrUnknownReference is a foreign key violation on insert.
	ErrUnknownReference = errors.New("unknown reference")
)
