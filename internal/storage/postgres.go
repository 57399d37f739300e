package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/config"
	"github.com/your-org/votegate/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	voteUniqueConstraint = "uq_vote_per_voter_per_election"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Voters ---

// GetVoter returns nil, nil when the voter does not exist. A stored template
// that fails to decode is returned as an error wrapping biometric.ErrInvalidTemplate.
func (s *PostgresStore) GetVoter(ctx context.Context, id uuid.UUID) (*models.Voter, error) {
	v := &models.Voter{}
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, face_template, failed_attempts, last_failed_at, created_at FROM voters WHERE id = $1`, id,
	).Scan(&v.ID, &v.FullName, &blob, &v.FailedAttempts, &v.LastFailedAt, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get voter: %w", err)
	}

	v.Template, err = biometric.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decode template of voter %s: %w", id, err)
	}
	return v, nil
}

func (s *PostgresStore) FailureState(ctx context.Context, voterID uuid.UUID) (models.FailureState, error) {
	var fs models.FailureState
	err := s.pool.QueryRow(ctx,
		`SELECT failed_attempts, last_failed_at FROM voters WHERE id = $1`, voterID,
	).Scan(&fs.Failures, &fs.LastFailedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FailureState{}, fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
		}
		return models.FailureState{}, fmt.Errorf("get failure state: %w", err)
	}
	return fs, nil
}

// IncrementFailures bumps the counter in a single statement so concurrent
// failures for the same voter are never lost.
func (s *PostgresStore) IncrementFailures(ctx context.Context, voterID uuid.UUID, at time.Time) (models.FailureState, error) {
	var fs models.FailureState
	err := s.pool.QueryRow(ctx,
		`UPDATE voters SET failed_attempts = failed_attempts + 1, last_failed_at = $2
		 WHERE id = $1 RETURNING failed_attempts, last_failed_at`,
		voterID, at,
	).Scan(&fs.Failures, &fs.LastFailedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FailureState{}, fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
		}
		return models.FailureState{}, fmt.Errorf("increment failures: %w", err)
	}
	return fs, nil
}

func (s *PostgresStore) ResetFailures(ctx context.Context, voterID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voters SET failed_attempts = 0, last_failed_at = NULL WHERE id = $1`, voterID)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("voter %s: %w", voterID, ErrNotFound)
	}
	return nil
}

// --- Votes ---

// InsertVote relies on the unique index over (voter_id, election_id) alone.
// A second vote for the same election returns ErrDuplicateVote.
func (s *PostgresStore) InsertVote(ctx context.Context, v *models.Vote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO votes (id, voter_id, election_id, candidate_id, cast_at) VALUES ($1, $2, $3, $4, $5)`,
		v.ID, v.VoterID, v.ElectionID, v.CandidateID, v.CastAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == voteUniqueConstraint:
			return ErrDuplicateVote
		case pgErr.Code == pgForeignKeyViolation:
			return fmt.Errorf("insert vote: %w: %s", ErrUnknownReference, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("insert vote: %w", err)
}

func (s *PostgresStore) ListVotesByVoter(ctx context.Context, voterID uuid.UUID) ([]models.VoteHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.title, c.name, c.party, v.cast_at
		 FROM votes v
		 JOIN elections e ON e.id = v.election_id
		 JOIN candidates c ON c.id = v.candidate_id
		 WHERE v.voter_id = $1
		 ORDER BY v.cast_at DESC`, voterID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var history []models.VoteHistoryEntry
	for rows.Next() {
		var h models.VoteHistoryEntry
		if err := rows.Scan(&h.ElectionID, &h.ElectionTitle, &h.CandidateName, &h.CandidateParty, &h.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *PostgresStore) ElectionResults(ctx context.Context, electionID uuid.UUID) ([]models.CandidateTally, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.party, COUNT(v.id)
		 FROM candidates c
		 LEFT JOIN votes v ON v.candidate_id = c.id
		 WHERE c.election_id = $1
		 GROUP BY c.id, c.name, c.party
		 ORDER BY COUNT(v.id) DESC, c.name`, electionID)
	if err != nil {
		return nil, fmt.Errorf("election results: %w", err)
	}
	defer rows.Close()

	var tallies []models.CandidateTally
	for rows.Next() {
		var t models.CandidateTally
		if err := rows.Scan(&t.CandidateID, &t.Name, &t.Party, &t.Votes); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}

// --- Elections (read-only) ---

func (s *PostgresStore) GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error) {
	e := &models.Election{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, starts_at, ends_at FROM elections WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get election: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	c := &models.Candidate{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, election_id, name, party FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.ElectionID, &c.Name, &c.Party)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}
