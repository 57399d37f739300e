package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/biometric"
)

// Voter is the identity record owned by the auth subsystem. The vote gate only
// ever writes FailedAttempts and LastFailedAt.
type Voter struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	FullName       string             `json:"full_name" db:"full_name"`
	Template       biometric.Template `json:"-" db:"face_template"`
	FailedAttempts int                `json:"failed_attempts" db:"failed_attempts"`
	LastFailedAt   *time.Time         `json:"last_failed_at,omitempty" db:"last_failed_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// Enrolled reports whether the voter has a usable face template.
func (v *Voter) Enrolled() bool {
	return v != nil && !v.Template.Absent()
}

// FailureState is the slice of a voter record the lockout policy works on.
type FailureState struct {
	Failures     int
	LastFailedAt *time.Time
}
