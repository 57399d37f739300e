package verify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the terminal result of one attempt.
type Kind string

const (
	Locked             Kind = "locked"
	NoEnrolledTemplate Kind = "no_enrolled_template"
	LivenessFailed     Kind = "liveness_failed"
	SpoofDetected      Kind = "spoof_detected"
	NoFaceDetected     Kind = "no_face_detected"
	FaceMismatch       Kind = "face_mismatch"
	AlreadyVoted       Kind = "already_voted"
	VoteRecorded       Kind = "vote_recorded"
)

// CountsAsFailure reports whether the outcome increments the voter's failure counter.
func (k Kind) CountsAsFailure() bool {
	switch k {
	case LivenessFailed, SpoofDetected, FaceMismatch:
		return true
	}
	return false
}

// Compared reports whether a template distance was computed on the way to k.
func (k Kind) Compared() bool {
	switch k {
	case FaceMismatch, AlreadyVoted, VoteRecorded:
		return true
	}
	return false
}

type Outcome struct {
	Kind Kind

	LivenessScore float64
	SpoofMessage  string
	Distance      float64 // meaningful only when Kind.Compared()

	// Failures is the counter after this attempt. RetryAfter is set when the
	// voter is locked, either on arrival or by this attempt's failure.
	Failures   int
	RetryAfter time.Duration

	VoteID uuid.UUID
	CastAt time.Time
}

func (o Outcome) Message() string {
	switch o.Kind {
	case Locked:
		return "Too many failed attempts. Please try again later."
	case NoEnrolledTemplate:
		return "Face enrollment missing. Contact administrator."
	case LivenessFailed:
		return fmt.Sprintf("Liveness verification failed (variance=%.2f). Ensure real-time capture with good lighting.", o.LivenessScore)
	case SpoofDetected:
		return fmt.Sprintf("Anti-spoofing check failed: %s", o.SpoofMessage)
	case NoFaceDetected:
		return "Could not detect face in live capture. Please try again."
	case FaceMismatch:
		return fmt.Sprintf("Face mismatch detected (distance=%.2f).", o.Distance)
	case AlreadyVoted:
		return "You have already voted in this election."
	case VoteRecorded:
		return "Vote recorded successfully with verified face match."
	default:
		return string(o.Kind)
	}
}
