package verify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type EvidenceSink interface {
	SaveRejected(ctx context.Context, electionID, voterID uuid.UUID, reason string, image []byte, at time.Time) (string, error)
}

// EvidenceObserver keeps the capture of every attempt that counted as a
// failure. Upload errors are logged and otherwise ignored.
func EvidenceObserver(sink EvidenceSink) Observer {
	return ObserverFunc(func(ctx context.Context, a Attempt, out Outcome) {
		if !out.Kind.CountsAsFailure() || len(a.Image) == 0 {
			return
		}
		key, err := sink.SaveRejected(ctx, a.ElectionID, a.VoterID, string(out.Kind), a.Image, time.Now())
		if err != nil {
			slog.Warn("save rejected capture", "voter_id", a.VoterID, "outcome", out.Kind, "error", err)
			return
		}
		slog.Debug("saved rejected capture", "key", key)
	})
}
