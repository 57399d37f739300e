// Package verify runs a vote attempt through the biometric gate and, when
// every check passes, commits the ballot.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/ledger"
	"github.com/your-org/votegate/internal/lockout"
	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/observability"
	"github.com/your-org/votegate/internal/storage"
)

var (
	ErrVoterNotFound = errors.New("voter not found")
	// ErrAbandoned means the attempt was cancelled or timed out before a
	// decision was reached. Nothing was written.
	ErrAbandoned = errors.New("attempt abandoned")
)

const defaultMutationTimeout = 5 * time.Second

type Attempt struct {
	VoterID       uuid.UUID
	ElectionID    uuid.UUID
	CandidateID   uuid.UUID
	Image         []byte
	UseSpoofCheck bool
}

type VoterDirectory interface {
	GetVoter(ctx context.Context, id uuid.UUID) (*models.Voter, error)
}

// Extractor returns a nil template when no face is found.
type Extractor interface {
	ExtractTemplate(image []byte) (biometric.Template, error)
}

type LivenessAssessor interface {
	Assess(image []byte) (biometric.LivenessResult, error)
}

type Lockout interface {
	Check(ctx context.Context, voterID uuid.UUID) (lockout.Status, error)
	RecordFailure(ctx context.Context, voterID uuid.UUID) (lockout.Status, error)
	RecordSuccess(ctx context.Context, voterID uuid.UUID) error
}

type Ledger interface {
	TryCommit(ctx context.Context, voterID, electionID, candidateID uuid.UUID) (ledger.Commit, error)
}

// Observer is told about every decided attempt. Observers run after the
// outcome is returned, on a context that outlives the caller's.
type Observer interface {
	AttemptFinished(ctx context.Context, a Attempt, out Outcome)
}

type ObserverFunc func(ctx context.Context, a Attempt, out Outcome)

func (f ObserverFunc) AttemptFinished(ctx context.Context, a Attempt, out Outcome) { f(ctx, a, out) }

type Deps struct {
	Voters    VoterDirectory
	Lockout   Lockout
	Ledger    Ledger
	Liveness  LivenessAssessor
	Spoof     biometric.SpoofClassifier
	Extractor Extractor
}

type Config struct {
	MatchThreshold  float64
	AttemptTimeout  time.Duration
	ExtractWorkers  int
	MutationTimeout time.Duration
}

type Orchestrator struct {
	deps      Deps
	cfg       Config
	sem       *semaphore.Weighted
	observers []Observer
	notifying sync.WaitGroup
}

func New(deps Deps, cfg Config, observers ...Observer) *Orchestrator {
	if deps.Spoof == nil {
		deps.Spoof = biometric.DisabledClassifier{}
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = biometric.DefaultMatchThreshold
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 1
	}
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = defaultMutationTimeout
	}
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.ExtractWorkers)),
		observers: observers,
	}
}

// SubmitVerifiedVote checks lockout, enrollment, liveness, the optional spoof
// classifier and template similarity, in that order, then commits the vote.
// Expected rejections are returned as an Outcome; errors are reserved for
// unknown voters, abandoned attempts and infrastructure failures.
func (o *Orchestrator) SubmitVerifiedVote(ctx context.Context, a Attempt) (Outcome, error) {
	if o.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := o.run(ctx, a)
	if err != nil {
		if errors.Is(err, ErrAbandoned) {
			observability.AttemptsAbandoned.Inc()
			slog.Warn("vote attempt abandoned", "voter_id", a.VoterID, "election_id", a.ElectionID, "error", err)
		}
		return Outcome{}, err
	}

	observability.AttemptOutcomes.WithLabelValues(string(out.Kind)).Inc()
	slog.Info("vote attempt",
		"voter_id", a.VoterID,
		"election_id", a.ElectionID,
		"outcome", out.Kind,
		"failures", out.Failures,
		"duration", time.Since(start).String(),
	)

	if len(o.observers) > 0 {
		nctx, cancel := o.detached(ctx)
		o.notifying.Add(1)
		go func() {
			defer o.notifying.Done()
			defer cancel()
			for _, obs := range o.observers {
				obs.AttemptFinished(nctx, a, out)
			}
		}()
	}
	return out, nil
}

// Wait blocks until every pending observer notification has finished.
func (o *Orchestrator) Wait() {
	o.notifying.Wait()
}

func (o *Orchestrator) run(ctx context.Context, a Attempt) (Outcome, error) {
	st, err := o.deps.Lockout.Check(ctx, a.VoterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, ErrVoterNotFound
		}
		return Outcome{}, o.interrupted(ctx, fmt.Errorf("check lockout: %w", err))
	}
	if !st.Permitted {
		return Outcome{Kind: Locked, Failures: st.Failures, RetryAfter: st.RetryAfter}, nil
	}

	voter, err := o.deps.Voters.GetVoter(ctx, a.VoterID)
	if err != nil {
		return Outcome{}, o.interrupted(ctx, fmt.Errorf("load voter: %w", err))
	}
	if voter == nil {
		return Outcome{}, ErrVoterNotFound
	}
	if !voter.Enrolled() {
		return Outcome{Kind: NoEnrolledTemplate, Failures: st.Failures}, nil
	}

	t := time.Now()
	live, err := o.deps.Liveness.Assess(a.Image)
	observability.StageDuration.WithLabelValues("liveness").Observe(time.Since(t).Seconds())
	if err != nil {
		if !errors.Is(err, biometric.ErrUndecodableImage) {
			return Outcome{}, fmt.Errorf("assess liveness: %w", err)
		}
		// an unreadable capture never passes, whatever the threshold
		observability.LivenessScores.Observe(0)
		return o.fail(ctx, a, Outcome{Kind: LivenessFailed})
	}
	observability.LivenessScores.Observe(live.Score)
	if !live.Live {
		return o.fail(ctx, a, Outcome{Kind: LivenessFailed, LivenessScore: live.Score})
	}

	var spoofMsg string
	if a.UseSpoofCheck {
		t = time.Now()
		res, err := o.deps.Spoof.Classify(ctx, a.Image)
		observability.StageDuration.WithLabelValues("spoof").Observe(time.Since(t).Seconds())
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Outcome{}, abandoned(ctx.Err())
			}
			observability.ClassifierUnavailable.Inc()
			slog.Warn("spoof check skipped", "voter_id", a.VoterID, "error", err)
			spoofMsg = "anti-spoofing unavailable, check skipped"
		case !res.Real:
			return o.fail(ctx, a, Outcome{Kind: SpoofDetected, LivenessScore: live.Score, SpoofMessage: res.Message})
		default:
			spoofMsg = res.Message
		}
	}

	probe, err := o.extract(ctx, a.Image)
	if errors.Is(err, biometric.ErrUndecodableImage) {
		return o.fail(ctx, a, Outcome{Kind: LivenessFailed, LivenessScore: live.Score, SpoofMessage: spoofMsg})
	}
	if err != nil {
		return Outcome{}, err
	}
	if probe.Absent() {
		return Outcome{Kind: NoFaceDetected, LivenessScore: live.Score, SpoofMessage: spoofMsg, Failures: st.Failures}, nil
	}

	match, distance := biometric.Compare(voter.Template, probe, o.cfg.MatchThreshold)
	if !math.IsInf(distance, 0) {
		observability.MatchDistances.Observe(distance)
	}
	if !match {
		return o.fail(ctx, a, Outcome{Kind: FaceMismatch, LivenessScore: live.Score, SpoofMessage: spoofMsg, Distance: distance})
	}

	return o.commit(ctx, a, Outcome{LivenessScore: live.Score, SpoofMessage: spoofMsg, Distance: distance, Failures: st.Failures})
}

// extract runs the extractor on a bounded worker slot. The slot is held until
// the extractor returns even if the attempt is abandoned first.
func (o *Orchestrator) extract(ctx context.Context, image []byte) (biometric.Template, error) {
	observability.ExtractQueueDepth.Inc()
	err := o.sem.Acquire(ctx, 1)
	observability.ExtractQueueDepth.Dec()
	if err != nil {
		return nil, abandoned(err)
	}

	type result struct {
		tmpl biometric.Template
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer o.sem.Release(1)
		tmpl, err := o.deps.Extractor.ExtractTemplate(image)
		observability.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
		done <- result{tmpl, err}
	}()

	select {
	case <-ctx.Done():
		return nil, abandoned(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("extract template: %w", r.err)
		}
		return r.tmpl, nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, a Attempt, out Outcome) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, abandoned(err)
	}
	mctx, cancel := o.detached(ctx)
	defer cancel()

	st, err := o.deps.Lockout.RecordFailure(mctx, a.VoterID)
	if err != nil {
		return Outcome{}, fmt.Errorf("record failure: %w", err)
	}
	out.Failures = st.Failures
	out.RetryAfter = st.RetryAfter
	return out, nil
}

func (o *Orchestrator) commit(ctx context.Context, a Attempt, out Outcome) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, abandoned(err)
	}
	mctx, cancel := o.detached(ctx)
	defer cancel()

	c, err := o.deps.Ledger.TryCommit(mctx, a.VoterID, a.ElectionID, a.CandidateID)
	if err != nil {
		return Outcome{}, err
	}
	if c.Result == ledger.AlreadyVoted {
		out.Kind = AlreadyVoted
		return out, nil
	}

	observability.VotesCommitted.Inc()
	out.Kind = VoteRecorded
	out.VoteID = c.Vote.ID
	out.CastAt = c.Vote.CastAt
	if err := o.deps.Lockout.RecordSuccess(mctx, a.VoterID); err != nil {
		// ballot stands; only the counter is stale
		slog.Warn("reset failure counter after vote", "voter_id", a.VoterID, "error", err)
		return out, nil
	}
	out.Failures = 0
	return out, nil
}

func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.MutationTimeout)
}

// interrupted turns err into ErrAbandoned when it was caused by ctx ending.
func (o *Orchestrator) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return abandoned(ctx.Err())
	}
	return err
}

func abandoned(cause error) error {
	return fmt.Errorf("%w: %w", ErrAbandoned, cause)
}
