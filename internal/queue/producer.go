package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/votegate/internal/observability"
	"github.com/your-org/votegate/internal/verify"
	"github.com/your-org/votegate/pkg/dto"
)

const (
	AttemptsStreamName  = "ATTEMPTS"
	AttemptsSubjectBase = "attempts"

	ackTimeout = 10 * time.Second
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the ATTEMPTS stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        AttemptsStreamName,
		Subjects:    []string{AttemptsSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  time.Minute,
		Description: "Outcomes of verified vote attempts",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishAttempt publishes an attempt event without waiting for the ack.
// Failures are logged and counted; the vote path never blocks on NATS.
func (p *Producer) PublishAttempt(evt *dto.AttemptEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal attempt event: %w", err)
	}

	subject := AttemptSubject(evt.ElectionID)
	ack, err := p.js.PublishAsync(subject, payload, jetstream.WithMsgID(evt.ID.String()))
	if err != nil {
		return fmt.Errorf("publish attempt: %w", err)
	}

	go func() {
		select {
		case <-ack.Ok():
		case err := <-ack.Err():
			observability.EventsPublishFailed.Inc()
			slog.Warn("attempt event not acknowledged", "subject", subject, "error", err)
		case <-time.After(ackTimeout):
			observability.EventsPublishFailed.Inc()
			slog.Warn("attempt event ack timed out", "subject", subject)
		}
	}()
	return nil
}

// AttemptFinished makes the producer a verify.Observer.
func (p *Producer) AttemptFinished(_ context.Context, a verify.Attempt, out verify.Outcome) {
	if err := p.PublishAttempt(NewAttemptEvent(a, out, time.Now())); err != nil {
		observability.EventsPublishFailed.Inc()
		slog.Warn("publish attempt event", "voter_id", a.VoterID, "error", err)
	}
}

// NewAttemptEvent drops the candidate: the feed must not reveal ballots.
func NewAttemptEvent(a verify.Attempt, out verify.Outcome, at time.Time) *dto.AttemptEvent {
	evt := &dto.AttemptEvent{
		ID:             uuid.New(),
		VoterID:        a.VoterID,
		ElectionID:     a.ElectionID,
		Outcome:        string(out.Kind),
		FailedAttempts: out.Failures,
		LivenessScore:  out.LivenessScore,
		Timestamp:      at.UTC().Format(time.RFC3339Nano),
	}
	if out.Kind.Compared() {
		d := out.Distance
		evt.Distance = &d
	}
	return evt
}

func AttemptSubject(electionID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", AttemptsSubjectBase, electionID)
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
