package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/verify"
	"github.com/your-org/votegate/pkg/dto"
)

const defaultMaxImageBytes = 8 << 20

// Directory is the read side of elections, candidates and ballots.
type Directory interface {
	GetElection(ctx context.Context, id uuid.UUID) (*models.Election, error)
	GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	ListVotesByVoter(ctx context.Context, voterID uuid.UUID) ([]models.VoteHistoryEntry, error)
	ElectionResults(ctx context.Context, electionID uuid.UUID) ([]models.CandidateTally, error)
}

type Submitter interface {
	SubmitVerifiedVote(ctx context.Context, a verify.Attempt) (verify.Outcome, error)
}

type VoteHandler struct {
	db            Directory
	verifier      Submitter
	MaxImageBytes int64
	now           func() time.Time
}

func NewVoteHandler(db Directory, verifier Submitter) *VoteHandler {
	return &VoteHandler{db: db, verifier: verifier, MaxImageBytes: defaultMaxImageBytes, now: time.Now}
}

// Submit handles POST /v1/elections/:id/votes (multipart: voter_id,
// candidate_id, image, spoof_check).
func (h *VoteHandler) Submit(c *gin.Context) {
	electionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid election id"})
		return
	}
	voterID, err := uuid.Parse(c.PostForm("voter_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voter_id"})
		return
	}
	candidateID, err := uuid.Parse(c.PostForm("candidate_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate_id"})
		return
	}
	spoofCheck := false
	if s := c.PostForm("spoof_check"); s != "" {
		if spoofCheck, err = strconv.ParseBool(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spoof_check"})
			return
		}
	}

	image, status, msg := h.readImage(c)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ctx := c.Request.Context()
	election, err := h.db.GetElection(ctx, electionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if election == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "election not found"})
		return
	}
	if !election.OpenAt(h.now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "election is not open for voting"})
		return
	}

	candidate, err := h.db.GetCandidate(ctx, candidateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if candidate == nil || candidate.ElectionID != electionID {
		c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found in this election"})
		return
	}

	out, err := h.verifier.SubmitVerifiedVote(ctx, verify.Attempt{
		VoterID:       voterID,
		ElectionID:    electionID,
		CandidateID:   candidateID,
		Image:         image,
		UseSpoofCheck: spoofCheck,
	})
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrVoterNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "voter not found"})
		case errors.Is(err, verify.ErrAbandoned):
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "verification did not finish in time, nothing was recorded"})
		case errors.Is(err, biometric.ErrInvalidTemplate):
			slog.Error("stored template unusable", "voter_id", voterID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrolled template is corrupt, contact administrator"})
		default:
			slog.Error("submit vote", "voter_id", voterID, "election_id", electionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	if out.Kind == verify.Locked && out.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(ceilSeconds(out.RetryAfter)))
	}
	c.JSON(statusFor(out.Kind), toVoteResponse(out))
}

func (h *VoteHandler) readImage(c *gin.Context) ([]byte, int, string) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, http.StatusBadRequest, "live capture required for face verification"
	}
	if fh.Size > h.MaxImageBytes {
		return nil, http.StatusRequestEntityTooLarge, "image too large"
	}
	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, "read image"
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.MaxImageBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, "read image"
	}
	if int64(len(data)) > h.MaxImageBytes {
		return nil, http.StatusRequestEntityTooLarge, "image too large"
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, "live capture required for face verification"
	}
	return data, 0, ""
}

// History handles GET /v1/voters/:id/votes.
func (h *VoteHandler) History(c *gin.Context) {
	voterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voter id"})
		return
	}

	entries, err := h.db.ListVotesByVoter(c.Request.Context(), voterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.VoteHistoryResponse{Votes: make([]dto.VoteHistoryItem, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		resp.Votes = append(resp.Votes, dto.VoteHistoryItem{
			ElectionID:     e.ElectionID,
			ElectionTitle:  e.ElectionTitle,
			CandidateName:  e.CandidateName,
			CandidateParty: e.CandidateParty,
			CastAt:         e.CastAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(k verify.Kind) int {
	switch k {
	case verify.VoteRecorded:
		return http.StatusOK
	case verify.AlreadyVoted:
		return http.StatusConflict
	case verify.Locked:
		return http.StatusLocked
	default:
		return http.StatusUnprocessableEntity
	}
}

func toVoteResponse(out verify.Outcome) dto.VoteResponse {
	resp := dto.VoteResponse{
		Outcome:        string(out.Kind),
		Message:        out.Message(),
		LivenessScore:  out.LivenessScore,
		SpoofMessage:   out.SpoofMessage,
		FailedAttempts: out.Failures,
	}
	if out.Kind.Compared() && !math.IsInf(out.Distance, 0) && !math.IsNaN(out.Distance) {
		d := out.Distance
		resp.Distance = &d
	}
	if out.RetryAfter > 0 {
		resp.RetryAfterSeconds = ceilSeconds(out.RetryAfter)
	}
	if out.Kind == verify.VoteRecorded {
		id := out.VoteID
		resp.VoteID = &id
		resp.CastAt = out.CastAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
