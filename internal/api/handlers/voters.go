package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/votegate/internal/lockout"
	"github.com/your-org/votegate/internal/storage"
	"github.com/your-org/votegate/pkg/dto"
)

type LockoutChecker interface {
	Check(ctx context.Context, voterID uuid.UUID) (lockout.Status, error)
	Limit() int
}

type VoterHandler struct {
	policy LockoutChecker
}

func NewVoterHandler(policy LockoutChecker) *VoterHandler {
	return &VoterHandler{policy: policy}
}

// Lockout handles GET /v1/voters/:id/lockout. It only reads.
func (h *VoterHandler) Lockout(c *gin.Context) {
	voterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voter id"})
		return
	}

	st, err := h.policy.Check(c.Request.Context(), voterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "voter not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.LockoutResponse{
		VoterID:        voterID,
		State:          st.State.String(),
		FailedAttempts: st.Failures,
		Limit:          h.policy.Limit(),
		Permitted:      st.Permitted,
	}
	if st.RetryAfter > 0 {
		resp.RetryAfterSeconds = ceilSeconds(st.RetryAfter)
	}
	c.JSON(http.StatusOK, resp)
}
