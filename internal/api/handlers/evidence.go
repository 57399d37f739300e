package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/votegate/pkg/dto"
)

type EvidenceLister interface {
	ListEvidence(ctx context.Context, electionID, voterID uuid.UUID) ([]string, error)
}

type EvidenceHandler struct {
	store EvidenceLister
}

func NewEvidenceHandler(store EvidenceLister) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// List handles GET /v1/voters/:id/evidence?election_id=. It returns the
// object keys of the rejected captures kept for review.
func (h *EvidenceHandler) List(c *gin.Context) {
	voterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voter id"})
		return
	}
	electionID, err := uuid.Parse(c.Query("election_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "election_id query parameter required"})
		return
	}

	keys, err := h.store.ListEvidence(c.Request.Context(), electionID, voterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if keys == nil {
		keys = []string{}
	}

	c.JSON(http.StatusOK, dto.EvidenceListResponse{
		VoterID:    voterID,
		ElectionID: electionID,
		Keys:       keys,
	})
}
