package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/votegate/pkg/dto"
)

type ElectionHandler struct {
	db  Directory
	now func() time.Time
}

func NewElectionHandler(db Directory) *ElectionHandler {
	return &ElectionHandler{db: db, now: time.Now}
}

// Results handles GET /v1/elections/:id/results.
func (h *ElectionHandler) Results(c *gin.Context) {
	electionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid election id"})
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

	tallies, err := h.db.ElectionResults(ctx, electionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.ElectionResultsResponse{
		ElectionID: election.ID,
		Title:      election.Title,
		Open:       election.OpenAt(h.now()),
		Results:    make([]dto.CandidateResult, 0, len(tallies)),
	}
	for _, t := range tallies {
		resp.Results = append(resp.Results, dto.CandidateResult{
			CandidateID: t.CandidateID,
			Name:        t.Name,
			Party:       t.Party,
			Votes:       t.Votes,
		})
		resp.TotalVotes += t.Votes
	}
	c.JSON(http.StatusOK, resp)
}
