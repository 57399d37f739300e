package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/votegate/internal/api/handlers"
	"github.com/your-org/votegate/internal/api/ws"
	"github.com/your-org/votegate/internal/auth"
)

type RouterConfig struct {
	APIKeys  []string
	DB       handlers.Directory
	Verifier handlers.Submitter
	Lockout  handlers.LockoutChecker
	Hub      *ws.Hub
	// Evidence lists rejected captures; nil when evidence storage is off.
	Evidence handlers.EvidenceLister
	// Checks are the /readyz probes by dependency name.
	Checks map[string]handlers.Check
	// VotesPerSecond is the per-IP limit on vote submissions; 0 disables it.
	VotesPerSecond float64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	voteH := handlers.NewVoteHandler(cfg.DB, cfg.Verifier)
	submit := []gin.HandlerFunc{voteH.Submit}
	if cfg.VotesPerSecond > 0 {
		submit = append([]gin.HandlerFunc{RateLimitPerIP(cfg.VotesPerSecond)}, submit...)
	}
	v1.POST("/elections/:id/votes", submit...)
	v1.GET("/voters/:id/votes", voteH.History)

	electionH := handlers.NewElectionHandler(cfg.DB)
	v1.GET("/elections/:id/results", electionH.Results)

	voterH := handlers.NewVoterHandler(cfg.Lockout)
	v1.GET("/voters/:id/lockout", voterH.Lockout)

	if cfg.Evidence != nil {
		evidenceH := handlers.NewEvidenceHandler(cfg.Evidence)
		v1.GET("/voters/:id/evidence", evidenceH.List)
	}

	return r
}
