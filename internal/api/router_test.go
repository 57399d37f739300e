package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/votegate/internal/api/handlers"
	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/ledger"
	"github.com/your-org/votegate/internal/lockout"
	"github.com/your-org/votegate/internal/models"
	"github.com/your-org/votegate/internal/storage"
	"github.com/your-org/votegate/internal/verify"
	"github.com/your-org/votegate/pkg/dto"
)

const apiKey = "kiosk-1"

type stubExtractor struct{ tmpl biometric.Template }

func (s stubExtractor) ExtractTemplate([]byte) (biometric.Template, error) { return s.tmpl, nil }

type env struct {
	router    *gin.Engine
	store     *storage.MemoryStore
	voter     uuid.UUID
	election  uuid.UUID
	closed    uuid.UUID
	candidate uuid.UUID
	foreign   uuid.UUID
	textured  []byte
	flat      []byte
}

func pngBytes(t *testing.T, textured bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 12))
	if textured {
		for y := 0; y < 12; y++ {
			for x := 0; x < 12; x++ {
				if (x+y)%2 == 0 {
					img.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newEnv(t *testing.T, votesPerSecond float64, checks map[string]handlers.Check) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		store:     storage.NewMemoryStore(),
		voter:     uuid.New(),
		election:  uuid.New(),
		closed:    uuid.New(),
		candidate: uuid.New(),
		foreign:   uuid.New(),
		textured:  pngBytes(t, true),
		flat:      pngBytes(t, false),
	}
	tmpl := biometric.Normalize(biometric.Template{1, 2, 3})
	e.store.PutVoter(models.Voter{ID: e.voter, FullName: "Sam", Template: tmpl})

	now := time.Now()
	e.store.PutElection(models.Election{ID: e.election, Title: "Budget", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		models.Candidate{ID: e.candidate, Name: "Yes", Party: "Civic"})
	e.store.PutElection(models.Election{ID: e.closed, Title: "Old", StartsAt: now.Add(-48 * time.Hour), EndsAt: now.Add(-24 * time.Hour)},
		models.Candidate{ID: e.foreign, Name: "No"})

	policy := lockout.NewPolicy(e.store, 5, 5*time.Minute)
	orch := verify.New(verify.Deps{
		Voters:    e.store,
		Lockout:   policy,
		Ledger:    ledger.New(e.store),
		Liveness:  biometric.NewLivenessScreen(50),
		Extractor: stubExtractor{tmpl: tmpl},
	}, verify.Config{AttemptTimeout: 5 * time.Second})

	e.router = NewRouter(RouterConfig{
		APIKeys:        []string{apiKey},
		DB:             e.store,
		Verifier:       orch,
		Lockout:        policy,
		Checks:         checks,
		VotesPerSecond: votesPerSecond,
	})
	return e
}

func (e *env) vote(t *testing.T, election uuid.UUID, fields map[string]string, img []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("image", "capture.png")
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/elections/"+election.String()+"/votes", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", apiKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) ballot() map[string]string {
	return map[string]string{"voter_id": e.voter.String(), "candidate_id": e.candidate.String()}
}

func (e *env) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-API-Key", apiKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestVoteRecordedThenAlreadyVoted(t *testing.T) {
	e := newEnv(t, 0, nil)

	w := e.vote(t, e.election, e.ballot(), e.textured)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.VoteResponse](t, w)
	assert.Equal(t, "vote_recorded", resp.Outcome)
	require.NotNil(t, resp.VoteID)
	require.NotNil(t, resp.Distance)
	assert.InDelta(t, 0, *resp.Distance, 1e-6)

	w = e.vote(t, e.election, e.ballot(), e.textured)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_voted", decode[dto.VoteResponse](t, w).Outcome)

	hist := decode[dto.VoteHistoryResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/votes"))
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, "Budget", hist.Votes[0].ElectionTitle)
	assert.Equal(t, "Civic", hist.Votes[0].CandidateParty)

	results := decode[dto.ElectionResultsResponse](t, e.get(t, "/v1/elections/"+e.election.String()+"/results"))
	assert.True(t, results.Open)
	assert.Equal(t, 1, results.TotalVotes)
}

func TestLivenessFailureIsUnprocessable(t *testing.T) {
	e := newEnv(t, 0, nil)

	w := e.vote(t, e.election, e.ballot(), e.flat)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[dto.VoteResponse](t, w)
	assert.Equal(t, "liveness_failed", resp.Outcome)
	assert.Equal(t, 1, resp.FailedAttempts)
	assert.Nil(t, resp.Distance)

	lock := decode[dto.LockoutResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/lockout"))
	assert.Equal(t, "warned", lock.State)
	assert.Equal(t, 1, lock.FailedAttempts)
	assert.Equal(t, 5, lock.Limit)
	assert.True(t, lock.Permitted)
}

func TestLockedVoterGets423(t *testing.T) {
	e := newEnv(t, 0, nil)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnprocessableEntity, e.vote(t, e.election, e.ballot(), e.flat).Code)
	}

	w := e.vote(t, e.election, e.ballot(), e.textured)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	resp := decode[dto.VoteResponse](t, w)
	assert.Equal(t, "locked", resp.Outcome)
	assert.Equal(t, 300, resp.RetryAfterSeconds)

	lock := decode[dto.LockoutResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/lockout"))
	assert.Equal(t, "locked", lock.State)
	assert.False(t, lock.Permitted)
}

func TestVoteRequestValidation(t *testing.T) {
	e := newEnv(t, 0, nil)

	tests := []struct {
		name     string
		election uuid.UUID
		fields   map[string]string
		img      []byte
		want     int
	}{
		{"missing image", e.election, e.ballot(), nil, http.StatusBadRequest},
		{"empty image", e.election, e.ballot(), []byte{}, http.StatusBadRequest},
		{"bad voter", e.election, map[string]string{"voter_id": "x", "candidate_id": e.candidate.String()}, e.textured, http.StatusBadRequest},
		{"bad spoof flag", e.election, map[string]string{"voter_id": e.voter.String(), "candidate_id": e.candidate.String(), "spoof_check": "maybe"}, e.textured, http.StatusBadRequest},
		{"unknown election", uuid.New(), e.ballot(), e.textured, http.StatusNotFound},
		{"closed election", e.closed, map[string]string{"voter_id": e.voter.String(), "candidate_id": e.foreign.String()}, e.textured, http.StatusForbidden},
		{"candidate of other election", e.election, map[string]string{"voter_id": e.voter.String(), "candidate_id": e.foreign.String()}, e.textured, http.StatusNotFound},
		{"unknown voter", e.election, map[string]string{"voter_id": uuid.NewString(), "candidate_id": e.candidate.String()}, e.textured, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.vote(t, tc.election, tc.fields, tc.img)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	hist := decode[dto.VoteHistoryResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/votes"))
	assert.Zero(t, hist.Total)
	lock := decode[dto.LockoutResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/lockout"))
	assert.Zero(t, lock.FailedAttempts)
}

func TestAPIKeyRequired(t *testing.T) {
	e := newEnv(t, 0, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/voters/"+e.voter.String()+"/votes", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVoteSubmissionIsRateLimited(t *testing.T) {
	e := newEnv(t, 1, nil)

	first := e.vote(t, e.election, e.ballot(), e.flat)
	assert.Equal(t, http.StatusUnprocessableEntity, first.Code)

	second := e.vote(t, e.election, e.ballot(), e.flat)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// rejected by the limiter, so not counted
	lock := decode[dto.LockoutResponse](t, e.get(t, "/v1/voters/"+e.voter.String()+"/lockout"))
	assert.Equal(t, 1, lock.FailedAttempts)
}

func TestUnknownResources(t *testing.T) {
	e := newEnv(t, 0, nil)
	assert.Equal(t, http.StatusNotFound, e.get(t, "/v1/voters/"+uuid.NewString()+"/lockout").Code)
	assert.Equal(t, http.StatusNotFound, e.get(t, "/v1/elections/"+uuid.NewString()+"/results").Code)
	assert.Equal(t, http.StatusBadRequest, e.get(t, "/v1/elections/abc/results").Code)
}

func TestReadiness(t *testing.T) {
	e := newEnv(t, 0, map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
		"nats":     func(context.Context) error { return errors.New("nats not connected") },
		"minio":    nil,
	})

	w := e.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "nats not connected", checks["nats"])
	assert.NotContains(t, checks, "minio")

	assert.Equal(t, http.StatusOK, e.get(t, "/healthz").Code)
}

type fakeEvidence struct {
	keys map[[2]uuid.UUID][]string
	err  error
}

func (f fakeEvidence) ListEvidence(_ context.Context, electionID, voterID uuid.UUID) ([]string, error) {
	return f.keys[[2]uuid.UUID{electionID, voterID}], f.err
}

func evidenceRouter(lister handlers.EvidenceLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{APIKeys: []string{apiKey}, Evidence: lister})
}

func TestListEvidence(t *testing.T) {
	voter, election := uuid.New(), uuid.New()
	e := &env{router: evidenceRouter(fakeEvidence{keys: map[[2]uuid.UUID][]string{
		{election, voter}: {"evidence/a_face_mismatch", "evidence/b_liveness_failed"},
	}})}

	w := e.get(t, "/v1/voters/"+voter.String()+"/evidence?election_id="+election.String())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.EvidenceListResponse](t, w)
	assert.Equal(t, voter, resp.VoterID)
	assert.Equal(t, []string{"evidence/a_face_mismatch", "evidence/b_liveness_failed"}, resp.Keys)

	empty := decode[dto.EvidenceListResponse](t, e.get(t, "/v1/voters/"+uuid.NewString()+"/evidence?election_id="+election.String()))
	assert.NotNil(t, empty.Keys)
	assert.Empty(t, empty.Keys)
}

func TestListEvidenceErrors(t *testing.T) {
	e := &env{router: evidenceRouter(fakeEvidence{err: errors.New("minio down")})}
	voter := uuid.NewString()

	assert.Equal(t, http.StatusBadRequest, e.get(t, "/v1/voters/"+voter+"/evidence").Code)
	assert.Equal(t, http.StatusBadRequest, e.get(t, "/v1/voters/xyz/evidence?election_id="+uuid.NewString()).Code)
	assert.Equal(t, http.StatusInternalServerError, e.get(t, "/v1/voters/"+voter+"/evidence?election_id="+uuid.NewString()).Code)
}

func TestEvidenceRouteAbsentWhenDisabled(t *testing.T) {
	e := newEnv(t, 0, nil)
	w := e.get(t, "/v1/voters/"+e.voter.String()+"/evidence?election_id="+e.election.String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}
