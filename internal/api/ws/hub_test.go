package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/votegate/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHub()
	go h.Run()

	r := gin.New()
	r.GET("/ws", h.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, h *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.Clients() == want }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHubFiltersByElection(t *testing.T) {
	h, url := startHub(t)
	mine, other := uuid.New(), uuid.New()

	filtered := dial(t, h, url+"?election_id="+mine.String(), 1)
	all := dial(t, h, url, 2)

	h.BroadcastAttempt(&dto.AttemptEvent{ID: uuid.New(), ElectionID: other, Outcome: "face_mismatch"})
	h.BroadcastAttempt(&dto.AttemptEvent{ID: uuid.New(), ElectionID: mine, Outcome: "vote_recorded"})

	var evt dto.AttemptEvent
	require.NoError(t, all.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, all.ReadJSON(&evt))
	assert.Equal(t, other, evt.ElectionID)
	require.NoError(t, all.ReadJSON(&evt))
	assert.Equal(t, mine, evt.ElectionID)

	require.NoError(t, filtered.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := filtered.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, mine, evt.ElectionID)
	assert.Equal(t, "vote_recorded", evt.Outcome)
}

func TestHubRejectsBadFilter(t *testing.T) {
	_, url := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?election_id=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHubUnregistersOnClose(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, h, url, 1)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
