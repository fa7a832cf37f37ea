package notifications

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.HandleConnection(w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToOwningUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialHub(t, hub, "citizen-42")

	hub.Notify(ReviewEvent{
		Type:          "submission_approved",
		SubmissionID:  "sub-1",
		UserID:        "citizen-42",
		PointsAwarded: 50,
		Timestamp:     time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got ReviewEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "submission_approved", got.Type)
	assert.Equal(t, 50, got.PointsAwarded)
}

func TestHubNotifyIgnoresUnknownUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.Notify(ReviewEvent{Type: "submission_rejected", UserID: "nobody"})
}

func TestHubConcurrentNotifySameConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialHub(t, hub, "citizen-42")

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Notify(ReviewEvent{
				Type:         "submission_approved",
				SubmissionID: "sub-1",
				UserID:       "citizen-42",
				Timestamp:    time.Now().UTC(),
			})
		}()
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < writers; i++ {
		var got ReviewEvent
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "submission_approved", got.Type)
	}
}
