package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SendWithoutSession(t *testing.T) {
	hub := NewHub(quietLogger())
	err := hub.Send(context.Background(), &models.Alert{ID: uuid.New(), UserID: "nobody"})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, ChannelPush, hub.Channel())
}

func TestHub_DeliversToOpenSession(t *testing.T) {
	hub := NewHub(quietLogger())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("user_id"))
	}))
	defer server.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=driver-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Sessions("driver-1") == 1 }, time.Second, 10*time.Millisecond)

	alert := &models.Alert{ID: uuid.New(), UserID: "driver-1", Title: "Debris ahead"}
	require.NoError(t, hub.Send(context.Background(), alert))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg PushMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "alert", msg.Type)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, alert.ID, msg.Alert.ID)
	assert.Equal(t, "Debris ahead", msg.Alert.Title)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Sessions("driver-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
