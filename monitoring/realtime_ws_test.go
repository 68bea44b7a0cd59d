package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil, origins)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcastsPredictions(t *testing.T) {
	hub, url := startHub(t, []string{"*"})
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishPrediction(PredictionMessage{
		Endpoint:         "/predict",
		ChurnPrediction:  1,
		ChurnProbability: 0.82,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var event PredictionMessage
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, 1, event.ChurnPrediction)
	assert.Equal(t, 0.82, event.ChurnProbability)
	assert.Nil(t, event.CustomerIndex)
}

func TestHubSubscriptions(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Topic: string(ModelEvent)}))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, hub.PublishPrediction(PredictionMessage{Endpoint: "/predict"}))
	require.NoError(t, hub.PublishModel(ModelMessage{Generation: 2, Source: "retrain"}))

	msg := readMessage(t, conn)
	require.Equal(t, ModelEvent, msg.Type)
	var event ModelMessage
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, uint64(2), event.Generation)
	assert.Equal(t, "retrain", event.Source)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, url := startHub(t, []string{"http://dashboard.local"})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://dashboard.local")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	for i := 0; i < sendBuffer+10; i++ {
		assert.NoError(t, hub.PublishPrediction(PredictionMessage{Endpoint: "/predict"}))
	}
	assert.Error(t, hub.Publish(PredictionEvent, func() {}))
}
