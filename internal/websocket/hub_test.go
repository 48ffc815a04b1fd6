package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

type countingEvaluator struct {
	calls atomic.Int32
}

func (e *countingEvaluator) EvaluatePosition(_ context.Context, id string) (*models.RiskReport, error) {
	e.calls.Add(1)
	switch id {
	case "missing":
		return nil, errors.NotFound("position not found")
	case "closed":
		return nil, nil
	}
	return &models.RiskReport{PositionID: id, Spot: 22000}, nil
}

func startHub(t *testing.T, interval time.Duration) (*Hub, *countingEvaluator, string) {
	eval := &countingEvaluator{}
	hub := NewHub(eval, interval)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, eval, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscribePushesCurrentRisk(t *testing.T) {
	_, _, url := startHub(t, time.Hour)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "subscribe", Positions: []string{"p-1", "closed", "missing"}, ID: "req-1"}))

	confirmed := read(t, conn)
	assert.Equal(t, TypeSubscriptionConfirmed, confirmed.Type)
	assert.Equal(t, "req-1", confirmed.ID)

	risk := read(t, conn)
	assert.Equal(t, TypePositionRisk, risk.Type)
	assert.Equal(t, "p-1", risk.PositionID)
	assert.Equal(t, 22000.0, risk.Data.(map[string]interface{})["spot"])

	// the closed position is skipped, the missing one reports an error
	failed := read(t, conn)
	assert.Equal(t, TypeError, failed.Type)
	assert.Equal(t, "missing", failed.PositionID)
}

func TestRefreshPushesUpdates(t *testing.T) {
	_, eval, url := startHub(t, 20*time.Millisecond)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "subscribe", Positions: []string{"p-1"}}))

	updates := 0
	for updates < 3 {
		msg := read(t, conn)
		if msg.Type == TypeSubscriptionConfirmed {
			continue
		}
		assert.Equal(t, TypePositionRisk, msg.Type)
		assert.Equal(t, "p-1", msg.PositionID)
		updates++
	}
	assert.GreaterOrEqual(t, eval.calls.Load(), int32(3))
}

func TestPingAndUnknown(t *testing.T) {
	_, _, url := startHub(t, time.Hour)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "ping", ID: "7"}))
	pong := read(t, conn)
	assert.Equal(t, TypePong, pong.Type)
	assert.Equal(t, "7", pong.ID)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "teleport"}))
	assert.Equal(t, "Unknown message type", read(t, conn).Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "Invalid message format", read(t, conn).Error)
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	hub, _, url := startHub(t, time.Hour)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "subscribe", Positions: []string{"p-1"}}))
	read(t, conn)
	read(t, conn)
	assert.Len(t, hub.subscribers("p-1"), 1)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "unsubscribe", Positions: []string{"p-1"}}))
	assert.Equal(t, TypeUnsubscribed, read(t, conn).Type)
	assert.Empty(t, hub.subscribers("p-1"))
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
