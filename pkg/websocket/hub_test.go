package websocket

import (
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

func newTestConnection(hub *Hub, id, userID string) *Connection {
	return &Connection{
		ID:       id,
		UserID:   userID,
		Send:     make(chan []byte, 16),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
		Groups:   make(map[string]bool),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	assert.NotNil(t, hub)
	assert.Equal(t, int64(10000), hub.config.MaxConnections)
	assert.Equal(t, 30*time.Second, hub.config.HeartbeatInterval)

	hub.Close()
}

func TestHubConnectionManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := newTestConnection(hub, "test_conn_1", "test_user_1")

	hub.register <- conn
	time.Sleep(100 * time.Millisecond) // 等待处理

	assert.Equal(t, int64(1), hub.GetConnectionCount())

	hub.unregister <- conn
	time.Sleep(100 * time.Millisecond) // 等待处理

	assert.Equal(t, int64(0), hub.GetConnectionCount())
}

func TestHubGroupManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn1 := newTestConnection(hub, "test_conn_1", "test_user_1")
	conn2 := newTestConnection(hub, "test_conn_2", "test_user_2")

	hub.register <- conn1
	hub.register <- conn2
	time.Sleep(100 * time.Millisecond)

	conn1.JoinGroup("safety_alerts")
	conn2.JoinGroup("safety_alerts")
	assert.Equal(t, 2, hub.GetGroupConnections("safety_alerts"))
	assert.True(t, conn1.IsInGroup("safety_alerts"))

	conn2.LeaveGroup("safety_alerts")
	assert.Equal(t, 1, hub.GetGroupConnections("safety_alerts"))
	assert.False(t, conn2.IsInGroup("safety_alerts"))

	// 注销时从所有组中移除
	hub.unregister <- conn1
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.GetGroupConnections("safety_alerts"))
}

func TestBroadcastChangeReachesGroupOnly(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	subscriber := newTestConnection(hub, "sub", "u1")
	bystander := newTestConnection(hub, "other", "u2")

	hub.register <- subscriber
	hub.register <- bystander
	time.Sleep(100 * time.Millisecond)

	subscriber.JoinGroup("safety_alerts")
	bystander.JoinGroup("panic_events")

	hub.BroadcastChange("safety_alerts", map[string]any{
		"table": "safety_alerts",
		"type":  "UPDATE",
		"rowId": "a1",
	})
	time.Sleep(100 * time.Millisecond)

	select {
	case raw := <-subscriber.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "change", msg.Type)
		assert.Equal(t, "safety_alerts", msg.Group)
		assert.NotZero(t, msg.Timestamp)
	default:
		t.Fatal("订阅连接未收到变更消息")
	}

	select {
	case <-bystander.Send:
		t.Fatal("非订阅连接不应收到消息")
	default:
	}
}

func TestSendToUser(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	target := newTestConnection(hub, "c1", "u1")
	other := newTestConnection(hub, "c2", "u2")

	hub.register <- target
	hub.register <- other
	time.Sleep(100 * time.Millisecond)

	hub.SendToUser("u1", &Message{Type: "notice", Data: "hello"})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, len(target.Send))
	assert.Equal(t, 0, len(other.Send))
}

func TestBackpressureDropsMessages(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := newTestConnection(hub, "slow", "u1")
	conn.Send = make(chan []byte, 1)
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)
	conn.JoinGroup("safety_alerts")

	// 缓冲区满时直接丢弃而不是阻塞主循环
	for i := 0; i < 5; i++ {
		hub.BroadcastChange("safety_alerts", map[string]any{"seq": i})
	}
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 1, len(conn.Send))
	assert.Equal(t, int64(1), hub.GetConnectionCount())
}

func TestWebSocketEndToEnd(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r, "u1")
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 按表名加入分组即订阅变更流
	require.NoError(t, conn.WriteJSON(Message{Type: "join_group", Data: "safety_alerts"}))

	var ack Message
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "group_joined", ack.Type)

	hub.BroadcastChange("safety_alerts", map[string]any{"rowId": "a1", "type": "INSERT"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var change Message
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, "change", change.Type)

	payload, ok := change.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a1", payload["rowId"])
}
