package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSaver) SaveNotification(_ context.Context, _ uuid.UUID, event string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestHub_BroadcastToUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(ctx)
	saver := &recordingSaver{}
	hub.SetNotificationSaver(saver)
	go hub.Run()

	userID := uuid.New()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, hub, userID)
		hub.Register(client)
		client.Run(ctx)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Online(userID) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastToUser(userID, "transaction.transition", map[string]string{"to": "PAID"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "transaction.transition", msg.Type)
	assert.Equal(t, "PAID", msg.Data["to"])

	assert.Eventually(t, func() bool { return saver.count() == 1 }, time.Second, 10*time.Millisecond)

	// другому пользователю ничего не уходит, но уведомление сохраняется
	require.NoError(t, hub.BroadcastToUser(uuid.New(), "dispute.updated", nil))
	assert.Eventually(t, func() bool { return saver.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestHub_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx)

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub не остановился")
	}
	assert.Error(t, hub.BroadcastToUser(uuid.New(), "x", nil))
}
