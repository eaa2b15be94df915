package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"offline_cache_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubFixture(t *testing.T) *NotificationHub {
	t.Helper()
	h := NewNotificationHub(nil, true)
	go h.Run()
	return h
}

func registerClient(h *NotificationHub, userID string, buffer int) *NotifyClient {
	client := &NotifyClient{
		Hub:    h,
		Send:   make(chan []byte, buffer),
		UserID: userID,
	}
	h.register <- client
	return client
}

func TestHubDeliverToConnectedClient(t *testing.T) {
	h := newHubFixture(t)
	client := registerClient(h, "alice", 4)

	payload := &model.NotificationPayload{Title: "Offline content ready", Tag: model.NotifyOfflineContent}

	// register 经通道异步生效
	require.Eventually(t, func() bool {
		return h.Deliver(context.Background(), "alice", payload) == nil
	}, time.Second, 5*time.Millisecond)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(<-client.Send, &msg))
	assert.Equal(t, msgNotification, msg.Type)
}

func TestHubDeliverWithoutClientOrRedis(t *testing.T) {
	h := newHubFixture(t)
	err := h.Deliver(context.Background(), "nobody", &model.NotificationPayload{Title: "x"})
	assert.Error(t, err)
}

func TestHubDeliverDuringReconnectChurn(t *testing.T) {
	// 同一用户高频重连替换连接，同时并发下发：替换路径会 close 旧
	// 连接的发送通道，发送必须与 close 互斥，否则进程级 panic
	h := newHubFixture(t)
	frame := []byte(`{"type":"NOTIFICATION"}`)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					h.sendLocal("alice", frame)
				}
			}
		}()
	}

	for _, buffer := range []int{1, 4096} {
		for i := 0; i < 20000; i++ {
			h.register <- &NotifyClient{Hub: h, UserID: "alice", Send: make(chan []byte, buffer)}
		}
	}

	close(done)
	wg.Wait()
}

func TestHubReplyOnlyToRegisteredConnection(t *testing.T) {
	h := newHubFixture(t)
	old := registerClient(h, "alice", 1)
	replacement := registerClient(h, "alice", 1)

	// 等待替换生效（旧连接的通道会被关闭）
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-old.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	h.reply(old, WSMessage{Type: msgFocus})
	h.reply(replacement, WSMessage{Type: msgFocus})

	var msg WSMessage
	require.NoError(t, json.Unmarshal(<-replacement.Send, &msg))
	assert.Equal(t, msgFocus, msg.Type)
}
