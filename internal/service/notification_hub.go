package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"offline_cache_backend/internal/model"
	"offline_cache_backend/pkg/logger"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	notifyChannel = "notify_channel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage 与前端约定的帧格式
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// 下行帧类型
const (
	msgNotification     = "NOTIFICATION"
	msgPermissionPrompt = "PERMISSION_PROMPT"
	msgNavigate         = "NAVIGATE"
	msgFocus            = "FOCUS"
	msgDismiss          = "DISMISS"
)

// 上行帧类型
const (
	msgNotificationClick = "NOTIFICATION_CLICK"
	msgPermissionReport  = "PERMISSION_REPORT"
)

type NotifyClient struct {
	Hub     *NotificationHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
	Limiter *rate.Limiter
}

func (c *NotifyClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.String("userId", c.UserID))
			}
			break
		}

		if !c.Limiter.Allow() {
			continue
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			continue
		}

		switch wsMsg.Type {
		case msgNotificationClick:
			c.Hub.handleClick(c, wsMsg)
		case msgPermissionReport:
			c.Hub.handlePermissionReport(c, wsMsg)
		}
	}
}

func (c *NotifyClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NotificationHub 宿主通知能力的 WebSocket 实现：前端每个登录用户
// 保持一条连接，通知经连接下发，点击事件原路回传后由路由表
// 转换成 NAVIGATE / FOCUS 指令。多实例部署时经 Redis 发布订阅扇出。
type NotificationHub struct {
	clients    map[string]*NotifyClient
	mu         sync.RWMutex
	register   chan *NotifyClient
	unregister chan *NotifyClient
	Redis      *redis.Client
	router     *NotificationService
	ctx        context.Context
	enabled    bool
}

func NewNotificationHub(rdb *redis.Client, enabled bool) *NotificationHub {
	return &NotificationHub{
		clients:    make(map[string]*NotifyClient),
		register:   make(chan *NotifyClient),
		unregister: make(chan *NotifyClient),
		Redis:      rdb,
		ctx:        context.Background(),
		enabled:    enabled,
	}
}

// SetClickRouter 注入点击路由，构造后、Run 之前调用一次
func (h *NotificationHub) SetClickRouter(router *NotificationService) {
	h.router = router
}

type hubPubSubMessage struct {
	TargetUser string          `json:"targetUser"`
	Payload    json.RawMessage `json:"payload"`
}

func (h *NotificationHub) Run() {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(h.ctx, notifyChannel)
		go func() {
			ch := pubsub.Channel()
			for msg := range ch {
				var psMsg hubPubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.sendLocal(psMsg.TargetUser, psMsg.Payload)
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.UserID]; ok {
				close(old.Send)
			}
			h.clients[client.UserID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.UserID]; ok && cur == client {
				delete(h.clients, client.UserID)
				close(client.Send)
			}
			h.mu.Unlock()
		}
	}
}

// Supported 实现 NotificationHost
func (h *NotificationHub) Supported() bool {
	return h != nil && h.enabled
}

// Deliver 把通知帧下发给目标用户。本地无连接时经 Redis 广播给
// 其他实例；两条路都不通时返回错误，调用方据此返回 false。
func (h *NotificationHub) Deliver(ctx context.Context, userID string, payload *model.NotificationPayload) error {
	frame, err := json.Marshal(WSMessage{Type: msgNotification, Data: payload})
	if err != nil {
		return err
	}
	return h.send(ctx, userID, frame)
}

// Prompt 实现 NotificationHost，让前端弹出权限询问
func (h *NotificationHub) Prompt(ctx context.Context, userID string) error {
	frame, err := json.Marshal(WSMessage{Type: msgPermissionPrompt})
	if err != nil {
		return err
	}
	return h.send(ctx, userID, frame)
}

func (h *NotificationHub) send(ctx context.Context, userID string, frame []byte) error {
	if h.sendLocal(userID, frame) {
		return nil
	}

	if h.Redis != nil {
		psMsg, err := json.Marshal(hubPubSubMessage{TargetUser: userID, Payload: frame})
		if err != nil {
			return err
		}
		return h.Redis.Publish(ctx, notifyChannel, psMsg).Err()
	}

	return errors.New("no connected client for user " + userID)
}

// sendLocal 在持有读锁期间完成发送，与 Run 在写锁下的 close(Send)
// 互斥，避免向已关闭通道发送。
func (h *NotificationHub) sendLocal(userID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[userID]
	if !ok {
		return false
	}

	select {
	case client.Send <- frame:
		return true
	default:
		// 发送缓冲打满说明连接已经不健康，丢给 unregister 处理。
		// 交接放到锁外异步进行：持读锁阻塞在交接上会和 Run 抢写锁
		// 互相等待；连接已被替换时 Run 按指针比对忽略过期交接。
		go func() { h.unregister <- client }()
		return false
	}
}

// handleClick 点击事件：按 data.type 路由到目的地并关闭该通知。
// 未知 type 只聚焦应用，不导航。
func (h *NotificationHub) handleClick(c *NotifyClient, msg WSMessage) {
	data, _ := msg.Data.(map[string]interface{})

	var tag string
	payloadData := map[string]interface{}{}
	if data != nil {
		tag, _ = data["tag"].(string)
		if inner, ok := data["data"].(map[string]interface{}); ok {
			payloadData = inner
		}
	}

	if h.router != nil {
		if dest, ok := h.router.RouteClick(payloadData); ok {
			h.reply(c, WSMessage{Type: msgNavigate, Data: map[string]interface{}{"url": dest}})
		} else {
			h.reply(c, WSMessage{Type: msgFocus})
		}
	}

	h.reply(c, WSMessage{Type: msgDismiss, Data: map[string]interface{}{"tag": tag}})
}

// handlePermissionReport 前端回报浏览器的授权决定
func (h *NotificationHub) handlePermissionReport(c *NotifyClient, msg WSMessage) {
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}
	state, _ := data["state"].(string)
	if h.router == nil {
		return
	}
	if err := h.router.ReportPermission(h.ctx, c.UserID, model.PermissionState(state)); err != nil {
		logger.Log.Warn("invalid permission report",
			zap.String("userId", c.UserID),
			zap.String("state", state),
			zap.Error(err))
	}
}

// reply 只回给仍然在册的这条连接，发送同样在读锁下进行
func (h *NotificationHub) reply(c *NotifyClient, msg WSMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if cur, ok := h.clients[c.UserID]; !ok || cur != c {
		return
	}

	select {
	case c.Send <- frame:
	default:
	}
}

// ServeWS 把 HTTP 连接升级为该用户的通知通道
func (h *NotificationHub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("userId", userID))
		return
	}

	client := &NotifyClient{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(30), 50),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
