package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	redisBroadcastChannel = "ws:broadcast"
	onlineKeyTTL          = 30 * time.Second
	offlineQueueLimit     = 100
	offlineQueueTTL       = 7 * 24 * time.Hour
)

func onlineKey(userID uuid.UUID) string       { return "online:" + userID.String() }
func offlineQueueKey(userID uuid.UUID) string { return "offline_push:" + userID.String() }

// Client is one WebSocket connection of a user.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
	mu     sync.Mutex
	closed bool
}

// Hub tracks connected devices and delivers pushes to them. With Redis it
// fans pushes out to the other pods and queues them for offline users.
type Hub struct {
	Clients map[uuid.UUID]map[uuid.UUID]*Client
	mu      sync.RWMutex

	MaxConnectionsPerUser int

	rdb        *redis.Client
	podID      string
	stopPubSub chan struct{}
}

// BroadcastMessage is what pods exchange over Redis pub/sub.
type BroadcastMessage struct {
	UserID  string `json:"user_id"`
	PodID   string `json:"pod_id"`
	Payload []byte `json:"payload"`
}

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		Clients:               make(map[uuid.UUID]map[uuid.UUID]*Client),
		MaxConnectionsPerUser: 18,
		rdb:                   rdb,
		podID:                 uuid.New().String(),
		stopPubSub:            make(chan struct{}),
	}
}

// Register adds a client. Connections beyond MaxConnectionsPerUser are refused and closed.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	if h.Clients[client.UserID] == nil {
		h.Clients[client.UserID] = make(map[uuid.UUID]*Client)
	}

	if len(h.Clients[client.UserID]) >= h.MaxConnectionsPerUser {
		h.mu.Unlock()

		utils.Log.WithFields(logrus.Fields{"user_id": client.UserID, "max": h.MaxConnectionsPerUser}).
			Warn("rejecting websocket connection: too many devices")
		if client.Conn != nil {
			reason := fmt.Sprintf("Maximum %d devices allowed", h.MaxConnectionsPerUser)
			client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
			client.Conn.Close()
		}
		return false
	}

	h.Clients[client.UserID][client.ID] = client
	deviceCount := len(h.Clients[client.UserID])
	h.mu.Unlock()

	h.touchOnline(client.UserID)
	utils.Log.WithFields(logrus.Fields{"user_id": client.UserID, "client_id": client.ID, "devices": deviceCount}).
		Info("websocket connected")
	return true
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if userClients, ok := h.Clients[client.UserID]; ok {
		if _, found := userClients[client.ID]; found {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.Clients, client.UserID)
				if h.rdb != nil {
					h.rdb.Del(context.Background(), onlineKey(client.UserID))
				}
			}
		}
	}
	h.mu.Unlock()

	client.mu.Lock()
	if !client.closed {
		close(client.Send)
		client.closed = true
	}
	client.mu.Unlock()
}

func (h *Hub) touchOnline(userID uuid.UUID) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Set(context.Background(), onlineKey(userID), h.podID, onlineKeyTTL).Err(); err != nil {
		utils.Log.WithError(err).WithField("user_id", userID).Warn("failed to refresh online key")
	}
}

// IsOnline reports whether userID has a device connected to this pod.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[userID]) > 0
}

// SendToUser writes message to every local device of userID.
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) bool {
	h.mu.RLock()
	userClients := h.Clients[userID]
	clients := make([]*Client, 0, len(userClients))
	for _, client := range userClients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentToAny := false
	for _, client := range clients {
		sent, full := client.trySend(message)
		if sent {
			sentToAny = true
		}
		if full {
			utils.Log.WithFields(logrus.Fields{"user_id": userID, "client_id": client.ID}).
				Error("send channel full, closing connection")
			go h.Unregister(client)
		}
	}
	return sentToAny
}

// trySend queues message without blocking. It never sends on a closed channel.
func (c *Client) trySend(message []byte) (sent, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.Send <- message:
		return true, false
	default:
		return false, true
	}
}

// StartPubSub relays pushes published by the other pods to local devices.
func (h *Hub) StartPubSub() {
	if h.rdb == nil {
		return
	}
	go func() {
		pubsub := h.rdb.Subscribe(context.Background(), redisBroadcastChannel)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-h.stopPubSub:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.handleBroadcastMessage([]byte(msg.Payload))
			}
		}
	}()
}

func (h *Hub) StopPubSub() {
	close(h.stopPubSub)
}

func (h *Hub) handleBroadcastMessage(data []byte) {
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		utils.Log.WithError(err).Error("invalid broadcast message")
		return
	}
	if msg.PodID == h.podID {
		return
	}
	userID, err := uuid.Parse(msg.UserID)
	if err != nil {
		utils.Log.WithError(err).Error("invalid user id in broadcast message")
		return
	}
	h.SendToUser(userID, msg.Payload)
}

func (h *Hub) Name() string {
	return "websocket"
}

// pushFrame drops the installation list; devices only need the text.
func pushFrame(msg service.PushMessage) ([]byte, error) {
	msg.Installations = nil
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: "push", Data: data})
}

// Deliver sends a push to the recipient's live connections. Users connected
// to another pod get it over pub/sub; users not connected anywhere get it
// queued until they reconnect.
func (h *Hub) Deliver(ctx context.Context, msg service.PushMessage) error {
	frame, err := pushFrame(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push: %w", err)
	}

	if h.SendToUser(msg.UserID, frame) {
		return nil
	}
	if h.rdb == nil {
		return nil
	}

	online, err := h.rdb.Exists(ctx, onlineKey(msg.UserID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check presence: %w", err)
	}
	if online > 0 {
		payload, err := json.Marshal(BroadcastMessage{UserID: msg.UserID.String(), PodID: h.podID, Payload: frame})
		if err != nil {
			return fmt.Errorf("failed to encode broadcast: %w", err)
		}
		return h.rdb.Publish(ctx, redisBroadcastChannel, payload).Err()
	}

	key := offlineQueueKey(msg.UserID)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, key, frame)
	pipe.LTrim(ctx, key, -offlineQueueLimit, -1)
	pipe.Expire(ctx, key, offlineQueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to queue offline push: %w", err)
	}
	return nil
}

// flushOffline hands queued pushes to a fresh connection.
func (c *Client) flushOffline() {
	frames, err := popOffline(context.Background(), c.Hub.rdb, offlineQueueKey(c.UserID))
	if err != nil {
		utils.Log.WithError(err).WithField("user_id", c.UserID).Error("failed to read offline pushes")
		return
	}
	for _, frame := range frames {
		if _, full := c.trySend([]byte(frame)); full {
			utils.Log.WithField("user_id", c.UserID).Error("send channel full, dropping offline push")
		}
	}
}

// popOffline reads and clears the queue at key in one MULTI, so a push
// queued concurrently lands either in this batch or in the next one.
func popOffline(ctx context.Context, rdb *redis.Client, key string) ([]string, error) {
	if rdb == nil {
		return nil, nil
	}
	pipe := rdb.TxPipeline()
	frames := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to pop offline pushes: %w", err)
	}
	return frames.Val(), nil
}

// HandleWebSocket upgrades /ws?token=... and streams pushes to the device.
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			utils.Unauthorized(c, "missing token")
			return
		}
		userID, err := middleware.ValidateToken(tokenString)
		if err != nil {
			utils.Unauthorized(c, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.Log.WithError(err).WithField("user_id", userID).Error("websocket upgrade failed")
			return
		}

		client := &Client{
			ID:     uuid.New(),
			UserID: userID,
			Conn:   conn,
			Send:   make(chan []byte, 256),
			Hub:    hub,
		}
		if !hub.Register(client) {
			return
		}

		go client.writePump()
		go client.readPump()
		go client.flushOffline()
	}
}

// readPump only consumes heartbeats; pushes flow one way.
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				utils.Log.WithError(err).WithField("user_id", c.UserID).Warn("websocket closed unexpectedly")
			}
			return
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			c.sendError("Invalid JSON format")
			continue
		}
		switch wsMsg.Type {
		case "heartbeat":
			c.Hub.touchOnline(c.UserID)
		default:
			c.sendError("unsupported message type: " + wsMsg.Type)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(errMsg string) {
	data, _ := json.Marshal(map[string]string{"message": errMsg})
	frame, _ := json.Marshal(WSMessage{Type: "error", Data: data})

	if _, full := c.trySend(frame); full {
		utils.Log.WithField("user_id", c.UserID).Error("send channel full, dropping error frame")
	}
}
