package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	ModelEvent      MessageType = "model"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

// Message 推送给客户端的消息
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionMessage 预测事件
type PredictionMessage struct {
	Endpoint         string  `json:"endpoint"`
	CustomerIndex    *int    `json:"customer_index,omitempty"`
	ChurnPrediction  int     `json:"churn_prediction"`
	ChurnProbability float64 `json:"churn_probability"`
	ResponseTimeMs   float64 `json:"response_time_ms"`
	RequestID        string  `json:"request_id,omitempty"`
}

// ModelMessage 模型加载事件
type ModelMessage struct {
	Generation uint64  `json:"generation"`
	Accuracy   float64 `json:"accuracy"`
	Source     string  `json:"source"`
}

// ClientMessage 客户端消息
type ClientMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe
	Topic string `json:"topic"`
}

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string

	mu            sync.RWMutex
	subscriptions map[MessageType]bool // 为空表示接收全部
}

func (c *Client) wants(t MessageType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[t]
}

type envelope struct {
	kind    MessageType
	payload []byte
}

// Hub WebSocket中心，向仪表盘推送预测事件
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub 创建WebSocket中心
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run 处理注册、注销和广播，直到 ctx 结束或 Stop 被调用
func (h *Hub) Run(ctx context.Context) {
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// 慢客户端直接断开
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.Stop()
			h.closeAll()
			return
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Stop 停止WebSocket中心
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP 升级连接并注册客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		clientID:      uuid.NewString(),
		subscriptions: make(map[MessageType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// Publish 广播消息，队列满时丢弃
func (h *Hub) Publish(kind MessageType, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	msg, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	select {
	case h.broadcast <- envelope{kind: kind, payload: msg}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(kind)))
	}
	return nil
}

// PublishPrediction 推送预测事件
func (h *Hub) PublishPrediction(event PredictionMessage) error {
	return h.Publish(PredictionEvent, event)
}

// PublishModel 推送模型加载事件
func (h *Hub) PublishModel(event ModelMessage) error {
	return h.Publish(ModelEvent, event)
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write error", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("failed to parse client message", zap.Error(err))
			continue
		}
		c.handleClientMessage(msg)
	}
}

// handleClientMessage 处理订阅请求
func (c *Client) handleClientMessage(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case "subscribe":
		c.subscriptions[MessageType(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, MessageType(msg.Topic))
	}
}
