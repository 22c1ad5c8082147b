package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit             = "init"              // 初始化数据（用户行程状态）
	MsgTypeTripUpdate       = "trip_update"       // 行程状态变化
	MsgTypeAnalysisComplete = "analysis_complete" // 分析完成
	MsgTypeError            = "error"             // 错误消息
)

// Message WebSocket 消息结构
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client WebSocket 客户端，按用户归属
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub WebSocket 连接管理中心
// 广播按用户路由，一个用户可以挂多个连接（手机+网页）
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	byUser     map[string]map[*Client]bool
	broadcast  chan userMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// 初始数据提供者回调
	getInitData func(userID string) interface{}
}

type userMessage struct {
	userID string // 为空表示全员广播
	data   []byte
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		broadcast:  make(chan userMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func(userID string) interface{}) {
	h.getInitData = provider
}

// Run 运行 Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.byUser[client.userID] == nil {
				h.byUser[client.userID] = make(map[*Client]bool)
			}
			h.byUser[client.userID][client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected",
				zap.String("user_id", client.userID),
				zap.Int("total_clients", total))

			// 发送初始数据
			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected",
				zap.String("user_id", client.userID),
				zap.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			targets := h.clients
			if msg.userID != "" {
				targets = h.byUser[msg.userID]
			}
			for client := range targets {
				select {
				case client.send <- msg.data:
				default:
					// 慢消费者，关闭连接
					h.removeClient(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// removeClient 调用方必须持有写锁
func (h *Hub) removeClient(client *Client) {
	delete(h.clients, client)
	if peers, ok := h.byUser[client.userID]; ok {
		delete(peers, client)
		if len(peers) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	close(client.send)
}

// sendInitData 发送初始数据给新连接的客户端
func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		return
	}

	initData := h.getInitData(client.userID)
	if initData == nil {
		return
	}

	msg := Message{
		Type: MsgTypeInit,
		Data: initData,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
		h.logger.Debug("Sent init data to client", zap.String("user_id", client.userID))
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// BroadcastToUser 发送结构化消息给某个用户的全部连接
func (h *Hub) BroadcastToUser(userID, msgType string, data interface{}) {
	msg := Message{
		Type: msgType,
		Data: data,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.broadcast <- userMessage{userID: userID, data: jsonData}
}

// BroadcastMessage 广播结构化消息给所有客户端
func (h *Hub) BroadcastMessage(msgType string, data interface{}) {
	h.BroadcastToUser("", msgType, data)
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

// Register 注册客户端
func (c *Client) Register() {
	c.hub.register <- c
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	c.hub.unregister <- c
}

// ReadPump 读取消息（保持连接活跃）
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		// 简化版不处理客户端消息，仅保持连接
	}
}

// WritePump 发送消息
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
