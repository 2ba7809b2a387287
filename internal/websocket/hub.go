package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/chain-game/internal/cache"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
// 客户端按拥有者地址订阅游戏快照，缓存每次整体替换时推送全量列表
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 地址到客户端的映射，地址统一小写
	ownerClients map[string][]*Client
	// 地址到缓存退订函数的映射，最后一个订阅者离开时退订
	ownerUnsub map[string]func()
	ownerMu    sync.Mutex

	gameCache *cache.ReconcilingCache

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	Owner     string          `json:"owner,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 订阅
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"

	// 快照推送：data为该地址相关的完整游戏列表
	MessageTypeSnapshot = "snapshot"
)

// NewHub 创建Hub
func NewHub(gameCache *cache.ReconcilingCache, logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		ownerClients: make(map[string][]*Client),
		ownerUnsub:   make(map[string]func()),
		gameCache:    gameCache,
		broadcast:    make(chan *Message, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		logger:       logger,
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Subscribe 将客户端订阅到指定地址的快照更新
func (h *Hub) Subscribe(client *Client, owner string) {
	owner = strings.ToLower(owner)
	client.Owner = owner

	h.ownerMu.Lock()
	defer h.ownerMu.Unlock()

	h.ownerClients[owner] = append(h.ownerClients[owner], client)

	// 首个订阅者建立缓存订阅
	if _, ok := h.ownerUnsub[owner]; !ok && h.gameCache != nil {
		h.ownerUnsub[owner] = h.gameCache.OnUpdated(owner, func(o string, games []*models.Game) {
			h.pushSnapshot(o, games)
		})
	}

	h.logger.Info("客户端已订阅地址",
		zap.String("client_id", client.ID),
		zap.String("owner", owner))
}

// Unsubscribe 取消客户端的地址订阅
func (h *Hub) Unsubscribe(client *Client) {
	if client.Owner == "" {
		return
	}
	owner := client.Owner
	client.Owner = ""

	h.ownerMu.Lock()
	defer h.ownerMu.Unlock()

	clients := h.ownerClients[owner]
	for i, c := range clients {
		if c.ID == client.ID {
			h.ownerClients[owner] = append(clients[:i], clients[i+1:]...)
			break
		}
	}

	if len(h.ownerClients[owner]) == 0 {
		delete(h.ownerClients, owner)
		if unsub, ok := h.ownerUnsub[owner]; ok {
			unsub()
			delete(h.ownerUnsub, owner)
		}
	}
}

// pushSnapshot 向订阅该地址的所有客户端推送全量快照
func (h *Hub) pushSnapshot(owner string, games []*models.Game) {
	data, err := json.Marshal(games)
	if err != nil {
		h.logger.Error("快照序列化失败", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeSnapshot,
		Owner:     owner,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.ownerMu.Lock()
	clients := append([]*Client(nil), h.ownerClients[owner]...)
	h.ownerMu.Unlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("客户端发送缓冲区满，跳过快照推送",
				zap.String("client_id", client.ID))
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.Unsubscribe(client)

	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 运行心跳检测
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.broadcast <- ping
	}
}

// Broadcast 广播消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
